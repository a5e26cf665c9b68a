package internal

import "sync/atomic"

// Slot stamp values other than a frame id.
const (
	stampEmpty   int64 = -1
	stampWriting int64 = -2
)

// ring is one capacity generation of the store.
//
// Memory layout is arena-style: every channel owns a flat array of
// capacity*width values and frame id k lives in slot k%capacity of all of
// them. Every cell is atomic so readers can copy while the producer writes
// without locks; the per-slot stamp tells a reader whether the slot still
// holds the frame it started copying.
//
// A ring is replaced wholesale on SetCapacity and never resized in place.
type ring struct {
	generation uint64
	capacity   int
	layout     Layout

	// first is the id of the first frame written into this ring. Frames in a
	// ring always have consecutive ids starting at first.
	first int64

	// latest is the highest fully written id (first-1 while empty).
	latest atomic.Int64

	stamps []atomic.Int64   // per slot: frame id, stampEmpty or stampWriting
	times  []atomic.Int64   // per slot: unix nanos
	values [][]atomic.Uint32 // per channel: capacity*width float32 bits
}

func newRing(generation uint64, capacity int, layout Layout, first int64) *ring {
	r := &ring{
		generation: generation,
		capacity:   capacity,
		layout:     layout,
		first:      first,
		stamps:     make([]atomic.Int64, capacity),
		times:      make([]atomic.Int64, capacity),
		values:     make([][]atomic.Uint32, len(layout)),
	}
	r.latest.Store(first - 1)

	for i := range r.stamps {
		r.stamps[i].Store(stampEmpty)
	}
	for ch, desc := range layout {
		r.values[ch] = make([]atomic.Uint32, capacity*desc.Width)
	}
	return r
}

// slot maps a frame id to its slot index.
func (r *ring) slot(id int64) int {
	return int(id % int64(r.capacity))
}

// window returns the retained id range [oldest, latest] and its length.
// available is 0 when the ring is empty.
func (r *ring) window() (oldest, latest int64, available int) {
	latest = r.latest.Load()
	n := latest - r.first + 1
	if n <= 0 {
		return latest + 1, latest, 0
	}
	if n > int64(r.capacity) {
		n = int64(r.capacity)
	}
	return latest - n + 1, latest, int(n)
}
