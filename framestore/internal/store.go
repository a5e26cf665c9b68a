// Package internal implements the frame store with single-writer,
// multi-reader ring semantics.
//
// This package is INTERNAL - clients MUST use the public API in the parent
// package.
package internal

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// store is the concrete implementation of framestore.Store.
//
// Concurrency:
//   - Append and SetCapacity serialize on writeMu. Readers never take it, so
//     the producer never waits on a reader.
//   - Readers load the current ring through an atomic pointer and copy out
//     under slot stamps; a copy never holds a reference into the ring.
type store struct {
	// --- Writer side ---

	writeMu sync.Mutex // Serializes Append and SetCapacity
	nextID  int64      // Next frame id (protected by writeMu)

	// --- Shared ---

	ring       atomic.Pointer[ring] // Current generation
	generation atomic.Uint64        // Last issued generation
	layout     Layout               // Immutable after construction

	// --- Stats (atomic) ---

	appended        atomic.Uint64
	overwritten     atomic.Uint64
	capacityChanges atomic.Uint64
	reads           atomic.Uint64
	gaps            atomic.Uint64
	tornReads       atomic.Uint64

	logger *slog.Logger
}

// NewStore creates a store (called by the public New in the parent package).
func NewStore(cfg Config, logger *slog.Logger) *store {
	if logger == nil {
		logger = slog.Default()
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 1
	}

	s := &store{
		layout: cfg.Layout.normalized(),
		logger: logger,
	}
	s.generation.Store(1)
	s.ring.Store(newRing(1, capacity, s.layout, 0))

	logger.Debug("framestore: created",
		"capacity", capacity,
		"channels", len(s.layout),
	)
	return s
}

// Append writes a frame into the next slot and returns its id.
//
// The oldest slot is overwritten once the ring is full. Append never waits on
// readers; a reader copying the overwritten slot detects it via the stamp.
// A nil frame is ignored and returns -1.
func (s *store) Append(frame *Frame) int64 {
	if frame == nil {
		return -1
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	r := s.ring.Load()

	id := s.nextID
	s.nextID++
	frame.ID = id

	ts := frame.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	slot := r.slot(id)
	r.stamps[slot].Store(stampWriting)
	r.times[slot].Store(ts.UnixNano())

	for ch, desc := range r.layout {
		var src []float32
		if ch < len(frame.Values) {
			src = frame.Values[ch]
		}
		dst := r.values[ch][slot*desc.Width : (slot+1)*desc.Width]
		for j := range dst {
			var v float32
			if j < len(src) {
				v = src[j]
			}
			dst[j].Store(math.Float32bits(v))
		}
	}

	r.stamps[slot].Store(id)
	r.latest.Store(id)

	s.appended.Add(1)
	if id-r.first >= int64(r.capacity) {
		s.overwritten.Add(1)
	}
	return id
}

// SetCapacity replaces the ring with an empty one of n slots.
//
// Every outstanding cursor is invalidated: buffers created for the previous
// generation are served as cold starts. Frame ids keep increasing across the
// change. n <= 0 is clamped to 1.
func (s *store) SetCapacity(n int) {
	if n <= 0 {
		n = 1
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	old := s.ring.Load()
	_, _, dropped := old.window()
	gen := s.generation.Add(1)
	s.ring.Store(newRing(gen, n, s.layout, s.nextID))
	s.capacityChanges.Add(1)

	s.logger.Info("framestore: capacity changed",
		"old_capacity", old.capacity,
		"new_capacity", n,
		"generation", gen,
		"dropped_frames", dropped,
	)
}

// Capacity returns the current slot count.
func (s *store) Capacity() int {
	return s.ring.Load().capacity
}

// Latest returns the highest produced frame id, or -1 before the first Append.
func (s *store) Latest() int64 {
	_, latest, _ := s.ring.Load().window()
	return latest
}

// Available returns how many frames are currently retained.
func (s *store) Available() int {
	_, _, n := s.ring.Load().window()
	return n
}

// Layout returns a copy of the channel layout.
func (s *store) Layout() Layout {
	out := make(Layout, len(s.layout))
	copy(out, s.layout)
	return out
}

// NewReader returns a delta reader bound to this store.
func (s *store) NewReader() *Reader {
	return &Reader{store: s, cursor: -1}
}
