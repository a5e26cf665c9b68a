package internal

import "time"

// Buffers is caller-owned storage for ReadSince.
//
// Buffers are sized to the store capacity of the generation they were created
// for and are never grown by a read. Use the store's EnsureBuffers before each
// read to pick up capacity changes.
type Buffers struct {
	// IDs holds the copied frame ids, ascending, in IDs[:Count].
	IDs []int64

	// Timestamps holds unix nanos parallel to IDs.
	Timestamps []int64

	// Channels holds one flat array per layout channel; frame i of channel c
	// lives at Channels[c][i*width : (i+1)*width].
	Channels [][]float32

	// Count is the number of frames copied by the last read.
	Count int

	widths     []int
	generation uint64
}

func newBuffers(r *ring) *Buffers {
	b := &Buffers{
		IDs:        make([]int64, r.capacity),
		Timestamps: make([]int64, r.capacity),
		Channels:   make([][]float32, len(r.layout)),
		widths:     make([]int, len(r.layout)),
		generation: r.generation,
	}
	for ch, desc := range r.layout {
		b.Channels[ch] = make([]float32, r.capacity*desc.Width)
		b.widths[ch] = desc.Width
	}
	return b
}

// Len returns the number of frames the buffers can hold.
func (b *Buffers) Len() int {
	if b == nil {
		return 0
	}
	return len(b.IDs)
}

// Generation returns the store generation these buffers were sized for.
func (b *Buffers) Generation() uint64 {
	return b.generation
}

// ID returns the id of copied frame i.
func (b *Buffers) ID(i int) int64 {
	return b.IDs[i]
}

// Time returns the timestamp of copied frame i.
func (b *Buffers) Time(i int) time.Time {
	return time.Unix(0, b.Timestamps[i])
}

// Values returns channel ch of copied frame i. The slice aliases the buffers
// and is overwritten by the next read.
func (b *Buffers) Values(ch, i int) []float32 {
	w := b.widths[ch]
	return b.Channels[ch][i*w : (i+1)*w]
}

// Width returns the per-frame width of channel ch.
func (b *Buffers) Width(ch int) int {
	return b.widths[ch]
}

// NewBuffers allocates buffers for the current generation.
func (s *store) NewBuffers() *Buffers {
	return newBuffers(s.ring.Load())
}

// EnsureBuffers returns b unchanged when it matches the current generation,
// otherwise fresh buffers and true. Callers must reset their cursor to -1
// when the second result is true.
func (s *store) EnsureBuffers(b *Buffers) (*Buffers, bool) {
	r := s.ring.Load()
	if b != nil && b.generation == r.generation {
		return b, false
	}
	return newBuffers(r), true
}
