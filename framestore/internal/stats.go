package internal

// Stats is a snapshot of store operational state.
type Stats struct {
	// Capacity is the current slot count.
	Capacity int

	// Generation increments on every SetCapacity.
	Generation uint64

	// Latest is the highest produced frame id (-1 before the first frame).
	Latest int64

	// Available is the number of retained frames.
	Available int

	// Appended is the lifetime count of frames written.
	Appended uint64

	// Overwritten counts frames evicted by the ring wrapping.
	// Expected once the store is full: the store favors freshness.
	Overwritten uint64

	// CapacityChanges counts SetCapacity calls.
	CapacityChanges uint64

	// Reads counts ReadSince calls across all readers.
	Reads uint64

	// Gaps counts reads that rebased past evicted frames.
	Gaps uint64

	// TornReads counts reads that lost frames to a concurrent overwrite.
	// Non-zero means a reader polls slower than the ring turns over.
	TornReads uint64
}

// Stats returns a non-blocking snapshot. Counters may be slightly stale.
func (s *store) Stats() Stats {
	r := s.ring.Load()
	_, latest, available := r.window()

	return Stats{
		Capacity:        r.capacity,
		Generation:      r.generation,
		Latest:          latest,
		Available:       available,
		Appended:        s.appended.Load(),
		Overwritten:     s.overwritten.Load(),
		CapacityChanges: s.capacityChanges.Load(),
		Reads:           s.reads.Load(),
		Gaps:            s.gaps.Load(),
		TornReads:       s.tornReads.Load(),
	}
}
