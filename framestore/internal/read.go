package internal

import "math"

// ReadSince copies the frames newer than lastSeen into out.
//
// Algorithm:
//  1. Load the current ring; buffers from another generation force a cold
//     start (lastSeen = -1, Reset = true).
//  2. Clamp lastSeen to [-1, latest]. A cursor at or past latest copies nothing.
//  3. Cold start copies the whole retained window without a gap. A cursor
//     whose frame is no longer retained (lastSeen < oldest) rebases to the
//     oldest retained frame and sets Gap, even when lastSeen+1 == oldest: the
//     frame the cursor points at is gone, so continuity cannot be confirmed.
//     A cursor at first-1 of a ring that has not wrapped yet is not a gap.
//  4. If the window does not fit out (stale, smaller buffers), keep the newest
//     frames that fit and set Gap.
//  5. Copy each frame between two stamp loads. A stamp mismatch means the
//     producer overwrote the slot mid-copy; since overwrites go oldest first,
//     every frame up to that one is discarded and Gap is set.
//
// ReadSince never mutates store contents and never fails: bad cursors and nil
// buffers are clamped. Cost is O(frames copied), not O(capacity).
func (s *store) ReadSince(lastSeen int64, out *Buffers) ReadResult {
	s.reads.Add(1)

	r := s.ring.Load()
	oldest, latest, available := r.window()

	res := ReadResult{
		Latest:    latest,
		Available: available,
	}

	if out == nil {
		return res
	}
	out.Count = 0

	if out.generation != r.generation {
		res.Reset = true
		lastSeen = -1
	}
	if lastSeen < -1 {
		lastSeen = -1
	}
	if lastSeen >= latest || available == 0 {
		return res
	}

	start := lastSeen + 1
	if lastSeen == -1 {
		start = oldest
	} else if lastSeen+1 < oldest || (lastSeen < oldest && oldest > r.first) {
		start = oldest
		res.Gap = true
	}

	if n := latest - start + 1; n > int64(out.Len()) {
		start = latest - int64(out.Len()) + 1
		res.Gap = true
	}
	if start > latest {
		return res
	}

	torn := -1
	count := 0
	for id := start; id <= latest; id++ {
		if !s.copyFrame(r, id, out, count) {
			torn = count
		}
		count++
	}

	if torn >= 0 {
		// Frames [0, torn] were overwritten while copying; keep the suffix.
		keep := count - torn - 1
		shiftBuffers(out, torn+1, keep)
		count = keep
		res.Gap = true
		s.tornReads.Add(1)
	}

	out.Count = count
	res.Count = count
	if res.Gap {
		s.gaps.Add(1)
	}
	return res
}

// copyFrame copies frame id into index dst of out. Returns false if the slot
// did not hold id for the whole copy.
func (s *store) copyFrame(r *ring, id int64, out *Buffers, dst int) bool {
	slot := r.slot(id)

	before := r.stamps[slot].Load()
	out.IDs[dst] = id
	out.Timestamps[dst] = r.times[slot].Load()

	for ch, desc := range r.layout {
		if ch >= len(out.Channels) {
			break
		}
		w := desc.Width
		src := r.values[ch][slot*w : (slot+1)*w]
		dstVals := out.Channels[ch][dst*w : (dst+1)*w]
		for j := range src {
			dstVals[j] = math.Float32frombits(src[j].Load())
		}
	}

	after := r.stamps[slot].Load()
	return before == id && after == id
}

// shiftBuffers moves n frames starting at from to the front of out.
func shiftBuffers(out *Buffers, from, n int) {
	if n <= 0 || from == 0 {
		return
	}
	copy(out.IDs, out.IDs[from:from+n])
	copy(out.Timestamps, out.Timestamps[from:from+n])
	for ch, w := range out.widths {
		vals := out.Channels[ch]
		copy(vals, vals[from*w:(from+n)*w])
	}
}
