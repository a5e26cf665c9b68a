package internal

// Reader is a single consumer's view of the store: its own buffers and its
// own cursor. Nothing in a Reader is shared with other readers or with the
// producer, so readers poll at independent rates without coordinating.
//
// A Reader MUST be used from one goroutine.
type Reader struct {
	store  *store
	buf    *Buffers
	cursor int64
	last   ReadResult
}

// Poll performs one delta read:
//  1. Ensure buffers match the current store capacity; on change, recreate
//     them and reset the cursor to cold start.
//  2. ReadSince(cursor).
//  3. Advance the cursor to the returned latest id.
//
// The copied frames are available through Frames until the next Poll.
func (r *Reader) Poll() ReadResult {
	buf, recreated := r.store.EnsureBuffers(r.buf)
	hadBuffers := r.buf != nil
	if recreated {
		r.buf = buf
		r.cursor = -1
	}

	res := r.store.ReadSince(r.cursor, r.buf)
	if recreated && hadBuffers {
		res.Reset = true
	}
	if res.Latest > r.cursor {
		r.cursor = res.Latest
	}

	r.last = res
	return res
}

// Frames returns the buffers filled by the last Poll (nil before the first).
func (r *Reader) Frames() *Buffers {
	return r.buf
}

// Cursor returns the last seen frame id (-1 before any frame was seen).
func (r *Reader) Cursor() int64 {
	return r.cursor
}

// Last returns the result of the last Poll.
func (r *Reader) Last() ReadResult {
	return r.last
}

// Reset forces the next Poll to be a cold start.
func (r *Reader) Reset() {
	r.cursor = -1
}
