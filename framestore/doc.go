// Package framestore keeps a bounded, in-memory history of analysis frames
// for one producer and many independent readers.
//
// # Philosophy
//
// "Freshness over completeness." The producer runs on a time-critical path
// and must never wait for a display. When the ring is full the oldest frame
// is overwritten; a reader that fell behind is rebased to the oldest retained
// frame and told so (Gap), never silently handed a hole.
//
// # Architecture
//
//	analysis engine → Append → ring (capacity slots, per-channel arrays)
//	                              ↓ ReadSince(cursor) copies delta only
//	                  Reader A (own buffers + cursor)   Reader B ...
//
// Every channel is a flat array of capacity*width float32 cells, indexed by
// frame id modulo capacity. Cells and per-slot stamps are atomic: readers copy
// while the producer writes, and a stamp mismatch tells a reader the slot was
// overwritten mid-copy.
//
// # Basic Usage
//
// Producer side:
//
//	store := framestore.New(framestore.Config{Capacity: 512, Layout: layout})
//	for block := range blocks {
//	    store.Append(&framestore.Frame{Values: analyse(block)})
//	}
//
// Consumer side (one Reader per window):
//
//	reader := store.NewReader()
//	for range ticker.C {
//	    res := reader.Poll()
//	    buf := reader.Frames()
//	    for i := 0; i < res.Count; i++ {
//	        plot(buf.ID(i), buf.Values(waveformMin, i))
//	    }
//	}
//
// # Gap Semantics
//
// Gaps are EXPECTED under load and are not errors:
//
//   - Cold start (cursor -1): full retained window, Gap = false
//   - Cursor evicted: copy resumes at the oldest retained frame, Gap = true
//   - Capacity changed: buffers recreated, cursor back to -1, Reset = true
//
// Whether to draw a "history truncated" marker is up to the presentation layer.
//
// # Thread Safety
//
//   - Append/SetCapacity: serialized among writers, never wait on readers
//   - ReadSince/Stats: safe for concurrent calls
//   - Reader: one goroutine per Reader
package framestore
