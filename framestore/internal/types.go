package internal

import (
	"time"

	"github.com/e7canasta/analysis-core/capability"
)

// Channel describes one fixed-shape measurement array carried by every frame.
//
// The store treats channel contents as opaque: Width float32 values per frame,
// meaningful only while Capability is enabled on the engine.
type Channel struct {
	// Name identifies the channel to the presentation layer (e.g. "waveform.min").
	Name string

	// Capability gates whether the engine is obligated to fill this channel.
	Capability capability.Capability

	// Width is the number of values per frame. Values <= 0 are treated as 1.
	Width int
}

// Layout is the ordered channel list shared by the producer and all readers.
// Frame.Values and Buffers.Channels are indexed by layout position.
type Layout []Channel

// Index returns the position of the named channel, or -1.
func (l Layout) Index(name string) int {
	for i, ch := range l {
		if ch.Name == name {
			return i
		}
	}
	return -1
}

// normalized returns a copy of l with widths clamped to >= 1.
func (l Layout) normalized() Layout {
	out := make(Layout, len(l))
	for i, ch := range l {
		if ch.Width <= 0 {
			ch.Width = 1
		}
		out[i] = ch
	}
	return out
}

// Frame is one production unit handed to Append.
//
// The store copies Values into its own arrays, so the producer may reuse the
// slices after Append returns. ID is assigned by the store, not the producer.
type Frame struct {
	// ID is set by Append. Strictly increasing from 0, never reused.
	ID int64

	// Timestamp is the source time of the analysed block. Zero means "now".
	Timestamp time.Time

	// Values holds one slice per layout channel. Short slices are zero-padded,
	// long ones truncated, missing channels written as zeros.
	Values [][]float32
}

// ReadResult describes one ReadSince call.
type ReadResult struct {
	// Latest is the highest frame id the store has produced. Callers store it
	// as their next cursor.
	Latest int64

	// Available is the number of frames currently retained.
	Available int

	// Count is the number of frames copied into the buffers.
	Count int

	// Gap reports that frames newer than the cursor were evicted before they
	// could be read; the copy resumed from the oldest retained frame.
	Gap bool

	// Reset reports that the buffers belonged to a previous capacity and the
	// read was served as a cold start.
	Reset bool
}

// Config configures a store.
type Config struct {
	// Capacity is the number of retained frames. Values <= 0 are clamped to 1.
	Capacity int

	// Layout is the channel set every frame carries.
	Layout Layout
}
