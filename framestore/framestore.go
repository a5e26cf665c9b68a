package framestore

import (
	"log/slog"

	"github.com/e7canasta/analysis-core/framestore/internal"
)

// Frame is re-exported from internal package to avoid import cycles.
// See internal/types.go for full documentation.
type Frame = internal.Frame

// Channel is re-exported from internal package.
type Channel = internal.Channel

// Layout is re-exported from internal package.
type Layout = internal.Layout

// Buffers is re-exported from internal package.
// See internal/buffers.go for full documentation.
type Buffers = internal.Buffers

// ReadResult is re-exported from internal package.
type ReadResult = internal.ReadResult

// Reader is re-exported from internal package.
// See internal/reader.go for full documentation.
type Reader = internal.Reader

// Stats is re-exported from internal package.
type Stats = internal.Stats

// Config is re-exported from internal package.
type Config = internal.Config

// Store is the public interface of the bounded frame history.
//
// Design:
//   - One producer calls Append; any number of readers call ReadSince
//   - Readers copy out into their own Buffers; they never hold references
//     into the store and never mutate it
//   - Thread-safe: all methods safe for concurrent use
type Store interface {
	// Append writes a frame and returns the id assigned to it.
	//
	// Semantics:
	//   - Never blocks on readers
	//   - Overwrites the oldest frame once Capacity frames are retained
	//   - frame.ID is set by the store; Values are copied
	//
	// A nil frame is ignored (returns -1).
	Append(frame *Frame) int64

	// ReadSince copies frames newer than lastSeen into out.
	//
	// Semantics:
	//   - lastSeen = -1 is a cold start: the whole retained window, no gap
	//   - lastSeen older than the oldest retained frame: Gap = true and the
	//     copy resumes at the oldest retained frame (rebase)
	//   - out is never grown; buffers from before a SetCapacity are served
	//     as a cold start with Reset = true
	//   - Side-effect free on the store; bad cursors are clamped, never errors
	//
	// Example:
	//   buf := store.NewBuffers()
	//   cursor := int64(-1)
	//   res := store.ReadSince(cursor, buf)
	//   cursor = res.Latest
	//   for i := 0; i < buf.Count; i++ { draw(buf.ID(i), buf.Values(0, i)) }
	ReadSince(lastSeen int64, out *Buffers) ReadResult

	// SetCapacity reallocates the store to n slots (n <= 0 clamps to 1).
	// Discards history and invalidates every outstanding cursor.
	SetCapacity(n int)

	// Capacity returns the current slot count.
	Capacity() int

	// Latest returns the highest produced frame id, -1 before the first frame.
	Latest() int64

	// Available returns the number of retained frames.
	Available() int

	// Layout returns the channel layout every frame carries.
	Layout() Layout

	// NewBuffers allocates read buffers sized to the current capacity.
	NewBuffers() *Buffers

	// EnsureBuffers returns b if it matches the current capacity generation,
	// otherwise new buffers and true (the caller must reset its cursor).
	EnsureBuffers(b *Buffers) (*Buffers, bool)

	// NewReader returns a per-consumer delta reader (buffers + cursor).
	NewReader() *Reader

	// Stats returns an operational snapshot.
	Stats() Stats
}

// Option configures a Store.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a store with the given capacity and layout.
func New(cfg Config, opts ...Option) Store {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return internal.NewStore(cfg, o.logger)
}
