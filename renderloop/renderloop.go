// Package renderloop drives one consumer window: a fixed-period tick that
// pulls only the frames produced since the last tick and requests a repaint.
//
// Each window owns its Loop, Reader and ticker. Loops never share state, so
// a slow window cannot delay another or the producer.
package renderloop

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/analysis-core/framestore"
)

// DefaultPeriod is ~60 Hz.
const DefaultPeriod = 16 * time.Millisecond

// Config configures a Loop.
type Config struct {
	// Period between ticks. Zero or negative uses DefaultPeriod.
	Period time.Duration
}

// Repainter receives repaint requests. *surface.Negotiator implements it.
type Repainter interface {
	Repaint()
}

// FrameHandler receives the delta of one tick before the repaint request.
// buf is only valid during the call.
type FrameHandler func(res framestore.ReadResult, buf *framestore.Buffers)

// Option configures a Loop.
type Option func(*Loop)

// WithFrameHandler sets the per-tick delta handler.
func WithFrameHandler(fn FrameHandler) Option {
	return func(l *Loop) { l.handler = fn }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Loop) {
		if log != nil {
			l.logger = log
		}
	}
}

// WithName labels log lines with the owning window.
func WithName(name string) Option {
	return func(l *Loop) { l.name = name }
}

// Loop is the periodic delta pull of one consumer.
type Loop struct {
	reader    *framestore.Reader
	repainter Repainter
	handler   FrameHandler
	logger    *slog.Logger
	name      string

	period   atomic.Int64
	periodCh chan time.Duration

	// tickMu is held for the whole of a tick; Close takes it to wait for an
	// in-flight tick before the caller tears the surface down.
	tickMu    sync.Mutex
	closing   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	ticks    atomic.Uint64
	skipped  atomic.Uint64
	frames   atomic.Uint64
	gaps     atomic.Uint64
	resets   atomic.Uint64
	repaints atomic.Uint64
}

// New creates a loop reading through reader and repainting through repainter.
// repainter may be nil (headless consumers that only use the FrameHandler).
func New(cfg Config, reader *framestore.Reader, repainter Repainter, opts ...Option) *Loop {
	l := &Loop{
		reader:    reader,
		repainter: repainter,
		logger:    slog.Default(),
		periodCh:  make(chan time.Duration, 1),
		done:      make(chan struct{}),
	}
	l.period.Store(int64(normalize(cfg.Period)))
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func normalize(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultPeriod
	}
	return d
}

// Run ticks until ctx is cancelled or Close is called. Returns ctx.Err() on
// cancellation and nil on Close.
func (l *Loop) Run(ctx context.Context) error {
	if l.closing.Load() {
		return nil
	}

	ticker := time.NewTicker(l.Period())
	defer ticker.Stop()

	l.logger.Debug("renderloop: started", "window", l.name, "period", l.Period())
	defer l.logger.Debug("renderloop: stopped", "window", l.name)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case d := <-l.periodCh:
			ticker.Reset(d)
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Tick performs one pull:
//  0. skip when closing
//  1. Poll: ensure buffers match capacity (cold start on change), read since
//     the cursor, advance the cursor
//  2. hand the delta to the FrameHandler when frames, a gap or a reset arrived
//  3. request a repaint, every tick. Idle ticks still repaint so a freshly
//     mounted surface gets drawn and native surfaces keep pumping events.
//
// Returns false when the tick was suppressed.
func (l *Loop) Tick() bool {
	if l.closing.Load() {
		l.skipped.Add(1)
		return false
	}

	l.tickMu.Lock()
	defer l.tickMu.Unlock()

	// Re-check under the lock: Close may have won the race.
	if l.closing.Load() {
		l.skipped.Add(1)
		return false
	}

	res := l.reader.Poll()
	l.ticks.Add(1)
	l.frames.Add(uint64(res.Count))
	if res.Gap {
		l.gaps.Add(1)
		l.logger.Debug("renderloop: history gap", "window", l.name, "latest", res.Latest)
	}
	if res.Reset {
		l.resets.Add(1)
	}

	if l.handler != nil && (res.Count > 0 || res.Gap || res.Reset) {
		l.handler(res, l.reader.Frames())
	}
	if l.repainter != nil {
		l.repainter.Repaint()
		l.repaints.Add(1)
	}
	return true
}

// SetPeriod changes the tick period of a running or future Run.
func (l *Loop) SetPeriod(d time.Duration) {
	d = normalize(d)
	l.period.Store(int64(d))
	select {
	case l.periodCh <- d:
	default:
		// Replace a pending, not yet applied period.
		select {
		case <-l.periodCh:
		default:
		}
		select {
		case l.periodCh <- d:
		default:
		}
	}
}

// Period returns the current tick period.
func (l *Loop) Period() time.Duration {
	return time.Duration(l.period.Load())
}

// Close suppresses further ticks, waits for an in-flight tick and stops Run.
// Idempotent; safe before, during or after Run.
func (l *Loop) Close() {
	l.closing.Store(true)
	l.tickMu.Lock()
	l.tickMu.Unlock()
	l.closeOnce.Do(func() { close(l.done) })
}

// Closed reports whether Close was called.
func (l *Loop) Closed() bool {
	return l.closing.Load()
}

// Stats is a snapshot of loop counters.
type Stats struct {
	Period   time.Duration
	Cursor   int64
	Ticks    uint64
	Skipped  uint64
	Frames   uint64
	Gaps     uint64
	Resets   uint64
	Repaints uint64
}

// Stats returns a snapshot. Cursor is taken between ticks.
func (l *Loop) Stats() Stats {
	l.tickMu.Lock()
	cursor := l.reader.Cursor()
	l.tickMu.Unlock()

	return Stats{
		Period:   l.Period(),
		Cursor:   cursor,
		Ticks:    l.ticks.Load(),
		Skipped:  l.skipped.Load(),
		Frames:   l.frames.Load(),
		Gaps:     l.gaps.Load(),
		Resets:   l.resets.Load(),
		Repaints: l.repaints.Load(),
	}
}
