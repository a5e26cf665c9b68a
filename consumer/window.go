// Package consumer assembles one analysis window: a capability subscription,
// a delta reader, a surface negotiator and a render loop.
//
// Lifecycle:
//
//	w := consumer.New(orch, cfg, host, paint)
//	w.Open(ctx)                       // resolve surface, subscribe, start ticking
//	w.SetCapabilities(newSet)          // subscribe new, dispose old
//	w.Close()                          // any order, any number of times
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/analysis-core/capability"
	"github.com/e7canasta/analysis-core/framestore"
	"github.com/e7canasta/analysis-core/orchestrator"
	"github.com/e7canasta/analysis-core/renderloop"
	"github.com/e7canasta/analysis-core/surface"
)

// ErrClosed is returned by Open on a closed window.
var ErrClosed = errors.New("consumer: window closed")

// Config describes one window.
type Config struct {
	// ID names the window. Empty generates a uuid.
	ID string

	Capabilities capability.Set
	Width        int
	Height       int
	Period       time.Duration

	// Accelerated is the accelerated surface factory; nil means software only.
	Accelerated surface.Factory
}

// Option configures a Window.
type Option func(*Window)

// WithLogger sets the logger passed down to the negotiator and loop.
func WithLogger(l *slog.Logger) Option {
	return func(w *Window) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithFrameHandler receives every tick's delta before the repaint.
func WithFrameHandler(fn renderloop.FrameHandler) Option {
	return func(w *Window) { w.handler = fn }
}

// WithInputHandler receives native input events of the mounted surface.
func WithInputHandler(fn surface.InputFunc) Option {
	return func(w *Window) { w.input = fn }
}

// Window is one consumer of the frame store.
//
// All per-window state (cursor, buffers, surface state) lives here and is
// never shared with other windows.
type Window struct {
	id      string
	cfg     Config
	orch    *orchestrator.Orchestrator
	logger  *slog.Logger
	handler renderloop.FrameHandler
	input   surface.InputFunc

	negotiator *surface.Negotiator
	loop       *renderloop.Loop

	mu     sync.Mutex
	sub    *orchestrator.Subscription
	opened bool
	closed bool
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates a window. Nothing runs until Open.
func New(orch *orchestrator.Orchestrator, cfg Config, host surface.Host, paint surface.PaintFunc, opts ...Option) *Window {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	w := &Window{
		id:     cfg.ID,
		cfg:    cfg,
		orch:   orch,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	nopts := []surface.Option{
		surface.WithLogger(w.logger),
		surface.WithName(w.id),
		surface.WithSize(cfg.Width, cfg.Height),
	}
	if cfg.Accelerated != nil {
		nopts = append(nopts, surface.WithAccelerated(cfg.Accelerated))
	}
	if w.input != nil {
		nopts = append(nopts, surface.WithInputHandler(w.input))
	}
	w.negotiator = surface.NewNegotiator(host, paint, nopts...)

	lopts := []renderloop.Option{
		renderloop.WithLogger(w.logger),
		renderloop.WithName(w.id),
	}
	if w.handler != nil {
		lopts = append(lopts, renderloop.WithFrameHandler(w.handler))
	}
	w.loop = renderloop.New(renderloop.Config{Period: cfg.Period}, orch.Store().NewReader(), w.negotiator, lopts...)
	return w
}

// ID returns the window id.
func (w *Window) ID() string { return w.id }

// Open resolves the surface, subscribes and starts the render loop on its
// own goroutine. The loop stops on Close or when ctx is cancelled. Opening
// twice is a no-op.
func (w *Window) Open(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.opened {
		return nil
	}
	w.opened = true

	state := w.negotiator.Resolve(w.cfg.Width, w.cfg.Height)
	w.sub = w.orch.Subscribe(w.id, w.cfg.Capabilities)

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.loop.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Warn("consumer: render loop stopped", "window", w.id, "error", err)
		}
	}()

	w.logger.Info("consumer: window opened",
		"window", w.id,
		"capabilities", w.cfg.Capabilities.String(),
		"surface", state.String(),
		"period", w.loop.Period(),
	)
	return nil
}

// SetCapabilities replaces the window's subscription: the new one is
// registered before the old one is disposed, so capabilities needed by both
// never flicker off. No-op when unchanged or closed.
func (w *Window) SetCapabilities(caps capability.Set) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || caps == w.cfg.Capabilities {
		return
	}
	w.cfg.Capabilities = caps
	if !w.opened {
		return
	}

	old := w.sub
	w.sub = w.orch.Subscribe(w.id, caps)
	old.Close()
}

// Capabilities returns the current capability set.
func (w *Window) Capabilities() capability.Set {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg.Capabilities
}

// SetPeriod changes the tick period.
func (w *Window) SetPeriod(d time.Duration) {
	w.loop.SetPeriod(d)
}

// Fallback forwards a presentation-layer backend failure to the negotiator.
func (w *Window) Fallback(reason error) {
	w.negotiator.Fallback(reason)
}

// Negotiator exposes the window's surface negotiator.
func (w *Window) Negotiator() *surface.Negotiator { return w.negotiator }

// Loop exposes the window's render loop.
func (w *Window) Loop() *renderloop.Loop { return w.loop }

// Close stops ticking, disposes the subscription and closes the surface.
// Idempotent; each step is itself idempotent so partial teardown from other
// paths (loop closed by ctx, subscription closed directly) is fine.
func (w *Window) Close() error {
	// Stop ticks first: the surface must not be painted while it is torn down.
	w.loop.Close()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	sub := w.sub
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()

	sub.Close()
	err := w.negotiator.Close()

	w.logger.Info("consumer: window closed", "window", w.id)
	return err
}

// Stats is a snapshot of one window.
type Stats struct {
	ID           string
	Capabilities capability.Set
	Surface      surface.State
	Loop         renderloop.Stats
}

// Stats returns a snapshot.
func (w *Window) Stats() Stats {
	return Stats{
		ID:           w.id,
		Capabilities: w.Capabilities(),
		Surface:      w.negotiator.State(),
		Loop:         w.loop.Stats(),
	}
}

// Frames is a helper for FrameHandlers: the values of channel name for every
// copied frame, or nil when the layout has no such channel.
func Frames(layout framestore.Layout, res framestore.ReadResult, buf *framestore.Buffers, name string) [][]float32 {
	ch := layout.Index(name)
	if ch < 0 || buf == nil {
		return nil
	}
	out := make([][]float32, res.Count)
	for i := 0; i < res.Count; i++ {
		out[i] = buf.Values(ch, i)
	}
	return out
}
