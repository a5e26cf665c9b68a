package surface

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Transition records one state change.
type Transition struct {
	From   State
	To     State
	Reason string
	At     time.Time
}

// Option configures a Negotiator.
type Option func(*Negotiator)

// WithAccelerated sets the accelerated surface factory. Without one, Resolve
// goes straight to SoftwareFallback.
func WithAccelerated(f Factory) Option {
	return func(n *Negotiator) { n.accelerated = f }
}

// WithSoftware overrides the software surface factory (NewSoftwareSurface).
func WithSoftware(f Factory) Option {
	return func(n *Negotiator) { n.software = f }
}

// WithInputHandler sets the handler wired to every mounted surface.
func WithInputHandler(fn InputFunc) Option {
	return func(n *Negotiator) { n.input = fn }
}

// WithLogger sets the logger for transition events.
func WithLogger(l *slog.Logger) Option {
	return func(n *Negotiator) {
		if l != nil {
			n.logger = l
		}
	}
}

// WithSize sets the surface size used by a Fallback that runs before
// Resolve. Resolve still overrides it with its own positive arguments.
func WithSize(width, height int) Option {
	return func(n *Negotiator) {
		if width > 0 {
			n.width = width
		}
		if height > 0 {
			n.height = height
		}
	}
}

// WithName labels log lines with the owning window.
func WithName(name string) Option {
	return func(n *Negotiator) { n.name = name }
}

// Negotiator owns the surface of one consumer window.
//
// Thread-safety: all methods safe for concurrent use. Paint handlers run
// under the negotiator lock, so they must not call back into it.
type Negotiator struct {
	host        Host
	paint       PaintFunc
	input       InputFunc
	accelerated Factory
	software    Factory
	logger      *slog.Logger
	name        string

	mu          sync.Mutex
	state       State
	surface     Surface
	width       int
	height      int
	closed      bool
	mounts      int
	transitions []Transition
}

// NewNegotiator creates a negotiator in the Unresolved state.
func NewNegotiator(host Host, paint PaintFunc, opts ...Option) *Negotiator {
	n := &Negotiator{
		host:     host,
		paint:    paint,
		software: func(w, h int) (Surface, error) { return NewSoftwareSurface(w, h), nil },
		logger:   slog.Default(),
		width:    1,
		height:   1,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Resolve acquires a surface of the given size.
//
// From Unresolved it attempts the accelerated factory and falls back to
// software on error or panic. In any other state it returns the current state
// unchanged. Resolve never fails.
func (n *Negotiator) Resolve(width, height int) State {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed || n.state != Unresolved {
		return n.state
	}
	if width > 0 {
		n.width = width
	}
	if height > 0 {
		n.height = height
	}
	n.transitionLocked(Accelerated, nil)
	return n.state
}

// Fallback downgrades to the software surface. Safe to call any number of
// times: in SoftwareFallback, or after Close, it is a no-op.
func (n *Negotiator) Fallback(reason error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	if reason == nil {
		reason = errors.New("requested by presentation layer")
	}
	n.transitionLocked(SoftwareFallback, reason)
}

// Repaint invalidates the mounted surface. A failing accelerated surface is
// replaced by the software surface, which is then repainted once.
func (n *Negotiator) Repaint() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed || n.surface == nil {
		return
	}
	err := n.surface.Invalidate()
	if err == nil {
		return
	}
	if n.state != Accelerated {
		n.logger.Debug("surface: software repaint failed", "window", n.name, "error", err)
		return
	}

	n.transitionLocked(SoftwareFallback, fmt.Errorf("repaint: %w", err))
	if n.surface != nil {
		if err := n.surface.Invalidate(); err != nil {
			n.logger.Debug("surface: software repaint failed", "window", n.name, "error", err)
		}
	}
}

// State returns the current negotiation state.
func (n *Negotiator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Locked reports whether acceleration can no longer be acquired.
func (n *Negotiator) Locked() bool {
	return n.State() == SoftwareFallback
}

// Surface returns the mounted surface (nil while Unresolved or after Close).
func (n *Negotiator) Surface() Surface {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.surface
}

// Mounts returns how many times a surface was mounted on the host.
func (n *Negotiator) Mounts() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.mounts
}

// Transitions returns the transition log.
func (n *Negotiator) Transitions() []Transition {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Transition, len(n.transitions))
	copy(out, n.transitions)
	return out
}

// Close unwires and closes the mounted surface. Idempotent.
func (n *Negotiator) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true
	return n.teardownLocked()
}

// transitionLocked is the only place state changes.
//
// Accelerated: build the accelerated surface, recovering errors and panics;
// on failure continue to SoftwareFallback with the failure as reason.
// SoftwareFallback: tear down the accelerated surface completely, then build,
// wire and mount the software surface.
//
// Illegal edges are ignored. Caller holds n.mu.
func (n *Negotiator) transitionLocked(to State, reason error) {
	from := n.state
	if !CanTransition(from, to) {
		return
	}

	switch to {
	case Accelerated:
		s, err := n.buildAccelerated()
		if err != nil {
			n.logger.Warn("surface: accelerated backend unavailable",
				"window", n.name,
				"error", err,
			)
			n.transitionLocked(SoftwareFallback, err)
			return
		}
		n.install(s)

	case SoftwareFallback:
		if err := n.teardownLocked(); err != nil {
			n.logger.Debug("surface: accelerated close failed", "window", n.name, "error", err)
		}
		s, err := n.buildSoftware()
		if err != nil {
			n.logger.Error("surface: software backend failed", "window", n.name, "error", err)
		} else {
			n.install(s)
		}
	}

	n.state = to
	t := Transition{From: from, To: to, At: time.Now()}
	if reason != nil {
		t.Reason = reason.Error()
	}
	n.transitions = append(n.transitions, t)

	n.logger.Info("surface: transition",
		"window", n.name,
		"from", from.String(),
		"to", to.String(),
		"reason", t.Reason,
	)
}

func (n *Negotiator) buildAccelerated() (s Surface, err error) {
	if n.accelerated == nil {
		return nil, ErrNoAccelerated
	}
	defer func() {
		if r := recover(); r != nil {
			s = nil
			err = fmt.Errorf("surface: accelerated construction panicked: %v", r)
		}
	}()

	s, err = n.accelerated(n.width, n.height)
	if err != nil {
		if s != nil {
			s.Close()
		}
		return nil, err
	}
	if s == nil {
		return nil, errors.New("surface: accelerated factory returned nil")
	}
	return s, nil
}

func (n *Negotiator) buildSoftware() (Surface, error) {
	s, err := n.software(n.width, n.height)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.New("surface: software factory returned nil")
	}
	return s, nil
}

// install wires handlers and mounts s. Exactly one Mount per call.
func (n *Negotiator) install(s Surface) {
	s.SetPaintHandler(n.paint)
	s.SetInputHandler(n.input)
	n.surface = s
	if n.host != nil {
		n.host.Mount(s)
	}
	n.mounts++
}

// teardownLocked unwires paint, then input, then closes the surface.
func (n *Negotiator) teardownLocked() error {
	s := n.surface
	if s == nil {
		return nil
	}
	n.surface = nil
	s.SetPaintHandler(nil)
	s.SetInputHandler(nil)
	return s.Close()
}
