// Package surface negotiates the drawing surface of a consumer window: an
// accelerated surface when one can be created, a software surface otherwise,
// and a one-way downgrade when the accelerated one fails in use.
//
// State machine:
//
//	Unresolved ──ok──→ Accelerated ──Fallback / paint error──→ SoftwareFallback
//	     └──────────────construction error / panic─────────────────↗
//
// SoftwareFallback is terminal for the window's lifetime: once reached the
// negotiator is locked and never re-attempts acceleration.
package surface

import (
	"errors"
	"image"
	"image/color"
)

var (
	// ErrClosed is returned by operations on a closed surface.
	ErrClosed = errors.New("surface: closed")

	// ErrNoAccelerated is the fallback reason when no accelerated factory is configured.
	ErrNoAccelerated = errors.New("surface: no accelerated backend")
)

// Canvas is the drawing handle given to the presentation layer on paint.
type Canvas interface {
	Bounds() image.Rectangle
	Clear(c color.Color)
	FillRect(r image.Rectangle, c color.Color)
}

// PaintFunc draws one frame onto c.
type PaintFunc func(c Canvas)

// InputKind classifies native input events.
type InputKind int

const (
	InputPointerMove InputKind = iota
	InputPointerDown
	InputPointerUp
	InputKey
	InputResize
)

// InputEvent is a native input event forwarded by a surface.
type InputEvent struct {
	Kind   InputKind
	X, Y   int // pointer position or new size for InputResize
	Button int
	Key    int
}

// InputFunc receives input events.
type InputFunc func(ev InputEvent)

// Surface is a mounted drawing surface.
//
// Handlers set to nil are unwired: the surface must stop calling them.
type Surface interface {
	Backend() Backend
	Size() (width, height int)
	SetPaintHandler(fn PaintFunc)
	SetInputHandler(fn InputFunc)

	// Invalidate requests a repaint. An error means the surface can no
	// longer draw.
	Invalidate() error

	Close() error
}

// Factory creates a surface of the given size.
type Factory func(width, height int) (Surface, error)

// Host is the presentation layer's visual tree slot for one window.
//
// Mount replaces whatever was mounted before. It is called with the
// negotiator lock held and MUST NOT call back into the Negotiator.
type Host interface {
	Mount(s Surface)
}

// HostFunc adapts a function to Host.
type HostFunc func(s Surface)

// Mount implements Host.
func (f HostFunc) Mount(s Surface) { f(s) }
