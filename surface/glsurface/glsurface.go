// Package glsurface provides the accelerated surface: a glfw window with an
// OpenGL ES 2 context. Canvas operations are scissored clears, enough for
// the bar and level plots the presentation layer draws.
//
// Creation fails cleanly when no display or GL driver is available, which
// the negotiator turns into a software fallback.
//
// All glfw and GL calls run on one dedicated goroutine locked to an OS
// thread. That satisfies glfw on Linux and Windows. macOS requires the
// process main thread, which a library cannot claim, so there the surface
// refuses to start with ErrMainThreadRequired and windows fall back to
// software.
package glsurface

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	gl "github.com/go-gl/gl/v3.1/gles2"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/e7canasta/analysis-core/surface"
)

var (
	// ErrNotRunning is returned when the GL thread has been shut down.
	ErrNotRunning = errors.New("glsurface: GL thread not running")

	// ErrMainThreadRequired is returned on platforms where glfw only works
	// on the process main thread.
	ErrMainThreadRequired = errors.New("glsurface: glfw requires the main thread on this platform")
)

// Options configures window creation.
type Options struct {
	Title string

	// Visible shows the window. Hidden windows still render and are what
	// the daemon uses to probe acceleration.
	Visible bool
}

// Factory returns a surface.Factory creating GL surfaces with opts.
func Factory(opts Options) surface.Factory {
	return func(width, height int) (surface.Surface, error) {
		return New(width, height, opts)
	}
}

// Surface is a GL-backed surface.Surface.
type Surface struct {
	window *glfw.Window

	mu     sync.Mutex
	paint  surface.PaintFunc
	input  surface.InputFunc
	width  int
	height int
	closed bool
}

// New creates the window and context on the GL thread.
func New(width, height int, opts Options) (*Surface, error) {
	if err := thread.acquire(); err != nil {
		return nil, err
	}

	s := &Surface{width: max(width, 1), height: max(height, 1)}
	err := thread.do(func() error {
		glfw.DefaultWindowHints()
		glfw.WindowHint(glfw.ClientAPI, glfw.OpenGLESAPI)
		glfw.WindowHint(glfw.ContextVersionMajor, 2)
		glfw.WindowHint(glfw.DoubleBuffer, glfw.True)
		glfw.WindowHint(glfw.Resizable, glfw.True)
		if opts.Visible {
			glfw.WindowHint(glfw.Visible, glfw.True)
		} else {
			glfw.WindowHint(glfw.Visible, glfw.False)
		}

		window, err := glfw.CreateWindow(s.width, s.height, opts.Title, nil, nil)
		if err != nil {
			return fmt.Errorf("create window: %w", err)
		}
		window.MakeContextCurrent()
		if err := gl.Init(); err != nil {
			window.Destroy()
			return fmt.Errorf("gl init: %w", err)
		}
		s.window = window
		s.wireCallbacks()
		return nil
	})
	if err != nil {
		thread.release()
		return nil, err
	}
	return s, nil
}

// wireCallbacks forwards native events to the current input handler.
// Runs on the GL thread.
func (s *Surface) wireCallbacks() {
	s.window.SetFramebufferSizeCallback(func(_ *glfw.Window, w, h int) {
		s.mu.Lock()
		s.width, s.height = w, h
		s.mu.Unlock()
		s.emit(surface.InputEvent{Kind: surface.InputResize, X: w, Y: h})
	})
	s.window.SetCursorPosCallback(func(_ *glfw.Window, x, y float64) {
		s.emit(surface.InputEvent{Kind: surface.InputPointerMove, X: int(x), Y: int(y)})
	})
	s.window.SetMouseButtonCallback(func(w *glfw.Window, b glfw.MouseButton, a glfw.Action, _ glfw.ModifierKey) {
		x, y := w.GetCursorPos()
		kind := surface.InputPointerDown
		if a == glfw.Release {
			kind = surface.InputPointerUp
		}
		s.emit(surface.InputEvent{Kind: kind, X: int(x), Y: int(y), Button: int(b)})
	})
	s.window.SetKeyCallback(func(_ *glfw.Window, k glfw.Key, _ int, a glfw.Action, _ glfw.ModifierKey) {
		if a == glfw.Press {
			s.emit(surface.InputEvent{Kind: surface.InputKey, Key: int(k)})
		}
	})
}

func (s *Surface) emit(ev surface.InputEvent) {
	s.mu.Lock()
	fn := s.input
	s.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (s *Surface) Backend() surface.Backend { return surface.BackendAccelerated }

func (s *Surface) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *Surface) SetPaintHandler(fn surface.PaintFunc) {
	s.mu.Lock()
	s.paint = fn
	s.mu.Unlock()
}

func (s *Surface) SetInputHandler(fn surface.InputFunc) {
	s.mu.Lock()
	s.input = fn
	s.mu.Unlock()
}

// Invalidate paints one frame, swaps buffers and pumps window events.
// A GL error or a closed window is reported so the negotiator can fall back.
func (s *Surface) Invalidate() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return surface.ErrClosed
	}
	paint := s.paint
	w, h := s.width, s.height
	s.mu.Unlock()

	return thread.do(func() error {
		if s.window.ShouldClose() {
			return errors.New("glsurface: window closed by user")
		}
		s.window.MakeContextCurrent()
		gl.Viewport(0, 0, int32(w), int32(h))
		if paint != nil {
			paint(canvas{width: w, height: h})
		}
		if code := gl.GetError(); code != gl.NO_ERROR {
			return fmt.Errorf("glsurface: gl error 0x%x", code)
		}
		s.window.SwapBuffers()
		glfw.PollEvents()
		return nil
	})
}

// Close destroys the window. Idempotent.
func (s *Surface) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.paint = nil
	s.input = nil
	s.mu.Unlock()

	err := thread.do(func() error {
		s.window.Destroy()
		return nil
	})
	thread.release()
	return err
}

// canvas draws with scissored clears on the current context.
type canvas struct {
	width, height int
}

func (c canvas) Bounds() image.Rectangle { return image.Rect(0, 0, c.width, c.height) }

func (c canvas) Clear(col color.Color) {
	r, g, b, a := glColor(col)
	gl.Disable(gl.SCISSOR_TEST)
	gl.ClearColor(r, g, b, a)
	gl.Clear(gl.COLOR_BUFFER_BIT)
}

func (c canvas) FillRect(rect image.Rectangle, col color.Color) {
	rect = rect.Intersect(c.Bounds())
	if rect.Empty() {
		return
	}
	r, g, b, a := glColor(col)
	gl.Enable(gl.SCISSOR_TEST)
	// GL origin is bottom-left.
	gl.Scissor(int32(rect.Min.X), int32(c.height-rect.Max.Y), int32(rect.Dx()), int32(rect.Dy()))
	gl.ClearColor(r, g, b, a)
	gl.Clear(gl.COLOR_BUFFER_BIT)
	gl.Disable(gl.SCISSOR_TEST)
}

func glColor(col color.Color) (r, g, b, a float32) {
	cr, cg, cb, ca := col.RGBA()
	return float32(cr) / 0xffff, float32(cg) / 0xffff, float32(cb) / 0xffff, float32(ca) / 0xffff
}
