package surface

import (
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/draw"
)

// SoftwareSurface draws into an in-memory RGBA image.
//
// It never fails while open. The presentation layer copies pixels out with
// Snapshot after a repaint.
type SoftwareSurface struct {
	mu     sync.Mutex
	img    *image.RGBA
	paint  PaintFunc
	input  InputFunc
	closed bool
	frames uint64
}

// NewSoftwareSurface creates a surface of the given size (clamped to 1x1).
func NewSoftwareSurface(width, height int) *SoftwareSurface {
	return &SoftwareSurface{img: image.NewRGBA(image.Rect(0, 0, max(width, 1), max(height, 1)))}
}

func (s *SoftwareSurface) Backend() Backend { return BackendSoftware }

func (s *SoftwareSurface) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

func (s *SoftwareSurface) SetPaintHandler(fn PaintFunc) {
	s.mu.Lock()
	s.paint = fn
	s.mu.Unlock()
}

func (s *SoftwareSurface) SetInputHandler(fn InputFunc) {
	s.mu.Lock()
	s.input = fn
	s.mu.Unlock()
}

// Invalidate runs the paint handler synchronously on the backing image.
func (s *SoftwareSurface) Invalidate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.paint != nil {
		s.paint(rgbaCanvas{s.img})
	}
	s.frames++
	return nil
}

// Dispatch delivers an input event from the host to the wired handler.
func (s *SoftwareSurface) Dispatch(ev InputEvent) {
	s.mu.Lock()
	fn := s.input
	closed := s.closed
	s.mu.Unlock()

	if closed || fn == nil {
		return
	}
	if ev.Kind == InputResize {
		s.Resize(ev.X, ev.Y)
	}
	fn(ev)
}

// Resize rescales the current contents to the new size so the window does
// not flash blank until the next repaint.
func (s *SoftwareSurface) Resize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	dst := image.NewRGBA(image.Rect(0, 0, max(width, 1), max(height, 1)))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), s.img, s.img.Bounds(), draw.Src, nil)
	s.img = dst
}

// Snapshot returns a copy of the current pixels.
func (s *SoftwareSurface) Snapshot() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := image.NewRGBA(s.img.Bounds())
	draw.Draw(out, out.Bounds(), s.img, s.img.Bounds().Min, draw.Src)
	return out
}

// Frames returns the number of completed repaints.
func (s *SoftwareSurface) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *SoftwareSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.paint = nil
	s.input = nil
	return nil
}

type rgbaCanvas struct {
	img *image.RGBA
}

func (c rgbaCanvas) Bounds() image.Rectangle { return c.img.Bounds() }

func (c rgbaCanvas) Clear(col color.Color) {
	draw.Draw(c.img, c.img.Bounds(), image.NewUniform(col), image.Point{}, draw.Src)
}

func (c rgbaCanvas) FillRect(r image.Rectangle, col color.Color) {
	r = r.Intersect(c.img.Bounds())
	if r.Empty() {
		return
	}
	draw.Draw(c.img, r, image.NewUniform(col), image.Point{}, draw.Src)
}
