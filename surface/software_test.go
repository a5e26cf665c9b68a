package surface_test

import (
	"image"
	"image/color"
	"testing"

	"github.com/e7canasta/analysis-core/surface"
)

func TestSoftwareSurfaceResizeKeepsContent(t *testing.T) {
	s := surface.NewSoftwareSurface(4, 4)
	blue := color.RGBA{B: 255, A: 255}
	s.SetPaintHandler(func(c surface.Canvas) { c.Clear(blue) })
	if err := s.Invalidate(); err != nil {
		t.Fatal(err)
	}

	s.Resize(8, 2)
	if w, h := s.Size(); w != 8 || h != 2 {
		t.Fatalf("Size()=%dx%d, want 8x2", w, h)
	}
	if got := s.Snapshot().RGBAAt(4, 1); got != blue {
		t.Errorf("scaled pixel=%v, want %v", got, blue)
	}
}

func TestSoftwareSurfaceDispatch(t *testing.T) {
	s := surface.NewSoftwareSurface(2, 2)

	var got []surface.InputEvent
	s.SetInputHandler(func(ev surface.InputEvent) { got = append(got, ev) })

	s.Dispatch(surface.InputEvent{Kind: surface.InputPointerDown, X: 1, Y: 1, Button: 1})
	s.Dispatch(surface.InputEvent{Kind: surface.InputResize, X: 6, Y: 3})

	if len(got) != 2 {
		t.Fatalf("events=%d, want 2", len(got))
	}
	if w, h := s.Size(); w != 6 || h != 3 {
		t.Errorf("resize event not applied: %dx%d", w, h)
	}

	s.SetInputHandler(nil)
	s.Dispatch(surface.InputEvent{Kind: surface.InputKey, Key: 32})
	if len(got) != 2 {
		t.Error("unwired handler still called")
	}
}

func TestSoftwareSurfaceClosed(t *testing.T) {
	s := surface.NewSoftwareSurface(0, -3)
	if w, h := s.Size(); w != 1 || h != 1 {
		t.Errorf("Size()=%dx%d, want clamped 1x1", w, h)
	}
	s.Close()
	if err := s.Invalidate(); err != surface.ErrClosed {
		t.Errorf("Invalidate() after Close=%v, want ErrClosed", err)
	}
}

func TestFillRectClipped(t *testing.T) {
	s := surface.NewSoftwareSurface(3, 3)
	white := color.RGBA{255, 255, 255, 255}
	s.SetPaintHandler(func(c surface.Canvas) {
		c.FillRect(image.Rect(-5, -5, 1, 1), white)
		c.FillRect(image.Rect(10, 10, 20, 20), white)
	})
	s.Invalidate()

	img := s.Snapshot()
	if img.RGBAAt(0, 0) != white {
		t.Error("clipped rect not drawn")
	}
	if img.RGBAAt(2, 2) == white {
		t.Error("out of bounds rect drawn")
	}
}
