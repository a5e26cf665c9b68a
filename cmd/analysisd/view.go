package main

import (
	"image"
	"image/color"
	"math"
	"sync"
	"sync/atomic"

	"github.com/e7canasta/analysis-core/capability"
	"github.com/e7canasta/analysis-core/engine"
	"github.com/e7canasta/analysis-core/framestore"
	"github.com/e7canasta/analysis-core/surface"
)

var (
	background = color.RGBA{0x10, 0x12, 0x16, 0xff}
	barColor   = color.RGBA{0x4c, 0xc9, 0xf0, 0xff}
	gapColor   = color.RGBA{0xe6, 0x39, 0x46, 0xff}
)

// bounds maps a channel onto [0,1] for drawing.
var bounds = map[string][2]float32{
	engine.ChannelWaveformMin: {-1, 1},
	engine.ChannelWaveformMax: {-1, 1},
	engine.ChannelSpectrum:    {0, 1},
	engine.ChannelPitch:       {0, 1000},
	engine.ChannelRMS:         {-120, 0},
	engine.ChannelZCR:         {0, 1},
	engine.ChannelVoicing:     {engine.Silence, engine.Voiced},
	engine.ChannelFormants:    {0, 4000},
}

// levelView keeps the newest frame of a window and draws it as bars, one
// column per channel value. Channels outside the window's capabilities are
// not drawn.
type levelView struct {
	layout framestore.Layout
	caps   atomic.Uint32

	mu     sync.Mutex
	latest [][]float32
	gap    bool
	frames uint64
}

func newLevelView(layout framestore.Layout, caps capability.Set) *levelView {
	v := &levelView{
		layout: layout,
		latest: make([][]float32, len(layout)),
	}
	for i, ch := range layout {
		v.latest[i] = make([]float32, max(ch.Width, 1))
	}
	v.setCapabilities(caps)
	return v
}

func (v *levelView) setCapabilities(caps capability.Set) {
	v.caps.Store(uint32(caps))
}

func (v *levelView) capabilities() capability.Set {
	return capability.Set(v.caps.Load())
}

// onFrames is the render loop FrameHandler.
func (v *levelView) onFrames(res framestore.ReadResult, buf *framestore.Buffers) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.gap = res.Gap || res.Reset
	if res.Count == 0 {
		return
	}
	v.frames += uint64(res.Count)
	last := res.Count - 1
	for ch := range v.layout {
		copy(v.latest[ch], buf.Values(ch, last))
	}
}

// paint is the surface PaintFunc.
func (v *levelView) paint(c surface.Canvas) {
	caps := v.capabilities()

	v.mu.Lock()
	defer v.mu.Unlock()

	r := c.Bounds()
	c.Clear(background)

	var cols []float32
	for ch, desc := range v.layout {
		if !caps.Has(desc.Capability) {
			continue
		}
		lim := bounds[desc.Name]
		for _, x := range v.latest[ch] {
			cols = append(cols, normalize(x, lim[0], lim[1]))
		}
	}

	if len(cols) > 0 {
		w := max(r.Dx()/len(cols), 1)
		for i, level := range cols {
			h := int(level * float32(r.Dy()))
			x0 := r.Min.X + i*w
			c.FillRect(image.Rect(x0, r.Max.Y-h, x0+w-1, r.Max.Y), barColor)
		}
	}

	// Discontinuity marker.
	if v.gap {
		c.FillRect(image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+2), gapColor)
	}
}

func normalize(x, lo, hi float32) float32 {
	if hi <= lo || math.IsNaN(float64(x)) {
		return 0
	}
	return min(max((x-lo)/(hi-lo), 0), 1)
}
