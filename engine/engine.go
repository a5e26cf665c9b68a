// Package engine is the reference analysis engine: it cuts incoming samples
// into hop-sized blocks and produces one frame per block, computing only the
// capabilities the orchestrator has enabled.
//
// The measurements are deliberately simple (extrema, RMS, zero crossings, a
// level gate). Spectrum and formant channels are left zero; a real DSP
// engine plugs in behind the same Sink and SetEnabled contract.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/e7canasta/analysis-core/capability"
	"github.com/e7canasta/analysis-core/framestore"
	"github.com/e7canasta/analysis-core/source"
)

// Sink receives produced frames. *orchestrator.Orchestrator implements it.
type Sink interface {
	Publish(frame *framestore.Frame) int64
}

// Config configures the engine.
type Config struct {
	SampleRate   int
	HopSize      int
	SpectrumBins int

	// VoicingThresholdDB is the RMS level below which a block is silence.
	VoicingThresholdDB float64
}

// Defaults used by Validate.
const (
	DefaultSampleRate         = 48000
	DefaultHopSize            = 512
	DefaultSpectrumBins       = 64
	DefaultVoicingThresholdDB = -45.0

	// voicedZCR separates voiced (periodic, low ZCR) from unvoiced blocks.
	voicedZCR = 0.25

	// floorDB is reported for digital silence.
	floorDB = -120.0
)

// Validate fills defaults.
func (c *Config) Validate() {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.HopSize <= 0 {
		c.HopSize = DefaultHopSize
	}
	if c.SpectrumBins <= 0 {
		c.SpectrumBins = DefaultSpectrumBins
	}
	if c.VoicingThresholdDB == 0 {
		c.VoicingThresholdDB = DefaultVoicingThresholdDB
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine produces frames from samples.
//
// SetEnabled may be called from any goroutine; Process and Run belong to the
// single producer goroutine.
type Engine struct {
	cfg    Config
	layout framestore.Layout
	sink   Sink
	logger *slog.Logger

	enabled atomic.Uint32

	// producer-owned
	pending []float32
	values  [][]float32
	index   map[string]int

	blocks  atomic.Uint64
	samples atomic.Uint64
}

// New creates an engine publishing to sink. Nothing is enabled until
// SetEnabled is called.
func New(cfg Config, sink Sink, opts ...Option) *Engine {
	cfg.Validate()
	e := &Engine{
		cfg:    cfg,
		layout: DefaultLayout(cfg.SpectrumBins),
		sink:   sink,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.values = make([][]float32, len(e.layout))
	e.index = make(map[string]int, len(e.layout))
	for i, ch := range e.layout {
		e.values[i] = make([]float32, ch.Width)
		e.index[ch.Name] = i
	}
	e.pending = make([]float32, 0, cfg.HopSize)
	return e
}

// Layout returns the layout of produced frames. The frame store must be
// created with the same layout.
func (e *Engine) Layout() framestore.Layout {
	return e.layout
}

// Config returns the validated configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Computed is the set of capabilities this engine fills. Other enabled
// capabilities are accepted but their channels stay zero.
const Computed = capability.Set(capability.Waveform | capability.Pitch | capability.SpeechMetrics | capability.VoicingState)

// SetEnabled sets the capabilities to compute. Implements orchestrator.Engine.
func (e *Engine) SetEnabled(caps capability.Set) {
	prev := capability.Set(e.enabled.Swap(uint32(caps)))
	if prev != caps {
		e.logger.Debug("engine: enabled set changed",
			"from", prev.String(),
			"to", caps.String(),
		)
	}
	if added := caps.Without(Computed).Without(prev); !added.Empty() {
		e.logger.Warn("engine: capability enabled but not computed, channels stay zero",
			"capabilities", added.String(),
		)
	}
}

// Enabled returns the capabilities being computed.
func (e *Engine) Enabled() capability.Set {
	return capability.Set(e.enabled.Load())
}

// Process consumes samples and publishes one frame per completed hop.
// at is the time of samples[0]; zero means now. Returns frames published.
func (e *Engine) Process(samples []float32, at time.Time) int {
	if at.IsZero() {
		at = time.Now()
	}
	hopDur := time.Duration(float64(time.Second) * float64(e.cfg.HopSize) / float64(e.cfg.SampleRate))
	// Time of the first pending sample.
	start := at.Add(-time.Duration(float64(time.Second) * float64(len(e.pending)) / float64(e.cfg.SampleRate)))

	produced := 0
	for len(samples) > 0 {
		need := e.cfg.HopSize - len(e.pending)
		n := min(need, len(samples))
		e.pending = append(e.pending, samples[:n]...)
		samples = samples[n:]

		if len(e.pending) < e.cfg.HopSize {
			break
		}
		e.publish(e.pending, start)
		start = start.Add(hopDur)
		e.pending = e.pending[:0]
		produced++
	}
	e.samples.Add(uint64(produced * e.cfg.HopSize))
	return produced
}

// Run reads blocks from src until it is exhausted or ctx is cancelled.
// io.EOF ends Run without error.
func (e *Engine) Run(ctx context.Context, src source.Source) error {
	if sr := src.SampleRate(); sr > 0 && sr != e.cfg.SampleRate {
		e.logger.Warn("engine: source sample rate differs from config",
			"source", sr,
			"config", e.cfg.SampleRate,
		)
	}

	buf := make([]float32, e.cfg.HopSize)
	for {
		n, err := src.Read(ctx, buf)
		if n > 0 {
			e.Process(buf[:n], time.Time{})
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				e.logger.Info("engine: source exhausted", "blocks", e.blocks.Load())
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("engine: read source: %w", err)
		}
	}
}

// Blocks returns the number of frames produced.
func (e *Engine) Blocks() uint64 {
	return e.blocks.Load()
}

func (e *Engine) publish(block []float32, at time.Time) {
	caps := e.Enabled()
	for _, v := range e.values {
		clear(v)
	}

	if caps.Has(capability.Waveform) {
		lo, hi := extrema(block)
		e.set(ChannelWaveformMin, lo)
		e.set(ChannelWaveformMax, hi)
	}

	needLevel := caps.Has(capability.SpeechMetrics) || caps.Has(capability.VoicingState) || caps.Has(capability.Pitch)
	if needLevel {
		db := rmsDB(block)
		zcr := zeroCrossingRate(block)

		if caps.Has(capability.SpeechMetrics) {
			e.set(ChannelRMS, float32(db))
			e.set(ChannelZCR, float32(zcr))
		}

		state := Silence
		if db >= e.cfg.VoicingThresholdDB {
			state = Unvoiced
			if zcr < voicedZCR {
				state = Voiced
			}
		}
		if caps.Has(capability.VoicingState) {
			e.set(ChannelVoicing, state)
		}
		if caps.Has(capability.Pitch) && state == Voiced {
			// Two crossings per period.
			e.set(ChannelPitch, float32(zcr*float64(e.cfg.SampleRate)/2))
		}
	}

	e.sink.Publish(&framestore.Frame{Timestamp: at, Values: e.values})
	e.blocks.Add(1)
}

func (e *Engine) set(name string, v float32) {
	e.values[e.index[name]][0] = v
}

func extrema(block []float32) (lo, hi float32) {
	if len(block) == 0 {
		return 0, 0
	}
	lo, hi = block[0], block[0]
	for _, v := range block[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}

func rmsDB(block []float32) float64 {
	if len(block) == 0 {
		return floorDB
	}
	var sum float64
	for _, v := range block {
		sum += float64(v) * float64(v)
	}
	rms := math.Sqrt(sum / float64(len(block)))
	if rms <= 0 {
		return floorDB
	}
	return max(20*math.Log10(rms), floorDB)
}

// zeroCrossingRate is sign changes per sample.
func zeroCrossingRate(block []float32) float64 {
	if len(block) < 2 {
		return 0
	}
	n := 0
	for i := 1; i < len(block); i++ {
		if (block[i-1] >= 0) != (block[i] >= 0) {
			n++
		}
	}
	return float64(n) / float64(len(block)-1)
}
