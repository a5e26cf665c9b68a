package engine_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/e7canasta/analysis-core/capability"
	"github.com/e7canasta/analysis-core/engine"
	"github.com/e7canasta/analysis-core/framestore"
	"github.com/e7canasta/analysis-core/source"
)

func newEngine(t *testing.T, capacity int) (*engine.Engine, framestore.Store) {
	t.Helper()
	cfg := engine.Config{SampleRate: 8000, HopSize: 80, SpectrumBins: 4}
	layout := engine.DefaultLayout(cfg.SpectrumBins)
	store := framestore.New(framestore.Config{Capacity: capacity, Layout: layout})
	return engine.New(cfg, storeSink{store}), store
}

type storeSink struct{ framestore.Store }

func (s storeSink) Publish(f *framestore.Frame) int64 { return s.Append(f) }

func sine(n int, freq, amp float64, rate int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func latest(t *testing.T, s framestore.Store, name string) float32 {
	t.Helper()
	buf := s.NewBuffers()
	res := s.ReadSince(-1, buf)
	if res.Count == 0 {
		t.Fatal("no frames")
	}
	return buf.Values(s.Layout().Index(name), res.Count-1)[0]
}

// TestHopSizedBlocks validates one frame per completed hop.
func TestHopSizedBlocks(t *testing.T) {
	e, store := newEngine(t, 16)

	if n := e.Process(make([]float32, 50), time.Time{}); n != 0 {
		t.Errorf("partial hop produced %d frames", n)
	}
	if n := e.Process(make([]float32, 200), time.Time{}); n != 3 {
		t.Errorf("Process()=%d, want 3 (250 samples / 80)", n)
	}
	if store.Latest() != 2 || e.Blocks() != 3 {
		t.Errorf("latest=%d blocks=%d", store.Latest(), e.Blocks())
	}
}

// TestOnlyEnabledCapabilities validates disabled channels stay zero.
func TestOnlyEnabledCapabilities(t *testing.T) {
	e, store := newEngine(t, 4)
	e.SetEnabled(capability.Of(capability.Waveform))

	e.Process(sine(80, 200, 0.8, 8000), time.Time{})

	if hi := latest(t, store, engine.ChannelWaveformMax); hi < 0.7 {
		t.Errorf("waveform max=%v, want ~0.8", hi)
	}
	if lo := latest(t, store, engine.ChannelWaveformMin); lo > -0.7 {
		t.Errorf("waveform min=%v, want ~-0.8", lo)
	}
	if rms := latest(t, store, engine.ChannelRMS); rms != 0 {
		t.Errorf("rms computed while speech metrics disabled: %v", rms)
	}
	if v := latest(t, store, engine.ChannelVoicing); v != 0 {
		t.Errorf("voicing computed while disabled: %v", v)
	}
}

func TestSpeechMetricsAndVoicing(t *testing.T) {
	e, store := newEngine(t, 4)
	e.SetEnabled(capability.Of(capability.SpeechMetrics, capability.VoicingState, capability.Pitch))

	// Full-scale sine: RMS = 1/sqrt(2) = -3.01 dBFS.
	e.Process(sine(80, 200, 1, 8000), time.Time{})

	if db := latest(t, store, engine.ChannelRMS); math.Abs(float64(db)+3.01) > 0.1 {
		t.Errorf("rms=%v dBFS, want -3.01", db)
	}
	if v := latest(t, store, engine.ChannelVoicing); v != engine.Voiced {
		t.Errorf("voicing=%v, want voiced", v)
	}
	if hz := latest(t, store, engine.ChannelPitch); math.Abs(float64(hz)-200) > 60 {
		t.Errorf("pitch estimate=%v, want ~200", hz)
	}

	e.Process(make([]float32, 80), time.Time{})
	if v := latest(t, store, engine.ChannelVoicing); v != engine.Silence {
		t.Errorf("voicing on silence=%v", v)
	}
	if db := latest(t, store, engine.ChannelRMS); db != -120 {
		t.Errorf("rms on silence=%v, want floor", db)
	}
}

func TestRunUntilEOF(t *testing.T) {
	e, store := newEngine(t, 64)
	e.SetEnabled(capability.All)

	src := &finite{remaining: 800}
	if err := e.Run(context.Background(), src); err != nil {
		t.Fatalf("Run()=%v", err)
	}
	if store.Latest() != 9 {
		t.Errorf("latest=%d, want 9 (800/80 frames)", store.Latest())
	}
}

func TestRunCancelled(t *testing.T) {
	e, _ := newEngine(t, 4)
	src := source.NewSynthetic(source.SyntheticConfig{SampleRate: 8000, Realtime: true})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := e.Run(ctx, src); err != context.DeadlineExceeded {
		t.Errorf("Run()=%v, want deadline exceeded", err)
	}
}

func TestEnabledSwap(t *testing.T) {
	e, _ := newEngine(t, 2)
	if e.Enabled() != capability.None {
		t.Errorf("initial Enabled()=%v", e.Enabled())
	}
	e.SetEnabled(capability.Of(capability.Formants))
	if e.Enabled() != capability.Of(capability.Formants) {
		t.Errorf("Enabled()=%v", e.Enabled())
	}
}

// finite yields silence then io.EOF.
type finite struct{ remaining int }

func (f *finite) SampleRate() int { return 8000 }
func (f *finite) Close() error    { return nil }

func (f *finite) Read(_ context.Context, buf []float32) (int, error) {
	if f.remaining == 0 {
		return 0, io.EOF
	}
	n := min(len(buf), f.remaining)
	clear(buf[:n])
	f.remaining -= n
	return n, nil
}

// TestUncomputedCapabilityWarns validates enabling a capability the engine
// leaves zero is logged once, not silently accepted.
func TestUncomputedCapabilityWarns(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := engine.Config{SampleRate: 8000, HopSize: 80, SpectrumBins: 4}
	store := framestore.New(framestore.Config{Capacity: 2, Layout: engine.DefaultLayout(4)})
	e := engine.New(cfg, storeSink{store}, engine.WithLogger(logger))

	e.SetEnabled(capability.Of(capability.Waveform, capability.Pitch))
	if logs.Len() != 0 {
		t.Errorf("warned for computed capabilities: %s", logs.String())
	}

	e.SetEnabled(capability.Of(capability.Waveform, capability.Spectrogram))
	if !strings.Contains(logs.String(), "not computed") || !strings.Contains(logs.String(), "spectrogram") {
		t.Errorf("missing warning for spectrogram, got %q", logs.String())
	}

	logs.Reset()
	e.SetEnabled(capability.Of(capability.Spectrogram))
	if logs.Len() != 0 {
		t.Errorf("warned again for an already enabled capability: %s", logs.String())
	}
}
