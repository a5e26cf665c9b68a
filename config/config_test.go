package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/e7canasta/analysis-core/capability"
)

// =============================================================================
// Load / Parse
// =============================================================================

// --- Test 1: Full document round trip ---
//
// Contract: every documented field decodes; Validate keeps explicit values.
func TestParseFullDocument(t *testing.T) {
	doc := []byte(`
instance_id: studio-a
frame_capacity: 256
tick_period_ms: 33
log_level: debug
engine:
  sample_rate: 16000
  hop_size: 160
  spectrum_bins: 32
source:
  kind: wav
  path: ~/takes/a.wav
windows:
  - id: scope
    capabilities: [waveform, spectrogram]
    accelerated: true
    width: 800
    height: 300
  - id: meter
    capabilities: [speech_metrics]
    tick_period_ms: 100
mqtt:
  broker: localhost:1883
`)

	cfg, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if cfg.InstanceID != "studio-a" || cfg.FrameCapacity != 256 || cfg.LogLevel != "debug" {
		t.Errorf("top level = %+v", cfg)
	}
	if cfg.TickPeriod() != 33*time.Millisecond {
		t.Errorf("TickPeriod() = %v", cfg.TickPeriod())
	}
	if cfg.Engine.SampleRate != 16000 || cfg.Engine.HopSize != 160 || cfg.Engine.SpectrumBins != 32 {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if cfg.Source.Kind != "wav" || cfg.Source.Path != "~/takes/a.wav" {
		t.Errorf("source = %+v", cfg.Source)
	}

	if len(cfg.Windows) != 2 {
		t.Fatalf("windows = %d, want 2", len(cfg.Windows))
	}
	scope, meter := cfg.Windows[0], cfg.Windows[1]
	if want := capability.Of(capability.Waveform, capability.Spectrogram); scope.CapabilitySet() != want {
		t.Errorf("scope caps = %v, want %v", scope.CapabilitySet(), want)
	}
	if !scope.Accelerated || scope.Width != 800 || scope.Height != 300 {
		t.Errorf("scope = %+v", scope)
	}
	if meter.Width != 640 || meter.Height != 200 {
		t.Errorf("meter size defaults = %dx%d", meter.Width, meter.Height)
	}
	if cfg.WindowPeriod(meter) != 100*time.Millisecond || cfg.WindowPeriod(scope) != 33*time.Millisecond {
		t.Errorf("window periods = %v / %v", cfg.WindowPeriod(meter), cfg.WindowPeriod(scope))
	}

	if !cfg.MQTT.Enabled() || cfg.MQTT.Topic != "analysis/telemetry/studio-a" || cfg.MQTT.Interval() != 5*time.Second {
		t.Errorf("mqtt defaults = %+v", cfg.MQTT)
	}

	t.Logf("✅ Full document parsed with defaults filled")
}

// --- Test 2: Defaults ---
func TestValidateDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if cfg.InstanceID != DefaultInstanceID {
		t.Errorf("InstanceID = %q", cfg.InstanceID)
	}
	if cfg.FrameCapacity != DefaultFrameCapacity || cfg.TickPeriodMS != DefaultTickPeriodMS {
		t.Errorf("capacity/period = %d/%d", cfg.FrameCapacity, cfg.TickPeriodMS)
	}
	if cfg.LogLevel != "info" || cfg.Source.Kind != "synthetic" {
		t.Errorf("log/source = %q/%q", cfg.LogLevel, cfg.Source.Kind)
	}
	if cfg.MQTT.Enabled() || cfg.MQTT.Topic != "" {
		t.Errorf("telemetry enabled without broker: %+v", cfg.MQTT)
	}
}

// --- Test 3: Invalid documents ---
//
// Contract: every validation failure wraps ErrInvalid; YAML syntax errors do not.
func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		invalid bool
	}{
		{"negative capacity", "frame_capacity: -1", true},
		{"negative period", "tick_period_ms: -5", true},
		{"bad instance id", "instance_id: Studio A", true},
		{"bad log level", "log_level: verbose", true},
		{"unknown source kind", "source: {kind: alsa}", true},
		{"wav without path", "source: {kind: wav}", true},
		{"unknown capability", "windows: [{id: a, capabilities: [loudness]}]", true},
		{"duplicate window", "windows: [{id: a}, {id: a}]", true},
		{"window without id", "windows: [{capabilities: [pitch]}]", true},
		{"bad qos", "mqtt: {broker: x:1883, qos: 3}", true},
		{"yaml syntax", "frame_capacity: [", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("Parse() succeeded, want error")
			}
			if got := errors.Is(err, ErrInvalid); got != tt.invalid {
				t.Errorf("errors.Is(ErrInvalid) = %v, want %v (err: %v)", got, tt.invalid, err)
			}
		})
	}
}

// --- Test 4: Load from disk ---
func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analysis.yaml")
	if err := os.WriteFile(path, []byte("frame_capacity: 64\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.FrameCapacity != 64 {
		t.Errorf("FrameCapacity = %d, want 64", cfg.FrameCapacity)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() of missing file succeeded")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if len(cfg.Windows) == 0 {
		t.Fatal("Default() has no windows")
	}
	for _, w := range cfg.Windows {
		if w.CapabilitySet().Empty() {
			t.Errorf("window %s has no capabilities", w.ID)
		}
	}
}
