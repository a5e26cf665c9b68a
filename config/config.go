package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/e7canasta/analysis-core/capability"
)

// Config represents the complete analysisd configuration
type Config struct {
	InstanceID    string         `yaml:"instance_id"`
	FrameCapacity int            `yaml:"frame_capacity"` // retained frames (default: 512)
	TickPeriodMS  int            `yaml:"tick_period_ms"` // window refresh period (default: 16)
	LogLevel      string         `yaml:"log_level"`      // debug, info, warn, error
	Engine        EngineConfig   `yaml:"engine"`
	Source        SourceConfig   `yaml:"source"`
	Windows       []WindowConfig `yaml:"windows"`
	MQTT          MQTTConfig     `yaml:"mqtt"`
}

// EngineConfig contains analysis engine settings
type EngineConfig struct {
	SampleRate         int     `yaml:"sample_rate"`
	HopSize            int     `yaml:"hop_size"`
	SpectrumBins       int     `yaml:"spectrum_bins"`
	VoicingThresholdDB float64 `yaml:"voicing_threshold_db"`
}

// SourceConfig selects the sample source
type SourceConfig struct {
	Kind        string  `yaml:"kind"`         // synthetic, wav, gst
	Path        string  `yaml:"path"`         // wav file (~ expanded)
	Pipeline    string  `yaml:"pipeline"`     // gst-launch source fragment
	FrequencyHz float64 `yaml:"frequency_hz"` // synthetic tone
	BurstMS     int     `yaml:"burst_ms"`     // synthetic tone/silence alternation
}

// WindowConfig describes one consumer window
type WindowConfig struct {
	ID           string   `yaml:"id"`
	Capabilities []string `yaml:"capabilities"`
	Accelerated  bool     `yaml:"accelerated"`
	Width        int      `yaml:"width"`
	Height       int      `yaml:"height"`
	TickPeriodMS int      `yaml:"tick_period_ms,omitempty"` // overrides the global period

	caps capability.Set
}

// MQTTConfig contains telemetry broker settings. Empty broker disables telemetry.
type MQTTConfig struct {
	Broker    string `yaml:"broker"`
	Topic     string `yaml:"topic"`
	IntervalS int    `yaml:"interval_s"`
	QoS       byte   `yaml:"qos"`
}

// CapabilitySet returns the parsed capabilities (valid after Validate).
func (w WindowConfig) CapabilitySet() capability.Set {
	return w.caps
}

// TickPeriod returns the tick period as a duration.
func (c *Config) TickPeriod() time.Duration {
	return time.Duration(c.TickPeriodMS) * time.Millisecond
}

// WindowPeriod returns the effective period of w.
func (c *Config) WindowPeriod(w WindowConfig) time.Duration {
	if w.TickPeriodMS > 0 {
		return time.Duration(w.TickPeriodMS) * time.Millisecond
	}
	return c.TickPeriod()
}

// Interval returns the telemetry publish interval.
func (m MQTTConfig) Interval() time.Duration {
	return time.Duration(m.IntervalS) * time.Second
}

// Enabled reports whether telemetry is configured.
func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

// Load reads and parses a YAML configuration file (~ is expanded)
func Load(path string) (*Config, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand config path: %w", err)
	}

	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates YAML configuration
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a validated configuration with one software scope window.
func Default() *Config {
	cfg := &Config{
		Windows: []WindowConfig{
			{ID: "scope", Capabilities: []string{"waveform"}, Width: 640, Height: 200},
			{ID: "meter", Capabilities: []string{"speech_metrics", "voicing_state"}, Width: 320, Height: 80},
		},
	}
	if err := Validate(cfg); err != nil {
		panic(err)
	}
	return cfg
}
