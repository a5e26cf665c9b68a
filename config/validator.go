package config

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/e7canasta/analysis-core/capability"
	"github.com/e7canasta/analysis-core/source"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("config: invalid")

var idPattern = regexp.MustCompile(`^[a-z0-9\-_]+$`)

// Defaults applied by Validate
const (
	DefaultInstanceID    = "analysis"
	DefaultFrameCapacity = 512
	DefaultTickPeriodMS  = 16
	DefaultLogLevel      = "info"
	DefaultMQTTInterval  = 5
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks the configuration and fills defaults
func Validate(cfg *Config) error {
	// Validate instance_id
	if cfg.InstanceID == "" {
		cfg.InstanceID = DefaultInstanceID
	}
	if !idPattern.MatchString(cfg.InstanceID) {
		return invalid("instance_id must match pattern [a-z0-9-_]+")
	}

	// frame_capacity and tick_period_ms: 0 means default, negative is an error
	if cfg.FrameCapacity < 0 {
		return invalid("frame_capacity must be > 0, got %d", cfg.FrameCapacity)
	}
	if cfg.FrameCapacity == 0 {
		cfg.FrameCapacity = DefaultFrameCapacity
	}
	if cfg.TickPeriodMS < 0 {
		return invalid("tick_period_ms must be > 0, got %d", cfg.TickPeriodMS)
	}
	if cfg.TickPeriodMS == 0 {
		cfg.TickPeriodMS = DefaultTickPeriodMS
	}

	switch cfg.LogLevel {
	case "":
		cfg.LogLevel = DefaultLogLevel
	case "debug", "info", "warn", "error":
	default:
		return invalid("log_level %q (must be debug, info, warn or error)", cfg.LogLevel)
	}

	if cfg.Engine.SampleRate < 0 || cfg.Engine.HopSize < 0 || cfg.Engine.SpectrumBins < 0 {
		return invalid("engine sizes must not be negative")
	}

	if err := ValidateSource(&cfg.Source); err != nil {
		return fmt.Errorf("source validation failed: %w", err)
	}

	if err := ValidateWindows(cfg.Windows); err != nil {
		return fmt.Errorf("window validation failed: %w", err)
	}

	// Telemetry is optional; defaults only when a broker is set
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.Topic == "" {
			cfg.MQTT.Topic = fmt.Sprintf("analysis/telemetry/%s", cfg.InstanceID)
		}
		if cfg.MQTT.IntervalS <= 0 {
			cfg.MQTT.IntervalS = DefaultMQTTInterval
		}
		if cfg.MQTT.QoS > 2 {
			return invalid("mqtt.qos must be 0, 1 or 2")
		}
	}

	return nil
}

// ValidateSource checks the source kind and its required fields
func ValidateSource(src *SourceConfig) error {
	kind, err := source.ParseKind(src.Kind)
	if err != nil {
		return invalid("%v", err)
	}
	src.Kind = string(kind)

	switch kind {
	case source.KindWAV:
		if src.Path == "" {
			return invalid("source.path is required for kind wav")
		}
	case source.KindSynthetic:
		if src.FrequencyHz < 0 || src.BurstMS < 0 {
			return invalid("synthetic frequency_hz and burst_ms must not be negative")
		}
	}
	return nil
}

// ValidateWindows checks ids are unique and capability names are known.
// Parsed capability sets are stored on each window.
func ValidateWindows(windows []WindowConfig) error {
	seen := make(map[string]bool, len(windows))
	for i := range windows {
		w := &windows[i]
		if w.ID == "" {
			return invalid("window %d: id is required", i)
		}
		if !idPattern.MatchString(w.ID) {
			return invalid("window '%s': id must match pattern [a-z0-9-_]+", w.ID)
		}
		if seen[w.ID] {
			return invalid("window '%s': duplicate id", w.ID)
		}
		seen[w.ID] = true

		caps, err := capability.ParseSet(w.Capabilities)
		if err != nil {
			return invalid("window '%s': %v", w.ID, err)
		}
		w.caps = caps

		if w.Width < 0 || w.Height < 0 || w.TickPeriodMS < 0 {
			return invalid("window '%s': size and tick_period_ms must not be negative", w.ID)
		}
		if w.Width == 0 {
			w.Width = 640
		}
		if w.Height == 0 {
			w.Height = 200
		}
	}
	return nil
}
