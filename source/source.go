// Package source provides mono float32 sample streams for the engine.
package source

import (
	"context"
	"errors"
	"fmt"
)

// ErrSourceClosed is returned by Read after Close.
var ErrSourceClosed = errors.New("source: closed")

// Source is a mono sample stream normalized to [-1, 1].
type Source interface {
	// SampleRate in Hz.
	SampleRate() int

	// Read fills buf and returns the number of samples written. It blocks
	// until at least one sample is available, ctx is done or the stream
	// ends (io.EOF, possibly with n > 0).
	Read(ctx context.Context, buf []float32) (int, error)

	Close() error
}

// Kind selects a source implementation in config.
type Kind string

const (
	KindSynthetic Kind = "synthetic"
	KindWAV       Kind = "wav"
	KindGStreamer Kind = "gst"
)

// ParseKind validates a configured kind. Empty means synthetic.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", KindSynthetic:
		return KindSynthetic, nil
	case KindWAV, KindGStreamer:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("source: unknown kind %q", s)
	}
}
