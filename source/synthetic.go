package source

import (
	"context"
	"math"
	"sync"
	"time"
)

// SyntheticConfig configures a test tone.
type SyntheticConfig struct {
	SampleRate  int
	FrequencyHz float64
	Amplitude   float64

	// BurstEvery alternates tone and silence with this period, which makes
	// the voicing channel move. Zero means a continuous tone.
	BurstEvery time.Duration

	// Realtime paces Read to wall-clock time.
	Realtime bool
}

// Synthetic is a sine generator.
type Synthetic struct {
	cfg   SyntheticConfig
	phase float64
	n     int64

	mu     sync.Mutex
	closed bool
	start  time.Time
}

// NewSynthetic creates a generator. Zero fields take 48 kHz, 220 Hz, 0.5.
func NewSynthetic(cfg SyntheticConfig) *Synthetic {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.FrequencyHz <= 0 {
		cfg.FrequencyHz = 220
	}
	if cfg.Amplitude <= 0 {
		cfg.Amplitude = 0.5
	}
	return &Synthetic{cfg: cfg}
}

func (s *Synthetic) SampleRate() int { return s.cfg.SampleRate }

func (s *Synthetic) Read(ctx context.Context, buf []float32) (int, error) {
	s.mu.Lock()
	closed := s.closed
	if s.start.IsZero() {
		s.start = time.Now()
	}
	start := s.start
	s.mu.Unlock()

	if closed {
		return 0, ErrSourceClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if s.cfg.Realtime {
		// Wait until the last sample of this block is due.
		due := start.Add(time.Duration(float64(s.n+int64(len(buf))) / float64(s.cfg.SampleRate) * float64(time.Second)))
		if d := time.Until(due); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return 0, ctx.Err()
			case <-t.C:
			}
		}
	}

	step := 2 * math.Pi * s.cfg.FrequencyHz / float64(s.cfg.SampleRate)
	burst := int64(s.cfg.BurstEvery.Seconds() * float64(s.cfg.SampleRate))
	for i := range buf {
		v := s.cfg.Amplitude * math.Sin(s.phase)
		if burst > 0 && (s.n/burst)%2 == 1 {
			v = 0
		}
		buf[i] = float32(v)
		s.phase += step
		if s.phase > 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
		s.n++
	}
	return len(buf), nil
}

func (s *Synthetic) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
