package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mitchellh/go-homedir"
)

// WAV streams a PCM WAV file, downmixed to mono.
type WAV struct {
	path    string
	file    *os.File
	dec     *wav.Decoder
	rate    int
	chans   int
	scale   float32
	pcm     *audio.IntBuffer
	pending []float32

	mu     sync.Mutex
	closed bool
}

// OpenWAV opens path (~ is expanded) and validates the header.
func OpenWAV(path string) (*WAV, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("source: expand %q: %w", path, err)
	}
	f, err := os.Open(expanded)
	if err != nil {
		return nil, fmt.Errorf("source: open wav: %w", err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("source: %s: not a valid wav file", expanded)
	}
	if dec.BitDepth == 0 || dec.NumChans == 0 {
		f.Close()
		return nil, fmt.Errorf("source: %s: unsupported format", expanded)
	}

	chans := int(dec.NumChans)
	return &WAV{
		path:  expanded,
		file:  f,
		dec:   dec,
		rate:  int(dec.SampleRate),
		chans: chans,
		scale: 1 / float32(int64(1)<<(dec.BitDepth-1)),
		pcm: &audio.IntBuffer{
			Format: &audio.Format{NumChannels: chans, SampleRate: int(dec.SampleRate)},
			Data:   make([]int, 4096*chans),
		},
	}, nil
}

func (w *WAV) SampleRate() int { return w.rate }

// Read returns io.EOF once the data chunk is exhausted.
func (w *WAV) Read(ctx context.Context, buf []float32) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, ErrSourceClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n := 0
	for n < len(buf) {
		if len(w.pending) == 0 {
			if err := w.fill(); err != nil {
				if n > 0 && errors.Is(err, io.EOF) {
					return n, nil
				}
				return n, err
			}
		}
		c := copy(buf[n:], w.pending)
		w.pending = w.pending[c:]
		n += c
	}
	return n, nil
}

// fill decodes the next PCM chunk into pending.
func (w *WAV) fill() error {
	got, err := w.dec.PCMBuffer(w.pcm)
	if err != nil {
		return fmt.Errorf("source: decode %s: %w", w.path, err)
	}
	if got == 0 {
		return io.EOF
	}

	frames := got / w.chans
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum int
		for c := 0; c < w.chans; c++ {
			sum += w.pcm.Data[i*w.chans+c]
		}
		out[i] = float32(sum) / float32(w.chans) * w.scale
	}
	w.pending = out
	return nil
}

func (w *WAV) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}
