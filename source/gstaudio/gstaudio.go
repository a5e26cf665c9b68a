// Package gstaudio captures live audio through a GStreamer pipeline ending
// in an appsink that delivers mono F32LE blocks.
//
// Pipeline:
//
//	<source> ! audioconvert ! audioresample ! audio/x-raw,format=F32LE,channels=1,rate=R ! appsink
//
// <source> defaults to autoaudiosrc; any launch fragment works
// ("pulsesrc device=...", "filesrc location=x.ogg ! decodebin").
package gstaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/analysis-core/source"
)

// Config configures a capture pipeline.
type Config struct {
	// Source is the gst-launch fragment producing audio. Empty = autoaudiosrc.
	Source string

	SampleRate int

	// QueueBlocks bounds buffered appsink blocks; older blocks are dropped
	// when the engine falls behind. Zero = 32.
	QueueBlocks int
}

// Source is a live GStreamer capture.
type Source struct {
	cfg      Config
	pipeline *gst.Pipeline
	sink     *app.Sink

	blocks  chan []float32
	pending []float32

	ended   chan struct{}
	endOnce sync.Once
	endErr  atomic.Pointer[error]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	closed    atomic.Bool

	received atomic.Uint64
	dropped  atomic.Uint64
}

// Launch returns the full pipeline description for cfg.
func Launch(cfg Config) string {
	src := cfg.Source
	if src == "" {
		src = "autoaudiosrc"
	}
	return fmt.Sprintf(
		"%s ! audioconvert ! audioresample ! audio/x-raw,format=F32LE,layout=interleaved,channels=1,rate=%d ! appsink name=analysis_sink",
		src, cfg.SampleRate,
	)
}

// New builds the pipeline and sets it to PLAYING.
func New(ctx context.Context, cfg Config) (*Source, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.QueueBlocks <= 0 {
		cfg.QueueBlocks = 32
	}

	gst.Init(nil)

	desc := Launch(cfg)
	pipeline, err := gst.NewPipelineFromString(desc)
	if err != nil {
		return nil, fmt.Errorf("gstaudio: parse pipeline: %w", err)
	}
	elem, err := pipeline.GetElementByName("analysis_sink")
	if err != nil {
		return nil, fmt.Errorf("gstaudio: find appsink: %w", err)
	}
	sink := app.SinkFromElement(elem)
	sink.SetProperty("sync", false)
	sink.SetProperty("emit-signals", false)

	s := &Source{
		cfg:      cfg,
		pipeline: pipeline,
		sink:     sink,
		blocks:   make(chan []float32, cfg.QueueBlocks),
		ended:    make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: s.onNewSample,
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, fmt.Errorf("gstaudio: start pipeline: %w", err)
	}

	s.wg.Add(1)
	go s.monitor()

	slog.Info("gstaudio: capture started", "pipeline", desc)
	return s, nil
}

// onNewSample copies the appsink buffer and queues it without blocking the
// streaming thread. When the queue is full the oldest block is dropped.
func (s *Source) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("gstaudio: failed to pull sample, skipping")
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	block := DecodeF32LE(mapInfo.Bytes())
	buffer.Unmap()
	if len(block) == 0 {
		return gst.FlowOK
	}
	s.received.Add(1)

	for {
		select {
		case s.blocks <- block:
			return gst.FlowOK
		default:
		}
		select {
		case <-s.blocks:
			s.dropped.Add(1)
		default:
		}
	}
}

// monitor watches the bus for EOS and errors.
func (s *Source) monitor() {
	defer s.wg.Done()

	bus := s.pipeline.GetPipelineBus()
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			slog.Info("gstaudio: end of stream", "blocks", s.received.Load())
			s.end(io.EOF)
			return
		case gst.MessageError:
			gerr := msg.ParseError()
			slog.Error("gstaudio: pipeline error", "error", gerr.Error(), "debug", gerr.DebugString())
			s.end(fmt.Errorf("gstaudio: pipeline: %s", gerr.Error()))
			return
		}
	}
}

func (s *Source) end(err error) {
	s.endOnce.Do(func() {
		s.endErr.Store(&err)
		close(s.ended)
	})
}

func (s *Source) SampleRate() int { return s.cfg.SampleRate }

// Read blocks until samples arrive, the stream ends or ctx is done.
func (s *Source) Read(ctx context.Context, buf []float32) (int, error) {
	if s.closed.Load() {
		return 0, source.ErrSourceClosed
	}

	if len(s.pending) == 0 {
		select {
		case b := <-s.blocks:
			s.pending = b
		default:
			select {
			case b := <-s.blocks:
				s.pending = b
			case <-s.ended:
				// Drain what arrived before the end.
				select {
				case b := <-s.blocks:
					s.pending = b
				default:
					return 0, *s.endErr.Load()
				}
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
	}

	n := copy(buf, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Stats returns blocks received and dropped.
func (s *Source) Stats() (received, dropped uint64) {
	return s.received.Load(), s.dropped.Load()
}

// Close stops the pipeline. Idempotent.
func (s *Source) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancel()
		s.wg.Wait()
		if e := s.pipeline.SetState(gst.StateNull); e != nil {
			err = fmt.Errorf("gstaudio: stop pipeline: %w", e)
		}
		s.end(source.ErrSourceClosed)
	})
	return err
}

// DecodeF32LE converts little-endian float32 PCM bytes. A trailing partial
// sample is ignored.
func DecodeF32LE(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

var _ source.Source = (*Source)(nil)
