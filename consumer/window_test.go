package consumer_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/e7canasta/analysis-core/capability"
	"github.com/e7canasta/analysis-core/consumer"
	"github.com/e7canasta/analysis-core/framestore"
	"github.com/e7canasta/analysis-core/orchestrator"
	"github.com/e7canasta/analysis-core/surface"
)

type engineRecorder struct {
	mu   sync.Mutex
	last capability.Set
	n    int
}

func (e *engineRecorder) SetEnabled(caps capability.Set) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.last = caps
	e.n++
}

func (e *engineRecorder) get() (capability.Set, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.n
}

var layout = framestore.Layout{
	{Name: "waveform.max", Capability: capability.Waveform, Width: 1},
}

func setup() (*orchestrator.Orchestrator, *engineRecorder) {
	eng := &engineRecorder{}
	store := framestore.New(framestore.Config{Capacity: 32, Layout: layout})
	return orchestrator.New(store, eng), eng
}

func failingGL(int, int) (surface.Surface, error) {
	return nil, errors.New("no display")
}

// TestWindowLifecycle validates open → frames → close.
func TestWindowLifecycle(t *testing.T) {
	orch, eng := setup()

	var mounts atomic.Int32
	var delivered atomic.Int64
	w := consumer.New(orch, consumer.Config{
		ID:           "scope",
		Capabilities: capability.Of(capability.Waveform),
		Width:        64,
		Height:       32,
		Period:       time.Millisecond,
		Accelerated:  failingGL,
	},
		surface.HostFunc(func(surface.Surface) { mounts.Add(1) }),
		func(surface.Canvas) {},
		consumer.WithFrameHandler(func(res framestore.ReadResult, buf *framestore.Buffers) {
			vals := consumer.Frames(layout, res, buf, "waveform.max")
			delivered.Add(int64(len(vals)))
		}),
	)

	if err := w.Open(context.Background()); err != nil {
		t.Fatalf("Open()=%v", err)
	}
	if caps, _ := eng.get(); caps != capability.Of(capability.Waveform) {
		t.Errorf("engine sees %v after Open", caps)
	}
	if w.Negotiator().State() != surface.SoftwareFallback {
		t.Errorf("surface=%v, want software_fallback", w.Negotiator().State())
	}

	for i := 0; i < 10; i++ {
		orch.Publish(&framestore.Frame{Values: [][]float32{{float32(i)}}})
	}

	deadline := time.Now().Add(time.Second)
	for delivered.Load() < 10 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if delivered.Load() != 10 {
		t.Errorf("delivered=%d frames, want 10", delivered.Load())
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close()=%v", err)
	}
	if caps, _ := eng.get(); caps != capability.None {
		t.Errorf("engine sees %v after Close", caps)
	}
	if mounts.Load() != 1 {
		t.Errorf("mounts=%d, want 1", mounts.Load())
	}
	if !w.Loop().Closed() {
		t.Error("loop still running after Close")
	}
}

// TestCloseIdempotentAnyOrder validates redundant and out-of-order teardown.
func TestCloseIdempotentAnyOrder(t *testing.T) {
	orch, eng := setup()
	w := consumer.New(orch, consumer.Config{Capabilities: capability.Of(capability.Pitch)}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Open(ctx); err != nil {
		t.Fatal(err)
	}

	// Loop first, then ctx, then the window, twice.
	w.Loop().Close()
	cancel()
	w.Close()
	w.Close()

	_, pushes := eng.get()
	if pushes != 2 {
		t.Errorf("engine pushes=%d, want 2 (subscribe + one dispose)", pushes)
	}
	if err := w.Open(context.Background()); !errors.Is(err, consumer.ErrClosed) {
		t.Errorf("Open() after Close=%v, want ErrClosed", err)
	}
	if w.ID() == "" {
		t.Error("generated id empty")
	}
}

func TestCloseBeforeOpen(t *testing.T) {
	orch, eng := setup()
	w := consumer.New(orch, consumer.Config{ID: "idle"}, nil, nil)

	if err := w.Close(); err != nil {
		t.Errorf("Close()=%v", err)
	}
	if _, n := eng.get(); n != 0 {
		t.Errorf("engine pushed %d times for a never opened window", n)
	}
}

// TestSetCapabilitiesResubscribes validates new-then-dispose replacement.
func TestSetCapabilitiesResubscribes(t *testing.T) {
	orch, eng := setup()
	w := consumer.New(orch, consumer.Config{
		ID:           "meter",
		Capabilities: capability.Of(capability.Waveform, capability.SpeechMetrics),
	}, nil, nil)
	w.Open(context.Background())
	defer w.Close()

	_, before := eng.get()
	w.SetCapabilities(capability.Of(capability.SpeechMetrics, capability.VoicingState))

	caps, after := eng.get()
	if after-before != 2 {
		t.Errorf("pushes=%d, want 2 (subscribe new + dispose old)", after-before)
	}
	if caps != capability.Of(capability.SpeechMetrics, capability.VoicingState) {
		t.Errorf("engine sees %v", caps)
	}
	if n := orch.Stats().Subscriptions; n != 1 {
		t.Errorf("live subscriptions=%d, want 1", n)
	}

	w.SetCapabilities(capability.Of(capability.SpeechMetrics, capability.VoicingState))
	if _, n := eng.get(); n != after {
		t.Error("unchanged capability set pushed again")
	}
}

// TestWindowsIndependent validates two windows with disjoint needs.
func TestWindowsIndependent(t *testing.T) {
	orch, eng := setup()
	a := consumer.New(orch, consumer.Config{ID: "a", Capabilities: capability.Of(capability.Waveform)}, nil, nil)
	b := consumer.New(orch, consumer.Config{ID: "b", Capabilities: capability.Of(capability.Pitch)}, nil, nil)
	a.Open(context.Background())
	b.Open(context.Background())

	if caps, _ := eng.get(); caps != capability.Of(capability.Waveform, capability.Pitch) {
		t.Errorf("union=%v", caps)
	}
	a.Close()
	if caps, _ := eng.get(); caps != capability.Of(capability.Pitch) {
		t.Errorf("union after closing a=%v", caps)
	}
	b.Close()

	if st := a.Stats(); st.ID != "a" || st.Surface != surface.SoftwareFallback {
		t.Errorf("stats=%+v", st)
	}
}

// TestFallbackBeforeOpenUsesConfiguredSize validates the window size reaches
// a software surface created by a Fallback reported before Open.
func TestFallbackBeforeOpenUsesConfiguredSize(t *testing.T) {
	orch, _ := setup()
	w := consumer.New(orch, consumer.Config{
		ID:           "scope",
		Capabilities: capability.Of(capability.Waveform),
		Width:        640,
		Height:       200,
	}, nil, nil)
	defer w.Close()

	w.Fallback(nil)
	if err := w.Open(context.Background()); err != nil {
		t.Fatalf("Open()=%v", err)
	}

	width, height := w.Negotiator().Surface().Size()
	if width != 640 || height != 200 {
		t.Errorf("mounted surface %dx%d, want 640x200", width, height)
	}
}

// lockedBuffer is a bytes.Buffer safe for a logger writing from the loop
// goroutine while the test reads.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// TestLoopStopReasonLogged validates a render loop ended by an expired
// deadline is reported, while a plain cancel stays quiet.
func TestLoopStopReasonLogged(t *testing.T) {
	tests := []struct {
		name     string
		ctx      func() (context.Context, context.CancelFunc)
		wantWarn bool
	}{
		{
			name: "deadline",
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 10*time.Millisecond)
			},
			wantWarn: true,
		},
		{
			name: "cancel",
			ctx: func() (context.Context, context.CancelFunc) {
				ctx, cancel := context.WithCancel(context.Background())
				time.AfterFunc(10*time.Millisecond, cancel)
				return ctx, cancel
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orch, _ := setup()
			var logs lockedBuffer
			w := consumer.New(orch, consumer.Config{
				ID:           "scope",
				Capabilities: capability.Of(capability.Waveform),
				Width:        64,
				Height:       32,
				Period:       time.Millisecond,
			}, nil, nil,
				consumer.WithLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))),
			)

			ctx, cancel := tt.ctx()
			defer cancel()
			if err := w.Open(ctx); err != nil {
				t.Fatalf("Open()=%v", err)
			}
			<-ctx.Done()
			time.Sleep(10 * time.Millisecond)
			if err := w.Close(); err != nil {
				t.Fatalf("Close()=%v", err)
			}

			got := strings.Contains(logs.String(), "render loop stopped")
			if got != tt.wantWarn {
				t.Errorf("warned=%v, want %v; logs: %s", got, tt.wantWarn, logs.String())
			}
		})
	}
}
