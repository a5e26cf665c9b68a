package renderloop_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/e7canasta/analysis-core/capability"
	"github.com/e7canasta/analysis-core/framestore"
	"github.com/e7canasta/analysis-core/renderloop"
)

type countingRepainter struct {
	n atomic.Int64
}

func (c *countingRepainter) Repaint() { c.n.Add(1) }

func newStore(capacity int) framestore.Store {
	return framestore.New(framestore.Config{
		Capacity: capacity,
		Layout:   framestore.Layout{{Name: "level", Capability: capability.Waveform, Width: 1}},
	})
}

func push(s framestore.Store, n int) {
	for i := 0; i < n; i++ {
		s.Append(&framestore.Frame{Values: [][]float32{{float32(i)}}})
	}
}

// --- Test 1: Tick semantics ---

// TestTickDeliversDisjointDeltas validates consecutive ticks never repeat a
// frame and never skip a retained one.
func TestTickDeliversDisjointDeltas(t *testing.T) {
	s := newStore(16)
	rp := &countingRepainter{}

	var seen []int64
	loop := renderloop.New(renderloop.Config{}, s.NewReader(), rp,
		renderloop.WithFrameHandler(func(res framestore.ReadResult, buf *framestore.Buffers) {
			for i := 0; i < res.Count; i++ {
				seen = append(seen, buf.ID(i))
			}
		}),
	)

	push(s, 3)
	loop.Tick()
	loop.Tick() // nothing new: repaint only, no handler call
	push(s, 2)
	loop.Tick()

	want := []int64{0, 1, 2, 3, 4}
	if len(seen) != len(want) {
		t.Fatalf("seen=%v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("seen[%d]=%d, want %d", i, seen[i], want[i])
		}
	}
	if rp.n.Load() != 3 {
		t.Errorf("repaints=%d, want 3 (one per tick)", rp.n.Load())
	}

	st := loop.Stats()
	if st.Ticks != 3 || st.Frames != 5 || st.Cursor != 4 {
		t.Errorf("stats=%+v", st)
	}
}

// TestTickAfterCapacityChange validates cold start after resize.
func TestTickAfterCapacityChange(t *testing.T) {
	s := newStore(4)
	rp := &countingRepainter{}

	var last framestore.ReadResult
	loop := renderloop.New(renderloop.Config{}, s.NewReader(), rp,
		renderloop.WithFrameHandler(func(res framestore.ReadResult, _ *framestore.Buffers) { last = res }),
	)

	push(s, 4)
	loop.Tick()

	s.SetCapacity(2)
	loop.Tick()
	if !last.Reset {
		t.Error("tick after resize did not report Reset")
	}
	if last.Count != 0 {
		t.Errorf("Count=%d on empty resized store", last.Count)
	}

	push(s, 2)
	loop.Tick()
	if last.Count != 2 || last.Gap {
		t.Errorf("after refill: %+v, want 2 frames", last)
	}
	if st := loop.Stats(); st.Resets != 1 {
		t.Errorf("Resets=%d, want 1", st.Resets)
	}
}

// TestIdleTicksRepaint validates every non-suppressed tick requests a repaint,
// even when the producer has appended nothing, while the FrameHandler only
// sees ticks that carry data.
func TestIdleTicksRepaint(t *testing.T) {
	s := newStore(8)
	rp := &countingRepainter{}
	handled := 0
	loop := renderloop.New(renderloop.Config{}, s.NewReader(), rp,
		renderloop.WithFrameHandler(func(framestore.ReadResult, *framestore.Buffers) { handled++ }),
	)

	for i := 0; i < 5; i++ {
		loop.Tick()
	}
	if got := rp.n.Load(); got != 5 {
		t.Errorf("repaints on idle store=%d, want 5", got)
	}
	if handled != 0 {
		t.Errorf("handler calls on idle store=%d, want 0", handled)
	}

	push(s, 1)
	for i := 0; i < 6; i++ {
		loop.Tick()
	}
	if got := rp.n.Load(); got != 11 {
		t.Errorf("repaints=%d, want 11", got)
	}
	if handled != 1 {
		t.Errorf("handler calls=%d, want 1", handled)
	}
	if st := loop.Stats(); st.Repaints != 11 || st.Frames != 1 {
		t.Errorf("stats=%+v", st)
	}

	t.Logf("✅ 11 ticks, 11 repaints, 1 delta delivered")
}

func TestTickReportsGap(t *testing.T) {
	s := newStore(2)
	loop := renderloop.New(renderloop.Config{}, s.NewReader(), nil)

	push(s, 1)
	loop.Tick()
	push(s, 5)
	loop.Tick()

	if st := loop.Stats(); st.Gaps != 1 {
		t.Errorf("Gaps=%d, want 1", st.Gaps)
	}
}

// --- Test 2: Closing ---

// TestCloseSuppressesTicks validates no store or surface work after Close.
func TestCloseSuppressesTicks(t *testing.T) {
	s := newStore(4)
	rp := &countingRepainter{}
	loop := renderloop.New(renderloop.Config{}, s.NewReader(), rp)

	loop.Close()
	loop.Close()

	push(s, 2)
	if loop.Tick() {
		t.Error("Tick() ran after Close")
	}
	if rp.n.Load() != 0 {
		t.Error("repaint after Close")
	}
	if st := loop.Stats(); st.Skipped != 1 || st.Ticks != 0 {
		t.Errorf("stats=%+v", st)
	}
	if err := loop.Run(context.Background()); err != nil {
		t.Errorf("Run() after Close=%v, want nil", err)
	}
}

// TestCloseWaitsForInflightTick validates Close blocks until the current
// tick's repaint has returned.
func TestCloseWaitsForInflightTick(t *testing.T) {
	s := newStore(4)
	push(s, 1)

	entered := make(chan struct{})
	release := make(chan struct{})
	var repainting atomic.Bool

	rp := repainterFunc(func() {
		repainting.Store(true)
		close(entered)
		<-release
		repainting.Store(false)
	})
	loop := renderloop.New(renderloop.Config{}, s.NewReader(), rp)

	go loop.Tick()
	<-entered

	closed := make(chan struct{})
	go func() {
		loop.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned during an in-flight repaint")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-closed
	if repainting.Load() {
		t.Error("Close returned before repaint finished")
	}
}

type repainterFunc func()

func (f repainterFunc) Repaint() { f() }

// --- Test 3: Run ---

func TestRunTicksUntilCancelled(t *testing.T) {
	s := newStore(64)
	rp := &countingRepainter{}
	loop := renderloop.New(renderloop.Config{Period: time.Millisecond}, s.NewReader(), rp)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- loop.Run(ctx) }()

	for i := 0; i < 20; i++ {
		push(s, 1)
		time.Sleep(2 * time.Millisecond)
	}
	cancel()

	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("Run()=%v, want context.Canceled", err)
	}
	if rp.n.Load() == 0 {
		t.Error("no repaint requested while frames were produced")
	}
	t.Logf("✅ ticks=%d repaints=%d", loop.Stats().Ticks, rp.n.Load())
}

func TestRunStopsOnClose(t *testing.T) {
	loop := renderloop.New(renderloop.Config{Period: time.Millisecond}, newStore(2).NewReader(), nil)

	errc := make(chan error, 1)
	go func() { errc <- loop.Run(context.Background()) }()
	time.Sleep(5 * time.Millisecond)
	loop.Close()

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run()=%v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on Close")
	}
}

func TestSetPeriod(t *testing.T) {
	loop := renderloop.New(renderloop.Config{}, newStore(2).NewReader(), nil)
	if loop.Period() != renderloop.DefaultPeriod {
		t.Errorf("Period()=%v, want default", loop.Period())
	}
	loop.SetPeriod(5 * time.Millisecond)
	loop.SetPeriod(7 * time.Millisecond)
	if loop.Period() != 7*time.Millisecond {
		t.Errorf("Period()=%v, want 7ms", loop.Period())
	}
	loop.SetPeriod(-1)
	if loop.Period() != renderloop.DefaultPeriod {
		t.Errorf("Period()=%v after invalid value", loop.Period())
	}
}

// TestIndependentLoops validates a blocked window does not stall another.
func TestIndependentLoops(t *testing.T) {
	s := newStore(32)
	block := make(chan struct{})
	var once sync.Once

	slow := renderloop.New(renderloop.Config{Period: time.Millisecond}, s.NewReader(),
		repainterFunc(func() { <-block }))
	fast := &countingRepainter{}
	quick := renderloop.New(renderloop.Config{Period: time.Millisecond}, s.NewReader(), fast)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go slow.Run(ctx)
	go quick.Run(ctx)

	for i := 0; i < 10; i++ {
		push(s, 1)
		time.Sleep(2 * time.Millisecond)
	}
	if fast.n.Load() == 0 {
		t.Error("fast window starved by a blocked one")
	}

	once.Do(func() { close(block) })
	cancel()
	quick.Close()
	slow.Close()
}
