package glsurface

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/go-gl/glfw/v3.3/glfw"
)

// glThread runs every glfw and GL call on one locked OS thread. glfw is not
// thread-safe and GL contexts are bound per thread, so all surfaces share it.
type glThread struct {
	mu    sync.Mutex
	refs  int
	calls chan func()
	done  chan struct{}
}

var thread glThread

// mainThreadOnly reports whether glfw refuses calls from any thread but the
// process main thread.
var mainThreadOnly = runtime.GOOS == "darwin"

// acquire starts the thread and initializes glfw on first use.
func (t *glThread) acquire() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.refs > 0 {
		t.refs++
		return nil
	}
	if mainThreadOnly {
		return ErrMainThreadRequired
	}

	calls := make(chan func())
	done := make(chan struct{})
	initErr := make(chan error, 1)

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(done)

		if err := glfw.Init(); err != nil {
			initErr <- fmt.Errorf("glfw init: %w", err)
			return
		}
		initErr <- nil

		for fn := range calls {
			fn()
		}
		glfw.Terminate()
	}()

	if err := <-initErr; err != nil {
		<-done
		return err
	}
	t.calls = calls
	t.done = done
	t.refs = 1
	return nil
}

// release terminates glfw when the last surface is closed.
func (t *glThread) release() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.refs == 0 {
		return
	}
	t.refs--
	if t.refs > 0 {
		return
	}
	close(t.calls)
	<-t.done
	t.calls = nil
}

// do runs fn on the GL thread and waits for it. A panic in fn is returned as
// an error instead of killing the thread.
func (t *glThread) do(fn func() error) (err error) {
	t.mu.Lock()
	calls := t.calls
	t.mu.Unlock()
	if calls == nil {
		return ErrNotRunning
	}

	result := make(chan error, 1)
	calls <- func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("glsurface: panic on GL thread: %v", r)
			}
		}()
		result <- fn()
	}
	return <-result
}
