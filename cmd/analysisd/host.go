package main

import (
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/e7canasta/analysis-core/surface"
)

// windowHost is the daemon's visual tree slot for one window. It only keeps
// track of what is mounted; glfw windows present themselves and software
// surfaces can be dumped to PNG.
type windowHost struct {
	name string

	mu      sync.Mutex
	mounted surface.Surface
	mounts  int
}

func newWindowHost(name string) *windowHost {
	return &windowHost{name: name}
}

// Mount implements surface.Host. Called under the negotiator lock.
func (h *windowHost) Mount(s surface.Surface) {
	h.mu.Lock()
	h.mounted = s
	h.mounts++
	h.mu.Unlock()

	w, ht := s.Size()
	slog.Info("host: surface mounted",
		"window", h.name,
		"backend", s.Backend().String(),
		"width", w,
		"height", ht,
	)
}

func (h *windowHost) current() surface.Surface {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mounted
}

// saveSnapshot writes the mounted software surface to dir/<name>.png.
// Accelerated surfaces have nothing to save and return false.
func (h *windowHost) saveSnapshot(dir string) (bool, error) {
	sw, ok := h.current().(*surface.SoftwareSurface)
	if !ok {
		return false, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	path := filepath.Join(dir, h.name+".png")
	f, err := os.Create(path)
	if err != nil {
		return false, fmt.Errorf("failed to create snapshot: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, sw.Snapshot()); err != nil {
		return false, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	slog.Info("host: snapshot saved", "window", h.name, "path", path)
	return true, nil
}
