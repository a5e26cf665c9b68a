package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/term"
)

// reportStats periodically prints statistics from all components. On a
// terminal it draws a boxed table sized to the terminal width; otherwise it
// logs one line per window.
func reportStats(ctx context.Context, interval time.Duration, d *daemon) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fd := int(os.Stdout.Fd())
	interactive := term.IsTerminal(fd)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !interactive {
				logStats(d)
				continue
			}
			width := 72
			if w, _, err := term.GetSize(fd); err == nil && w > 40 {
				width = min(w, 120)
			}
			printLiveStats(os.Stdout, width, time.Since(d.started), d)
		}
	}
}

func logStats(d *daemon) {
	st := d.orch.Stats()
	slog.Info("stats: store",
		"union", st.Union.String(),
		"subscriptions", st.Subscriptions,
		"capacity", st.Store.Capacity,
		"latest", st.Store.Latest,
		"overwritten", st.Store.Overwritten,
		"gaps", st.Store.Gaps,
	)
	for _, ws := range d.windowStats() {
		slog.Info("stats: window",
			"window", ws.ID,
			"surface", ws.Surface.String(),
			"cursor", ws.Loop.Cursor,
			"frames", ws.Loop.Frames,
			"gaps", ws.Loop.Gaps,
			"repaints", ws.Loop.Repaints,
		)
	}
}

// printLiveStats prints current statistics from all components
func printLiveStats(out io.Writer, width int, uptime time.Duration, d *daemon) {
	orch := d.orch.Stats()
	rule := strings.Repeat("─", width-2)

	fmt.Fprintln(out)
	fmt.Fprintf(out, "╭%s╮\n", rule)
	fmt.Fprintf(out, "│ Analysis Statistics (Uptime: %v)\n", uptime.Round(time.Second))
	fmt.Fprintf(out, "├%s┤\n", rule)

	// Frame store
	fmt.Fprintln(out, "│ Frame Store:")
	fmt.Fprintf(out, "│   Capacity:           %6d frames (gen %d)\n", orch.Store.Capacity, orch.Store.Generation)
	fmt.Fprintf(out, "│   Latest:             %6d\n", orch.Store.Latest)
	fmt.Fprintf(out, "│   Overwritten:        %6d frames\n", orch.Store.Overwritten)
	fmt.Fprintf(out, "│   Gaps / Torn:        %6d / %d\n", orch.Store.Gaps, orch.Store.TornReads)

	// Orchestrator
	fmt.Fprintln(out, "│")
	fmt.Fprintln(out, "│ Orchestrator:")
	fmt.Fprintf(out, "│   Enabled:            %s\n", orch.Union.String())
	fmt.Fprintf(out, "│   Subscriptions:      %6d\n", orch.Subscriptions)
	fmt.Fprintf(out, "│   Engine Pushes:      %6d\n", orch.Pushes)

	// Windows
	fmt.Fprintln(out, "│")
	fmt.Fprintln(out, "│ Windows:")
	for _, ws := range d.windowStats() {
		fmt.Fprintf(out, "│   %-12s %-18s %6d frames, %3d gaps, %6d repaints @ %v\n",
			ws.ID,
			ws.Surface.String(),
			ws.Loop.Frames,
			ws.Loop.Gaps,
			ws.Loop.Repaints,
			ws.Loop.Period)
	}

	if d.emitter != nil {
		es := d.emitter.Stats()
		fmt.Fprintln(out, "│")
		fmt.Fprintf(out, "│ Telemetry:            connected=%v published=%d errors=%d\n",
			es.Connected, es.Published, es.Errors)
	}

	fmt.Fprintf(out, "╰%s╯\n", rule)
}
