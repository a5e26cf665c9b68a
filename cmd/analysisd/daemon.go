package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/e7canasta/analysis-core/capability"
	"github.com/e7canasta/analysis-core/config"
	"github.com/e7canasta/analysis-core/consumer"
	"github.com/e7canasta/analysis-core/engine"
	"github.com/e7canasta/analysis-core/framestore"
	"github.com/e7canasta/analysis-core/internal/emitter"
	"github.com/e7canasta/analysis-core/orchestrator"
	"github.com/e7canasta/analysis-core/source"
	"github.com/e7canasta/analysis-core/source/gstaudio"
	"github.com/e7canasta/analysis-core/surface"
	"github.com/e7canasta/analysis-core/surface/glsurface"
)

// window bundles one consumer window with its host and view.
type window struct {
	*consumer.Window
	host *windowHost
	view *levelView
}

// daemon owns every component of one analysisd instance.
type daemon struct {
	opts   options
	logger *slog.Logger

	store   framestore.Store
	orch    *orchestrator.Orchestrator
	engine  *engine.Engine
	emitter *emitter.MQTTEmitter

	mu      sync.Mutex
	cfg     *config.Config
	windows []*window
	started time.Time
}

func newDaemon(cfg *config.Config, opts options, logger *slog.Logger) *daemon {
	ecfg := engine.Config{
		SampleRate:         cfg.Engine.SampleRate,
		HopSize:            cfg.Engine.HopSize,
		SpectrumBins:       cfg.Engine.SpectrumBins,
		VoicingThresholdDB: cfg.Engine.VoicingThresholdDB,
	}
	ecfg.Validate()

	d := &daemon{
		opts:   opts,
		logger: logger,
		cfg:    cfg,
	}

	d.store = framestore.New(
		framestore.Config{Capacity: cfg.FrameCapacity, Layout: engine.DefaultLayout(ecfg.SpectrumBins)},
		framestore.WithLogger(logger),
	)

	// The engine is created after the orchestrator it publishes through;
	// enable pushes only start once a window subscribes.
	d.orch = orchestrator.New(d.store,
		orchestrator.EngineFunc(func(caps capability.Set) { d.engine.SetEnabled(caps) }),
		orchestrator.WithLogger(logger),
	)
	d.engine = engine.New(ecfg, d.orch, engine.WithLogger(logger))

	for _, wc := range cfg.Windows {
		d.windows = append(d.windows, d.newWindow(wc))
	}

	if cfg.MQTT.Enabled() {
		d.emitter = emitter.NewMQTTEmitter(cfg.InstanceID, cfg.MQTT, nil)
	}
	return d
}

func (d *daemon) newWindow(wc config.WindowConfig) *window {
	host := newWindowHost(wc.ID)
	view := newLevelView(d.store.Layout(), wc.CapabilitySet())

	wcfg := consumer.Config{
		ID:           wc.ID,
		Capabilities: wc.CapabilitySet(),
		Width:        wc.Width,
		Height:       wc.Height,
		Period:       d.cfg.WindowPeriod(wc),
	}
	if wc.Accelerated && !d.opts.noGL {
		wcfg.Accelerated = glsurface.Factory(glsurface.Options{
			Title:   "analysis: " + wc.ID,
			Visible: !d.opts.headless,
		})
	}

	cw := consumer.New(d.orch, wcfg, host, view.paint,
		consumer.WithLogger(d.logger),
		consumer.WithFrameHandler(view.onFrames),
		consumer.WithInputHandler(func(ev surface.InputEvent) {
			d.logger.Debug("input", "window", wc.ID, "kind", ev.Kind, "x", ev.X, "y", ev.Y, "key", ev.Key)
		}),
	)
	return &window{Window: cw, host: host, view: view}
}

// openSource builds the configured sample source.
func (d *daemon) openSource(ctx context.Context) (source.Source, error) {
	sc := d.cfg.Source
	rate := d.engine.Config().SampleRate

	switch source.Kind(sc.Kind) {
	case source.KindWAV:
		src, err := source.OpenWAV(sc.Path)
		if err != nil {
			return nil, err
		}
		if src.SampleRate() != rate {
			d.logger.Warn("daemon: wav sample rate differs from engine",
				"file_rate", src.SampleRate(), "engine_rate", rate)
		}
		return src, nil
	case source.KindGStreamer:
		return gstaudio.New(ctx, gstaudio.Config{Source: sc.Pipeline, SampleRate: rate})
	default:
		return source.NewSynthetic(source.SyntheticConfig{
			SampleRate:  rate,
			FrequencyHz: sc.FrequencyHz,
			BurstEvery:  time.Duration(sc.BurstMS) * time.Millisecond,
			Realtime:    true,
		}), nil
	}
}

// Run opens every window, starts the producer, telemetry and stats
// reporting, and blocks until ctx is cancelled or the producer fails.
func (d *daemon) Run(ctx context.Context) error {
	d.started = time.Now()

	src, err := d.openSource(ctx)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	if d.emitter != nil {
		if err := d.emitter.Connect(ctx); err != nil {
			return err
		}
		defer d.emitter.Disconnect()
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, w := range d.snapshotWindows() {
		if err := w.Open(gctx); err != nil {
			return fmt.Errorf("failed to open window %s: %w", w.ID(), err)
		}
	}

	g.Go(func() error {
		err := d.engine.Run(gctx, src)
		if err == nil {
			d.logger.Info("daemon: source exhausted, windows keep the last frames",
				"blocks", d.engine.Blocks())
			return nil
		}
		if gctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("engine stopped: %w", err)
	})

	if d.emitter != nil {
		g.Go(func() error {
			return d.emitter.Run(gctx, d.telemetry)
		})
	}

	if d.opts.statsInterval > 0 {
		g.Go(func() error {
			reportStats(gctx, d.opts.statsInterval, d)
			return nil
		})
	}

	<-gctx.Done()
	return g.Wait()
}

// Reload applies frame_capacity, tick periods and window capabilities from
// cfg. Windows are matched by id; added or removed windows need a restart.
func (d *daemon) Reload(cfg *config.Config) {
	d.mu.Lock()
	defer d.mu.Unlock()

	old := d.cfg
	d.cfg = cfg

	if cfg.FrameCapacity != old.FrameCapacity {
		d.orch.SetCapacity(cfg.FrameCapacity)
		d.logger.Info("daemon: frame capacity reloaded", "old", old.FrameCapacity, "new", cfg.FrameCapacity)
	}

	byID := make(map[string]config.WindowConfig, len(cfg.Windows))
	for _, wc := range cfg.Windows {
		byID[wc.ID] = wc
	}
	for _, w := range d.windows {
		wc, ok := byID[w.ID()]
		if !ok {
			d.logger.Warn("daemon: window removed from config, restart to apply", "window", w.ID())
			continue
		}
		w.SetPeriod(cfg.WindowPeriod(wc))
		w.SetCapabilities(wc.CapabilitySet())
		w.view.setCapabilities(wc.CapabilitySet())
	}
	if len(byID) > len(d.windows) {
		d.logger.Warn("daemon: new windows in config, restart to apply")
	}
}

// Shutdown saves snapshots (when requested) and closes every window.
func (d *daemon) Shutdown() error {
	var errs []error
	for _, w := range d.snapshotWindows() {
		if d.opts.snapshotDir != "" {
			if _, err := w.host.saveSnapshot(d.opts.snapshotDir); err != nil {
				errs = append(errs, err)
			}
		}
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("window %s: %w", w.ID(), err))
		}
	}
	return errors.Join(errs...)
}

func (d *daemon) snapshotWindows() []*window {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*window(nil), d.windows...)
}

func (d *daemon) instanceID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.InstanceID
}

func (d *daemon) windowStats() []consumer.Stats {
	windows := d.snapshotWindows()
	out := make([]consumer.Stats, len(windows))
	for i, w := range windows {
		out[i] = w.Stats()
	}
	return out
}

func (d *daemon) telemetry() emitter.Snapshot {
	return emitter.Collect(d.instanceID(), d.orch.Stats(), d.windowStats())
}
