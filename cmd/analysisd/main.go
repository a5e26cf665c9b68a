// Command analysisd runs the analysis core: a sample source feeding the
// engine, the frame store, and one render loop per configured window.
//
// Signals: SIGINT/SIGTERM shut down, SIGHUP reloads frame_capacity,
// tick periods and window capabilities from the config file.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/e7canasta/analysis-core/config"
)

const version = "v0.1.0"

// options are command line settings that are not part of the config file.
type options struct {
	configPath    string
	debug         bool
	headless      bool
	noGL          bool
	snapshotDir   string
	statsInterval time.Duration
}

func main() {
	opts := parseFlags()

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel, opts.debug),
	}))
	slog.SetDefault(logger)

	slog.Info("starting analysisd",
		"version", version,
		"config", opts.configPath,
		"instance_id", cfg.InstanceID,
		"windows", len(cfg.Windows),
		"frame_capacity", cfg.FrameCapacity,
		"source", cfg.Source.Kind,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := newDaemon(cfg, opts, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			if sig == syscall.SIGHUP {
				reload(d, opts.configPath)
				continue
			}
			slog.Info("shutdown signal received, stopping gracefully", "signal", sig)
			cancel()
			return
		}
	}()

	runErr := d.Run(ctx)
	if runErr != nil {
		slog.Error("analysisd failed", "error", runErr)
	}

	if err := d.Shutdown(); err != nil {
		slog.Error("shutdown failed", "error", err)
		os.Exit(1)
	}
	if runErr != nil {
		os.Exit(1)
	}

	slog.Info("analysisd stopped")
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file (empty = built-in defaults)")
	flag.BoolVar(&opts.debug, "debug", false, "Enable debug logging (overrides log_level)")
	flag.BoolVar(&opts.headless, "headless", false, "Keep accelerated windows hidden")
	flag.BoolVar(&opts.noGL, "no-gl", false, "Never try the accelerated surface")
	flag.StringVar(&opts.snapshotDir, "snapshot-dir", "", "Write software surfaces as PNG on exit")
	flag.DurationVar(&opts.statsInterval, "stats-interval", 5*time.Second, "Statistics reporting interval (0 disables)")
	flag.Parse()
	return opts
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// reload re-reads the config file. A broken file keeps the running config.
func reload(d *daemon, path string) {
	if path == "" {
		slog.Warn("reload ignored: running with built-in defaults")
		return
	}
	cfg, err := config.Load(path)
	if err != nil {
		slog.Error("reload failed, keeping current config", "error", err)
		return
	}
	d.Reload(cfg)
	slog.Info("config reloaded", "path", path)
}

func logLevel(name string, debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
