package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattjoyce/scenebridge/internal/config"
	"github.com/mattjoyce/scenebridge/internal/events"
	"github.com/mattjoyce/scenebridge/internal/hostloop"
	"github.com/mattjoyce/scenebridge/internal/journal"
	"github.com/mattjoyce/scenebridge/internal/listener"
	"github.com/mattjoyce/scenebridge/internal/lock"
	"github.com/mattjoyce/scenebridge/internal/log"
	"github.com/mattjoyce/scenebridge/internal/ops"
	"github.com/mattjoyce/scenebridge/internal/registry"
	"github.com/mattjoyce/scenebridge/internal/scene"
	"github.com/mattjoyce/scenebridge/internal/session"
)

const (
	engineName   = "scenebridge-sim"
	pruneEvery   = time.Hour
	flushTimeout = 5 * time.Second
)

// loadConfig loads the config at path, discovering one when path is empty.
// With nothing to discover the built-in defaults are used.
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		discovered, err := config.DiscoverConfigPath()
		if err != nil {
			return config.Defaults(), "", nil
		}
		path = discovered
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	listen := fs.String("listen", "", "Override listener.listen")
	noListener := fs.Bool("no-listener", false, "Start the host without starting the listener")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, resolved, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *listen != "" {
		cfg.Listener.Listen = *listen
	}

	log.SetupWithOptions(log.Options{
		Level:      cfg.Service.LogLevel,
		Format:     cfg.Service.LogFormat,
		File:       cfg.Service.LogFile,
		MaxSizeMB:  cfg.Service.LogMaxSizeMB,
		MaxBackups: cfg.Service.LogBackups,
		MaxAgeDays: cfg.Service.LogMaxAge,
	})
	logger := log.WithComponent("main")
	if resolved == "" {
		logger.Info("scenebridge starting with built-in defaults", "version", version)
	} else {
		logger.Info("scenebridge starting", "version", version, "config", resolved)
	}

	pidLock, err := lock.AcquirePIDLock(cfg.Service.LockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another host may be running)", "path", cfg.Service.LockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLock.Path())

	catalog := scene.DefaultCatalog()
	if cfg.Scene.Assets != "" {
		catalog, err = scene.LoadCatalog(cfg.Scene.Assets)
		if err != nil {
			logger.Error("failed to load asset catalog", "path", cfg.Scene.Assets, "error", err)
			return 1
		}
	}
	host := scene.New(catalog)
	logger.Info("scene ready", "assets", len(catalog))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := events.NewHub(cfg.Events.Buffer)
	reg := registry.New()
	deps := session.Deps{Registry: reg, Events: hub}

	var jrnl *journal.Journal
	pruneCtx, stopPrune := context.WithCancel(ctx)
	defer stopPrune()
	if cfg.Journal.IsEnabled() {
		jrnl, err = journal.Open(ctx, cfg.Journal.Path, cfg.Journal.Buffer, log.Get())
		if err != nil {
			logger.Error("failed to open journal", "path", cfg.Journal.Path, "error", err)
			return 1
		}
		// Assigned only when open so the interfaces stay nil otherwise.
		deps.Journal = jrnl
		deps.History = jrnl
		go pruneJournal(pruneCtx, jrnl, cfg.Journal.Retention, logger)
		logger.Info("journal opened", "path", cfg.Journal.Path)
	}

	loop := hostloop.New(cfg.Service.TickInterval, log.Get())
	mgr := session.New(session.Config{
		Listener: listener.Config{
			Addr:           cfg.Listener.Listen,
			RequestTimeout: cfg.Listener.RequestTimeout,
			MaxBodyBytes:   cfg.Listener.MaxBodyBytes,
			ShutdownGrace:  cfg.Listener.ShutdownGrace,
			APIKey:         cfg.Listener.Auth.APIKey,
			Tokens:         cfg.Listener.Auth.Tokens,
			Service:        cfg.Service.Name,
			Version:        version,
		},
		RestartMaxAttempts: cfg.Session.RestartMaxAttempts,
	}, loop, deps, log.Get())
	restore := session.Install(mgr)
	defer restore()

	cwd, _ := os.Getwd()
	if err := ops.Register(reg, ops.Env{
		Host:      host,
		Registry:  reg,
		Restarter: mgr,
		Project: ops.Project{
			Name:    cfg.Scene.Project,
			Version: version,
			Engine:  engineName,
			Dir:     cwd,
		},
		GridUnit:    cfg.Scene.GridUnit,
		SnapshotDir: cfg.Scene.SnapshotDir,
		Logger:      log.Get(),
	}); err != nil {
		logger.Error("failed to register commands", "error", err)
		return 1
	}
	logger.Info("commands registered", "count", reg.Len())

	if err := loop.Start(ctx); err != nil {
		logger.Error("failed to start host loop", "error", err)
		return 1
	}

	if cfg.Session.AutostartEnabled() && !*noListener {
		loop.Post(func(ctx context.Context) {
			if err := mgr.Start(ctx); err != nil {
				logger.Error("listener autostart failed", "error", err)
			}
		})
	} else {
		logger.Info("listener autostart disabled")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	logger.Info("scenebridge running (Ctrl+C to stop, SIGHUP restarts the listener)")
	for running := true; running; {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				go awaitRestart(mgr.Restart(), logger)
				continue
			}
			logger.Info("received shutdown signal", "signal", sig)
			running = false
		case <-loop.Done():
			running = false
		}
	}

	// Stop runs the shutdown hooks, which release the listener.
	loop.Stop()
	stopPrune()
	if jrnl != nil {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), flushTimeout)
		if err := jrnl.Flush(flushCtx); err != nil {
			logger.Warn("journal flush failed", "error", err)
		}
		flushCancel()
		if err := jrnl.Close(); err != nil {
			logger.Warn("journal close failed", "error", err)
		}
	}
	logger.Info("scenebridge stopped", "ticks", loop.Ticks())
	return 0
}

func awaitRestart(result <-chan error, logger *slog.Logger) {
	if err := <-result; err != nil {
		logger.Error("listener restart failed", "error", err)
		return
	}
	logger.Info("listener restarted")
}

// pruneJournal drops records older than retention now and then every
// pruneEvery until ctx ends. A zero retention keeps everything.
func pruneJournal(ctx context.Context, j *journal.Journal, retention time.Duration, logger *slog.Logger) {
	if retention <= 0 {
		return
	}
	prune := func() {
		n, err := j.Prune(ctx, retention)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("journal prune failed", "error", err)
			}
			return
		}
		if n > 0 {
			logger.Info("journal pruned", "records", n, "retention", retention)
		}
	}

	prune()
	ticker := time.NewTicker(pruneEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
