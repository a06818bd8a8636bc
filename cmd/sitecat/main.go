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

	"Sitecat/internal/api"
	"Sitecat/internal/config"
	"Sitecat/internal/metrics"
	"Sitecat/internal/plugin"
	"Sitecat/internal/service"
	"Sitecat/internal/session"
	"Sitecat/internal/store"
	"Sitecat/pkg/site"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting sitecat",
		"version", version,
		"account", cfg.Tracker.Account,
		"store", cfg.Store.Type,
		"insertion", cfg.Tracker.Insertion,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	met := metrics.NewMetrics(registry)
	met.PluginInfo.WithLabelValues(version, cfg.Store.Type).Set(1)

	raw, err := store.New(cfg.StoreConfig())
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer raw.Close()
	st := store.Instrument(raw, met, cfg.Store.Type)

	svc := service.New(service.SlogSink{Logger: logger.With("component", "service")}, cfg.Plugin.Logging)

	p, err := plugin.New(
		plugin.Config{Tracker: cfg.TrackerConfig(), Handle404: cfg.Plugin.Handle404},
		session.NewManager(st, cfg.SessionConfig()),
		svc,
		met,
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create plugin: %w", err)
	}

	server := api.New(cfg, p, st, site.New(logger), registry, logger)

	workers, ctx := errgroup.WithContext(ctx)

	workers.Go(func() error {
		return server.Start(ctx)
	})

	if purger, ok := purgerFor(raw, st); ok && cfg.Store.PurgeInterval > 0 {
		workers.Go(func() error {
			purge(ctx, purger, cfg.Store.PurgeInterval, logger)
			return nil
		})
	}

	if err := workers.Wait(); err != nil {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}

// purgerFor returns st as a Purger when the backend under it expires entries
// itself. The instrumented wrapper always has a Purge method, so the check is
// made against raw.
func purgerFor(raw, st store.Store) (store.Purger, bool) {
	if _, ok := raw.(store.Purger); !ok {
		return nil, false
	}
	p, ok := st.(store.Purger)
	return p, ok
}

// purge drops expired session attributes every interval until ctx is done
func purge(ctx context.Context, p store.Purger, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.Purge(ctx)
			if err != nil {
				logger.Warn("failed to purge expired sessions", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("purged expired sessions", "count", n)
			}
		}
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
