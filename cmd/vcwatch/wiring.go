package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/steveyegge/vcwatch/internal/ai"
	"github.com/steveyegge/vcwatch/internal/config"
	"github.com/steveyegge/vcwatch/internal/dedup"
	"github.com/steveyegge/vcwatch/internal/extract"
	"github.com/steveyegge/vcwatch/internal/notify"
	"github.com/steveyegge/vcwatch/internal/storage/sqlite"
	"github.com/steveyegge/vcwatch/internal/store"
)

// openStore opens the notification log, creating its directory on first
// use.
func openStore(cfg config.Config, logger *slog.Logger) (*store.Store, error) {
	path, err := cfg.Store.ResolvedPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return store.New(path, cfg.Store.Options(), logger)
}

// buildDispatcher registers the durable log channel followed by the
// configured outward channels.
func buildDispatcher(cfg config.Config, st *store.Store, logger *slog.Logger) *notify.Dispatcher {
	d := notify.NewDispatcher(logger, notify.NewLogChannel(st, logger))

	if len(cfg.Notify.Channels) > 0 {
		sender := notify.NewCommandSender(cfg.Notify.Command, cfg.Notify.Timeout)
		for _, ch := range cfg.Notify.Channels {
			switch ch.Kind {
			case config.KindDashboard:
				d.Register(notify.NewDashboardChannel(ch.Dashboard(), sender, logger))
			default:
				d.Register(notify.NewMessagingChannel(ch.Messaging(), sender, logger))
			}
		}
	}

	d.SetDryRun(cfg.DryRun)
	return d
}

// buildExtractor returns nil when AI extraction is disabled or no
// credential is available; the pipeline then relies on rules alone.
func buildExtractor(cfg config.Config, metrics extract.MetricsCollector, logger *slog.Logger) (*extract.Extractor, error) {
	if !cfg.AI.Enabled {
		return nil, nil
	}

	backend := cfg.AIBackend(config.DefaultCredentials())
	backend.Logger = logger
	completer, err := ai.New(backend)
	if errors.Is(err, ai.ErrMissingAPIKey) {
		logger.Warn("AI extraction disabled: no API key found", "provider", backend.Provider)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	opts := []extract.Option{extract.WithLogger(logger)}
	if metrics != nil {
		opts = append(opts, extract.WithMetrics(metrics))
	}
	return extract.New(completer, cfg.ExtractConfig(), opts...)
}

// buildTracker opens the SQLite ledger when configured, pruning stale
// entries, and otherwise returns an in-memory tracker. The close function
// is never nil.
func buildTracker(ctx context.Context, cfg config.Config, logger *slog.Logger) (dedup.Tracker, func() error, error) {
	noop := func() error { return nil }
	if !cfg.Ledger.Enabled() {
		return dedup.NewMemoryTracker(cfg.RenotifyAfter), noop, nil
	}

	ledger, err := sqlite.NewLedger(ctx, cfg.Ledger.Path, cfg.RenotifyAfter)
	if err != nil {
		return nil, noop, err
	}
	if age := cfg.Ledger.PruneAge(); age > 0 {
		n, err := ledger.Prune(ctx, age)
		if err != nil {
			logger.Warn("failed to prune dedup ledger", "error", err)
		} else if n > 0 {
			logger.Info("pruned dedup ledger", "entries", n)
		}
	}
	return ledger, ledger.Close, nil
}
