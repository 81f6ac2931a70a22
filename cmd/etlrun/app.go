package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/aristath/etlrun/internal/config"
	"github.com/aristath/etlrun/internal/exchange"
	"github.com/aristath/etlrun/internal/logging"
	"github.com/aristath/etlrun/internal/persistence"
	"github.com/aristath/etlrun/internal/redisstore"
	"github.com/aristath/etlrun/internal/tracing"
)

// app holds the components every subcommand shares.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	history *persistence.SQLiteStore
	entries exchange.Store
	tracer  *tracing.Provider
	closers []func() error
}

// newApp builds the logger, tracing, run history and exchange store from
// cfg. logOut receives console logs; io.Discard silences them.
func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	logger, err := logging.New(cfg.Log, logOut)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	a.tracer, err = tracing.Setup(cfg.Tracing, Version)
	if err != nil {
		a.Close()
		return nil, err
	}

	// Run history always lives in SQLite so inspect and serve can read it
	a.history, err = persistence.NewSQLiteStore(ctx, cfg.Store.SQLitePath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("opening run history: %w", err)
	}
	a.closers = append(a.closers, a.history.Close)

	switch cfg.Store.Backend {
	case "memory":
		a.entries = exchange.NewMemoryStore()
	case "sqlite":
		a.entries = a.history
	case "redis":
		rs, err := redisstore.Dial(ctx, redisstore.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			Prefix:   cfg.Store.Redis.Prefix,
			TTL:      cfg.Store.Redis.TTL.Std(),
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.entries = rs
		a.closers = append(a.closers, rs.Close)
	default:
		a.Close()
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	logger.Debug("components ready",
		zap.String("store", cfg.Store.Backend),
		zap.String("history", cfg.Store.SQLitePath),
		zap.Bool("retain", cfg.Store.Retain),
	)
	return a, nil
}

// persistent reports whether exchange entries outlive the process.
func (a *app) persistent() bool {
	return a.cfg.Store.Backend != "memory"
}

// Close releases stores, flushes traces and syncs the logger.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil

	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flushing traces: %w", err))
		}
		cancel()
		a.tracer = nil
	}

	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}
