package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-quizset/internal/audit"
	"github.com/p-n-ai/pai-quizset/internal/bank"
	"github.com/p-n-ai/pai-quizset/internal/compose"
	"github.com/p-n-ai/pai-quizset/internal/platform/cache"
	"github.com/p-n-ai/pai-quizset/internal/platform/config"
	"github.com/p-n-ai/pai-quizset/internal/platform/database"
	"github.com/p-n-ai/pai-quizset/internal/platform/logging"
	"github.com/p-n-ai/pai-quizset/internal/pool"
	"github.com/p-n-ai/pai-quizset/internal/request"
	"github.com/p-n-ai/pai-quizset/internal/taxonomy"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(os.Stdout, cfg.Log))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	app, cleanup, err := setup(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      newMux(app),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "store", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// setup opens the item store and its dependencies and builds the engine.
func setup(ctx context.Context, cfg *config.Config) (*server, func(), error) {
	tax, err := taxonomy.Load(cfg.TaxonomyPath)
	if err != nil {
		return nil, nil, err
	}

	var store bank.Store
	var events audit.EventLogger = audit.NopEventLogger{}
	checks := map[string]healthChecker{}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Store.Backend {
	case config.BackendSnapshot:
		mem, err := bank.OpenSnapshot(cfg.Store.SnapshotPath, tax)
		if err != nil {
			return nil, nil, fmt.Errorf("open snapshot: %w", err)
		}
		store = mem

	default:
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, db.Close)
		if err := db.Migrate(ctx, migrations(cfg.Store)...); err != nil {
			cleanup()
			return nil, nil, err
		}
		checks["database"] = db

		pg, err := bank.NewPostgresStore(db.Pool, cfg.Compose.QueryTimeout)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		store = pg
		events = audit.NewPostgresEventLogger(db.Pool)

		if cfg.Cache.Enabled {
			c, err := cache.New(ctx, cfg.Cache)
			if err != nil {
				slog.Warn("pool cache disabled", "error", err)
			} else {
				closers = append(closers, func() { c.Close() })
				checks["cache"] = c
				store = bank.NewCachedStore(store, c.Client, c.TTL)
			}
		}
	}

	engine := compose.NewEngine(store, tax, compose.Config{
		Limits: request.Limits{
			DefaultCount: cfg.Compose.DefaultCount,
			MaxCount:     cfg.Compose.MaxCount,
		},
		Pool: pool.Config{
			PoolFloor:      cfg.Compose.PoolFloor,
			PoolMultiplier: cfg.Compose.PoolMultiplier,
			BroadFloor:     cfg.Compose.BroadFloor,
			MaxRows:        cfg.Compose.MaxRows,
			Concurrency:    cfg.Compose.Concurrency,
		},
	})

	return newServer(engine, events, checks), cleanup, nil
}

// migrations returns the DDL run at startup. The problems table belongs to
// the ingestion pipeline, so its index is only created when asked for.
func migrations(cfg config.StoreConfig) []string {
	stmts := []string{audit.CreateTableSQL}
	if cfg.CreateIndex {
		stmts = append(stmts, bank.IndexSQL)
	}
	return stmts
}
