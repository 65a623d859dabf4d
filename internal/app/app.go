// Package app wires the ledger, cache, lock and services shared by the
// server and the operator CLI.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/MrJamesThe3rd/debtsync/internal/allocation"
	"github.com/MrJamesThe3rd/debtsync/internal/batch"
	"github.com/MrJamesThe3rd/debtsync/internal/cache"
	"github.com/MrJamesThe3rd/debtsync/internal/config"
	"github.com/MrJamesThe3rd/debtsync/internal/database"
	"github.com/MrJamesThe3rd/debtsync/internal/debt"
	"github.com/MrJamesThe3rd/debtsync/internal/intake"
	"github.com/MrJamesThe3rd/debtsync/internal/job"
	"github.com/MrJamesThe3rd/debtsync/internal/ledger/store"
	"github.com/MrJamesThe3rd/debtsync/internal/lock"
	"github.com/MrJamesThe3rd/debtsync/internal/monitoring"
	"github.com/MrJamesThe3rd/debtsync/internal/reconcile"
	"github.com/MrJamesThe3rd/debtsync/internal/rollback"
)

type App struct {
	DB         *sql.DB
	Cache      *cache.Manager
	Jobs       *job.Manager
	Allocation *allocation.Service
	Debts      *debt.Query
	Importer   *intake.Importer
	Reconcile  *reconcile.Engine
	Rollback   *rollback.Engine
	Monitoring *monitoring.Service

	redis *redis.Client
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.New(cfg.ConnectionString(), cfg.Pool())
	if err != nil {
		return nil, err
	}

	c, err := cache.New(cache.Options{
		TTL:           cfg.Cache.TTL,
		MaxEntries:    cfg.Cache.MaxEntries,
		SweepInterval: cfg.Cache.SweepInterval,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	a := &App{DB: db, Cache: c, Jobs: job.NewManager(job.WithRetention(cfg.Jobs.Retention))}

	var locker lock.Locker = lock.NewLocal()

	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("pinging redis: %w", err)
		}

		locker = lock.NewRedis(a.redis)
	}

	ledgerStore := store.New(db)
	batchOpts := batch.Options{
		Size:        cfg.Batch.Size,
		Concurrency: cfg.Batch.Concurrency,
		Delay:       cfg.Batch.Delay,
	}

	a.Allocation = allocation.NewService(ledgerStore, c, allocation.Options{CascadeGlobal: cfg.Cache.CascadeGlobal})
	a.Debts = debt.NewQuery(ledgerStore, c)
	a.Importer = intake.NewImporter(a.Allocation, ledgerStore)
	a.Reconcile = reconcile.NewEngine(ledgerStore, c, locker, a.Jobs, reconcile.EngineOptions{
		DriftThreshold:      cfg.DriftThreshold(),
		ConfidenceThreshold: cfg.Reconcile.ConfidenceThreshold,
		MaxAdjustment:       cfg.MaxAdjustment(),
		LockTTL:             cfg.Reconcile.LockTTL,
		Batch:               batchOpts,
	})
	a.Rollback = rollback.New(ledgerStore, c, reconcile.NewDetector(ledgerStore, batchOpts), rollback.Options{
		Batch:          batchOpts,
		DriftThreshold: cfg.DriftThreshold(),
	})
	a.Monitoring = monitoring.NewService(ledgerStore, c, monitoring.Options{})

	return a, nil
}

// Close waits for background jobs, then releases the cache sweeper and the
// connections.
func (a *App) Close() {
	a.Jobs.Wait()
	a.Cache.Stop()

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("closing redis", "error", err)
		}
	}

	if err := a.DB.Close(); err != nil {
		slog.Warn("closing database", "error", err)
	}
}

// NewLogger builds the process logger from LOG_FORMAT and LOG_LEVEL.
func NewLogger(w io.Writer, format, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}
