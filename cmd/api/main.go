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

	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/debtsync/internal/app"
	"github.com/MrJamesThe3rd/debtsync/internal/config"
	debtsyncHttp "github.com/MrJamesThe3rd/debtsync/internal/http"
	jobsHandler "github.com/MrJamesThe3rd/debtsync/internal/http/jobs"
	monitoringHandler "github.com/MrJamesThe3rd/debtsync/internal/http/monitoring"
	paymentHandler "github.com/MrJamesThe3rd/debtsync/internal/http/payment"
	reconcileHandler "github.com/MrJamesThe3rd/debtsync/internal/http/reconciliation"
	repHandler "github.com/MrJamesThe3rd/debtsync/internal/http/representative"
	rollbackHandler "github.com/MrJamesThe3rd/debtsync/internal/http/rollback"
	"github.com/MrJamesThe3rd/debtsync/internal/reconcile"
)

const shutdownGrace = 15 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(app.NewLogger(os.Stderr, cfg.App.LogFormat, cfg.App.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	a.Cache.Start(ctx)

	router := debtsyncHttp.New(debtsyncHttp.Handlers{
		Payments:        paymentHandler.NewHandler(a.Allocation, a.Importer),
		Representatives: repHandler.NewHandler(a.Debts, a.Allocation),
		Reconciliation:  reconcileHandler.NewHandler(a.Reconcile),
		Rollback:        rollbackHandler.NewHandler(a.Rollback),
		Jobs: jobsHandler.NewHandler(a.Jobs, map[string]jobsHandler.Presenter{
			reconcile.JobKind: reconcileHandler.PresentJob,
		}),
		Monitoring: monitoringHandler.NewHandler(a.Monitoring, a.Cache),
	}, cfg.Server.CORSOrigins)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
	}

	errc := make(chan error, 1)

	go func() {
		slog.Info("starting server", "name", cfg.App.Name, "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
	}

	for _, s := range a.Jobs.List() {
		if s.FinishedAt == nil {
			if _, err := a.Jobs.Cancel(s.ID); err != nil {
				slog.Warn("cancelling job", "job_id", s.ID, "error", err)
			}
		}
	}
}
