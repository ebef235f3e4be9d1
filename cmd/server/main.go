package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"trustline/internal/platform/config"
	"trustline/internal/platform/httpserver"
	"trustline/internal/platform/logger"
	"trustline/internal/trust/reconcile"
)

// main wires the trust engine, starts the reconciliation scheduler and serves
// the ops endpoints until SIGINT or SIGTERM.
func main() {
	if err := run(); err != nil {
		slog.Error("trustline exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer in.close(log)

	a, err := newApp(in, cfg, log)
	if err != nil {
		return err
	}
	defer a.audit.Close()

	if cfg.Trust.SeedDefaultLevels {
		if err := a.seedDefaultLevels(ctx, log); err != nil {
			return err
		}
	}
	if err := a.resyncAllRoles(ctx, log); err != nil {
		return err
	}

	if cfg.Trust.ReconcileEnabled {
		scheduler, err := reconcile.NewScheduler(a.reconciler, cfg.Trust.ReconcileSchedule, log)
		if err != nil {
			return err
		}
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	srv := httpserver.New(cfg.Server.Addr, httpserver.NewOpsRouter(log, in.readinessChecks()...))
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting trustline", "addr", cfg.Server.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("trustline stopped")
	return nil
}
