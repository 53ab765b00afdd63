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

	"golang.org/x/sync/errgroup"

	"enrollment/internal/platform/config"
	"enrollment/internal/platform/logger"
)

const (
	shutdownTimeout     = 15 * time.Second
	poolStatsInterval   = 15 * time.Second
	maintenanceInterval = 5 * time.Minute
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing enrollment service",
		"addr", cfg.Server.Addr,
		"environment", cfg.Environment(),
		"notify_channel", cfg.Notify.Channel,
		"kafka_enabled", cfg.Kafka.Enabled(),
		"reconcile_enabled", cfg.Reconcile.Enabled,
	)

	app, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.close()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           app.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	app.outboxWorker.Start()
	if app.consumer != nil {
		app.consumer.Start()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return ignoreCanceled(app.retryWorker.Start(gctx))
	})
	if app.sweeper != nil {
		g.Go(func() error {
			return ignoreCanceled(app.sweeper.Start(gctx))
		})
	}
	g.Go(func() error {
		app.redis.StartPoolStats(gctx, poolStatsInterval)
		return nil
	})
	g.Go(func() error {
		app.maintain(gctx, maintenanceInterval)
		return nil
	})

	err = g.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if app.consumer != nil {
		if stopErr := app.consumer.Stop(stopCtx); stopErr != nil {
			log.Warn("kafka consumer did not stop cleanly", "error", stopErr)
		}
	}
	if stopErr := app.outboxWorker.Stop(stopCtx); stopErr != nil {
		log.Warn("outbox worker did not stop cleanly", "error", stopErr)
	}
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
