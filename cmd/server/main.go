// Package main runs the notification service: the webhook endpoint, the
// live websocket feed, health and Prometheus metrics on one HTTP listener.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallet-alerts/internal/app"
	"wallet-alerts/internal/config"
	"wallet-alerts/internal/observability"
)

func main() {
	envFile := flag.String("env-file", ".env", "Optional .env file loaded before the environment")
	addr := flag.String("addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	migrate := flag.Bool("migrate", false, "Apply embedded migrations on startup (overrides RUN_MIGRATIONS)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		observability.NewLogger("info").WithError(err).Fatal("load config")
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *useMemory {
		cfg.UseMemory = true
	}
	if *migrate {
		cfg.RunMigrations = true
	}

	log := observability.NewLogger(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.InitTracing(ctx, "wallet-alerts", cfg.OTLPEndpoint, cfg.OTLPInsecure)
	if err != nil {
		log.WithError(err).Fatal("init tracing")
	}

	stores, cleanup, err := app.OpenStores(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("open stores")
	}
	defer cleanup()

	svc, err := app.NewService(ctx, cfg, stores, nil, log, observability.DefaultMetrics())
	if err != nil {
		log.WithError(err).Fatal("build service")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
	case err := <-errCh:
		log.WithError(err).Error("http server failed")
	}

	// In-flight batches get the full pipeline budget to finish; a second
	// signal exits immediately.
	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Warn("second signal, forcing exit")
		os.Exit(1)
	}()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.PipelineTimeout+5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
	svc.Live.Close()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.WithError(err).Warn("tracing shutdown")
	}

	log.Info("shutdown complete")
}
