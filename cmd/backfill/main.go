// Package main rebuilds the address to watchers index from subscriber
// watch lists.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"wallet-alerts/internal/app"
	"wallet-alerts/internal/config"
	"wallet-alerts/internal/directory"
	"wallet-alerts/internal/observability"
)

func main() {
	envFile := flag.String("env-file", ".env", "Optional .env file loaded before the environment")
	migrate := flag.Bool("migrate", false, "Apply embedded migrations first")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		observability.NewLogger("info").WithError(err).Fatal("load config")
	}
	if *migrate {
		cfg.RunMigrations = true
	}
	log := observability.NewLogger(cfg.LogLevel).WithField("cmd", "backfill")

	if cfg.UseMemory {
		log.Fatal("backfill needs persistent storage, unset USE_MEMORY")
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stores, cleanup, err := app.OpenStores(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("open stores")
	}
	defer cleanup()

	dir := directory.New(stores.Index, stores.Watchlist, log, observability.DefaultMetrics())
	result, err := dir.Backfill(ctx)
	if err != nil {
		log.WithError(err).Error("backfill failed")
		cleanup()
		os.Exit(1)
	}

	entry := log.WithField("entries", result.Entries).WithField("addresses", result.Addresses)
	if len(result.Errors) > 0 {
		entry.WithField("errors", len(result.Errors)).Warn("backfill finished with errors")
		for _, e := range result.Errors {
			log.Warn(e)
		}
		cleanup()
		os.Exit(1)
	}
	entry.Info("backfill complete")
}
