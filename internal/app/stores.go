// Package app wires configuration into stores and pipeline components for
// the service binaries.
package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"wallet-alerts/internal/config"
	"wallet-alerts/internal/storage"
	chstore "wallet-alerts/internal/storage/clickhouse"
	"wallet-alerts/internal/storage/memory"
	"wallet-alerts/internal/storage/migrations"
	pgstore "wallet-alerts/internal/storage/postgres"
	redisstore "wallet-alerts/internal/storage/redis"
)

// Stores holds every storage implementation the service uses.
type Stores struct {
	Notifications storage.NotificationStore
	Index         storage.WatcherIndexStore
	Watchlist     storage.WatchlistStore
	Endpoints     storage.EndpointStore
	// Deliveries is nil when no delivery log is configured.
	Deliveries storage.DeliveryLogStore
	// Shared is nil when no Redis is configured.
	Shared storage.SharedPriceCache

	// Ready pings the primary database.
	Ready func(ctx context.Context) error
}

// OpenStores creates stores for cfg. Memory mode keeps everything in process;
// otherwise PostgreSQL holds the relational state and ClickHouse the
// delivery log. The returned cleanup closes every connection.
func OpenStores(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*Stores, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Stores, func(), error) {
		cleanup()
		return nil, nil, err
	}

	stores := &Stores{}
	if cfg.UseMemory {
		log.Info("using in-memory storage")
		stores.Notifications = memory.NewNotificationStore()
		stores.Index = memory.NewWatcherIndexStore()
		stores.Watchlist = memory.NewWatchlistStore()
		stores.Endpoints = memory.NewEndpointStore()
		stores.Deliveries = memory.NewDeliveryLogStore()
	} else {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN, cfg.PostgresConns)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, pool.Close)

		if cfg.RunMigrations {
			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				return fail(fmt.Errorf("postgres migrations: %w", err))
			}
			log.Info("postgres migrations applied")
		}

		stores.Notifications = pgstore.NewNotificationStore(pool)
		stores.Index = pgstore.NewWatcherIndexStore(pool)
		stores.Watchlist = pgstore.NewWatchlistStore(pool)
		stores.Endpoints = pgstore.NewEndpointStore(pool)
		stores.Ready = func(ctx context.Context) error { return pool.Ping(ctx) }

		if cfg.ClickhouseDSN != "" {
			conn, err := openClickhouse(ctx, cfg)
			if err != nil {
				return fail(err)
			}
			closers = append(closers, func() { _ = conn.Close() })
			stores.Deliveries = chstore.NewDeliveryLogStore(conn)
		} else {
			log.Warn("CLICKHOUSE_DSN not set, delivery log disabled")
		}
	}

	if cfg.RedisURL != "" {
		client, err := redisstore.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = client.Close() })
		stores.Shared = redisstore.NewPriceCache(client, cfg.SharedPriceTTL)
	}

	return stores, cleanup, nil
}

func openClickhouse(ctx context.Context, cfg *config.Config) (*chstore.Conn, error) {
	if cfg.RunMigrations {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		return conn, nil
	}
	return chstore.NewConn(ctx, cfg.ClickhouseDSN)
}
