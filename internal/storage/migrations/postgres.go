package migrations

import (
	"context"
	"fmt"

	"wallet-alerts/internal/storage/postgres"
)

// RunPostgresMigrations applies the embedded PostgreSQL schema. Every
// statement uses IF NOT EXISTS so reruns on startup are harmless.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := readSQL(PostgresFS, "postgres")
	if err != nil {
		return err
	}

	for _, f := range files {
		if _, err := pool.Exec(ctx, f.body); err != nil {
			return fmt.Errorf("apply migration %s: %w", f.name, err)
		}
	}
	return nil
}
