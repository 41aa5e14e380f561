package storage

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/dockslots/libs/db"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationLockNamespace keeps replicas starting together from applying the
// same file twice.
const migrationLockNamespace int32 = 0x6d696772

// Migrate applies embedded migrations in file-name order. Each file runs in
// its own transaction together with its schema_migrations row.
func Migrate(ctx context.Context, pool *db.Pool, logger *slog.Logger) error {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	names, err := migrationNames()
	if err != nil {
		return err
	}
	for _, name := range names {
		body, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return err
		}
		version := strings.TrimSuffix(name, ".sql")
		applied := false
		err = pool.WithTx(ctx, func(tx pgx.Tx) error {
			if err := db.AdvisoryXactLock(ctx, tx, migrationLockNamespace, 0); err != nil {
				return err
			}
			tag, err := tx.Exec(ctx, `
				INSERT INTO schema_migrations (version) VALUES ($1)
				ON CONFLICT (version) DO NOTHING
			`, version)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return nil
			}
			if _, err := tx.Exec(ctx, string(body)); err != nil {
				return err
			}
			applied = true
			return nil
		})
		if err != nil {
			return fmt.Errorf("migration %s: %w", version, err)
		}
		if applied {
			logger.Info("migration applied", "version", version)
		}
	}
	return nil
}

func migrationNames() ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
