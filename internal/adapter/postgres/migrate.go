package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/tern/v2/migrate"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	versionTable = "public.schema_version"

	// schemaLockKey is "fedigr" in ASCII hex.
	schemaLockKey     = 0x666564696772
	schemaLockTimeout = 5 * time.Second
)

// Migrate brings the settings schema up to date. Instances starting together
// serialize on a session advisory lock, so each migration runs once.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire migration connection: %w", err)
	}
	defer conn.Release()

	return withSchemaLock(ctx, conn.Conn(), func() error {
		return applyMigrations(ctx, conn.Conn())
	})
}

func withSchemaLock(ctx context.Context, conn *pgx.Conn, fn func() error) error {
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", schemaLockKey); err != nil {
		return fmt.Errorf("failed to take schema lock: %w", err)
	}
	defer func() {
		// The caller's context may already be done; unlock regardless.
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), schemaLockTimeout)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, "SELECT pg_advisory_unlock($1)", schemaLockKey); err != nil {
			slog.Error("Failed to release schema lock", "error", err)
		}
	}()
	return fn()
}

func applyMigrations(ctx context.Context, conn *pgx.Conn) error {
	sqlFiles, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}

	m, err := migrate.NewMigrator(ctx, conn, versionTable)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.LoadMigrations(sqlFiles); err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	m.OnStart = func(sequence int32, name, direction, _ string) {
		slog.Info("Applying migration", "sequence", sequence, "name", name, "direction", direction)
	}

	from, err := m.GetCurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if err := m.Migrate(ctx); err != nil {
		return fmt.Errorf("migration from version %d failed: %w", from, err)
	}

	to, err := m.GetCurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	slog.Info("Settings schema ready", "from_version", from, "to_version", to, "available", len(m.Migrations))
	return nil
}
