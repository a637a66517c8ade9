// Package dbmigrate applies the replay schema migrations and, on postgres, the
// river queue migrations.
package dbmigrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	replaymigrations "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/infrastructure/repositories/migrations"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/migrate"
)

// NewMigrator returns the bun migrator for the replay tables.
func NewMigrator(db *bun.DB) *migrate.Migrator {
	return migrate.NewMigrator(db, replaymigrations.Migrations)
}

// Run brings the database up to date. dsn is only used on postgres, where
// river keeps its own tables.
func Run(ctx context.Context, db *bun.DB, dsn string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	migrator := NewMigrator(db)
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize migration tables: %w", err)
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("failed to run replay migrations: %w", err)
	}
	if group.IsZero() {
		logger.InfoContext(ctx, "No replay migrations to run")
	} else {
		logger.InfoContext(ctx, "Ran replay migrations", slog.String("group", group.String()))
	}

	if db.Dialect().Name() != dialect.PG {
		return nil
	}
	return RunRiver(ctx, dsn, logger)
}

// RunRiver applies the river queue migrations through a short-lived pgx pool.
func RunRiver(ctx context.Context, dsn string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("failed to parse DSN for River migrations: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool for River migrations: %w", err)
	}
	defer pool.Close()

	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("failed to create River migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, &rivermigrate.MigrateOpts{})
	if err != nil {
		return fmt.Errorf("failed to run River migrations: %w", err)
	}
	logger.InfoContext(ctx, "River queue migrations completed", slog.Int("applied", len(res.Versions)))
	return nil
}
