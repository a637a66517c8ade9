// Package bundb opens the bun.DB used by the repositories, on postgres or sqlite.
package bundb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects to the database named by driver and dsn and pings it.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*bun.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		db  *bun.DB
		err error
	)
	switch strings.ToLower(driver) {
	case "", DriverPostgres:
		db = OpenPostgres(dsn)
	case DriverSQLite:
		db, err = OpenSQLite(dsn)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("bundb.Open: unsupported driver %q", driver)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("bundb.Open: failed to ping database: %w", err)
	}

	logger.InfoContext(ctx, "Database connection established", slog.String("driver", db.Dialect().Name().String()))
	return db, nil
}

// OpenPostgres returns a postgres bun.DB without connecting.
func OpenPostgres(dsn string) *bun.DB {
	return bun.NewDB(sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn))), pgdialect.New())
}

// OpenSQLite opens a sqlite database through modernc.org/sqlite. An empty dsn
// opens a private in-memory database.
func OpenSQLite(dsn string) (*bun.DB, error) {
	if dsn == "" {
		dsn = "file::memory:"
	}
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("bundb.OpenSQLite: %w", err)
	}
	// sqlite serialises writers; a single connection also keeps an in-memory database alive.
	sqldb.SetMaxOpenConns(1)
	if _, err := sqldb.Exec("PRAGMA foreign_keys = ON"); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("bundb.OpenSQLite: enable foreign keys: %w", err)
	}
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}
