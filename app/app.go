package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/samfeast/RLI-RLIS-v2/app/modules/replays"
	"github.com/samfeast/RLI-RLIS-v2/config"
	"github.com/samfeast/RLI-RLIS-v2/internal/db/bundb"
	"github.com/samfeast/RLI-RLIS-v2/internal/db/dbmigrate"
	"github.com/samfeast/RLI-RLIS-v2/internal/observability"
	"github.com/samfeast/RLI-RLIS-v2/internal/observability/attr"
	"github.com/uptrace/bun"
)

const (
	defaultHTTPAddress = ":8080"
	shutdownTimeout    = 30 * time.Second
)

// App wires the configuration, database and modules of the worker process.
type App struct {
	Config        *config.Config
	Observability observability.Observability
	DB            *bun.DB
	Modules       Modules

	server *http.Server
	wg     sync.WaitGroup
}

// Modules holds the application's modules.
type Modules struct {
	ReplaysModule *replays.Module
}

// NewApp initializes the application with the necessary services and configuration.
func NewApp(ctx context.Context, cfg *config.Config, obs observability.Observability) (*App, error) {
	logger := obs.Logger

	db, err := bundb.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := dbmigrate.Run(ctx, db, cfg.Database.DSN, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	replaysModule, err := replays.NewReplaysModule(ctx, cfg, obs, db, true)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize replays module: %w", err)
	}

	app := &App{
		Config:        cfg,
		Observability: obs,
		DB:            db,
		Modules:       Modules{ReplaysModule: replaysModule},
	}

	addr := cfg.Observability.MetricsAddress
	if addr == "" {
		addr = defaultHTTPAddress
	}
	app.server = &http.Server{
		Addr:              addr,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return app, nil
}

// Run starts the modules and the HTTP server, then blocks until ctx is done
// or the server fails.
func (app *App) Run(ctx context.Context) error {
	logger := app.Observability.Logger

	app.wg.Add(1)
	go app.Modules.ReplaysModule.Run(ctx, &app.wg)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", attr.String("address", app.server.Addr))
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
		return nil
	case err := <-serverErr:
		logger.Error("HTTP server failed", attr.Error(err))
		return fmt.Errorf("http server: %w", err)
	}
}

// Close stops the HTTP server, the modules and the database, in that order.
func (app *App) Close() error {
	logger := app.Observability.Logger
	var errs []error

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.server.Shutdown(ctx); err != nil {
		logger.Error("HTTP server forced to shutdown", attr.Error(err))
		errs = append(errs, err)
	}

	if err := app.Modules.ReplaysModule.Close(); err != nil {
		errs = append(errs, err)
	}
	app.wg.Wait()

	if err := app.DB.Close(); err != nil {
		logger.Error("Error closing database connection", attr.Error(err))
		errs = append(errs, err)
	}

	logger.Info("Application shut down gracefully")
	return errors.Join(errs...)
}
