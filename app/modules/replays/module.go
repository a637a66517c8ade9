package replays

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	replayservice "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/application"
	"github.com/samfeast/RLI-RLIS-v2/app/modules/replays/infrastructure/ballchasing"
	replayevents "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/infrastructure/events"
	replaydb "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/infrastructure/repositories"
	replayscheduler "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/infrastructure/scheduler"
	"github.com/samfeast/RLI-RLIS-v2/config"
	"github.com/samfeast/RLI-RLIS-v2/internal/db/bundb"
	"github.com/samfeast/RLI-RLIS-v2/internal/observability"
	"github.com/samfeast/RLI-RLIS-v2/internal/observability/attr"
	replaymetrics "github.com/samfeast/RLI-RLIS-v2/internal/observability/metrics/replays"
	"github.com/uptrace/bun"
)

const stopTimeout = 30 * time.Second

// Module represents the replays module.
type Module struct {
	ReplayService replayservice.Service
	Scheduler     *replayscheduler.Scheduler
	events        *replayevents.Publisher
	db            *bun.DB
	cancelFunc    context.CancelFunc
	observability observability.Observability
}

// NewReplaysModule creates and initializes the replays module. The scheduler is
// only built when withScheduler is set and the database is postgres.
func NewReplaysModule(
	ctx context.Context,
	cfg *config.Config,
	obs observability.Observability,
	db *bun.DB,
	withScheduler bool,
) (*Module, error) {
	logger := obs.Logger.With(attr.String("module", "replays"))
	logger.InfoContext(ctx, "replays.NewReplaysModule initializing")

	// 1. League layout
	league, err := config.NewLeague(cfg.League)
	if err != nil {
		return nil, fmt.Errorf("invalid league configuration: %w", err)
	}

	// 2. Metrics
	metrics := replaymetrics.NewPrometheus(obs.Registry, "rlis")

	// 3. Repositories
	repos := replayservice.Repositories{
		Series:  replaydb.NewSeriesRepository(db),
		Players: replaydb.NewPlayerRepository(db),
		Stats:   replaydb.NewStatsRepository(db),
		Queue:   replaydb.NewQueueRepository(db),
	}

	// 4. Replay archive client
	source := ballchasing.NewClient(ballchasing.ClientConfig{
		BaseURL: cfg.Ballchasing.BaseURL,
		APIKey:  cfg.Ballchasing.APIKey,
		Timeout: cfg.Ballchasing.Timeout,
		Logger:  logger,
		Metrics: metrics,
	})

	// 5. Event publisher
	msgPublisher, err := replayevents.NewMessagePublisher(cfg.NATS, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create event publisher: %w", err)
	}
	events := replayevents.NewPublisher(msgPublisher, logger)

	// 6. Service
	service := replayservice.NewReplayService(repos, source, events, league, logger, metrics, obs.Tracer, db, replayservice.Options{
		RequestDelay:        cfg.Ballchasing.RequestDelay,
		ClaimLease:          cfg.Reconcile.ClaimLease,
		RejectInferredSides: cfg.Reconcile.RejectInferredSides,
		ReplayURL:           cfg.Ballchasing.ReplayURL,
	})

	m := &Module{
		ReplayService: service,
		events:        events,
		db:            db,
		observability: obs,
	}

	// 7. Scheduler
	if !withScheduler {
		return m, nil
	}
	if !isPostgres(cfg.Database.Driver) {
		logger.WarnContext(ctx, "Scheduler needs postgres, periodic jobs disabled", attr.String("driver", cfg.Database.Driver))
		return m, nil
	}
	scheduler, err := replayscheduler.NewScheduler(ctx, cfg.Database.DSN, service, replayscheduler.Config{
		ReconcileEnabled:  cfg.Reconcile.Enabled,
		ReconcileInterval: cfg.Reconcile.Interval,
		RateLimitPause:    cfg.Reconcile.RateLimitPause,
		PublishEnabled:    cfg.Publish.Enabled,
		PublishInterval:   cfg.Publish.Interval,
	}, logger, metrics)
	if err != nil {
		events.Close()
		return nil, fmt.Errorf("failed to create replay scheduler: %w", err)
	}
	m.Scheduler = scheduler
	return m, nil
}

func isPostgres(driver string) bool {
	driver = strings.ToLower(strings.TrimSpace(driver))
	return driver == "" || driver == bundb.DriverPostgres
}

// Run starts the scheduler, if any, and blocks until ctx is done.
func (m *Module) Run(ctx context.Context, wg *sync.WaitGroup) {
	logger := m.observability.Logger
	logger.InfoContext(ctx, "Starting replays module")

	ctx, cancel := context.WithCancel(ctx)
	m.cancelFunc = cancel
	defer cancel()

	if wg != nil {
		defer wg.Done()
	}

	if m.Scheduler != nil {
		if err := m.Scheduler.Start(ctx); err != nil {
			logger.ErrorContext(ctx, "Replay scheduler failed to start", attr.Error(err))
			return
		}
	}

	<-ctx.Done()
	logger.InfoContext(ctx, "Replays module goroutine stopped")
}

// HealthCheck pings the database and the scheduler's pool.
func (m *Module) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	if m.Scheduler != nil {
		return m.Scheduler.HealthCheck(ctx)
	}
	return nil
}

// Close stops the scheduler and the event publisher.
func (m *Module) Close() error {
	logger := m.observability.Logger
	logger.Info("Stopping replays module")

	if m.cancelFunc != nil {
		m.cancelFunc()
	}

	var firstErr error
	if m.Scheduler != nil {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := m.Scheduler.Stop(ctx); err != nil {
			logger.Error("Error stopping replay scheduler", attr.Error(err))
			firstErr = err
		}
	}
	if m.events != nil {
		if err := m.events.Close(); err != nil {
			logger.Error("Error closing event publisher", attr.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("error closing event publisher: %w", err)
			}
		}
	}

	logger.Info("Replays module stopped")
	return firstErr
}
