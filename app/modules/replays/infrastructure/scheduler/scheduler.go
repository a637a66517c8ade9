package replayscheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	replayservice "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/application"
	"github.com/samfeast/RLI-RLIS-v2/internal/observability/attr"
	replaymetrics "github.com/samfeast/RLI-RLIS-v2/internal/observability/metrics/replays"
)

const componentName = "river"

// Config controls which periodic jobs run and how often.
type Config struct {
	ReconcileEnabled  bool
	ReconcileInterval time.Duration
	RateLimitPause    time.Duration
	PublishEnabled    bool
	PublishInterval   time.Duration
}

// Scheduler drives the engine from river periodic jobs on a single worker, so
// at most one run or publication is in flight.
type Scheduler struct {
	client  *river.Client[pgx.Tx]
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics replaymetrics.ReplayMetrics
}

// NewScheduler opens a pgx pool on dsn and builds the river client. river needs
// postgres; the sqlite backend has no scheduler.
func NewScheduler(ctx context.Context, dsn string, service replayservice.Service, cfg Config, logger *slog.Logger, metrics replaymetrics.ReplayMetrics) (*Scheduler, error) {
	ctxLogger := logger.With(
		attr.String("operation", "new_replay_scheduler"),
		attr.String("component", "river_queue"),
	)
	metrics.RecordOperationAttempt(ctx, "initialize_scheduler", componentName)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		metrics.RecordOperationFailure(ctx, "initialize_scheduler", componentName)
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		metrics.RecordOperationFailure(ctx, "initialize_scheduler", componentName)
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		ctxLogger.Error("Failed to ping database for River", attr.Error(err))
		metrics.RecordOperationFailure(ctx, "initialize_scheduler", componentName)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	client, err := newRiverClient(pool, service, cfg, ctxLogger)
	if err != nil {
		pool.Close()
		metrics.RecordOperationFailure(ctx, "initialize_scheduler", componentName)
		return nil, err
	}

	metrics.RecordOperationSuccess(ctx, "initialize_scheduler", componentName)
	ctxLogger.Info("Replay scheduler initialized",
		attr.Bool("reconcile", cfg.ReconcileEnabled),
		attr.Duration("reconcile_interval", cfg.ReconcileInterval),
		attr.Bool("publish", cfg.PublishEnabled),
		attr.Duration("publish_interval", cfg.PublishInterval),
	)
	return &Scheduler{client: client, pool: pool, logger: ctxLogger, metrics: metrics}, nil
}

func newRiverClient(pool *pgxpool.Pool, service replayservice.Service, cfg Config, logger *slog.Logger) (*river.Client[pgx.Tx], error) {
	workers := river.NewWorkers()
	river.AddWorker(workers, NewReconcileWorker(service, logger, cfg.RateLimitPause))
	river.AddWorker(workers, NewPublishWorker(service, logger))

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Logger: logger,
		Queues: map[string]river.QueueConfig{
			QueueReplays: {MaxWorkers: 1},
		},
		Workers:      workers,
		PeriodicJobs: PeriodicJobs(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}
	return client, nil
}

// PeriodicJobs returns the enabled ticks. Both run once at start-up.
func PeriodicJobs(cfg Config) []*river.PeriodicJob {
	var jobs []*river.PeriodicJob
	if cfg.ReconcileEnabled && cfg.ReconcileInterval > 0 {
		jobs = append(jobs, river.NewPeriodicJob(
			river.PeriodicInterval(cfg.ReconcileInterval),
			func() (river.JobArgs, *river.InsertOpts) { return ReconcileArgs{}, nil },
			&river.PeriodicJobOpts{RunOnStart: true},
		))
	}
	if cfg.PublishEnabled && cfg.PublishInterval > 0 {
		jobs = append(jobs, river.NewPeriodicJob(
			river.PeriodicInterval(cfg.PublishInterval),
			func() (river.JobArgs, *river.InsertOpts) { return PublishArgs{}, nil },
			&river.PeriodicJobOpts{RunOnStart: true},
		))
	}
	return jobs
}

func (s *Scheduler) Start(ctx context.Context) error {
	start := time.Now()
	s.metrics.RecordOperationAttempt(ctx, "start_scheduler", componentName)
	if err := s.client.Start(ctx); err != nil {
		s.logger.Error("Failed to start River client", attr.Error(err))
		s.metrics.RecordOperationFailure(ctx, "start_scheduler", componentName)
		return fmt.Errorf("failed to start River client: %w", err)
	}
	s.metrics.RecordOperationSuccess(ctx, "start_scheduler", componentName)
	s.metrics.RecordOperationDuration(ctx, "start_scheduler", componentName, time.Since(start))
	s.logger.Info("Replay scheduler started")
	return nil
}

// Stop waits for the running job to finish, then closes the pool.
func (s *Scheduler) Stop(ctx context.Context) error {
	defer s.pool.Close()
	if err := s.client.Stop(ctx); err != nil {
		s.logger.Error("Failed to stop River client", attr.Error(err))
		return fmt.Errorf("failed to stop River client: %w", err)
	}
	s.logger.Info("Replay scheduler stopped")
	return nil
}

// HealthCheck verifies the scheduler's database connection.
func (s *Scheduler) HealthCheck(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("river client is nil")
	}
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("scheduler health check failed: %w", err)
	}
	return nil
}
