package replayscheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/riverqueue/river"
	replayservice "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/application"
	replaytypes "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/domain/types"
	"github.com/samfeast/RLI-RLIS-v2/internal/observability/attr"
)

// QueueReplays runs reconciliation and publication one job at a time.
const QueueReplays = "replays"

// ReconcileArgs triggers one reconciliation run against the work queue.
type ReconcileArgs struct{}

func (ReconcileArgs) Kind() string { return "replays_reconcile" }

func (ReconcileArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: QueueReplays, MaxAttempts: 1}
}

// PublishArgs triggers publication of the next reconciled series.
type PublishArgs struct{}

func (PublishArgs) Kind() string { return "replays_publish" }

func (PublishArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: QueueReplays, MaxAttempts: 1}
}

// backoff remembers when the archive last asked us to slow down.
type backoff struct {
	mu    sync.Mutex
	until time.Time
}

func (b *backoff) active(now time.Time) (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.until, now.Before(b.until)
}

func (b *backoff) extend(until time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if until.After(b.until) {
		b.until = until
	}
}

// ReconcileWorker processes the highest-priority queued job on each tick. After
// a rate limit it skips ticks until the pause is over.
type ReconcileWorker struct {
	river.WorkerDefaults[ReconcileArgs]

	service replayservice.Service
	logger  *slog.Logger
	pause   time.Duration
	backoff *backoff
	now     func() time.Time
}

func NewReconcileWorker(service replayservice.Service, logger *slog.Logger, pause time.Duration) *ReconcileWorker {
	return &ReconcileWorker{
		service: service,
		logger:  logger.With(attr.String("worker", ReconcileArgs{}.Kind())),
		pause:   pause,
		backoff: &backoff{},
		now:     time.Now,
	}
}

func (w *ReconcileWorker) Work(ctx context.Context, _ *river.Job[ReconcileArgs]) error {
	now := w.now()
	if until, paused := w.backoff.active(now); paused {
		w.logger.DebugContext(ctx, "Skipping reconcile tick while rate limited", attr.Time("until", until))
		return nil
	}

	report, err := w.service.ReconcileNext(ctx)
	if err != nil {
		return fmt.Errorf("reconcile run failed: %w", err)
	}
	if report == nil {
		return nil
	}

	if report.Outcome == replaytypes.OutcomeRateLimited {
		wait := max(report.RetryAfter, w.pause)
		w.backoff.extend(now.Add(wait))
		w.logger.WarnContext(ctx, "Pausing reconciliation after rate limit",
			attr.GameID(report.GameID),
			attr.Duration("pause", wait),
		)
	}
	return nil
}

// PublishWorker announces at most one reconciled series per tick.
type PublishWorker struct {
	river.WorkerDefaults[PublishArgs]

	service replayservice.Service
	logger  *slog.Logger
}

func NewPublishWorker(service replayservice.Service, logger *slog.Logger) *PublishWorker {
	return &PublishWorker{
		service: service,
		logger:  logger.With(attr.String("worker", PublishArgs{}.Kind())),
	}
}

func (w *PublishWorker) Work(ctx context.Context, _ *river.Job[PublishArgs]) error {
	summary, err := w.service.PublishNext(ctx)
	if err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	if summary != nil {
		w.logger.InfoContext(ctx, "Series published",
			attr.GameID(summary.GameID),
			attr.String("completeness", string(summary.Completeness)),
			attr.Int("found", summary.Found),
			attr.Int("expected", summary.Expected),
		)
	}
	return nil
}
