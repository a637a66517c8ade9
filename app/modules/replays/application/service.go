package replayservice

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	replaytypes "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/domain/types"
	replaydb "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/infrastructure/repositories"
	"github.com/samfeast/RLI-RLIS-v2/config"
	"github.com/samfeast/RLI-RLIS-v2/internal/observability/attr"
	replaymetrics "github.com/samfeast/RLI-RLIS-v2/internal/observability/metrics/replays"
	"github.com/samfeast/RLI-RLIS-v2/pkg/results"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	serviceName = "ReplayService"

	// DefaultReplayURL is the public page of a replay, suffixed with its id.
	DefaultReplayURL = "https://ballchasing.com/replay"
	// DefaultClaimLease is how long a dequeued job stays claimed.
	DefaultClaimLease = 30 * time.Minute
)

// Repositories groups the stores the engine reads and writes.
type Repositories struct {
	Series  replaydb.SeriesRepository
	Players replaydb.PlayerRepository
	Stats   replaydb.StatsRepository
	Queue   replaydb.QueueRepository
}

// Options tunes the engine.
type Options struct {
	// RequestDelay is the minimum gap between two replay fetches.
	RequestDelay time.Duration
	ClaimLease   time.Duration
	// RejectInferredSides treats games whose sides match neither roster as
	// ambiguous instead of storing them with inferred orgs.
	RejectInferredSides bool
	ReplayURL           string
}

// ReplayService implements the Service interface.
type ReplayService struct {
	repos   Repositories
	source  ReplaySource
	events  EventPublisher
	league  *config.League
	logger  *slog.Logger
	metrics replaymetrics.ReplayMetrics
	tracer  trace.Tracer
	db      *bun.DB
	opts    Options
	pacer   *rate.Limiter

	now      func() time.Time
	newRunID func() string
}

var _ Service = (*ReplayService)(nil)

// NewReplayService creates a new ReplayService. events may be nil.
func NewReplayService(
	repos Repositories,
	source ReplaySource,
	events EventPublisher,
	league *config.League,
	logger *slog.Logger,
	metrics replaymetrics.ReplayMetrics,
	tracer trace.Tracer,
	db *bun.DB,
	opts Options,
) *ReplayService {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = replaymetrics.NewNoop()
	}
	if opts.ClaimLease <= 0 {
		opts.ClaimLease = DefaultClaimLease
	}
	if opts.ReplayURL == "" {
		opts.ReplayURL = DefaultReplayURL
	}
	limit := rate.Inf
	if opts.RequestDelay > 0 {
		limit = rate.Every(opts.RequestDelay)
	}
	return &ReplayService{
		repos:    repos,
		source:   source,
		events:   events,
		league:   league,
		logger:   logger,
		metrics:  metrics,
		tracer:   tracer,
		db:       db,
		opts:     opts,
		pacer:    rate.NewLimiter(limit, 1),
		now:      func() time.Time { return time.Now().UTC() },
		newRunID: uuid.NewString,
	}
}

// ReconcileNext claims and processes the highest-priority job.
func (s *ReplayService) ReconcileNext(ctx context.Context) (*replaytypes.RunReport, error) {
	result, err := withTelemetry(s, ctx, "ReconcileNext", "queue", func(ctx context.Context) (results.OperationResult[*replaytypes.RunReport, error], error) {
		job, err := s.repos.Queue.Dequeue(ctx, nil, s.now(), s.opts.ClaimLease)
		if err != nil {
			if errors.Is(err, replaydb.ErrQueueEmpty) {
				report := replaytypes.NewRunReport("", replaytypes.Job{}, s.now())
				report.Outcome = replaytypes.OutcomeQueueEmpty
				report.FinishedAt = report.StartedAt
				return results.SuccessResult[*replaytypes.RunReport, error](report), nil
			}
			return results.OperationResult[*replaytypes.RunReport, error]{}, fmt.Errorf("failed to dequeue job: %w", err)
		}
		report, err := s.reconcile(ctx, job)
		return results.SuccessResult[*replaytypes.RunReport, error](report), err
	})
	return successOf(result), err
}

// ReconcileJob processes job directly. A job with a queue priority is
// acknowledged at the end like a dequeued one.
func (s *ReplayService) ReconcileJob(ctx context.Context, job replaytypes.Job) (*replaytypes.RunReport, error) {
	result, err := withTelemetry(s, ctx, "ReconcileJob", strconv.FormatInt(job.GameID, 10), func(ctx context.Context) (results.OperationResult[*replaytypes.RunReport, error], error) {
		report, err := s.reconcile(ctx, job)
		return results.SuccessResult[*replaytypes.RunReport, error](report), err
	})
	return successOf(result), err
}

func (s *ReplayService) reconcile(ctx context.Context, job replaytypes.Job) (*replaytypes.RunReport, error) {
	report := replaytypes.NewRunReport(s.newRunID(), job, s.now())
	logger := s.logger.With(
		attr.String("run_id", report.RunID),
		attr.GameID(job.GameID),
		attr.Int64("priority", job.Priority),
		attr.String("source", string(report.Source)),
	)

	series, err := s.process(ctx, logger, job, report)
	if ferr := s.finishRun(context.WithoutCancel(ctx), logger, job, series, report); ferr != nil {
		err = errors.Join(err, ferr)
	}
	return report, err
}

// process runs the candidate pipeline. It returns the series whenever it was
// loaded so the run can be closed out against it.
func (s *ReplayService) process(ctx context.Context, logger *slog.Logger, job replaytypes.Job, report *replaytypes.RunReport) (*replaytypes.Series, error) {
	series, err := s.repos.Series.GetSeries(ctx, nil, job.GameID)
	if err != nil {
		if errors.Is(err, replaydb.ErrNotFound) {
			report.Abort(replaytypes.OutcomeSeriesNotFound, fmt.Errorf("%w: %d", ErrSeriesNotFound, job.GameID))
			return nil, nil
		}
		report.Abort(replaytypes.OutcomeStoreError, err)
		return nil, fmt.Errorf("failed to load series: %w", err)
	}

	gamesToWin, err := s.league.GamesToWin(series.Mode)
	if err != nil {
		report.Abort(replaytypes.OutcomeInvalidJob, err)
		return series, nil
	}
	limit := newCapEnforcer(gamesToWin, series.GamesWonByLoser)
	report.MaxGames = limit.max
	filter := newCandidateFilter(series.ExistingGUIDs, series.ExpectedParticipants())

	rosters, keys, err := s.resolveRosters(ctx, series)
	if err != nil {
		report.Abort(replaytypes.OutcomeStoreError, err)
		return series, err
	}

	candidates, err := s.listCandidates(ctx, logger, job, series, keys, report)
	if err != nil || report.Outcome != replaytypes.OutcomeCompleted {
		return series, err
	}
	report.Candidates = len(candidates)

	for _, c := range candidates {
		if err := s.pacer.Wait(ctx); err != nil {
			report.Abort(replaytypes.OutcomeTransportError, err)
			return series, err
		}
		replay, err := s.source.Get(ctx, c.ID)
		if err != nil {
			return series, s.sourceFailure(report, err)
		}
		if replay.ID == "" {
			replay.ID = c.ID
		}

		stop, err := s.processCandidate(ctx, logger, job, series, rosters, filter, limit, replay, report)
		if err != nil || stop {
			return series, err
		}
	}
	return series, nil
}

func (s *ReplayService) listCandidates(
	ctx context.Context,
	logger *slog.Logger,
	job replaytypes.Job,
	series *replaytypes.Series,
	keys []replaytypes.PlatformKey,
	report *replaytypes.RunReport,
) ([]replaytypes.CandidateSummary, error) {
	if job.Source() == replaytypes.SourceReplay {
		return []replaytypes.CandidateSummary{{ID: *job.ReplayID}}, nil
	}

	window, err := ResolveWindow(job, series)
	if err != nil {
		report.Abort(replaytypes.OutcomeInvalidJob, err)
		return nil, nil
	}
	report.Window = &window

	if len(keys) == 0 {
		report.Abort(replaytypes.OutcomeInvalidJob, fmt.Errorf("%w: %w", replaytypes.ErrValidation, ErrNoIdentities))
		return nil, nil
	}

	found, err := s.source.Filter(ctx, window, keys)
	if err != nil {
		return nil, s.sourceFailure(report, err)
	}
	logger.InfoContext(ctx, "Replay filter returned candidates",
		attr.String("window", window.String()),
		attr.Int("count", found.Count),
		attr.Int("listed", len(found.List)),
	)
	return found.List, nil
}

// processCandidate runs one fetched replay through admission, the cap, winner
// resolution and storage. stop is true when the rest of the run must be skipped.
func (s *ReplayService) processCandidate(
	ctx context.Context,
	logger *slog.Logger,
	job replaytypes.Job,
	series *replaytypes.Series,
	rosters replaytypes.Rosters,
	filter *candidateFilter,
	limit capEnforcer,
	replay replaytypes.Replay,
	report *replaytypes.RunReport,
) (stop bool, err error) {
	if replay.IsEmpty() {
		s.reject(ctx, logger, report, replay.ID, fmt.Errorf("%w: %s", replaytypes.ErrReplayNotFound, replay.ID))
		return false, nil
	}

	p := newPayload(replay.Raw)
	guid, playedAt, err := filter.admit(p)
	if err != nil {
		s.reject(ctx, logger, report, replay.ID, err)
		return false, nil
	}

	if err := limit.allow(filter.size()); err != nil {
		filter.release(guid)
		s.reject(ctx, logger, report, replay.ID, err)
		report.Abort(replaytypes.OutcomeCapExceeded, err)
		logger.ErrorContext(ctx, "Replay cap exceeded, skipping remaining candidates",
			attr.String("guid", guid),
			attr.Int("max_games", limit.max),
		)
		return true, nil
	}

	res, err := s.resolveSides(replay, job, series, rosters)
	if err != nil {
		filter.release(guid)
		s.reject(ctx, logger, report, replay.ID, err)
		return false, nil
	}
	if res.Confidence == replaytypes.ConfidenceInferred {
		report.Inferred = append(report.Inferred, guid)
		logger.WarnContext(ctx, "Replay sides match neither roster, storing inferred orgs",
			attr.String("guid", guid),
			attr.String("winning_org", res.WinningOrg),
		)
	}

	resolved, err := s.resolveParticipants(ctx, logger, p, job, report)
	if err != nil {
		filter.release(guid)
		report.Abort(replaytypes.OutcomeStoreError, err)
		return true, err
	}

	game := NormalizeGame(replay, guid, playedAt, series.GameID, res, s.opts.ReplayURL)
	players := NormalizePlayers(replay, guid, series.GameID, resolved)

	_, err = runInTx(s, ctx, func(ctx context.Context, db bun.IDB) (results.OperationResult[replaytypes.GameStat, error], error) {
		if err := s.repos.Stats.InsertGame(ctx, db, game, players); err != nil {
			return results.OperationResult[replaytypes.GameStat, error]{}, err
		}
		return results.SuccessResult[replaytypes.GameStat, error](game), nil
	})
	if err != nil {
		filter.release(guid)
		report.Abort(replaytypes.OutcomeStoreError, err)
		return true, fmt.Errorf("failed to store replay %s: %w", guid, err)
	}

	report.Accepted = append(report.Accepted, guid)
	s.metrics.RecordCandidate(ctx, "accepted")
	logger.InfoContext(ctx, "Stored replay stats",
		attr.String("guid", guid),
		attr.ReplayID(replay.ID),
		attr.String("confidence", string(res.Confidence)),
		attr.Int("players", len(players)),
	)
	return false, nil
}

func (s *ReplayService) resolveSides(replay replaytypes.Replay, job replaytypes.Job, series *replaytypes.Series, rosters replaytypes.Rosters) (replaytypes.Resolution, error) {
	if job.HasOverride() {
		return overrideResolution(replay, job), nil
	}
	res, err := ResolveWinner(replay, series, rosters)
	if err != nil {
		return res, err
	}
	if res.Confidence == replaytypes.ConfidenceInferred && s.opts.RejectInferredSides {
		return res, fmt.Errorf("%w: sides match neither registered roster", replaytypes.ErrAmbiguousResult)
	}
	return res, nil
}

// resolveRosters looks up the registered identities of both rosters. keys is
// every identity found, used to filter the archive.
func (s *ReplayService) resolveRosters(ctx context.Context, series *replaytypes.Series) (replaytypes.Rosters, []replaytypes.PlatformKey, error) {
	identities, err := s.repos.Players.FindByNames(ctx, nil, series.PlayerNames())
	if err != nil {
		return replaytypes.Rosters{}, nil, fmt.Errorf("failed to load roster identities: %w", err)
	}
	byName := make(map[string]replaytypes.PlatformKey, len(identities))
	for _, id := range identities {
		byName[id.Name] = id.Key()
	}

	rosters := replaytypes.Rosters{
		Winning: replaytypes.NewIdentitySet(),
		Losing:  replaytypes.NewIdentitySet(),
	}
	all := replaytypes.NewIdentitySet()
	for _, name := range series.WinningPlayers {
		if k, ok := byName[name]; ok {
			rosters.Winning.Add(k)
			all.Add(k)
		}
	}
	for _, name := range series.LosingPlayers {
		if k, ok := byName[name]; ok {
			rosters.Losing.Add(k)
			all.Add(k)
		}
	}
	return rosters, all.Sorted(), nil
}

// resolveParticipants names every archive participant it can. Unknown accounts
// and repeated names are dropped; the rest of the game is still stored.
func (s *ReplayService) resolveParticipants(ctx context.Context, logger *slog.Logger, p payload, job replaytypes.Job, report *replaytypes.RunReport) ([]resolvedParticipant, error) {
	participants := p.allParticipants()
	out := make([]resolvedParticipant, 0, len(participants))
	seen := make(map[string]struct{}, len(participants))

	for _, pt := range participants {
		name, err := s.participantName(ctx, pt, job)
		if err == nil {
			if _, dup := seen[name]; dup {
				err = fmt.Errorf("%w: %s already resolved in this game", replaytypes.ErrUnknownParticipant, name)
			}
		}
		if err != nil {
			if !errors.Is(err, replaytypes.ErrUnknownParticipant) {
				return nil, err
			}
			report.DroppedParticipants++
			s.metrics.RecordDroppedParticipant(ctx)
			logger.WarnContext(ctx, "Dropping participant stats",
				attr.String("participant", pt.name),
				attr.String("platform_key", pt.key.String()),
				attr.Error(err),
			)
			continue
		}
		seen[name] = struct{}{}
		out = append(out, resolvedParticipant{participant: pt, name: name})
	}
	return out, nil
}

func (s *ReplayService) participantName(ctx context.Context, pt participant, job replaytypes.Job) (string, error) {
	if pt.key.Valid() {
		identity, err := s.repos.Players.FindByPlatform(ctx, nil, pt.key)
		if err == nil {
			return identity.Name, nil
		}
		if !errors.Is(err, replaydb.ErrNotFound) {
			return "", fmt.Errorf("failed to look up player %s: %w", pt.key, err)
		}
		if job.AltPlayer != nil && job.AltPlayer.Key() == pt.key {
			return job.AltPlayer.Name, nil
		}
	}
	return "", fmt.Errorf("%w: %s (%s)", replaytypes.ErrUnknownParticipant, pt.key, pt.name)
}

// sourceFailure records an archive error on the report. A rate limit or a bad
// response ends the job without being an engine error; a cancelled context is
// passed back up.
func (s *ReplayService) sourceFailure(report *replaytypes.RunReport, err error) error {
	var limited *replaytypes.RateLimitedError
	switch {
	case errors.As(err, &limited):
		report.Abort(replaytypes.OutcomeRateLimited, err)
		report.RetryAfter = limited.RetryAfter
		return nil
	case errors.Is(err, replaytypes.ErrRateLimited):
		report.Abort(replaytypes.OutcomeRateLimited, err)
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		report.Abort(replaytypes.OutcomeTransportError, err)
		return err
	default:
		report.Abort(replaytypes.OutcomeTransportError, err)
		return nil
	}
}

func (s *ReplayService) reject(ctx context.Context, logger *slog.Logger, report *replaytypes.RunReport, replayID string, err error) {
	reason := rejectReason(err)
	report.Reject(reason)
	s.metrics.RecordCandidate(ctx, string(reason))

	level := slog.LevelWarn
	if reason == replaytypes.RejectDuplicate {
		level = slog.LevelInfo
	}
	logger.Log(ctx, level, "Candidate rejected",
		attr.ReplayID(replayID),
		attr.String("reason", string(reason)),
		attr.Error(err),
	)
}

// finishRun refreshes the series counters and acknowledges the job regardless
// of how the run ended.
func (s *ReplayService) finishRun(ctx context.Context, logger *slog.Logger, job replaytypes.Job, series *replaytypes.Series, report *replaytypes.RunReport) error {
	var errs []error

	if series != nil {
		count, changed, err := s.repos.Series.RecomputeReplayCount(ctx, nil, series.GameID)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to recompute replay count: %w", err))
		} else {
			report.ReplaysStored = count
			if changed {
				logger.InfoContext(ctx, "Series replay count updated", attr.Int("replays_stored", count))
			}
		}
	}

	if job.Priority > 0 {
		if err := s.repos.Queue.Ack(ctx, nil, job.Priority); err != nil {
			errs = append(errs, fmt.Errorf("failed to ack job %d: %w", job.Priority, err))
		}
		if depth, err := s.repos.Queue.Count(ctx, nil); err == nil {
			s.metrics.RecordQueueDepth(ctx, depth)
		}
	}

	report.FinishedAt = s.now()
	s.metrics.RecordRunOutcome(ctx, string(report.Outcome))

	fields := []any{
		attr.String("outcome", string(report.Outcome)),
		attr.Int("candidates", report.Candidates),
		attr.Int("accepted", len(report.Accepted)),
		attr.Any("rejected", report.Rejected),
		attr.Int("dropped_participants", report.DroppedParticipants),
		attr.Int("replays_stored", report.ReplaysStored),
	}
	switch report.Outcome {
	case replaytypes.OutcomeCompleted:
		logger.InfoContext(ctx, "Reconciliation run finished", fields...)
	case replaytypes.OutcomeRateLimited:
		logger.WarnContext(ctx, "Reconciliation run stopped by rate limit", append(fields, attr.Duration("retry_after", report.RetryAfter))...)
	default:
		logger.ErrorContext(ctx, "Reconciliation run aborted", append(fields, attr.String("error", report.Error))...)
	}

	if s.events != nil {
		if err := s.events.PublishRunReport(ctx, report); err != nil {
			logger.WarnContext(ctx, "Failed to publish run report", attr.Error(err))
		}
	}
	return errors.Join(errs...)
}

func successOf[S any](r results.OperationResult[S, error]) S {
	var zero S
	if r.Success == nil {
		return zero
	}
	return *r.Success
}

// operationFunc is the signature of a wrapped service operation.
type operationFunc[S any, F any] func(ctx context.Context) (results.OperationResult[S, F], error)

// withTelemetry wraps an operation with a span, operation metrics, logging and
// panic recovery.
func withTelemetry[S any, F any](
	s *ReplayService,
	ctx context.Context,
	operationName string,
	identifier string,
	op operationFunc[S, F],
) (result results.OperationResult[S, F], err error) {
	var span trace.Span
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, operationName, trace.WithAttributes(
			attribute.String("operation", operationName),
			attribute.String("identifier", identifier),
		))
	} else {
		span = trace.SpanFromContext(ctx)
	}
	defer span.End()

	s.metrics.RecordOperationAttempt(ctx, operationName, serviceName)

	startTime := time.Now()
	defer func() {
		s.metrics.RecordOperationDuration(ctx, operationName, serviceName, time.Since(startTime))
	}()

	s.logger.InfoContext(ctx, "Operation triggered", attr.ExtractCorrelationID(ctx), attr.String("operation", operationName))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", operationName, r)
			s.logger.ErrorContext(ctx, "Critical panic recovered",
				attr.ExtractCorrelationID(ctx),
				attr.String("identifier", identifier),
				attr.Error(err),
			)
			s.metrics.RecordOperationFailure(ctx, operationName, serviceName)
			span.RecordError(err)
			result = results.OperationResult[S, F]{}
		}
	}()

	result, err = op(ctx)

	if err != nil {
		wrappedErr := fmt.Errorf("%s: %w", operationName, err)
		s.logger.ErrorContext(ctx, "Operation failed with error",
			attr.ExtractCorrelationID(ctx),
			attr.String("operation", operationName),
			attr.String("identifier", identifier),
			attr.Error(wrappedErr),
		)
		s.metrics.RecordOperationFailure(ctx, operationName, serviceName)
		span.RecordError(wrappedErr)
		return result, wrappedErr
	}

	if result.IsFailure() {
		s.logger.WarnContext(ctx, "Operation returned failure result",
			attr.ExtractCorrelationID(ctx),
			attr.String("operation", operationName),
			attr.String("identifier", identifier),
			attr.Any("failure_payload", *result.Failure),
		)
	} else {
		s.logger.InfoContext(ctx, "Operation completed successfully",
			attr.ExtractCorrelationID(ctx),
			attr.String("operation", operationName),
			attr.String("identifier", identifier),
		)
	}

	s.metrics.RecordOperationSuccess(ctx, operationName, serviceName)
	return result, nil
}

// runInTx runs fn in a transaction, or directly against the repositories'
// own connection when the service has no database handle.
func runInTx[S any, F any](
	s *ReplayService,
	ctx context.Context,
	fn func(ctx context.Context, db bun.IDB) (results.OperationResult[S, F], error),
) (results.OperationResult[S, F], error) {
	if s.db == nil {
		return fn(ctx, nil)
	}

	var result results.OperationResult[S, F]
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var txErr error
		result, txErr = fn(ctx, tx)
		return txErr
	})
	return result, err
}
