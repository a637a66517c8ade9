package replayservice

import (
	"context"
	"errors"
	"testing"
	"time"

	replaytypes "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/domain/types"
	replaydb "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/infrastructure/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func queuedJob(priority int64) replaytypes.Job {
	return replaytypes.Job{Priority: priority, GameID: 7413}
}

func TestReconcileNext_StoresMatchingReplays(t *testing.T) {
	env := newTestEnv(t, Options{}, newTestSeries())
	env.queue.Jobs = []replaytypes.Job{queuedJob(1), queuedJob(2)}
	env.source.Add("r1", winFor(apexRoster, borealisRoster, "r1", "g1").raw())
	env.source.Add("r2", winFor(borealisRoster, apexRoster, "r2", "g2").raw())

	report, err := env.svc.ReconcileNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, replaytypes.OutcomeCompleted, report.Outcome)
	assert.Equal(t, int64(2), report.JobPriority, "highest priority runs first")
	assert.Equal(t, []string{"g1", "g2"}, report.Accepted)
	assert.Equal(t, 2, report.Candidates)
	assert.Equal(t, 5, report.MaxGames)
	assert.Equal(t, 2, report.ReplaysStored)
	require.NotNil(t, report.Window)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), report.Window.Start)

	assert.Equal(t, 1, env.source.FilterCalls)
	assert.Len(t, env.source.FilterPlayers, 6)

	require.Len(t, env.stats.Games, 2)
	assert.Equal(t, "Apex", env.stats.Games[0].WinningOrg)
	assert.Equal(t, replaytypes.ConfidenceMatched, env.stats.Games[0].WinnerConfidence)
	assert.Equal(t, "Borealis", env.stats.Games[1].WinningOrg)
	assert.Equal(t, replaytypes.ConfidenceReversed, env.stats.Games[1].WinnerConfidence)
	assert.Len(t, env.stats.Players, 12)

	assert.Equal(t, []int64{2}, env.queue.Acked)
	assert.Len(t, env.queue.Jobs, 1)
	require.Len(t, env.events.Reports, 1)
	assert.Equal(t, "run-1", env.events.Reports[0].RunID)
}

func TestReconcileNext_EmptyQueue(t *testing.T) {
	env := newTestEnv(t, Options{}, newTestSeries())

	report, err := env.svc.ReconcileNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, replaytypes.OutcomeQueueEmpty, report.Outcome)
	assert.Zero(t, env.source.FilterCalls)
	assert.Empty(t, env.queue.Acked)
	assert.Empty(t, env.events.Reports)
}

func TestReconcile_RepeatedCandidateStoredOnce(t *testing.T) {
	env := newTestEnv(t, Options{}, newTestSeries())
	env.queue.Jobs = []replaytypes.Job{queuedJob(1)}
	env.source.Add("r1", winFor(apexRoster, borealisRoster, "r1", "g1").raw())
	env.source.List("r1")
	env.source.Add("r1-copy", winFor(apexRoster, borealisRoster, "r1-copy", "g1").raw())

	report, err := env.svc.ReconcileNext(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"g1"}, env.stats.guids())
	assert.Equal(t, 2, report.Rejected[replaytypes.RejectDuplicate])
	assert.Equal(t, 1, report.ReplaysStored)
}

func TestReconcile_AlreadyStoredGUIDIsSkipped(t *testing.T) {
	env := newTestEnv(t, Options{}, newTestSeries("g1"))
	env.queue.Jobs = []replaytypes.Job{queuedJob(1)}
	env.source.Add("r1", winFor(apexRoster, borealisRoster, "r1", "g1").raw())

	report, err := env.svc.ReconcileNext(context.Background())
	require.NoError(t, err)
	assert.Empty(t, env.stats.Games)
	assert.Equal(t, 1, report.Rejected[replaytypes.RejectDuplicate])
}

func TestReconcile_CapStopsTheRun(t *testing.T) {
	// Best of five with two loser wins: five games at most, four already stored.
	series := newTestSeries("s1", "s2", "s3", "s4")
	series.GamesWonByLoser = ptr(2)
	env := newTestEnv(t, Options{}, series)
	env.queue.Jobs = []replaytypes.Job{queuedJob(1)}
	env.source.Add("r1", winFor(apexRoster, borealisRoster, "r1", "g5").raw())
	env.source.Add("r2", winFor(apexRoster, borealisRoster, "r2", "g6").raw())
	env.source.Add("r3", winFor(apexRoster, borealisRoster, "r3", "g7").raw())

	report, err := env.svc.ReconcileNext(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, report.MaxGames)
	assert.Equal(t, replaytypes.OutcomeCapExceeded, report.Outcome)
	assert.Equal(t, []string{"g5"}, env.stats.guids())
	assert.Equal(t, 1, report.Rejected[replaytypes.RejectCapExceeded])
	assert.Equal(t, []string{"r1", "r2"}, env.source.Gets, "no candidate is fetched after the cap trips")
	assert.LessOrEqual(t, report.ReplaysStored, report.MaxGames)
	assert.Equal(t, []int64{1}, env.queue.Acked, "aborted jobs are still acknowledged")
}

func TestReconcile_InvalidCandidateDoesNotCountTowardCap(t *testing.T) {
	env := newTestEnv(t, Options{}, newTestSeries("s1", "s2", "s3", "s4"))
	env.queue.Jobs = []replaytypes.Job{queuedJob(1)}
	noGUID := winFor(apexRoster, borealisRoster, "r0", "")
	noDate := winFor(apexRoster, borealisRoster, "r1", "g-nodate")
	noDate.Date = ""
	env.source.Add("r0", noGUID.raw())
	env.source.Add("r1", noDate.raw())
	env.source.Add("r2", winFor(apexRoster, borealisRoster, "r2", "g5").raw())

	report, err := env.svc.ReconcileNext(context.Background())
	require.NoError(t, err)

	assert.Equal(t, replaytypes.OutcomeCompleted, report.Outcome)
	assert.Equal(t, 2, report.Rejected[replaytypes.RejectInvalid])
	assert.Equal(t, []string{"g5"}, env.stats.guids())
	assert.Equal(t, 5, report.ReplaysStored)
}

func TestReconcile_UnknownParticipantDropped(t *testing.T) {
	stranger := replaytypes.PlayerIdentity{Name: "stranger", Platform: "xbox", PlatformID: "404"}
	stand := replaytypes.PlayerIdentity{Name: "standin", Platform: "epic", PlatformID: "77"}
	blue := []replaytypes.PlayerIdentity{apexRoster[0], apexRoster[1], stand}
	orange := []replaytypes.PlayerIdentity{borealisRoster[0], borealisRoster[1], stranger}

	env := newTestEnv(t, Options{}, newTestSeries())
	job := queuedJob(1)
	job.AltPlayer = &replaytypes.PlayerIdentity{Name: "Standin Steve", Platform: "Epic", PlatformID: "77"}
	env.queue.Jobs = []replaytypes.Job{job}
	env.source.Add("r1", winFor(blue, orange, "r1", "g1").raw())

	report, err := env.svc.ReconcileNext(context.Background())
	require.NoError(t, err)

	require.Len(t, env.stats.Games, 1, "the game record is still written")
	assert.Equal(t, 1, report.DroppedParticipants)

	var stored []string
	for _, p := range env.stats.Players {
		stored = append(stored, p.Name)
	}
	assert.ElementsMatch(t, []string{"ace", "bolt", "Standin Steve", "dune", "echo"}, stored)
}

func TestReconcile_AmbiguousCandidateReleasedAndRunContinues(t *testing.T) {
	env := newTestEnv(t, Options{}, newTestSeries())
	env.queue.Jobs = []replaytypes.Job{queuedJob(1)}
	tied := winFor(apexRoster, borealisRoster, "r1", "g1")
	tied.OrangeGoals = ptr(3)
	env.source.Add("r1", tied.raw())
	env.source.Add("r2", winFor(apexRoster, borealisRoster, "r2", "g2").raw())

	report, err := env.svc.ReconcileNext(context.Background())
	require.NoError(t, err)

	assert.Equal(t, replaytypes.OutcomeCompleted, report.Outcome)
	assert.Equal(t, 1, report.Rejected[replaytypes.RejectAmbiguous])
	assert.Equal(t, []string{"g2"}, env.stats.guids())
}

func TestReconcile_InferredSides(t *testing.T) {
	partial := []replaytypes.PlayerIdentity{apexRoster[0], apexRoster[1], {Name: "x", Platform: "steam", PlatformID: "900"}}

	t.Run("stored and flagged", func(t *testing.T) {
		env := newTestEnv(t, Options{}, newTestSeries())
		env.queue.Jobs = []replaytypes.Job{queuedJob(1)}
		env.source.Add("r1", winFor(partial, borealisRoster, "r1", "g1").raw())

		report, err := env.svc.ReconcileNext(context.Background())
		require.NoError(t, err)
		require.Len(t, env.stats.Games, 1)
		assert.Equal(t, replaytypes.ConfidenceInferred, env.stats.Games[0].WinnerConfidence)
		assert.Equal(t, "Borealis", env.stats.Games[0].WinningOrg)
		assert.Equal(t, []string{"g1"}, report.Inferred)
	})

	t.Run("rejected when configured", func(t *testing.T) {
		env := newTestEnv(t, Options{RejectInferredSides: true}, newTestSeries())
		env.queue.Jobs = []replaytypes.Job{queuedJob(1)}
		env.source.Add("r1", winFor(partial, borealisRoster, "r1", "g1").raw())

		report, err := env.svc.ReconcileNext(context.Background())
		require.NoError(t, err)
		assert.Empty(t, env.stats.Games)
		assert.Equal(t, 1, report.Rejected[replaytypes.RejectAmbiguous])
	})

	t.Run("override skips resolution", func(t *testing.T) {
		env := newTestEnv(t, Options{RejectInferredSides: true}, newTestSeries())
		job := queuedJob(1)
		job.WinningOrg, job.LosingOrg = ptr("Apex"), ptr("Borealis")
		env.queue.Jobs = []replaytypes.Job{job}
		env.source.Add("r1", winFor(partial, borealisRoster, "r1", "g1").raw())

		_, err := env.svc.ReconcileNext(context.Background())
		require.NoError(t, err)
		require.Len(t, env.stats.Games, 1)
		assert.Equal(t, replaytypes.ConfidenceOverride, env.stats.Games[0].WinnerConfidence)
		assert.Equal(t, "Apex", env.stats.Games[0].WinningOrg)
		assert.Equal(t, 3, *env.stats.Games[0].WinnerGoals)
	})
}

func TestReconcile_ReplayJobSkipsFilter(t *testing.T) {
	env := newTestEnv(t, Options{}, newTestSeries())
	job := queuedJob(1)
	job.ReplayID = ptr("r9")
	env.queue.Jobs = []replaytypes.Job{job}
	env.source.Replays["r9"] = winFor(apexRoster, borealisRoster, "r9", "g9").replay()

	report, err := env.svc.ReconcileNext(context.Background())
	require.NoError(t, err)
	assert.Zero(t, env.source.FilterCalls)
	assert.Equal(t, []string{"r9"}, env.source.Gets)
	assert.Equal(t, replaytypes.SourceReplay, report.Source)
	assert.Nil(t, report.Window)
	assert.Equal(t, []string{"g9"}, env.stats.guids())
}

func TestReconcile_MissingReplayIsNotFound(t *testing.T) {
	env := newTestEnv(t, Options{}, newTestSeries())
	job := queuedJob(1)
	job.ReplayID = ptr("gone")
	env.queue.Jobs = []replaytypes.Job{job}

	report, err := env.svc.ReconcileNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, replaytypes.OutcomeCompleted, report.Outcome)
	assert.Equal(t, 1, report.Rejected[replaytypes.RejectNotFound])
	assert.Equal(t, []int64{1}, env.queue.Acked)
}

func TestReconcile_WindowJobUsesExplicitBounds(t *testing.T) {
	env := newTestEnv(t, Options{}, newTestSeries())
	start := time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)
	end := start.Add(4 * time.Hour)
	job := queuedJob(1)
	job.Start, job.End = &start, &end
	env.queue.Jobs = []replaytypes.Job{job}

	report, err := env.svc.ReconcileNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, replaytypes.SourceWindow, report.Source)
	assert.Equal(t, replaytypes.Window{Start: start, End: end}, env.source.FilterWindow)
}

func TestReconcile_SourceErrors(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(*FakeSource)
		wantOutcome replaytypes.RunOutcome
		wantRetry   time.Duration
		wantGets    int
	}{
		{
			name: "rate limited on filter",
			setup: func(s *FakeSource) {
				s.FilterErr = &replaytypes.RateLimitedError{RetryAfter: time.Minute, Body: []byte(`{"error":"slow down"}`)}
			},
			wantOutcome: replaytypes.OutcomeRateLimited,
			wantRetry:   time.Minute,
		},
		{
			name: "rate limited on get stops the run",
			setup: func(s *FakeSource) {
				s.Add("r1", winFor(apexRoster, borealisRoster, "r1", "g1").raw())
				s.Add("r2", winFor(apexRoster, borealisRoster, "r2", "g2").raw())
				s.GetErrs["r1"] = &replaytypes.RateLimitedError{}
			},
			wantOutcome: replaytypes.OutcomeRateLimited,
			wantGets:    1,
		},
		{
			name: "transport error aborts the job",
			setup: func(s *FakeSource) {
				s.Add("r1", winFor(apexRoster, borealisRoster, "r1", "g1").raw())
				s.Add("r2", winFor(apexRoster, borealisRoster, "r2", "g2").raw())
				s.GetErrs["r1"] = &replaytypes.APIError{StatusCode: 500, Endpoint: "/replays/r1"}
			},
			wantOutcome: replaytypes.OutcomeTransportError,
			wantGets:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, Options{}, newTestSeries())
			env.queue.Jobs = []replaytypes.Job{queuedJob(3)}
			tt.setup(env.source)

			report, err := env.svc.ReconcileNext(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantOutcome, report.Outcome)
			assert.Equal(t, tt.wantRetry, report.RetryAfter)
			assert.Len(t, env.source.Gets, tt.wantGets)
			assert.Empty(t, env.stats.Games)
			assert.Equal(t, []int64{3}, env.queue.Acked)
			assert.NotEmpty(t, report.Error)
		})
	}
}

func TestReconcile_RequestDelayPacesGets(t *testing.T) {
	tests := []struct {
		name  string
		delay time.Duration
	}{
		{name: "no delay", delay: 0},
		{name: "40ms between gets", delay: 40 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, Options{RequestDelay: tt.delay}, newTestSeries())
			env.queue.Jobs = []replaytypes.Job{queuedJob(1)}
			env.source.Add("r1", winFor(apexRoster, borealisRoster, "r1", "g1").raw())
			env.source.Add("r2", winFor(apexRoster, borealisRoster, "r2", "g2").raw())
			env.source.Add("r3", winFor(apexRoster, borealisRoster, "r3", "g3").raw())

			start := time.Now()
			report, err := env.svc.ReconcileNext(context.Background())
			elapsed := time.Since(start)
			require.NoError(t, err)

			assert.Equal(t, replaytypes.OutcomeCompleted, report.Outcome)
			require.Len(t, env.source.Gets, 3)
			assert.GreaterOrEqual(t, elapsed, 2*tt.delay, "3 gets need at least 2 gaps")
			for i := 1; i < len(env.source.GetTimes); i++ {
				assert.False(t, env.source.GetTimes[i].Before(env.source.GetTimes[i-1]))
			}
		})
	}
}

func TestReconcile_CancelledWhilePacing(t *testing.T) {
	env := newTestEnv(t, Options{RequestDelay: time.Hour}, newTestSeries())
	env.queue.Jobs = []replaytypes.Job{queuedJob(4)}
	env.source.Add("r1", winFor(apexRoster, borealisRoster, "r1", "g1").raw())
	env.source.Add("r2", winFor(apexRoster, borealisRoster, "r2", "g2").raw())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.source.OnGet = func(string) { cancel() }

	report, err := env.svc.ReconcileNext(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, replaytypes.OutcomeTransportError, report.Outcome)
	assert.Equal(t, []string{"r1"}, env.source.Gets, "the second get never starts")
	assert.Equal(t, []int64{4}, env.queue.Acked)
}

func TestReconcile_SeriesNotFound(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.queue.Jobs = []replaytypes.Job{queuedJob(1)}

	report, err := env.svc.ReconcileNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, replaytypes.OutcomeSeriesNotFound, report.Outcome)
	assert.Equal(t, []int64{1}, env.queue.Acked)
	assert.NotContains(t, env.series.Trace(), "RecomputeReplayCount")
}

func TestReconcile_NoRegisteredPlayers(t *testing.T) {
	env := newTestEnv(t, Options{}, newTestSeries())
	env.players.Registry = nil
	env.queue.Jobs = []replaytypes.Job{queuedJob(1)}

	report, err := env.svc.ReconcileNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, replaytypes.OutcomeInvalidJob, report.Outcome)
	assert.Zero(t, env.source.FilterCalls, "an unfiltered search is never issued")
	assert.Equal(t, []int64{1}, env.queue.Acked)
}

func TestReconcile_StoreFailureAbortsAndAcks(t *testing.T) {
	env := newTestEnv(t, Options{}, newTestSeries())
	env.queue.Jobs = []replaytypes.Job{queuedJob(1)}
	env.source.Add("r1", winFor(apexRoster, borealisRoster, "r1", "g1").raw())
	env.source.Add("r2", winFor(apexRoster, borealisRoster, "r2", "g2").raw())
	env.stats.InsertGameFunc = func(ctx context.Context, db bun.IDB, game replaytypes.GameStat, players []replaytypes.PlayerStat) error {
		return errors.New("disk full")
	}

	report, err := env.svc.ReconcileNext(context.Background())
	require.Error(t, err)
	require.NotNil(t, report)
	assert.Equal(t, replaytypes.OutcomeStoreError, report.Outcome)
	assert.Equal(t, []string{"r1"}, env.source.Gets)
	assert.Equal(t, []int64{1}, env.queue.Acked)
}

func TestReconcileJob_AdHocJobIsNotAcked(t *testing.T) {
	env := newTestEnv(t, Options{}, newTestSeries())
	env.source.Add("r1", winFor(apexRoster, borealisRoster, "r1", "g1").raw())

	report, err := env.svc.ReconcileJob(context.Background(), replaytypes.Job{GameID: 7413})
	require.NoError(t, err)
	assert.Equal(t, []string{"g1"}, report.Accepted)
	assert.NotContains(t, env.queue.Trace(), "Ack")
}

func TestReconcile_DequeueFailure(t *testing.T) {
	env := newTestEnv(t, Options{}, newTestSeries())
	failing := &failingQueue{FakeQueueRepo: env.queue}
	env.svc.repos.Queue = failing

	_, err := env.svc.ReconcileNext(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, replaydb.ErrClaimLost)
}

type failingQueue struct {
	*FakeQueueRepo
}

func (f *failingQueue) Dequeue(ctx context.Context, db bun.IDB, now time.Time, lease time.Duration) (replaytypes.Job, error) {
	return replaytypes.Job{}, replaydb.ErrClaimLost
}
