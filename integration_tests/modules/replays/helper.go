package replaysintegrationtests

import (
	"context"
	"log"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	replayservice "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/application"
	replaytypes "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/domain/types"
	"github.com/samfeast/RLI-RLIS-v2/app/modules/replays/infrastructure/ballchasing"
	replayevents "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/infrastructure/events"
	replaydb "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/infrastructure/repositories"
	"github.com/samfeast/RLI-RLIS-v2/config"
	"github.com/samfeast/RLI-RLIS-v2/integration_tests/testutils"
	replaymetrics "github.com/samfeast/RLI-RLIS-v2/internal/observability/metrics/replays"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/trace/noop"
)

// Global variables for the test environment, initialized once.
var (
	testEnv     *testutils.TestEnvironment
	testEnvOnce sync.Once
	testEnvErr  error
)

func GetTestEnv(t *testing.T) *testutils.TestEnvironment {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test needs docker")
	}

	testEnvOnce.Do(func() {
		log.Println("Initializing replays test environment...")
		testEnv, testEnvErr = testutils.NewTestEnvironment()
	})
	if testEnvErr != nil {
		t.Fatalf("Replays test environment initialization failed: %v", testEnvErr)
	}
	return testEnv
}

// TestDeps holds dependencies needed by individual tests.
type TestDeps struct {
	Ctx     context.Context
	BunDB   *bun.DB
	Repos   replayservice.Repositories
	Archive *testutils.FakeArchive
	Service *replayservice.ReplayService
	Events  *replayevents.Publisher
	Winners []replaytypes.PlayerIdentity
	Losers  []replaytypes.PlayerIdentity
	Env     *testutils.TestEnvironment
}

var reportedAt = time.Date(2025, 3, 14, 21, 0, 0, 0, time.UTC)

func testLeagueConfig() config.LeagueConfig {
	return config.LeagueConfig{
		Orgs:  []config.OrgConfig{{Name: "Apex", ID: 7}, {Name: "Borealis", ID: 4}},
		Tiers: []config.TierConfig{{Name: "Premier", ID: 1}},
		Modes: config.DefaultModes(),
	}
}

// SetupTestReplayService resets the database, registers two generated 3v3
// rosters and builds the engine against a fake archive and the NATS container.
func SetupTestReplayService(t *testing.T) TestDeps {
	t.Helper()
	env := GetTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)
	require.NoError(t, env.Reset(ctx))

	logger := slog.New(slog.NewTextHandler(testWriter{t: t}, &slog.HandlerOptions{Level: slog.LevelDebug}))

	league, err := config.NewLeague(testLeagueConfig())
	require.NoError(t, err)

	archive := testutils.NewFakeArchive()
	t.Cleanup(archive.Close)

	msgPublisher, err := replayevents.NewMessagePublisher(config.NATSConfig{URL: env.NATSURL}, logger)
	require.NoError(t, err)
	events := replayevents.NewPublisher(msgPublisher, logger)
	t.Cleanup(func() { events.Close() })

	repos := replayservice.Repositories{
		Series:  replaydb.NewSeriesRepository(env.DB),
		Players: replaydb.NewPlayerRepository(env.DB),
		Stats:   replaydb.NewStatsRepository(env.DB),
		Queue:   replaydb.NewQueueRepository(env.DB),
	}
	metrics := replaymetrics.NewNoop()
	source := ballchasing.NewClient(ballchasing.ClientConfig{
		BaseURL: archive.URL(),
		APIKey:  "integration",
		Logger:  logger,
		Metrics: metrics,
	})
	service := replayservice.NewReplayService(repos, source, events, league, logger, metrics,
		noop.NewTracerProvider().Tracer("test"), env.DB, replayservice.Options{})

	faker := gofakeit.New(uint64(time.Now().UnixNano()))
	deps := TestDeps{
		Ctx:     ctx,
		BunDB:   env.DB,
		Repos:   repos,
		Archive: archive,
		Service: service,
		Events:  events,
		Winners: testutils.RandomRoster(faker, 3),
		Losers:  testutils.RandomRoster(faker, 3),
		Env:     env,
	}
	registerRoster(t, deps, "Apex", deps.Winners)
	registerRoster(t, deps, "Borealis", deps.Losers)
	return deps
}

func registerRoster(t *testing.T, deps TestDeps, org string, roster []replaytypes.PlayerIdentity) {
	t.Helper()
	tier := "Premier"
	for i, p := range roster {
		require.NoError(t, deps.Repos.Players.Upsert(deps.Ctx, nil, &replaydb.Player{
			DiscordID:  org + "-" + p.PlatformID + "-" + string(rune('a'+i)),
			Status:     replaydb.PlayerStatusMember,
			Name:       p.Name,
			Platform:   p.Platform,
			PlatformID: p.PlatformID,
			Tier:       &tier,
			Org:        &org,
		}))
	}
}

func names(roster []replaytypes.PlayerIdentity) []string {
	out := make([]string, 0, len(roster))
	for _, p := range roster {
		out = append(out, p.Name)
	}
	return out
}

// reportApexWin records Apex beating Borealis 3-1 in Premier 3v3.
func reportApexWin(t *testing.T, deps TestDeps) replaytypes.Job {
	t.Helper()
	loserWins := 1
	job, err := deps.Service.ReportSeries(deps.Ctx, replayservice.SeriesReport{
		WinningOrg:      "Apex",
		LosingOrg:       "Borealis",
		Tier:            "Premier",
		Mode:            3,
		GamesWonByLoser: &loserWins,
		WinningPlayers:  names(deps.Winners),
		LosingPlayers:   names(deps.Losers),
		ReportedAt:      reportedAt,
	})
	require.NoError(t, err)
	require.Equal(t, int64(7413), job.GameID)
	return job
}

// apexGame is a game won by Apex, on blue when apexBlue is set.
func apexGame(deps TestDeps, id, guid string, at time.Time, apexBlue bool) testutils.ArchiveGame {
	g := testutils.ArchiveGame{ID: id, GUID: guid, Date: at}
	if apexBlue {
		g.Blue, g.Orange, g.BlueGoals, g.OrangeGoals = deps.Winners, deps.Losers, 3, 1
	} else {
		g.Blue, g.Orange, g.BlueGoals, g.OrangeGoals = deps.Losers, deps.Winners, 0, 2
	}
	return g
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (n int, err error) {
	tw.t.Log(string(p))
	return len(p), nil
}
