package replayservice

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	replaytypes "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/domain/types"
	"github.com/samfeast/RLI-RLIS-v2/config"
	replaymetrics "github.com/samfeast/RLI-RLIS-v2/internal/observability/metrics/replays"
	"github.com/stretchr/testify/require"
)

var errDuplicateKey = errors.New("UNIQUE constraint failed: game_stats.guid")

var (
	reportedAt = time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)
	fixedNow   = time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)

	apexRoster = []replaytypes.PlayerIdentity{
		{Name: "ace", Platform: "steam", PlatformID: "1"},
		{Name: "bolt", Platform: "epic", PlatformID: "2"},
		{Name: "cairn", Platform: "steam", PlatformID: "3"},
	}
	borealisRoster = []replaytypes.PlayerIdentity{
		{Name: "dune", Platform: "steam", PlatformID: "4"},
		{Name: "echo", Platform: "epic", PlatformID: "5"},
		{Name: "flint", Platform: "ps4", PlatformID: "6"},
	}
)

func ptr[T any](v T) *T { return &v }

func testLeague(t *testing.T) *config.League {
	t.Helper()
	league, err := config.NewLeague(config.LeagueConfig{
		Orgs:  []config.OrgConfig{{Name: "Apex", ID: 7}, {Name: "Borealis", ID: 4}},
		Tiers: []config.TierConfig{{Name: "Premier", ID: 1}},
		Modes: config.DefaultModes(),
	})
	require.NoError(t, err)
	return league
}

func names(ids []replaytypes.PlayerIdentity) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Name)
	}
	return out
}

// newTestSeries is a reported 3v3 Apex win over Borealis, 3-1, played on the
// day it was reported.
func newTestSeries(existing ...string) *replaytypes.Series {
	return &replaytypes.Series{
		GameID:          7413,
		Tier:            "Premier",
		Mode:            3,
		ReportedAt:      reportedAt,
		GamesWonByLoser: ptr(1),
		WinningOrg:      "Apex",
		LosingOrg:       "Borealis",
		WinningPlayers:  names(apexRoster),
		LosingPlayers:   names(borealisRoster),
		ExistingGUIDs:   append([]string{}, existing...),
	}
}

type testEnv struct {
	series  *FakeSeriesRepo
	players *FakePlayerRepo
	stats   *FakeStatsRepo
	queue   *FakeQueueRepo
	source  *FakeSource
	events  *FakePublisher
	svc     *ReplayService
}

func newTestEnv(t *testing.T, opts Options, series ...*replaytypes.Series) *testEnv {
	t.Helper()
	stats := NewFakeStatsRepo()
	registry := append(append([]replaytypes.PlayerIdentity{}, apexRoster...), borealisRoster...)
	env := &testEnv{
		series:  NewFakeSeriesRepo(stats, series...),
		players: NewFakePlayerRepo(registry...),
		stats:   stats,
		queue:   NewFakeQueueRepo(),
		source:  NewFakeSource(),
		events:  &FakePublisher{},
	}
	env.svc = NewReplayService(
		Repositories{Series: env.series, Players: env.players, Stats: env.stats, Queue: env.queue},
		env.source,
		env.events,
		testLeague(t),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		replaymetrics.NewNoop(),
		nil,
		nil,
		opts,
	)
	env.svc.now = func() time.Time { return fixedNow }
	env.svc.newRunID = func() string { return "run-1" }
	return env
}

// replayFixture builds a replay payload shaped like the archive's replay
// document. Nil goals leave the team goal key out.
type replayFixture struct {
	ID          string
	GUID        string
	Date        string
	BlueGoals   *int
	OrangeGoals *int
	Blue        []replaytypes.PlayerIdentity
	Orange      []replaytypes.PlayerIdentity
	// Bare drops every optional stat from the payload.
	Bare bool
}

func winFor(blue, orange []replaytypes.PlayerIdentity, id, guid string) replayFixture {
	return replayFixture{
		ID:          id,
		GUID:        guid,
		Date:        "2025-03-14T17:05:00+00:00",
		BlueGoals:   ptr(3),
		OrangeGoals: ptr(1),
		Blue:        blue,
		Orange:      orange,
	}
}

func (r replayFixture) raw() []byte {
	doc := map[string]any{"id": r.ID}
	if r.GUID != "" {
		doc["match_guid"] = r.GUID
	}
	if r.Date != "" {
		doc["date"] = r.Date
	}
	if !r.Bare {
		doc["duration"] = 312.5
		doc["overtime_seconds"] = 12
	}
	doc["blue"] = r.team(r.Blue, r.BlueGoals, 140.25)
	doc["orange"] = r.team(r.Orange, r.OrangeGoals, 160.75)

	b, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return b
}

func (r replayFixture) team(players []replaytypes.PlayerIdentity, goals *int, timeInSide float64) map[string]any {
	team := map[string]any{}
	list := make([]any, 0, len(players))
	for i, p := range players {
		list = append(list, r.player(p, i))
	}
	team["players"] = list

	stats := map[string]any{}
	if goals != nil {
		stats["core"] = map[string]any{"goals": *goals}
	}
	if !r.Bare {
		stats["ball"] = map[string]any{"time_in_side": timeInSide}
	}
	team["stats"] = stats
	return team
}

func (r replayFixture) player(p replaytypes.PlayerIdentity, i int) map[string]any {
	doc := map[string]any{
		"name": p.Name,
		"id":   map[string]any{"platform": p.Platform, "id": p.PlatformID},
	}
	if r.Bare {
		doc["car_id"] = 23
		return doc
	}
	doc["start_time"] = 0.0
	doc["end_time"] = 312.5
	doc["car_name"] = "Octane"
	doc["stats"] = map[string]any{
		"core":     map[string]any{"goals": i, "assists": 1, "saves": 2, "shots": 3, "score": 250 + i},
		"demo":     map[string]any{"inflicted": 1, "taken": 0},
		"boost":    map[string]any{"amount_used_while_supersonic": 88.5, "time_zero_boost": 14.25},
		"movement": map[string]any{"avg_speed": 1523.5, "total_distance": 410000.0},
	}
	return doc
}

func (r replayFixture) replay() replaytypes.Replay {
	return replaytypes.Replay{ID: r.ID, Raw: r.raw()}
}
