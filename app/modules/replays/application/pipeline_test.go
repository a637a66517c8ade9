package replayservice

import (
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	replaytypes "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/domain/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveWindow(t *testing.T) {
	d := func(day, hour int) time.Time { return time.Date(2025, 3, day, hour, 0, 0, 0, time.UTC) }
	explicitStart, explicitEnd := d(10, 12), d(10, 20)

	tests := []struct {
		name             string
		job              replaytypes.Job
		reportedAt       time.Time
		playedPreviously int
		want             replaytypes.Window
		wantErr          error
	}{
		{
			name:       "played today searches from midnight to the report",
			reportedAt: d(14, 18),
			want:       replaytypes.Window{Start: d(14, 0), End: d(14, 18)},
		},
		{
			name:             "played yesterday searches the whole previous day",
			reportedAt:       d(14, 18),
			playedPreviously: 1,
			want:             replaytypes.Window{Start: d(13, 0), End: d(14, 0)},
		},
		{
			name:             "played two days ago",
			reportedAt:       d(14, 18),
			playedPreviously: 2,
			want:             replaytypes.Window{Start: d(12, 0), End: d(13, 0)},
		},
		{
			name:       "report in another zone is normalized to UTC",
			reportedAt: time.Date(2025, 3, 14, 20, 30, 0, 0, time.FixedZone("CET", 3600)),
			want:       replaytypes.Window{Start: d(14, 0), End: time.Date(2025, 3, 14, 19, 30, 0, 0, time.UTC)},
		},
		{
			name:             "explicit bounds win over the report",
			job:              replaytypes.Job{Start: &explicitStart, End: &explicitEnd},
			reportedAt:       d(14, 18),
			playedPreviously: 3,
			want:             replaytypes.Window{Start: explicitStart, End: explicitEnd},
		},
		{
			name:             "negative played_previously is rejected",
			reportedAt:       d(14, 18),
			playedPreviously: -1,
			wantErr:          replaytypes.ErrValidation,
		},
		{
			name:       "explicit end before start is rejected",
			job:        replaytypes.Job{Start: &explicitEnd, End: &explicitStart},
			reportedAt: d(14, 18),
			wantErr:    replaytypes.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series := &replaytypes.Series{ReportedAt: tt.reportedAt, PlayedPreviously: tt.playedPreviously}
			got, err := ResolveWindow(tt.job, series)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Start.Equal(got.Start), "start %s, want %s", got.Start, tt.want.Start)
			assert.True(t, tt.want.End.Equal(got.End), "end %s, want %s", got.End, tt.want.End)
			assert.Equal(t, time.UTC, got.Start.Location())
		})
	}
}

func TestResolveWinner(t *testing.T) {
	series := newTestSeries()
	rosters := replaytypes.Rosters{Winning: keySet(apexRoster), Losing: keySet(borealisRoster)}

	tests := []struct {
		name    string
		replay  replayFixture
		want    replaytypes.Resolution
		wantErr error
	}{
		{
			name:   "winning side is the registered winner",
			replay: winFor(apexRoster, borealisRoster, "r1", "g1"),
			want: replaytypes.Resolution{
				WinningOrg: "Apex", LosingOrg: "Borealis",
				WinnerSide: replaytypes.SideBlue, Confidence: replaytypes.ConfidenceMatched,
			},
		},
		{
			name: "registered winner on orange still maps by identity",
			replay: replayFixture{
				GUID: "g2", Date: "2025-03-14T17:05:00Z",
				BlueGoals: ptr(0), OrangeGoals: ptr(2),
				Blue: borealisRoster, Orange: apexRoster,
			},
			want: replaytypes.Resolution{
				WinningOrg: "Apex", LosingOrg: "Borealis",
				WinnerSide: replaytypes.SideOrange, Confidence: replaytypes.ConfidenceMatched,
			},
		},
		{
			name:   "registered loser won this game",
			replay: winFor(borealisRoster, apexRoster, "r3", "g3"),
			want: replaytypes.Resolution{
				WinningOrg: "Borealis", LosingOrg: "Apex",
				WinnerSide: replaytypes.SideBlue, Confidence: replaytypes.ConfidenceReversed,
			},
		},
		{
			name: "unregistered stand-in falls back to inferred inverse",
			replay: winFor(
				[]replaytypes.PlayerIdentity{apexRoster[0], apexRoster[1], {Name: "ringer", Platform: "epic", PlatformID: "99"}},
				borealisRoster, "r4", "g4"),
			want: replaytypes.Resolution{
				WinningOrg: "Borealis", LosingOrg: "Apex",
				WinnerSide: replaytypes.SideBlue, Confidence: replaytypes.ConfidenceInferred,
			},
		},
		{
			name: "tied goals are ambiguous",
			replay: replayFixture{
				GUID: "g5", Date: "2025-03-14T17:05:00Z",
				BlueGoals: ptr(2), OrangeGoals: ptr(2),
				Blue: apexRoster, Orange: borealisRoster,
			},
			wantErr: replaytypes.ErrAmbiguousResult,
		},
		{
			name: "missing goals are ambiguous",
			replay: replayFixture{
				GUID: "g6", Date: "2025-03-14T17:05:00Z",
				BlueGoals: ptr(2),
				Blue:      apexRoster, Orange: borealisRoster,
			},
			wantErr: replaytypes.ErrAmbiguousResult,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveWinner(tt.replay.replay(), series, rosters)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveWinner_GeneratedRostersAreOrderIndependent(t *testing.T) {
	faker := gofakeit.New(7)
	roster := func(n int) []replaytypes.PlayerIdentity {
		out := make([]replaytypes.PlayerIdentity, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, replaytypes.PlayerIdentity{
				Name:       faker.Username(),
				Platform:   faker.RandomString([]string{"steam", "epic", "ps4", "xbox"}),
				PlatformID: faker.DigitN(12),
			})
		}
		return out
	}

	for mode := 1; mode <= 3; mode++ {
		winners, losers := roster(mode), roster(mode)
		shuffled := append([]replaytypes.PlayerIdentity{}, winners...)
		faker.ShuffleAnySlice(shuffled)

		series := &replaytypes.Series{Mode: mode, WinningOrg: "Apex", LosingOrg: "Borealis"}
		rosters := replaytypes.Rosters{Winning: keySet(winners), Losing: keySet(losers)}

		got, err := ResolveWinner(winFor(losers, shuffled, "r", "g").replay(), series, rosters)
		require.NoError(t, err)
		assert.Equal(t, replaytypes.ConfidenceReversed, got.Confidence, "mode %d", mode)
		assert.Equal(t, "Borealis", got.WinningOrg)
	}
}

func keySet(ids []replaytypes.PlayerIdentity) replaytypes.IdentitySet {
	set := replaytypes.NewIdentitySet()
	for _, id := range ids {
		set.Add(id.Key())
	}
	return set
}

func TestCandidateFilter(t *testing.T) {
	f := newCandidateFilter([]string{"stored"}, 6)

	_, _, err := f.admit(newPayload(replayFixture{Date: "2025-03-14T17:05:00Z", Blue: apexRoster, Orange: borealisRoster}.raw()))
	assert.ErrorIs(t, err, replaytypes.ErrValidation, "missing guid")

	_, _, err = f.admit(newPayload(replayFixture{GUID: "g0", Blue: apexRoster, Orange: borealisRoster}.raw()))
	assert.ErrorIs(t, err, replaytypes.ErrValidation, "missing date")

	_, _, err = f.admit(newPayload(winFor(apexRoster, borealisRoster, "r", "stored").raw()))
	assert.ErrorIs(t, err, replaytypes.ErrDuplicateReplay)

	_, _, err = f.admit(newPayload(winFor(apexRoster[:2], borealisRoster, "r", "g-small").raw()))
	assert.ErrorIs(t, err, replaytypes.ErrLobbyMismatch)
	assert.Equal(t, 1, f.size(), "rejected candidates never join the set")

	guid, playedAt, err := f.admit(newPayload(winFor(apexRoster, borealisRoster, "r", "g1").raw()))
	require.NoError(t, err)
	assert.Equal(t, "g1", guid)
	assert.Equal(t, time.Date(2025, 3, 14, 17, 5, 0, 0, time.UTC), playedAt)
	assert.Equal(t, 2, f.size())

	_, _, err = f.admit(newPayload(winFor(apexRoster, borealisRoster, "r-again", "g1").raw()))
	assert.ErrorIs(t, err, replaytypes.ErrDuplicateReplay, "accepted guids are tracked before storage")

	f.release("g1")
	assert.Equal(t, 1, f.size())
}

func TestCapEnforcer(t *testing.T) {
	tests := []struct {
		name       string
		gamesToWin int
		loserWins  *int
		max        int
	}{
		{name: "best of five", gamesToWin: 3, max: 5},
		{name: "loser wins within the base count", gamesToWin: 3, loserWins: ptr(2), max: 5},
		{name: "recorded games beyond the base count", gamesToWin: 4, loserWins: ptr(3), max: 7},
		{name: "best of three", gamesToWin: 2, loserWins: ptr(0), max: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCapEnforcer(tt.gamesToWin, tt.loserWins)
			assert.Equal(t, tt.max, c.max)
			assert.NoError(t, c.allow(tt.max))
			assert.ErrorIs(t, c.allow(tt.max+1), replaytypes.ErrCapExceeded)
		})
	}
}

func TestNormalizeGame(t *testing.T) {
	res := replaytypes.Resolution{WinningOrg: "Borealis", LosingOrg: "Apex", WinnerSide: replaytypes.SideOrange, Confidence: replaytypes.ConfidenceReversed}
	fx := replayFixture{ID: "abc-123", BlueGoals: ptr(1), OrangeGoals: ptr(4), Blue: apexRoster, Orange: borealisRoster}
	playedAt := time.Date(2025, 3, 14, 17, 5, 0, 0, time.UTC)

	got := NormalizeGame(fx.replay(), "g1", playedAt, 7413, res, "https://ballchasing.com/replay/")
	want := replaytypes.GameStat{
		GUID:             "g1",
		URL:              ptr("https://ballchasing.com/replay/abc-123"),
		PlayedAt:         playedAt,
		GameID:           7413,
		WinningOrg:       "Borealis",
		LosingOrg:        "Apex",
		WinnerConfidence: replaytypes.ConfidenceReversed,
		Duration:         ptr(312.5),
		OvertimeDuration: ptr(12.0),
		WinnerGoals:      ptr(4),
		LoserGoals:       ptr(1),
		TimeInSideWinner: ptr(160.75),
		TimeInSideLoser:  ptr(140.25),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("NormalizeGame mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeGame_AbsentFieldsStayAbsent(t *testing.T) {
	fx := replayFixture{ID: "abc", Blue: apexRoster, Orange: borealisRoster, Bare: true}
	res := replaytypes.Resolution{WinningOrg: "Apex", LosingOrg: "Borealis", Confidence: replaytypes.ConfidenceOverride}

	got := NormalizeGame(fx.replay(), "g1", reportedAt, 7413, res, DefaultReplayURL)
	assert.Nil(t, got.Duration)
	assert.Nil(t, got.OvertimeDuration)
	assert.Nil(t, got.WinnerGoals)
	assert.Nil(t, got.LoserGoals)
	assert.Nil(t, got.TimeInSideWinner)
	require.NotNil(t, got.URL)
	assert.Equal(t, "https://ballchasing.com/replay/abc", *got.URL)
}

func TestNormalizePlayers(t *testing.T) {
	full := replayFixture{Blue: apexRoster, Orange: borealisRoster}
	p := newPayload(full.raw())
	resolved := []resolvedParticipant{
		{participant: p.participants(replaytypes.SideBlue)[1], name: "bolt"},
	}

	got := NormalizePlayers(full.replay(), "g1", 7413, resolved)
	want := []replaytypes.PlayerStat{{
		GUID:                 "g1",
		Name:                 "bolt",
		GameID:               7413,
		Duration:             ptr(312.5),
		Goals:                ptr(1),
		Assists:              ptr(1),
		Saves:                ptr(2),
		Shots:                ptr(3),
		Score:                ptr(251),
		DemosInflicted:       ptr(1),
		DemosTaken:           ptr(0),
		Car:                  ptr("Octane"),
		BoostWhileSupersonic: ptr(88.5),
		TimeZeroBoost:        ptr(14.25),
		AvgSpeed:             ptr(1523.5),
		DistanceTravelled:    ptr(410000.0),
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("NormalizePlayers mismatch (-want +got):\n%s", diff)
	}

	bare := replayFixture{Blue: apexRoster, Orange: borealisRoster, Bare: true}
	bp := newPayload(bare.raw())
	gotBare := NormalizePlayers(bare.replay(), "g2", 7413, []resolvedParticipant{
		{participant: bp.participants(replaytypes.SideOrange)[0], name: "dune"},
	})
	require.Len(t, gotBare, 1)
	assert.Nil(t, gotBare[0].Goals, "absent stats are never zero")
	assert.Nil(t, gotBare[0].Duration)
	require.NotNil(t, gotBare[0].Car)
	assert.Equal(t, "23", *gotBare[0].Car, "car falls back to car_id")
}

func TestPayloadOptionalFields(t *testing.T) {
	p := newPayload([]byte(`{"a":{"n":0,"f":1.5,"s":"x","null":null,"whole":250.0,"frac":250.7,"neg":-3},"list":[{"v":2}]}`))

	assert.Equal(t, Optional[int]{Value: 0, Present: true}, p.Int("a", "n"), "zero is present")
	assert.Equal(t, Optional[int]{}, p.Int("a", "missing"))
	assert.Equal(t, Optional[int]{}, p.Int("a", "s"), "wrong type is absent")
	assert.Equal(t, Optional[float64]{}, p.Float("a", "null"))
	assert.Equal(t, present(1.5), p.Float("a", "f"))
	assert.Equal(t, present("x"), p.String("a", "s"))
	assert.Equal(t, present(2), p.Int("list", 0, "v"))
	assert.Equal(t, Optional[int]{}, p.Int("list", 3, "v"))
	assert.Nil(t, p.Int("a", "missing").Ptr())

	assert.Equal(t, present(250), p.Int("a", "whole"))
	assert.Equal(t, present(-3), p.Int("a", "neg"))
	assert.Equal(t, Optional[int]{}, p.Int("a", "frac"), "fractional ints are not truncated")
	assert.Equal(t, present(250.7), p.Float("a", "frac"))
}
