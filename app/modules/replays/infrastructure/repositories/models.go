package replaydb

import (
	"time"

	replaytypes "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/domain/types"
	"github.com/uptrace/bun"
)

// Player is a registry row mapping a league name to a platform account.
type Player struct {
	bun.BaseModel `bun:"table:players,alias:p"`

	DiscordID  string  `bun:"discord_id,pk"`
	Status     string  `bun:"status,pk"` // member|sub
	Name       string  `bun:"name,notnull,unique"`
	Platform   string  `bun:"platform,notnull"`
	PlatformID string  `bun:"platform_id,notnull"`
	Tier       *string `bun:"tier"`
	Org        *string `bun:"org"`
}

const (
	PlayerStatusMember = "member"
	PlayerStatusSub    = "sub"
)

func (p *Player) Identity() replaytypes.PlayerIdentity {
	return replaytypes.PlayerIdentity{Name: p.Name, Platform: p.Platform, PlatformID: p.PlatformID}
}

// SeriesLog is a reported series.
type SeriesLog struct {
	bun.BaseModel `bun:"table:series_log,alias:sl"`

	GameID           int64  `bun:"game_id,pk"`
	Timestamp        int64  `bun:"timestamp,notnull"`
	Tier             string `bun:"tier,notnull"`
	Mode             int    `bun:"mode,notnull"`
	WinningOrg       string `bun:"winning_org,notnull"`
	LosingOrg        string `bun:"losing_org,notnull"`
	GamesWonByLoser  *int   `bun:"games_won_by_loser"`
	PlayedPreviously int    `bun:"played_previously,notnull,default:0"`
	ReplaysStored    *int   `bun:"replays_stored"`
	Published        bool   `bun:"published,notnull,default:false"`
}

// SeriesPlayers holds the up-to-three names on each side of a series.
type SeriesPlayers struct {
	bun.BaseModel `bun:"table:series_players,alias:sp"`

	GameID int64   `bun:"game_id,pk"`
	WP1    *string `bun:"wp1"`
	WP2    *string `bun:"wp2"`
	WP3    *string `bun:"wp3"`
	LP1    *string `bun:"lp1"`
	LP2    *string `bun:"lp2"`
	LP3    *string `bun:"lp3"`
}

// GameStatRow is one stored game.
type GameStatRow struct {
	bun.BaseModel `bun:"table:game_stats,alias:gs"`

	GUID             string   `bun:"guid,pk"`
	URL              *string  `bun:"url"`
	Timestamp        int64    `bun:"timestamp,notnull"`
	GameID           int64    `bun:"game_id,notnull"`
	WinningOrg       string   `bun:"winning_org,notnull"`
	LosingOrg        string   `bun:"losing_org,notnull"`
	WinnerConfidence string   `bun:"winner_confidence,notnull"`
	Duration         *float64 `bun:"duration"`
	OvertimeDuration *float64 `bun:"overtime_duration"`
	WinnerGoals      *int     `bun:"winner_goals"`
	LoserGoals       *int     `bun:"loser_goals"`
	TimeInSideWinner *float64 `bun:"time_in_side_winner"`
	TimeInSideLoser  *float64 `bun:"time_in_side_loser"`
}

// PlayerStatRow is one participant's line for a stored game.
type PlayerStatRow struct {
	bun.BaseModel `bun:"table:player_stats,alias:ps"`

	GUID                 string   `bun:"guid,pk"`
	Name                 string   `bun:"name,pk"`
	GameID               int64    `bun:"game_id,notnull"`
	Duration             *float64 `bun:"duration"`
	Goals                *int     `bun:"goals"`
	Assists              *int     `bun:"assists"`
	Saves                *int     `bun:"saves"`
	Shots                *int     `bun:"shots"`
	Score                *int     `bun:"score"`
	DemosInflicted       *int     `bun:"demos_inflicted"`
	DemosTaken           *int     `bun:"demos_taken"`
	Car                  *string  `bun:"car"`
	BoostWhileSupersonic *float64 `bun:"boost_while_supersonic"`
	TimeZeroBoost        *float64 `bun:"time_zero_boost"`
	AvgSpeed             *float64 `bun:"avg_speed"`
	DistanceTravelled    *float64 `bun:"distance_travelled"`
}

// QueueEntry is a pending reconciliation job. ClaimedAt is set while a worker
// holds the job.
type QueueEntry struct {
	bun.BaseModel `bun:"table:stats_queue,alias:sq"`

	Priority      int64   `bun:"priority,pk"`
	GameID        int64   `bun:"game_id,notnull"`
	ReplayID      *string `bun:"replay_id"`
	StartTS       *int64  `bun:"start_ts"`
	EndTS         *int64  `bun:"end_ts"`
	WinningOrg    *string `bun:"winning_org"`
	LosingOrg     *string `bun:"losing_org"`
	AltName       *string `bun:"alt_name"`
	AltPlatform   *string `bun:"alt_platform"`
	AltPlatformID *string `bun:"alt_platform_id"`
	EnqueuedAt    int64   `bun:"enqueued_at,notnull"`
	ClaimedAt     *int64  `bun:"claimed_at"`
}

// --- conversions ---

func newSeries(log *SeriesLog, players *SeriesPlayers, guids []string) *replaytypes.Series {
	s := &replaytypes.Series{
		GameID:           log.GameID,
		Tier:             log.Tier,
		Mode:             log.Mode,
		ReportedAt:       time.Unix(log.Timestamp, 0).UTC(),
		PlayedPreviously: log.PlayedPreviously,
		GamesWonByLoser:  log.GamesWonByLoser,
		WinningOrg:       log.WinningOrg,
		LosingOrg:        log.LosingOrg,
		ExistingGUIDs:    guids,
		ReplaysStored:    log.ReplaysStored,
		Published:        log.Published,
		WinningPlayers:   []string{},
		LosingPlayers:    []string{},
	}
	if s.ExistingGUIDs == nil {
		s.ExistingGUIDs = []string{}
	}
	if players != nil {
		s.WinningPlayers = compactNames(players.WP1, players.WP2, players.WP3)
		s.LosingPlayers = compactNames(players.LP1, players.LP2, players.LP3)
	}
	return s
}

func compactNames(names ...*string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != nil && *n != "" {
			out = append(out, *n)
		}
	}
	return out
}

func nameAt(names []string, i int) *string {
	if i < len(names) && names[i] != "" {
		n := names[i]
		return &n
	}
	return nil
}

func newSeriesRows(s *replaytypes.Series) (*SeriesLog, *SeriesPlayers) {
	log := &SeriesLog{
		GameID:           s.GameID,
		Timestamp:        s.ReportedAt.Unix(),
		Tier:             s.Tier,
		Mode:             s.Mode,
		WinningOrg:       s.WinningOrg,
		LosingOrg:        s.LosingOrg,
		GamesWonByLoser:  s.GamesWonByLoser,
		PlayedPreviously: s.PlayedPreviously,
		ReplaysStored:    s.ReplaysStored,
		Published:        s.Published,
	}
	players := &SeriesPlayers{
		GameID: s.GameID,
		WP1:    nameAt(s.WinningPlayers, 0),
		WP2:    nameAt(s.WinningPlayers, 1),
		WP3:    nameAt(s.WinningPlayers, 2),
		LP1:    nameAt(s.LosingPlayers, 0),
		LP2:    nameAt(s.LosingPlayers, 1),
		LP3:    nameAt(s.LosingPlayers, 2),
	}
	return log, players
}

func newGameStatRow(g replaytypes.GameStat) *GameStatRow {
	return &GameStatRow{
		GUID:             g.GUID,
		URL:              g.URL,
		Timestamp:        g.PlayedAt.Unix(),
		GameID:           g.GameID,
		WinningOrg:       g.WinningOrg,
		LosingOrg:        g.LosingOrg,
		WinnerConfidence: string(g.WinnerConfidence),
		Duration:         g.Duration,
		OvertimeDuration: g.OvertimeDuration,
		WinnerGoals:      g.WinnerGoals,
		LoserGoals:       g.LoserGoals,
		TimeInSideWinner: g.TimeInSideWinner,
		TimeInSideLoser:  g.TimeInSideLoser,
	}
}

func (r *GameStatRow) toDomain() replaytypes.GameStat {
	return replaytypes.GameStat{
		GUID:             r.GUID,
		URL:              r.URL,
		PlayedAt:         time.Unix(r.Timestamp, 0).UTC(),
		GameID:           r.GameID,
		WinningOrg:       r.WinningOrg,
		LosingOrg:        r.LosingOrg,
		WinnerConfidence: replaytypes.Confidence(r.WinnerConfidence),
		Duration:         r.Duration,
		OvertimeDuration: r.OvertimeDuration,
		WinnerGoals:      r.WinnerGoals,
		LoserGoals:       r.LoserGoals,
		TimeInSideWinner: r.TimeInSideWinner,
		TimeInSideLoser:  r.TimeInSideLoser,
	}
}

func newPlayerStatRow(p replaytypes.PlayerStat) *PlayerStatRow {
	return &PlayerStatRow{
		GUID:                 p.GUID,
		Name:                 p.Name,
		GameID:               p.GameID,
		Duration:             p.Duration,
		Goals:                p.Goals,
		Assists:              p.Assists,
		Saves:                p.Saves,
		Shots:                p.Shots,
		Score:                p.Score,
		DemosInflicted:       p.DemosInflicted,
		DemosTaken:           p.DemosTaken,
		Car:                  p.Car,
		BoostWhileSupersonic: p.BoostWhileSupersonic,
		TimeZeroBoost:        p.TimeZeroBoost,
		AvgSpeed:             p.AvgSpeed,
		DistanceTravelled:    p.DistanceTravelled,
	}
}

func (r *PlayerStatRow) toDomain() replaytypes.PlayerStat {
	return replaytypes.PlayerStat{
		GUID:                 r.GUID,
		Name:                 r.Name,
		GameID:               r.GameID,
		Duration:             r.Duration,
		Goals:                r.Goals,
		Assists:              r.Assists,
		Saves:                r.Saves,
		Shots:                r.Shots,
		Score:                r.Score,
		DemosInflicted:       r.DemosInflicted,
		DemosTaken:           r.DemosTaken,
		Car:                  r.Car,
		BoostWhileSupersonic: r.BoostWhileSupersonic,
		TimeZeroBoost:        r.TimeZeroBoost,
		AvgSpeed:             r.AvgSpeed,
		DistanceTravelled:    r.DistanceTravelled,
	}
}

func newQueueEntry(j replaytypes.Job) *QueueEntry {
	e := &QueueEntry{
		GameID:     j.GameID,
		ReplayID:   j.ReplayID,
		WinningOrg: j.WinningOrg,
		LosingOrg:  j.LosingOrg,
		EnqueuedAt: j.EnqueuedAt.Unix(),
	}
	if j.Start != nil {
		ts := j.Start.Unix()
		e.StartTS = &ts
	}
	if j.End != nil {
		ts := j.End.Unix()
		e.EndTS = &ts
	}
	if j.AltPlayer != nil {
		e.AltName = &j.AltPlayer.Name
		e.AltPlatform = &j.AltPlayer.Platform
		e.AltPlatformID = &j.AltPlayer.PlatformID
	}
	return e
}

func (e *QueueEntry) toDomain() replaytypes.Job {
	j := replaytypes.Job{
		Priority:   e.Priority,
		GameID:     e.GameID,
		ReplayID:   e.ReplayID,
		WinningOrg: e.WinningOrg,
		LosingOrg:  e.LosingOrg,
		EnqueuedAt: time.Unix(e.EnqueuedAt, 0).UTC(),
	}
	if e.StartTS != nil {
		t := time.Unix(*e.StartTS, 0).UTC()
		j.Start = &t
	}
	if e.EndTS != nil {
		t := time.Unix(*e.EndTS, 0).UTC()
		j.End = &t
	}
	if e.AltName != nil && e.AltPlatform != nil && e.AltPlatformID != nil {
		j.AltPlayer = &replaytypes.PlayerIdentity{
			Name:       *e.AltName,
			Platform:   *e.AltPlatform,
			PlatformID: *e.AltPlatformID,
		}
	}
	return j
}
