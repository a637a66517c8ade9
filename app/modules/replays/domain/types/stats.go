package replaytypes

import (
	"bytes"
	"time"
)

// CandidateSummary is one entry of a filter response.
type CandidateSummary struct {
	ID string `json:"id"`
}

// FilterResult is the archive's answer to a filter query.
type FilterResult struct {
	Count int                `json:"count"`
	List  []CandidateSummary `json:"list"`
}

// Replay is a fetched archive payload. Raw is kept as returned so optional
// fields stay distinguishable from zero values.
type Replay struct {
	ID  string
	Raw []byte
}

// IsEmpty is true for the not-found sentinel: no body or an empty JSON object.
func (r Replay) IsEmpty() bool {
	trimmed := bytes.TrimSpace(r.Raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("{}")) || bytes.Equal(trimmed, []byte("null"))
}

// GameStat is the per-game record. Nil fields were absent from the payload.
type GameStat struct {
	GUID             string     `json:"guid"`
	URL              *string    `json:"url"`
	PlayedAt         time.Time  `json:"played_at"`
	GameID           int64      `json:"game_id"`
	WinningOrg       string     `json:"winning_org"`
	LosingOrg        string     `json:"losing_org"`
	WinnerConfidence Confidence `json:"winner_confidence"`
	Duration         *float64   `json:"duration"`
	OvertimeDuration *float64   `json:"overtime_duration"`
	WinnerGoals      *int       `json:"winner_goals"`
	LoserGoals       *int       `json:"loser_goals"`
	TimeInSideWinner *float64   `json:"time_in_side_winner"`
	TimeInSideLoser  *float64   `json:"time_in_side_loser"`
}

// PlayerStat is the per-participant record of one game.
type PlayerStat struct {
	GUID                 string   `json:"guid"`
	Name                 string   `json:"name"`
	GameID               int64    `json:"game_id"`
	Duration             *float64 `json:"duration"`
	Goals                *int     `json:"goals"`
	Assists              *int     `json:"assists"`
	Saves                *int     `json:"saves"`
	Shots                *int     `json:"shots"`
	Score                *int     `json:"score"`
	DemosInflicted       *int     `json:"demos_inflicted"`
	DemosTaken           *int     `json:"demos_taken"`
	Car                  *string  `json:"car"`
	BoostWhileSupersonic *float64 `json:"boost_while_supersonic"`
	TimeZeroBoost        *float64 `json:"time_zero_boost"`
	AvgSpeed             *float64 `json:"avg_speed"`
	DistanceTravelled    *float64 `json:"distance_travelled"`
}

// StatsExport is the verified stat set of one or more series.
type StatsExport struct {
	GameIDs []int64      `json:"game_ids"`
	Games   []GameStat   `json:"games"`
	Players []PlayerStat `json:"players"`
}
