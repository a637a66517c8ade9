package replaytypes

import "time"

// JobSource says how a job locates its replays.
type JobSource string

const (
	// SourceReplay fetches one named replay and skips the filter query.
	SourceReplay JobSource = "replay"
	// SourceWindow searches an operator supplied window.
	SourceWindow JobSource = "window"
	// SourceSeries derives the window from the series report.
	SourceSeries JobSource = "series"
)

// Job is one pending reconciliation request.
type Job struct {
	Priority   int64           `json:"priority"`
	GameID     int64           `json:"game_id"`
	ReplayID   *string         `json:"replay_id,omitempty"`
	Start      *time.Time      `json:"start,omitempty"`
	End        *time.Time      `json:"end,omitempty"`
	WinningOrg *string         `json:"winning_org,omitempty"`
	LosingOrg  *string         `json:"losing_org,omitempty"`
	AltPlayer  *PlayerIdentity `json:"alt_player,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Source applies the dispatch precedence: a replay id wins over an explicit
// window, which wins over the series report.
func (j Job) Source() JobSource {
	switch {
	case j.ReplayID != nil && *j.ReplayID != "":
		return SourceReplay
	case j.Start != nil && j.End != nil:
		return SourceWindow
	default:
		return SourceSeries
	}
}

// HasOverride is true when the job names the winning and losing org for every game.
func (j Job) HasOverride() bool {
	return j.WinningOrg != nil && *j.WinningOrg != "" && j.LosingOrg != nil && *j.LosingOrg != ""
}
