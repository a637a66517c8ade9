package replaytypes

import "time"

// RejectReason names why a candidate was not stored.
type RejectReason string

const (
	RejectInvalid       RejectReason = "invalid"
	RejectNotFound      RejectReason = "not_found"
	RejectDuplicate     RejectReason = "duplicate"
	RejectLobbyMismatch RejectReason = "lobby_mismatch"
	RejectAmbiguous     RejectReason = "ambiguous"
	RejectCapExceeded   RejectReason = "cap_exceeded"
)

// RunOutcome is how a reconciliation run ended.
type RunOutcome string

const (
	OutcomeCompleted      RunOutcome = "completed"
	OutcomeCapExceeded    RunOutcome = "cap_exceeded"
	OutcomeRateLimited    RunOutcome = "rate_limited"
	OutcomeTransportError RunOutcome = "transport_error"
	OutcomeSeriesNotFound RunOutcome = "series_not_found"
	OutcomeInvalidJob     RunOutcome = "invalid_job"
	OutcomeStoreError     RunOutcome = "store_error"
	OutcomeQueueEmpty     RunOutcome = "queue_empty"
)

// RunReport summarises one reconciliation run. It is logged, counted and
// published as the reconciled event.
type RunReport struct {
	RunID               string               `json:"run_id"`
	GameID              int64                `json:"game_id"`
	JobPriority         int64                `json:"job_priority"`
	Source              JobSource            `json:"source"`
	Window              *Window              `json:"window,omitempty"`
	MaxGames            int                  `json:"max_games"`
	Candidates          int                  `json:"candidates"`
	Accepted            []string             `json:"accepted"`
	Inferred            []string             `json:"inferred,omitempty"`
	Rejected            map[RejectReason]int `json:"rejected"`
	DroppedParticipants int                  `json:"dropped_participants"`
	ReplaysStored       int                  `json:"replays_stored"`
	Outcome             RunOutcome           `json:"outcome"`
	Error               string               `json:"error,omitempty"`
	RetryAfter          time.Duration        `json:"retry_after,omitempty"`
	StartedAt           time.Time            `json:"started_at"`
	FinishedAt          time.Time            `json:"finished_at"`
}

// NewRunReport starts a report for job.
func NewRunReport(runID string, job Job, now time.Time) *RunReport {
	return &RunReport{
		RunID:       runID,
		GameID:      job.GameID,
		JobPriority: job.Priority,
		Source:      job.Source(),
		Accepted:    []string{},
		Rejected:    map[RejectReason]int{},
		Outcome:     OutcomeCompleted,
		StartedAt:   now,
	}
}

func (r *RunReport) Reject(reason RejectReason) { r.Rejected[reason]++ }

// Abort records why the run stopped before its candidate list was exhausted.
func (r *RunReport) Abort(outcome RunOutcome, err error) {
	r.Outcome = outcome
	if err != nil {
		r.Error = err.Error()
	}
}

// Completeness grades how many of a series' expected replays were found.
type Completeness string

const (
	CompletenessNone     Completeness = "none"
	CompletenessPartial  Completeness = "partial"
	CompletenessComplete Completeness = "complete"
)

// GradeCompleteness compares found replays with the expected game count.
// An unknown expectation (0) counts any replay as complete.
func GradeCompleteness(found, expected int) Completeness {
	switch {
	case found == 0:
		return CompletenessNone
	case expected > 0 && found < expected:
		return CompletenessPartial
	default:
		return CompletenessComplete
	}
}

// SeriesSummary is the published view of a reconciled series.
type SeriesSummary struct {
	GameID          int64        `json:"game_id"`
	Tier            string       `json:"tier"`
	Mode            int          `json:"mode"`
	WinningOrg      string       `json:"winning_org"`
	LosingOrg       string       `json:"losing_org"`
	GamesToWin      int          `json:"games_to_win"`
	GamesWonByLoser *int         `json:"games_won_by_loser,omitempty"`
	WinningPlayers  []string     `json:"winning_players"`
	LosingPlayers   []string     `json:"losing_players"`
	ReplayURLs      []string     `json:"replay_urls"`
	Found           int          `json:"found"`
	Expected        int          `json:"expected"`
	Completeness    Completeness `json:"completeness"`
	ReportedAt      time.Time    `json:"reported_at"`
}
