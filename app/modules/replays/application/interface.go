package replayservice

import (
	"context"
	"time"

	replaytypes "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/domain/types"
)

// Service is the replay reconciliation engine plus the operator operations
// around its queue.
type Service interface {
	// ReconcileNext claims the highest-priority job and processes it. The job is
	// acknowledged whatever the outcome.
	ReconcileNext(ctx context.Context) (*replaytypes.RunReport, error)
	// ReconcileJob processes a job that did not come from the queue.
	ReconcileJob(ctx context.Context, job replaytypes.Job) (*replaytypes.RunReport, error)

	// PublishNext emits the summary of the oldest reconciled, unpublished series.
	// It returns nil when nothing is waiting.
	PublishNext(ctx context.Context) (*replaytypes.SeriesSummary, error)

	Enqueue(ctx context.Context, req EnqueueRequest) (replaytypes.Job, error)
	ReportSeries(ctx context.Context, report SeriesReport) (replaytypes.Job, error)
	ListQueue(ctx context.Context) ([]replaytypes.Job, error)
	RegisterSub(ctx context.Context, sub SubRegistration) error
	ExportStats(ctx context.Context, tier string, gameIDs []int64) (*replaytypes.StatsExport, error)
}

// ReplaySource is the replay archive.
type ReplaySource interface {
	// Filter lists the private-match replays uploaded inside window that include
	// the given players.
	Filter(ctx context.Context, window replaytypes.Window, players []replaytypes.PlatformKey) (replaytypes.FilterResult, error)
	// Get fetches one replay. A replay that does not exist comes back empty.
	Get(ctx context.Context, id string) (replaytypes.Replay, error)
}

// EventPublisher announces engine results to other services.
type EventPublisher interface {
	PublishRunReport(ctx context.Context, report *replaytypes.RunReport) error
	PublishSeriesSummary(ctx context.Context, summary *replaytypes.SeriesSummary) error
}

// EnqueueRequest asks for a series to be reconciled. ReplayID targets a single
// replay; Start and End replace the derived window; WinningOrg and LosingOrg
// skip winner resolution; AltPlayer names a stand-in missing from the registry.
type EnqueueRequest struct {
	GameID     int64
	ReplayID   string
	Start      *time.Time
	End        *time.Time
	WinningOrg string
	LosingOrg  string
	AltPlayer  *replaytypes.PlayerIdentity
}

// SeriesReport is a result as reported by the teams.
type SeriesReport struct {
	WinningOrg       string
	LosingOrg        string
	Tier             string
	Mode             int
	GamesWonByLoser  *int
	PlayedPreviously int
	WinningPlayers   []string
	LosingPlayers    []string
	ReportedAt       time.Time
	AltPlayer        *replaytypes.PlayerIdentity
}

// SubRegistration adds a stand-in to the player registry.
type SubRegistration struct {
	DiscordID  string
	Name       string
	Platform   string
	PlatformID string
	Tier       string
	Org        string
}
