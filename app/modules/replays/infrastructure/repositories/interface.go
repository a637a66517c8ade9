package replaydb

import (
	"context"
	"time"

	replaytypes "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/domain/types"
	"github.com/uptrace/bun"
)

// SeriesRepository reads reported series and keeps their replay counters.
type SeriesRepository interface {
	// GetSeries loads a series with its rosters and the guids already stored for it.
	GetSeries(ctx context.Context, db bun.IDB, gameID int64) (*replaytypes.Series, error)

	// CreateSeries records a reported series and its rosters.
	CreateSeries(ctx context.Context, db bun.IDB, series *replaytypes.Series) error

	// RecomputeReplayCount sets replays_stored from game_stats and clears the
	// published flag when the count moved. It returns the new count.
	RecomputeReplayCount(ctx context.Context, db bun.IDB, gameID int64) (count int, changed bool, err error)

	// NextUnpublished returns the oldest reconciled series not yet published.
	NextUnpublished(ctx context.Context, db bun.IDB) (*replaytypes.Series, error)

	// MarkPublished sets the published flag.
	MarkPublished(ctx context.Context, db bun.IDB, gameID int64) error

	// ListGameIDs returns the series of a tier, or every series for an empty tier.
	ListGameIDs(ctx context.Context, db bun.IDB, tier string) ([]int64, error)
}

// PlayerRepository is the identity registry.
type PlayerRepository interface {
	// FindByPlatform resolves a platform account to a registered player.
	FindByPlatform(ctx context.Context, db bun.IDB, key replaytypes.PlatformKey) (*replaytypes.PlayerIdentity, error)

	// FindByNames returns the registered identities for the given canonical names.
	FindByNames(ctx context.Context, db bun.IDB, names []string) ([]replaytypes.PlayerIdentity, error)

	// Upsert adds or replaces a registry entry.
	Upsert(ctx context.Context, db bun.IDB, player *Player) error
}

// StatsRepository stores verified game and player stats. Rows are insert-only.
type StatsRepository interface {
	// InsertGame writes one game and its player rows.
	InsertGame(ctx context.Context, db bun.IDB, game replaytypes.GameStat, players []replaytypes.PlayerStat) error

	// ReplayURLs returns the stored replay links of a series, oldest game first.
	ReplayURLs(ctx context.Context, db bun.IDB, gameID int64) ([]string, error)

	// GameStats returns the stored games of a series, oldest first.
	GameStats(ctx context.Context, db bun.IDB, gameID int64) ([]replaytypes.GameStat, error)

	// PlayerStats returns the stored player rows of a series.
	PlayerStats(ctx context.Context, db bun.IDB, gameID int64) ([]replaytypes.PlayerStat, error)
}

// QueueRepository is the durable reconciliation backlog.
type QueueRepository interface {
	// Enqueue stores job with priority one above the current maximum.
	Enqueue(ctx context.Context, db bun.IDB, job replaytypes.Job) (replaytypes.Job, error)

	// Dequeue claims the highest-priority job that is unclaimed or whose claim is
	// older than lease. Returns ErrQueueEmpty when nothing is claimable.
	Dequeue(ctx context.Context, db bun.IDB, now time.Time, lease time.Duration) (replaytypes.Job, error)

	// Ack deletes the job with the given priority.
	Ack(ctx context.Context, db bun.IDB, priority int64) error

	// List returns pending jobs, highest priority first.
	List(ctx context.Context, db bun.IDB) ([]replaytypes.Job, error)

	// Count returns the number of pending jobs.
	Count(ctx context.Context, db bun.IDB) (int, error)
}
