package replaydb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	replaytypes "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/domain/types"
	"github.com/uptrace/bun"
)

// SeriesImpl implements SeriesRepository using Bun ORM.
type SeriesImpl struct {
	db bun.IDB
}

// NewSeriesRepository creates a new series repository.
func NewSeriesRepository(db bun.IDB) SeriesRepository {
	return &SeriesImpl{db: db}
}

// resolveDB returns the provided db handle, falling back to the repository's
// default connection if db is nil.
func (r *SeriesImpl) resolveDB(db bun.IDB) bun.IDB {
	if db == nil {
		return r.db
	}
	return db
}

func (r *SeriesImpl) GetSeries(ctx context.Context, db bun.IDB, gameID int64) (*replaytypes.Series, error) {
	db = r.resolveDB(db)

	log, err := r.getLog(ctx, db, gameID)
	if err != nil {
		return nil, err
	}

	players := new(SeriesPlayers)
	err = db.NewSelect().Model(players).Where("game_id = ?", gameID).Scan(ctx)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("series.GetSeries: load players: %w", err)
		}
		players = nil
	}

	var guids []string
	err = db.NewSelect().
		Model((*GameStatRow)(nil)).
		Column("guid").
		Where("game_id = ?", gameID).
		OrderExpr("timestamp ASC, guid ASC").
		Scan(ctx, &guids)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("series.GetSeries: load guids: %w", err)
	}

	return newSeries(log, players, guids), nil
}

func (r *SeriesImpl) getLog(ctx context.Context, db bun.IDB, gameID int64) (*SeriesLog, error) {
	log := new(SeriesLog)
	err := db.NewSelect().Model(log).Where("game_id = ?", gameID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("series.getLog: %w", err)
	}
	return log, nil
}

func (r *SeriesImpl) CreateSeries(ctx context.Context, db bun.IDB, series *replaytypes.Series) error {
	db = r.resolveDB(db)
	log, players := newSeriesRows(series)

	if _, err := db.NewInsert().Model(log).Exec(ctx); err != nil {
		return fmt.Errorf("series.CreateSeries: insert log: %w", err)
	}
	if _, err := db.NewInsert().Model(players).Exec(ctx); err != nil {
		return fmt.Errorf("series.CreateSeries: insert players: %w", err)
	}
	return nil
}

func (r *SeriesImpl) RecomputeReplayCount(ctx context.Context, db bun.IDB, gameID int64) (int, bool, error) {
	db = r.resolveDB(db)

	log, err := r.getLog(ctx, db, gameID)
	if err != nil {
		return 0, false, err
	}

	count, err := db.NewSelect().Model((*GameStatRow)(nil)).Where("game_id = ?", gameID).Count(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("series.RecomputeReplayCount: count: %w", err)
	}

	if log.ReplaysStored != nil && *log.ReplaysStored == count {
		return count, false, nil
	}

	_, err = db.NewUpdate().
		Model((*SeriesLog)(nil)).
		Set("replays_stored = ?", count).
		Set("published = ?", false).
		Where("game_id = ?", gameID).
		Exec(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("series.RecomputeReplayCount: update: %w", err)
	}
	return count, true, nil
}

func (r *SeriesImpl) NextUnpublished(ctx context.Context, db bun.IDB) (*replaytypes.Series, error) {
	db = r.resolveDB(db)

	var gameID int64
	err := db.NewSelect().
		Model((*SeriesLog)(nil)).
		Column("game_id").
		Where("published = ?", false).
		Where("replays_stored IS NOT NULL").
		OrderExpr("timestamp ASC, game_id ASC").
		Limit(1).
		Scan(ctx, &gameID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("series.NextUnpublished: %w", err)
	}
	return r.GetSeries(ctx, db, gameID)
}

func (r *SeriesImpl) MarkPublished(ctx context.Context, db bun.IDB, gameID int64) error {
	db = r.resolveDB(db)
	res, err := db.NewUpdate().
		Model((*SeriesLog)(nil)).
		Set("published = ?", true).
		Where("game_id = ?", gameID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("series.MarkPublished: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SeriesImpl) ListGameIDs(ctx context.Context, db bun.IDB, tier string) ([]int64, error) {
	db = r.resolveDB(db)
	q := db.NewSelect().Model((*SeriesLog)(nil)).Column("game_id").OrderExpr("timestamp ASC, game_id ASC")
	if tier != "" {
		q = q.Where("LOWER(tier) = LOWER(?)", tier)
	}
	var ids []int64
	if err := q.Scan(ctx, &ids); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("series.ListGameIDs: %w", err)
	}
	return ids, nil
}
