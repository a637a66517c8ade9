package replaydb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	replaytypes "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/domain/types"
	"github.com/uptrace/bun"
)

// StatsImpl implements StatsRepository using Bun ORM.
type StatsImpl struct {
	db bun.IDB
}

// NewStatsRepository creates a new stats repository.
func NewStatsRepository(db bun.IDB) StatsRepository {
	return &StatsImpl{db: db}
}

func (r *StatsImpl) resolveDB(db bun.IDB) bun.IDB {
	if db == nil {
		return r.db
	}
	return db
}

// InsertGame has no upsert path: a repeated guid fails on the primary key.
// Callers pass a transaction so the game and its player rows land together.
func (r *StatsImpl) InsertGame(ctx context.Context, db bun.IDB, game replaytypes.GameStat, players []replaytypes.PlayerStat) error {
	db = r.resolveDB(db)

	if _, err := db.NewInsert().Model(newGameStatRow(game)).Exec(ctx); err != nil {
		return fmt.Errorf("stats.InsertGame: insert game %s: %w", game.GUID, err)
	}
	if len(players) == 0 {
		return nil
	}

	rows := make([]*PlayerStatRow, 0, len(players))
	for _, p := range players {
		rows = append(rows, newPlayerStatRow(p))
	}
	if _, err := db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("stats.InsertGame: insert players for %s: %w", game.GUID, err)
	}
	return nil
}

func (r *StatsImpl) ReplayURLs(ctx context.Context, db bun.IDB, gameID int64) ([]string, error) {
	db = r.resolveDB(db)
	var urls []string
	err := db.NewSelect().
		Model((*GameStatRow)(nil)).
		Column("url").
		Where("game_id = ?", gameID).
		Where("url IS NOT NULL").
		OrderExpr("timestamp ASC, guid ASC").
		Scan(ctx, &urls)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("stats.ReplayURLs: %w", err)
	}
	return urls, nil
}

func (r *StatsImpl) GameStats(ctx context.Context, db bun.IDB, gameID int64) ([]replaytypes.GameStat, error) {
	db = r.resolveDB(db)
	var rows []GameStatRow
	err := db.NewSelect().
		Model(&rows).
		Where("game_id = ?", gameID).
		OrderExpr("timestamp ASC, guid ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("stats.GameStats: %w", err)
	}
	out := make([]replaytypes.GameStat, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (r *StatsImpl) PlayerStats(ctx context.Context, db bun.IDB, gameID int64) ([]replaytypes.PlayerStat, error) {
	db = r.resolveDB(db)
	var rows []PlayerStatRow
	err := db.NewSelect().
		Model(&rows).
		Where("game_id = ?", gameID).
		OrderExpr("guid ASC, name ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("stats.PlayerStats: %w", err)
	}
	out := make([]replaytypes.PlayerStat, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}
