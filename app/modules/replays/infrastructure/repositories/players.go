package replaydb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	replaytypes "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/domain/types"
	"github.com/uptrace/bun"
)

// PlayerImpl implements PlayerRepository using Bun ORM.
type PlayerImpl struct {
	db bun.IDB
}

// NewPlayerRepository creates a new player registry repository.
func NewPlayerRepository(db bun.IDB) PlayerRepository {
	return &PlayerImpl{db: db}
}

func (r *PlayerImpl) resolveDB(db bun.IDB) bun.IDB {
	if db == nil {
		return r.db
	}
	return db
}

// FindByPlatform prefers a member row over a sub row for the same account.
func (r *PlayerImpl) FindByPlatform(ctx context.Context, db bun.IDB, key replaytypes.PlatformKey) (*replaytypes.PlayerIdentity, error) {
	db = r.resolveDB(db)
	player := new(Player)
	err := db.NewSelect().
		Model(player).
		Where("LOWER(platform) = ?", key.Platform).
		Where("platform_id = ?", key.PlatformID).
		OrderExpr("CASE WHEN status = ? THEN 0 ELSE 1 END", PlayerStatusMember).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("players.FindByPlatform: %w", err)
	}
	identity := player.Identity()
	return &identity, nil
}

func (r *PlayerImpl) FindByNames(ctx context.Context, db bun.IDB, names []string) ([]replaytypes.PlayerIdentity, error) {
	if len(names) == 0 {
		return []replaytypes.PlayerIdentity{}, nil
	}
	db = r.resolveDB(db)

	var players []Player
	err := db.NewSelect().
		Model(&players).
		Where("name IN (?)", bun.In(names)).
		OrderExpr("name ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("players.FindByNames: %w", err)
	}

	out := make([]replaytypes.PlayerIdentity, 0, len(players))
	for i := range players {
		out = append(out, players[i].Identity())
	}
	return out, nil
}

func (r *PlayerImpl) Upsert(ctx context.Context, db bun.IDB, player *Player) error {
	db = r.resolveDB(db)
	_, err := db.NewInsert().
		Model(player).
		On("CONFLICT (discord_id, status) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("platform = EXCLUDED.platform").
		Set("platform_id = EXCLUDED.platform_id").
		Set("tier = EXCLUDED.tier").
		Set("org = EXCLUDED.org").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("players.Upsert: %w", err)
	}
	return nil
}
