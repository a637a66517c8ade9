package replaydb

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// CreateSchema creates the replay tables and indexes if they do not exist. The
// statements are built from the models so they run on postgres and sqlite.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	tables := []struct {
		model       any
		foreignKeys []string
	}{
		{model: (*Player)(nil)},
		{model: (*SeriesLog)(nil)},
		{
			model:       (*SeriesPlayers)(nil),
			foreignKeys: []string{`("game_id") REFERENCES "series_log" ("game_id") ON DELETE CASCADE`},
		},
		{
			model:       (*GameStatRow)(nil),
			foreignKeys: []string{`("game_id") REFERENCES "series_log" ("game_id") ON DELETE CASCADE`},
		},
		{
			model:       (*PlayerStatRow)(nil),
			foreignKeys: []string{`("guid") REFERENCES "game_stats" ("guid") ON DELETE CASCADE`},
		},
		{model: (*QueueEntry)(nil)},
	}

	for _, t := range tables {
		q := db.NewCreateTable().Model(t.model).IfNotExists()
		for _, fk := range t.foreignKeys {
			q = q.ForeignKey(fk)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("replaydb.CreateSchema: create table for %T: %w", t.model, err)
		}
	}

	indexes := []struct {
		model   any
		name    string
		columns []string
	}{
		{(*Player)(nil), "players_platform_idx", []string{"platform", "platform_id"}},
		{(*GameStatRow)(nil), "game_stats_game_id_idx", []string{"game_id", "timestamp"}},
		{(*PlayerStatRow)(nil), "player_stats_game_id_idx", []string{"game_id"}},
		{(*SeriesLog)(nil), "series_log_unpublished_idx", []string{"published", "timestamp"}},
	}
	for _, idx := range indexes {
		if _, err := db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("replaydb.CreateSchema: create index %s: %w", idx.name, err)
		}
	}
	return nil
}

// DropSchema removes the replay tables, children first.
func DropSchema(ctx context.Context, db bun.IDB) error {
	models := []any{
		(*QueueEntry)(nil),
		(*PlayerStatRow)(nil),
		(*GameStatRow)(nil),
		(*SeriesPlayers)(nil),
		(*SeriesLog)(nil),
		(*Player)(nil),
	}
	for _, m := range models {
		if _, err := db.NewDropTable().Model(m).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("replaydb.DropSchema: drop table for %T: %w", m, err)
		}
	}
	return nil
}
