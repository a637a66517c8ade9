package replaymigrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Adding claim index to stats_queue...")

		if _, err := db.ExecContext(ctx, `
			CREATE INDEX IF NOT EXISTS stats_queue_claimed_idx ON stats_queue (claimed_at, priority);
		`); err != nil {
			return fmt.Errorf("failed to add claim index to stats_queue: %w", err)
		}
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Dropping claim index from stats_queue...")

		if _, err := db.ExecContext(ctx, `DROP INDEX IF EXISTS stats_queue_claimed_idx;`); err != nil {
			return fmt.Errorf("failed to drop claim index from stats_queue: %w", err)
		}
		return nil
	})
}
