package replaymigrations

import (
	"context"
	"fmt"

	replaydb "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/infrastructure/repositories"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Creating replay tables...")

		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if err := replaydb.CreateSchema(ctx, tx); err != nil {
				return fmt.Errorf("failed to create replay tables: %w", err)
			}
			return nil
		})
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Dropping replay tables...")

		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if err := replaydb.DropSchema(ctx, tx); err != nil {
				return fmt.Errorf("failed to drop replay tables: %w", err)
			}
			return nil
		})
	})
}
