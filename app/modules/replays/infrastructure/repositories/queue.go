package replaydb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	replaytypes "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/domain/types"
	"github.com/uptrace/bun"
)

// claimAttempts bounds how often Dequeue retries after losing a claim race.
const claimAttempts = 3

// QueueImpl implements QueueRepository over the stats_queue table.
type QueueImpl struct {
	db bun.IDB
}

// NewQueueRepository creates a new queue repository.
func NewQueueRepository(db bun.IDB) QueueRepository {
	return &QueueImpl{db: db}
}

func (r *QueueImpl) resolveDB(db bun.IDB) bun.IDB {
	if db == nil {
		return r.db
	}
	return db
}

// Enqueue computes the next priority inside the insert statement so the read
// and the write cannot interleave with another enqueue.
func (r *QueueImpl) Enqueue(ctx context.Context, db bun.IDB, job replaytypes.Job) (replaytypes.Job, error) {
	db = r.resolveDB(db)
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	entry := newQueueEntry(job)
	_, err := db.NewInsert().
		Model(entry).
		Value("priority", "(SELECT COALESCE(MAX(priority), 0) + 1 FROM stats_queue)").
		Returning("priority").
		Exec(ctx)
	if err != nil {
		return replaytypes.Job{}, fmt.Errorf("queue.Enqueue: %w", err)
	}
	return entry.toDomain(), nil
}

// Dequeue claims with a compare-and-set on claimed_at: the update only lands if
// the row still carries the claim value that was read.
func (r *QueueImpl) Dequeue(ctx context.Context, db bun.IDB, now time.Time, lease time.Duration) (replaytypes.Job, error) {
	db = r.resolveDB(db)
	staleBefore := now.Add(-lease).Unix()
	claimedAt := now.Unix()

	for attempt := 0; attempt < claimAttempts; attempt++ {
		entry := new(QueueEntry)
		err := db.NewSelect().
			Model(entry).
			WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.Where("claimed_at IS NULL").WhereOr("claimed_at < ?", staleBefore)
			}).
			OrderExpr("priority DESC").
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return replaytypes.Job{}, ErrQueueEmpty
			}
			return replaytypes.Job{}, fmt.Errorf("queue.Dequeue: select: %w", err)
		}

		q := db.NewUpdate().
			Model((*QueueEntry)(nil)).
			Set("claimed_at = ?", claimedAt).
			Where("priority = ?", entry.Priority)
		if entry.ClaimedAt == nil {
			q = q.Where("claimed_at IS NULL")
		} else {
			q = q.Where("claimed_at = ?", *entry.ClaimedAt)
		}
		res, err := q.Exec(ctx)
		if err != nil {
			return replaytypes.Job{}, fmt.Errorf("queue.Dequeue: claim: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return replaytypes.Job{}, fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 1 {
			entry.ClaimedAt = &claimedAt
			return entry.toDomain(), nil
		}
	}
	return replaytypes.Job{}, ErrClaimLost
}

func (r *QueueImpl) Ack(ctx context.Context, db bun.IDB, priority int64) error {
	db = r.resolveDB(db)
	if _, err := db.NewDelete().
		Model((*QueueEntry)(nil)).
		Where("priority = ?", priority).
		Exec(ctx); err != nil {
		return fmt.Errorf("queue.Ack: %w", err)
	}
	return nil
}

func (r *QueueImpl) List(ctx context.Context, db bun.IDB) ([]replaytypes.Job, error) {
	db = r.resolveDB(db)
	var entries []QueueEntry
	if err := db.NewSelect().Model(&entries).OrderExpr("priority DESC").Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("queue.List: %w", err)
	}
	jobs := make([]replaytypes.Job, 0, len(entries))
	for i := range entries {
		jobs = append(jobs, entries[i].toDomain())
	}
	return jobs, nil
}

func (r *QueueImpl) Count(ctx context.Context, db bun.IDB) (int, error) {
	db = r.resolveDB(db)
	n, err := db.NewSelect().Model((*QueueEntry)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("queue.Count: %w", err)
	}
	return n, nil
}
