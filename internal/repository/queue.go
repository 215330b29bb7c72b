package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hookrelay/webhook-relay/internal/model"
)

// QueueRepository defines persistence for the webhook_queue table.
type QueueRepository interface {
	// Insert writes a single pending entry. If tx is nil, it opens and
	// commits an internal transaction; otherwise it uses the given tx so
	// capture can ride the entity write's transaction.
	Insert(ctx context.Context, tx *sqlx.Tx, e model.QueueEntry) error

	// ClaimBatch atomically marks up to n due pending entries as
	// processing (attempts incremented), oldest first, skipping rows
	// locked by concurrent claimers.
	ClaimBatch(ctx context.Context, n int) ([]model.QueueEntry, error)

	Complete(ctx context.Context, id string) error

	// Fail terminally fails the entry when attempts are exhausted,
	// otherwise reschedules it to pending after delay. next_attempt_at
	// never moves backwards.
	Fail(ctx context.Context, id string, delay time.Duration, msg string) error

	// DeleteTerminalBefore removes completed/failed entries older than
	// cutoff. Best-effort housekeeping.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// ReclaimStale returns entries stuck in processing (claimer crashed
	// between claim and completion) to pending, or to failed when their
	// attempts are already exhausted.
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error)

	// ResubmitFailed resets failed entries to pending with a fresh
	// attempt budget. Empty ids means all failed entries. Manual
	// operator recovery, never automatic.
	ResubmitFailed(ctx context.Context, ids []string) (int64, error)
}

type QueueRepositoryImpl struct {
	db *sqlx.DB
}

func NewQueueRepository(db *sqlx.DB) *QueueRepositoryImpl {
	return &QueueRepositoryImpl{db: db}
}

var _ QueueRepository = (*QueueRepositoryImpl)(nil)

func (r *QueueRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}

	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}

	return t.Commit()
}

func (r *QueueRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, e model.QueueEntry) error {
	const q = `
		INSERT INTO webhook_queue
		    (id, event_type, payload, status, attempts, max_attempts, next_attempt_at, created_at, updated_at)
		VALUES
		    (?,  ?,          ?,       'pending', 0,     ?,            NOW(),           NOW(),      NOW())
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, e.ID, e.EventType, e.Payload, e.MaxAttempts)
		return err
	})
}

// ClaimBatch uses FOR UPDATE SKIP LOCKED so parallel dispatcher
// instances never wait on each other's rows and never double-claim.
func (r *QueueRepositoryImpl) ClaimBatch(ctx context.Context, n int) ([]model.QueueEntry, error) {
	if n <= 0 {
		n = 1
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	const selectQ = `
		SELECT id, event_type, payload, status, attempts, max_attempts, next_attempt_at, last_error, created_at, updated_at
		  FROM webhook_queue
		 WHERE status = 'pending' AND next_attempt_at <= NOW()
		 ORDER BY created_at
		 LIMIT ?
		 FOR UPDATE SKIP LOCKED
	`
	var entries []model.QueueEntry
	if err := tx.SelectContext(ctx, &entries, selectQ, n); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		_ = tx.Commit()
		return nil, nil
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}

	query, args, err := sqlx.In(
		`UPDATE webhook_queue SET status = 'processing', attempts = attempts + 1, updated_at = NOW() WHERE id IN (?)`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	for i := range entries {
		entries[i].Status = model.EntryProcessing
		entries[i].Attempts++
	}
	return entries, nil
}

func (r *QueueRepositoryImpl) Complete(ctx context.Context, id string) error {
	const q = `
		UPDATE webhook_queue
		   SET status = 'completed', last_error = NULL, updated_at = NOW()
		 WHERE id = ? AND status = 'processing'
	`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

func (r *QueueRepositoryImpl) Fail(ctx context.Context, id string, delay time.Duration, msg string) error {
	// GREATEST keeps next_attempt_at non-decreasing even if a reclaim
	// raced the reschedule.
	const q = `
		UPDATE webhook_queue
		   SET status = IF(attempts >= max_attempts, 'failed', 'pending'),
		       next_attempt_at = IF(attempts >= max_attempts,
		                            next_attempt_at,
		                            GREATEST(next_attempt_at, DATE_ADD(NOW(), INTERVAL ? MICROSECOND))),
		       last_error = ?,
		       updated_at = NOW()
		 WHERE id = ? AND status = 'processing'
	`
	_, err := r.db.ExecContext(ctx, q, delay.Microseconds(), msg, id)
	return err
}

func (r *QueueRepositoryImpl) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `
		DELETE FROM webhook_queue
		 WHERE status IN ('completed', 'failed') AND updated_at < ?
	`
	res, err := r.db.ExecContext(ctx, q, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *QueueRepositoryImpl) ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("reclaim deadline must be positive")
	}
	const q = `
		UPDATE webhook_queue
		   SET status = IF(attempts >= max_attempts, 'failed', 'pending'),
		       last_error = 'reclaimed from stale processing',
		       updated_at = NOW()
		 WHERE status = 'processing' AND updated_at < DATE_SUB(NOW(), INTERVAL ? MICROSECOND)
	`
	res, err := r.db.ExecContext(ctx, q, olderThan.Microseconds())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *QueueRepositoryImpl) ResubmitFailed(ctx context.Context, ids []string) (int64, error) {
	q := `
		UPDATE webhook_queue
		   SET status = 'pending', attempts = 0, next_attempt_at = NOW(), last_error = NULL, updated_at = NOW()
		 WHERE status = 'failed'
	`
	var args []any
	if len(ids) > 0 {
		var err error
		q, args, err = sqlx.In(q+` AND id IN (?)`, ids)
		if err != nil {
			return 0, err
		}
		q = r.db.Rebind(q)
	}

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
