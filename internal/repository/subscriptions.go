package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/hookrelay/webhook-relay/internal/model"
)

// DefaultFailThreshold suspends a destination after this many
// consecutive delivery failures.
const DefaultFailThreshold = 10

// SubscriptionsRepository is the interest-set registry plus the durable
// circuit-breaker state. The core never creates or deletes
// subscriptions; it only flips health fields.
type SubscriptionsRepository interface {
	Match(ctx context.Context, eventType string) ([]model.Subscription, error)
	GetByID(ctx context.Context, id int64) (*model.Subscription, error)

	// RecordSuccess resets the consecutive-failure counter.
	RecordSuccess(ctx context.Context, id int64) error

	// RecordFailure atomically increments the counter and suspends the
	// subscription once the threshold is reached. Returns the new
	// counter value and whether the subscription is still active.
	RecordFailure(ctx context.Context, id int64) (failures int, active bool, err error)

	// Reactivate re-enables a suspended subscription and resets its
	// counter. Operator action; suspension never deletes.
	Reactivate(ctx context.Context, id int64) error

	// Insert exists for seeding and tooling; the admin collaborator owns
	// the real write path.
	Insert(ctx context.Context, s model.Subscription) (int64, error)
}

type SubscriptionsRepositoryImpl struct {
	db            *sqlx.DB
	failThreshold int
}

func NewSubscriptionsRepository(db *sqlx.DB, failThreshold int) *SubscriptionsRepositoryImpl {
	if failThreshold <= 0 {
		failThreshold = DefaultFailThreshold
	}
	return &SubscriptionsRepositoryImpl{db: db, failThreshold: failThreshold}
}

var _ SubscriptionsRepository = (*SubscriptionsRepositoryImpl)(nil)

const subscriptionCols = `
	id, url, secret, events, active, consecutive_failures,
	last_success_at, last_failure_at, last_triggered_at, created_at, updated_at
`

func (r *SubscriptionsRepositoryImpl) Match(ctx context.Context, eventType string) ([]model.Subscription, error) {
	q := `
		SELECT ` + subscriptionCols + `
		  FROM webhook_subscriptions
		 WHERE active = 1 AND JSON_CONTAINS(events, JSON_QUOTE(?))
		 ORDER BY id
	`
	var subs []model.Subscription
	if err := r.db.SelectContext(ctx, &subs, q, eventType); err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *SubscriptionsRepositoryImpl) GetByID(ctx context.Context, id int64) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionCols + ` FROM webhook_subscriptions WHERE id = ? LIMIT 1`
	var s model.Subscription
	err := r.db.GetContext(ctx, &s, q, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubscriptionsRepositoryImpl) RecordSuccess(ctx context.Context, id int64) error {
	const q = `
		UPDATE webhook_subscriptions
		   SET consecutive_failures = 0,
		       last_success_at = NOW(),
		       last_triggered_at = NOW(),
		       updated_at = NOW()
		 WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

// RecordFailure leans on MySQL's left-to-right SET evaluation: active is
// compared against the already-incremented counter, so increment and
// suspension are one atomic statement, not read-then-write. The readback
// runs in the same transaction while the UPDATE still holds the row
// lock, so the returned pair is exactly the state this call produced,
// not whatever a concurrent pass wrote afterwards.
func (r *SubscriptionsRepositoryImpl) RecordFailure(ctx context.Context, id int64) (int, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer func() { _ = tx.Rollback() }()

	const upd = `
		UPDATE webhook_subscriptions
		   SET consecutive_failures = consecutive_failures + 1,
		       active = IF(consecutive_failures >= ?, 0, active),
		       last_failure_at = NOW(),
		       last_triggered_at = NOW(),
		       updated_at = NOW()
		 WHERE id = ?
	`
	if _, err := tx.ExecContext(ctx, upd, r.failThreshold, id); err != nil {
		return 0, false, err
	}

	var out struct {
		Failures int  `db:"consecutive_failures"`
		Active   bool `db:"active"`
	}
	const sel = `SELECT consecutive_failures, active FROM webhook_subscriptions WHERE id = ?`
	if err := tx.GetContext(ctx, &out, sel, id); err != nil {
		return 0, false, err
	}

	if err := tx.Commit(); err != nil {
		return 0, false, err
	}
	return out.Failures, out.Active, nil
}

func (r *SubscriptionsRepositoryImpl) Reactivate(ctx context.Context, id int64) error {
	const q = `
		UPDATE webhook_subscriptions
		   SET active = 1, consecutive_failures = 0, updated_at = NOW()
		 WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

func (r *SubscriptionsRepositoryImpl) Insert(ctx context.Context, s model.Subscription) (int64, error) {
	const q = `
		INSERT INTO webhook_subscriptions
		    (url, secret, events, active, consecutive_failures, created_at, updated_at)
		VALUES
		    (?,   ?,      ?,      ?,      0,                    NOW(),      NOW())
	`
	res, err := r.db.ExecContext(ctx, q, s.URL, s.Secret, s.Events, s.Active)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
