package repository

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/hookrelay/webhook-relay/internal/model"
)

// DeliveryLogRepository appends and queries the ClickHouse attempt
// history. Rows are immutable; the table is the debugging timeline per
// event per subscriber.
type DeliveryLogRepository interface {
	AppendBatch(ctx context.Context, recs []model.DeliveryRecord) error
	ListBySubscription(ctx context.Context, subscriptionID int64, limit, offset int) ([]model.DeliveryRecord, error)
}

type deliveryLogRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewDeliveryLogRepository(ch *sqlx.DB) DeliveryLogRepository {
	return &deliveryLogRepository{ch: ch}
}

func (r *deliveryLogRepository) AppendBatch(ctx context.Context, recs []model.DeliveryRecord) error {
	if len(recs) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`
		INSERT INTO webhook_relay.delivery_log
		    (subscription_id, event_id, delivery_id, event_type, attempts, status_code, duration_ms, success, error, created_at)
		VALUES `)

	args := make([]any, 0, len(recs)*10)
	for i, rec := range recs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			rec.SubscriptionID, rec.EventID, rec.DeliveryID, rec.EventType,
			rec.Attempts, rec.StatusCode, rec.DurationMs, rec.Success,
			rec.Error, rec.CreatedAt.UTC(),
		)
	}

	_, err := r.ch.ExecContext(ctx, sb.String(), args...)
	return err
}

func (r *deliveryLogRepository) ListBySubscription(ctx context.Context, subscriptionID int64, limit, offset int) ([]model.DeliveryRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	const q = `
		SELECT subscription_id, event_id, delivery_id, event_type, attempts, status_code, duration_ms, success, error, created_at
		  FROM webhook_relay.delivery_log
		 WHERE subscription_id = ?
		 ORDER BY created_at DESC
		 LIMIT ? OFFSET ?
	`
	var rows []model.DeliveryRecord
	if err := r.ch.SelectContext(ctx, &rows, q, subscriptionID, limit, offset); err != nil {
		return nil, err
	}
	return rows, nil
}
