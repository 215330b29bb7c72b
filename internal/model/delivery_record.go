package model

import "time"

// DeliveryRecord is one append-only row in the delivery log: the outcome
// of one delivery attempt group (a full client retry loop, or a policy
// rejection) per subscription per event.
type DeliveryRecord struct {
	SubscriptionID int64     `db:"subscription_id" json:"subscription_id"`
	EventID        string    `db:"event_id" json:"event_id"`
	DeliveryID     string    `db:"delivery_id" json:"delivery_id"` // ULID sent in the delivery header
	EventType      string    `db:"event_type" json:"event_type"`
	Attempts       int       `db:"attempts" json:"attempts"`
	StatusCode     int       `db:"status_code" json:"status_code"` // 0 when no HTTP response was received
	DurationMs     int64     `db:"duration_ms" json:"duration_ms"`
	Success        bool      `db:"success" json:"success"`
	Error          string    `db:"error" json:"error,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
