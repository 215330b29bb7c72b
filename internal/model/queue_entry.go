package model

import (
	"database/sql"
	"time"
)

type EntryStatus string

const (
	EntryPending    EntryStatus = "pending"
	EntryProcessing EntryStatus = "processing"
	EntryCompleted  EntryStatus = "completed"
	EntryFailed     EntryStatus = "failed"
)

func (s EntryStatus) String() string { return string(s) }

func (s EntryStatus) Valid() bool {
	return s == EntryPending || s == EntryProcessing || s == EntryCompleted || s == EntryFailed
}

// Terminal reports whether the status is final; terminal entries are only
// touched again by retention or a manual resubmit.
func (s EntryStatus) Terminal() bool {
	return s == EntryCompleted || s == EntryFailed
}

// QueueEntry is the durable unit of dispatch work wrapping one envelope.
// attempts never exceeds max_attempts; next_attempt_at never decreases
// across reschedules of the same entry.
type QueueEntry struct {
	ID            string         `db:"id"` // envelope ULID
	EventType     string         `db:"event_type"`
	Payload       []byte         `db:"payload"` // serialized Envelope
	Status        EntryStatus    `db:"status"`
	Attempts      int            `db:"attempts"`
	MaxAttempts   int            `db:"max_attempts"`
	NextAttemptAt time.Time      `db:"next_attempt_at"`
	LastError     sql.NullString `db:"last_error"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}
