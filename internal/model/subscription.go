package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// EventList is the subscription interest set, stored as a JSON array.
type EventList []string

func (l EventList) Contains(eventType string) bool {
	for _, e := range l {
		if e == eventType {
			return true
		}
	}
	return false
}

func (l EventList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *EventList) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	case nil:
		*l = nil
		return nil
	default:
		return fmt.Errorf("unsupported event list type %T", src)
	}
}

// Subscription is a registered destination, its interest set, and its
// health state. The admin collaborator owns creation and the URL/secret;
// the core mutates only the failure counter, active flag, and the
// last-* timestamps.
type Subscription struct {
	ID                  int64      `db:"id"`
	URL                 string     `db:"url"`
	Secret              string     `db:"secret"`
	Events              EventList  `db:"events"`
	Active              bool       `db:"active"`
	ConsecutiveFailures int        `db:"consecutive_failures"`
	LastSuccessAt       *time.Time `db:"last_success_at"`
	LastFailureAt       *time.Time `db:"last_failure_at"`
	LastTriggeredAt     *time.Time `db:"last_triggered_at"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}
