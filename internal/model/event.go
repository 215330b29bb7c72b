package model

import (
	"fmt"
	"strings"
	"time"
)

type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

func (a Action) String() string { return string(a) }

func (a Action) Valid() bool {
	return a == ActionCreated || a == ActionUpdated || a == ActionDeleted
}

// ParseAction normalizes input. Returns (value, true) if valid.
func ParseAction(s string) (Action, bool) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	return a, a.Valid()
}

// EventType is a closed entity/action pair, e.g. "contact.created".
// The set of valid types is resolved once from the watched-entity list;
// free-form strings never enter the pipeline.
type EventType struct {
	Entity string
	Action Action
}

func (t EventType) String() string { return t.Entity + "." + t.Action.String() }

// TypeSet is the enumeration of event types the pipeline can produce.
type TypeSet struct {
	types map[string]EventType
}

// NewTypeSet builds the closed enumeration from entity names: every
// entity gets one type per action.
func NewTypeSet(entities []string) *TypeSet {
	ts := &TypeSet{types: make(map[string]EventType, len(entities)*3)}
	for _, e := range entities {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		for _, a := range []Action{ActionCreated, ActionUpdated, ActionDeleted} {
			t := EventType{Entity: e, Action: a}
			ts.types[t.String()] = t
		}
	}
	return ts
}

// Resolve returns the event type for an entity/action pair, or an error
// when the entity is not part of the enumeration.
func (s *TypeSet) Resolve(entity string, action Action) (EventType, error) {
	t, ok := s.types[entity+"."+action.String()]
	if !ok {
		return EventType{}, fmt.Errorf("unknown event type %q.%q", entity, action)
	}
	return t, nil
}

// Contains reports whether the raw type name belongs to the enumeration.
func (s *TypeSet) Contains(name string) bool {
	_, ok := s.types[name]
	return ok
}

// Metadata travels inside the envelope and ties the event back to the
// transaction that produced it.
type Metadata struct {
	OccurredAt    time.Time `json:"occurred_at"`
	TransactionID string    `json:"transaction_id"`
	ChangedFields []string  `json:"changed_fields,omitempty"`
}

// Envelope is the canonical immutable record of one entity change. Its
// JSON serialization is the delivery body, byte for byte what gets signed.
type Envelope struct {
	ID        string         `json:"id"`
	Event     string         `json:"event"` // "<entity>.<action>"
	Table     string         `json:"table"`
	Action    Action         `json:"action"`
	Data      map[string]any `json:"data"`
	OldData   map[string]any `json:"old_data,omitempty"` // updates only
	Metadata  Metadata       `json:"metadata"`
	Timestamp time.Time      `json:"timestamp"`
}
