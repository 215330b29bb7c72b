package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/hookrelay/webhook-relay/internal/metrics"
	"github.com/hookrelay/webhook-relay/internal/model"
	"github.com/hookrelay/webhook-relay/internal/repository"
	"github.com/hookrelay/webhook-relay/internal/util"
)

// Change describes one committed write on a watched entity. The caller
// passes its open transaction so the queue entry commits or rolls back
// with the write itself.
type Change struct {
	Table   string
	Action  model.Action
	Data    map[string]any
	OldData map[string]any // updates only

	// TransactionID ties the event to the producing transaction; a
	// fresh UUID is assigned when the caller has none.
	TransactionID string
	OccurredAt    time.Time
}

// Service turns entity writes into queue entries. It performs no
// network I/O; a write that does not commit produces no event, and a
// committed write produces exactly one.
type Service struct {
	queue       repository.QueueRepository
	types       *model.TypeSet
	entities    map[string]string // table -> entity name
	maxAttempts int
	log         *zap.Logger
}

func New(queue repository.QueueRepository, entities map[string]string, maxAttempts int, log *zap.Logger) *Service {
	names := make([]string, 0, len(entities))
	for _, e := range entities {
		names = append(names, e)
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Service{
		queue:       queue,
		types:       model.NewTypeSet(names),
		entities:    entities,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// Types exposes the closed event-type enumeration.
func (s *Service) Types() *model.TypeSet { return s.types }

// Record builds the envelope and inserts exactly one queue entry in the
// caller's transaction. Failure to enqueue is a correctness violation,
// so errors are logged loudly and always returned, never swallowed.
func (s *Service) Record(ctx context.Context, tx *sqlx.Tx, ch Change) (model.QueueEntry, error) {
	entry, err := s.record(ctx, tx, ch)
	if err != nil {
		s.log.Error("change capture failed to enqueue",
			zap.String("table", ch.Table),
			zap.String("action", ch.Action.String()),
			zap.Error(err),
		)
		return model.QueueEntry{}, err
	}

	metrics.EventsCaptured.WithLabelValues(entry.EventType).Inc()
	return entry, nil
}

func (s *Service) record(ctx context.Context, tx *sqlx.Tx, ch Change) (model.QueueEntry, error) {
	if !ch.Action.Valid() {
		return model.QueueEntry{}, fmt.Errorf("invalid action %q", ch.Action)
	}
	if ch.Data == nil {
		return model.QueueEntry{}, fmt.Errorf("change on %q has no data snapshot", ch.Table)
	}

	entity, ok := s.entities[ch.Table]
	if !ok {
		return model.QueueEntry{}, fmt.Errorf("table %q is not watched", ch.Table)
	}
	eventType, err := s.types.Resolve(entity, ch.Action)
	if err != nil {
		return model.QueueEntry{}, err
	}

	occurred := ch.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	txID := ch.TransactionID
	if txID == "" {
		txID = uuid.NewString()
	}

	env := model.Envelope{
		ID:     util.NewULID(),
		Event:  eventType.String(),
		Table:  ch.Table,
		Action: ch.Action,
		Data:   ch.Data,
		Metadata: model.Metadata{
			OccurredAt:    occurred,
			TransactionID: txID,
		},
		Timestamp: occurred,
	}
	if ch.Action == model.ActionUpdated {
		env.OldData = ch.OldData
		env.Metadata.ChangedFields = ChangedFields(ch.Data, ch.OldData)
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return model.QueueEntry{}, fmt.Errorf("marshal envelope: %w", err)
	}

	entry := model.QueueEntry{
		ID:          env.ID,
		EventType:   env.Event,
		Payload:     payload,
		Status:      model.EntryPending,
		MaxAttempts: s.maxAttempts,
	}
	if err := s.queue.Insert(ctx, tx, entry); err != nil {
		return model.QueueEntry{}, fmt.Errorf("insert queue entry: %w", err)
	}
	return entry, nil
}

// ChangedFields returns the sorted field names whose values differ
// between the new and old snapshots, including added and removed keys.
func ChangedFields(data, old map[string]any) []string {
	seen := make(map[string]struct{}, len(data)+len(old))
	var changed []string

	for k, v := range data {
		seen[k] = struct{}{}
		ov, ok := old[k]
		if !ok || !reflect.DeepEqual(v, ov) {
			changed = append(changed, k)
		}
	}
	for k := range old {
		if _, ok := seen[k]; !ok {
			changed = append(changed, k)
		}
	}

	sort.Strings(changed)
	return changed
}
