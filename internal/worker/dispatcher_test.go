package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hookrelay/webhook-relay/internal/model"
)

// memQueue mimics the store's claim semantics: atomic selection with an
// artificial in-claim delay so concurrent claimers genuinely overlap.
type memQueue struct {
	mu      sync.Mutex
	pending []model.QueueEntry
	claims  int
}

func newMemQueue(n int) *memQueue {
	q := &memQueue{}
	for i := 0; i < n; i++ {
		q.pending = append(q.pending, model.QueueEntry{
			ID:          string(rune('A'+i%26)) + "-" + time.Now().Format("150405") + "-" + itoa(i),
			EventType:   "contact.created",
			Payload:     []byte(`{}`),
			Status:      model.EntryPending,
			MaxAttempts: 3,
		})
	}
	return q
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b []byte
	for i > 0 {
		b = append([]byte{byte('0' + i%10)}, b...)
		i /= 10
	}
	return string(b)
}

func (q *memQueue) ClaimBatch(_ context.Context, n int) ([]model.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.claims++
	time.Sleep(time.Millisecond) // widen the contention window

	if n > len(q.pending) {
		n = len(q.pending)
	}
	batch := make([]model.QueueEntry, n)
	copy(batch, q.pending[:n])
	q.pending = q.pending[n:]
	for i := range batch {
		batch[i].Status = model.EntryProcessing
		batch[i].Attempts++
	}
	return batch, nil
}

type countingEngine struct {
	mu   sync.Mutex
	seen map[string]int
}

func (e *countingEngine) ProcessEntry(_ context.Context, entry model.QueueEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.seen == nil {
		e.seen = make(map[string]int)
	}
	e.seen[entry.ID]++
	return nil
}

func TestDispatcher_ConcurrentInstancesNeverOverlap(t *testing.T) {
	const total = 120
	q := newMemQueue(total)
	eng := &countingEngine{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		d := NewDispatcher(q, eng, zap.NewNop())
		d.Workers = 2
		d.BatchSize = 7
		d.PollInterval = time.Millisecond
		d.IdleDelay = 5 * time.Millisecond
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.Run(ctx)
		}()
	}

	require.Eventually(t, func() bool {
		eng.mu.Lock()
		defer eng.mu.Unlock()
		return len(eng.seen) == total
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	wg.Wait()

	eng.mu.Lock()
	defer eng.mu.Unlock()
	for id, n := range eng.seen {
		assert.Equal(t, 1, n, "entry %s processed more than once", id)
	}
}

func TestDispatcher_NudgeWakesIdleLoop(t *testing.T) {
	q := newMemQueue(0)
	eng := &countingEngine{}
	nudge := make(chan struct{}, 1)

	d := NewDispatcher(q, eng, zap.NewNop())
	d.BatchSize = 5
	d.IdleDelay = time.Hour // only a nudge can wake it
	d.Nudge = nudge

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	// first claim happens immediately; wait for the idle park
	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return q.claims == 1
	}, time.Second, 5*time.Millisecond)

	q.mu.Lock()
	q.pending = append(q.pending, model.QueueEntry{ID: "late", Payload: []byte(`{}`), MaxAttempts: 3})
	q.mu.Unlock()
	nudge <- struct{}{}

	require.Eventually(t, func() bool {
		eng.mu.Lock()
		defer eng.mu.Unlock()
		return eng.seen["late"] == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDispatcher_DrainsWorkersOnShutdown(t *testing.T) {
	q := newMemQueue(10)
	eng := &countingEngine{}

	ctx, cancel := context.WithCancel(context.Background())
	d := NewDispatcher(q, eng, zap.NewNop())
	d.BatchSize = 10
	d.IdleDelay = time.Millisecond

	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		eng.mu.Lock()
		defer eng.mu.Unlock()
		return len(eng.seen) == 10
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop after cancel")
	}
}
