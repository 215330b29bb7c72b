package dispatch

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

type fakeLogRepo struct {
	mu      sync.Mutex
	batches [][]model.DeliveryRecord
}

func (f *fakeLogRepo) AppendBatch(_ context.Context, recs []model.DeliveryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := make([]model.DeliveryRecord, len(recs))
	copy(batch, recs)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeLogRepo) ListBySubscription(context.Context, int64, int, int) ([]model.DeliveryRecord, error) {
	return nil, nil
}

func (f *fakeLogRepo) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func TestLogWriter_FlushesBySizeAndOnShutdown(t *testing.T) {
	repo := &fakeLogRepo{}
	w := NewLogWriter(repo, 5, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	for i := 0; i < 7; i++ {
		w.Append(model.DeliveryRecord{EventID: "e", SubscriptionID: int64(i)})
	}

	// size-based flush of the first 5
	require.Eventually(t, func() bool { return repo.total() >= 5 }, time.Second, 10*time.Millisecond)

	// shutdown drains the remaining 2
	cancel()
	<-done
	assert.Equal(t, 7, repo.total())
}

// The writer's lifetime must extend past the poll loop's: after the
// shutdown signal, in-flight entries still append one record per
// subscriber, easily more than the channel buffer holds. A writer still
// running on its own context keeps receiving; none of the tail appends
// may block and none of their records may be lost.
func TestLogWriter_ReceivesTailAppendsDuringShutdown(t *testing.T) {
	repo := &fakeLogRepo{}
	w := NewLogWriter(repo, 2, time.Hour, zap.NewNop()) // channel cap 4

	writerCtx, stopWriter := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(writerCtx)
		close(done)
	}()

	// the poll loop's signal context is already cancelled
	loopCtx, cancelLoop := context.WithCancel(context.Background())
	cancelLoop()
	require.Error(t, loopCtx.Err())

	// workers draining their claimed batch append far more records than
	// the buffer can hold
	appended := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			w.Append(model.DeliveryRecord{EventID: "tail", SubscriptionID: int64(i)})
		}
		close(appended)
	}()

	select {
	case <-appended:
	case <-time.After(2 * time.Second):
		t.Fatal("Append blocked during shutdown")
	}

	// only after the workers are done does the writer stop
	stopWriter()
	<-done
	assert.Equal(t, 20, repo.total())
}

func TestLogWriter_FlushesByTime(t *testing.T) {
	repo := &fakeLogRepo{}
	w := NewLogWriter(repo, 100, 20*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.Append(model.DeliveryRecord{EventID: "e1"})
	require.Eventually(t, func() bool { return repo.total() == 1 }, time.Second, 5*time.Millisecond)
}
