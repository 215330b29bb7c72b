package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeHousekeeper struct {
	mu        sync.Mutex
	reclaims  int
	deletes   int
	lastCut   time.Time
	lastStale time.Duration
}

func (f *fakeHousekeeper) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	f.lastCut = cutoff
	return 3, nil
}

func (f *fakeHousekeeper) ReclaimStale(_ context.Context, olderThan time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reclaims++
	f.lastStale = olderThan
	return 1, nil
}

func TestJanitor_SweepsOnInterval(t *testing.T) {
	hk := &fakeHousekeeper{}
	j := &Janitor{
		Queue:        hk,
		Interval:     10 * time.Millisecond,
		Retention:    time.Hour,
		ReclaimAfter: 10 * time.Minute,
		Log:          zap.NewNop(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = j.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		hk.mu.Lock()
		defer hk.mu.Unlock()
		return hk.reclaims >= 2 && hk.deletes >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	hk.mu.Lock()
	defer hk.mu.Unlock()
	assert.Equal(t, 10*time.Minute, hk.lastStale)
	assert.WithinDuration(t, time.Now().Add(-time.Hour), hk.lastCut, time.Minute)
}

func TestJanitor_SkipsDisabledOperations(t *testing.T) {
	hk := &fakeHousekeeper{}
	j := &Janitor{
		Queue:    hk,
		Interval: 5 * time.Millisecond,
		Log:      zap.NewNop(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = j.Run(ctx)

	assert.Zero(t, hk.reclaims)
	assert.Zero(t, hk.deletes)
}
