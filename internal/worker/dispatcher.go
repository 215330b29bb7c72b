package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hookrelay/webhook-relay/internal/metrics"
	"github.com/hookrelay/webhook-relay/internal/model"
)

// Claimer hands out due queue entries for exclusive processing.
type Claimer interface {
	ClaimBatch(ctx context.Context, n int) ([]model.QueueEntry, error)
}

// EntryProcessor runs one full dispatch pass.
type EntryProcessor interface {
	ProcessEntry(ctx context.Context, entry model.QueueEntry) error
}

// Dispatcher polls the queue and fans claimed entries out to processor
// goroutines. Any number of instances may run in parallel; the claim's
// skip-locked semantics keep their entry sets disjoint.
type Dispatcher struct {
	Queue  Claimer
	Engine EntryProcessor

	Workers      int
	BatchSize    int
	PollInterval time.Duration // pause after a partial batch
	IdleDelay    time.Duration // pause when the queue is empty

	// Nudge optionally wakes an idle dispatcher early (kafka-fed);
	// never load-bearing, polling alone suffices.
	Nudge <-chan struct{}

	Log *zap.Logger
}

func NewDispatcher(queue Claimer, engine EntryProcessor, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		Queue:        queue,
		Engine:       engine,
		Workers:      4,
		BatchSize:    50,
		PollInterval: time.Second,
		IdleDelay:    2 * time.Second,
		Log:          log,
	}
}

// Run blocks until ctx is cancelled. Entries in flight when the context
// ends are abandoned mid-pass; the janitor's stale reclaim returns them
// to pending.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.Workers <= 0 {
		d.Workers = 4
	}
	if d.BatchSize <= 0 {
		d.BatchSize = 50
	}
	if d.PollInterval <= 0 {
		d.PollInterval = time.Second
	}
	if d.IdleDelay <= 0 {
		d.IdleDelay = 2 * time.Second
	}

	entries := make(chan model.QueueEntry, d.BatchSize)

	var wg sync.WaitGroup
	for i := 0; i < d.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range entries {
				if err := d.Engine.ProcessEntry(ctx, e); err != nil {
					d.Log.Error("dispatch pass failed",
						zap.String("entry_id", e.ID),
						zap.Error(err),
					)
				}
			}
		}()
	}

	d.Log.Info("dispatcher started",
		zap.Int("workers", d.Workers),
		zap.Int("batch_size", d.BatchSize),
	)

	for {
		if ctx.Err() != nil {
			break
		}

		batch, err := d.Queue.ClaimBatch(ctx, d.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			d.Log.Error("claim batch failed", zap.Error(err))
			d.pause(ctx, d.IdleDelay)
			continue
		}

		if len(batch) > 0 {
			metrics.QueueClaims.Add(float64(len(batch)))
			for _, e := range batch {
				entries <- e
			}
		}

		switch {
		case len(batch) == d.BatchSize:
			// likely more due work; claim again immediately
		case len(batch) == 0:
			d.pause(ctx, d.IdleDelay)
		default:
			d.pause(ctx, d.PollInterval)
		}
	}

	close(entries)
	wg.Wait()
	d.Log.Info("dispatcher stopped", zap.Error(ctx.Err()))
	return nil
}

func (d *Dispatcher) pause(ctx context.Context, delay time.Duration) {
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	case <-d.Nudge:
	}
}
