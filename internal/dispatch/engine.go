package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hookrelay/webhook-relay/internal/delivery"
	"github.com/hookrelay/webhook-relay/internal/metrics"
	"github.com/hookrelay/webhook-relay/internal/model"
	"github.com/hookrelay/webhook-relay/internal/retry"
	"github.com/hookrelay/webhook-relay/internal/safeurl"
	"github.com/hookrelay/webhook-relay/internal/util"
)

// QueueStore is the slice of the queue the engine mutates.
type QueueStore interface {
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id string, delay time.Duration, msg string) error
}

// SubscriptionStore is the interest-set registry plus breaker state.
type SubscriptionStore interface {
	Match(ctx context.Context, eventType string) ([]model.Subscription, error)
	RecordSuccess(ctx context.Context, id int64) error
	RecordFailure(ctx context.Context, id int64) (failures int, active bool, err error)
}

// LogSink receives one record per delivery outcome.
type LogSink interface {
	Append(rec model.DeliveryRecord)
}

// Deliverer executes one logical delivery.
type Deliverer interface {
	Deliver(ctx context.Context, req delivery.Request) delivery.Result
}

// Engine orchestrates one claimed entry: match, validate destination,
// deliver concurrently, log, and update queue and registry state.
type Engine struct {
	queue         QueueStore
	subs          SubscriptionStore
	logs          LogSink
	client        Deliverer
	policy        *safeurl.Policy
	backoff       retry.Backoff // queue-level reschedule curve
	failThreshold int
	maxParallel   int
	log           *zap.Logger
}

type Options struct {
	Backoff       retry.Backoff
	FailThreshold int
	MaxParallel   int
}

func NewEngine(
	queue QueueStore,
	subs SubscriptionStore,
	logs LogSink,
	client Deliverer,
	policy *safeurl.Policy,
	opts Options,
	log *zap.Logger,
) *Engine {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 16
	}
	if opts.FailThreshold <= 0 {
		opts.FailThreshold = 10
	}
	return &Engine{
		queue:         queue,
		subs:          subs,
		logs:          logs,
		client:        client,
		policy:        policy,
		backoff:       opts.Backoff,
		failThreshold: opts.FailThreshold,
		maxParallel:   opts.MaxParallel,
		log:           log,
	}
}

type outcome struct {
	success   bool
	retryable bool
	err       string
}

// ProcessEntry runs one full dispatch pass for a claimed entry. The
// entry is rescheduled only when the pass produced no successful
// delivery and at least one retryable failure; otherwise it completes
// and enduring per-subscriber failure lives in the registry counter.
func (e *Engine) ProcessEntry(ctx context.Context, entry model.QueueEntry) error {
	var env model.Envelope
	if err := json.Unmarshal(entry.Payload, &env); err != nil {
		msg := fmt.Sprintf("unmarshal envelope: %v", err)
		e.log.Error("poison queue entry", zap.String("entry_id", entry.ID), zap.Error(err))
		return e.queue.Fail(ctx, entry.ID, e.backoff.Delay(entry.Attempts), msg)
	}

	subs, err := e.subs.Match(ctx, env.Event)
	if err != nil {
		if ferr := e.queue.Fail(ctx, entry.ID, e.backoff.Delay(entry.Attempts), fmt.Sprintf("match subscriptions: %v", err)); ferr != nil {
			return ferr
		}
		return err
	}

	if len(subs) == 0 {
		return e.queue.Complete(ctx, entry.ID)
	}

	// Bounded fan-out; one subscriber's failure or slowness never
	// affects delivery to any other.
	outcomes := make([]outcome, len(subs))
	sem := make(chan struct{}, e.maxParallel)
	var wg sync.WaitGroup

	for i := range subs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = e.deliverOne(ctx, env, entry, subs[i])
		}(i)
	}
	wg.Wait()

	anySuccess := false
	anyRetryable := false
	lastErr := ""
	for _, o := range outcomes {
		if o.success {
			anySuccess = true
		} else {
			if o.retryable {
				anyRetryable = true
			}
			lastErr = o.err
		}
	}

	if !anySuccess && anyRetryable {
		return e.queue.Fail(ctx, entry.ID, e.backoff.Delay(entry.Attempts), lastErr)
	}
	return e.queue.Complete(ctx, entry.ID)
}

func (e *Engine) deliverOne(ctx context.Context, env model.Envelope, entry model.QueueEntry, sub model.Subscription) outcome {
	deliveryID := util.NewULID()

	// Destination safety gate: rejected URLs are logged as failed
	// deliveries without any network call.
	if err := e.policy.Validate(ctx, sub.URL); err != nil {
		e.log.Warn("destination rejected",
			zap.Int64("subscription_id", sub.ID),
			zap.String("event", env.Event),
			zap.Error(err),
		)
		metrics.Deliveries.WithLabelValues("rejected").Inc()
		e.logs.Append(model.DeliveryRecord{
			SubscriptionID: sub.ID,
			EventID:        env.ID,
			DeliveryID:     deliveryID,
			EventType:      env.Event,
			Attempts:       0,
			Success:        false,
			Error:          err.Error(),
			CreatedAt:      time.Now().UTC(),
		})
		e.recordFailure(ctx, sub)
		return outcome{success: false, retryable: false, err: err.Error()}
	}

	res := e.client.Deliver(ctx, delivery.Request{
		URL:        sub.URL,
		Secret:     sub.Secret,
		EventType:  env.Event,
		DeliveryID: deliveryID,
		Body:       entry.Payload,
	})

	metrics.DeliveryDuration.Observe(res.Duration.Seconds())
	e.logs.Append(model.DeliveryRecord{
		SubscriptionID: sub.ID,
		EventID:        env.ID,
		DeliveryID:     deliveryID,
		EventType:      env.Event,
		Attempts:       res.Attempts,
		StatusCode:     res.StatusCode,
		DurationMs:     res.Duration.Milliseconds(),
		Success:        res.Success,
		Error:          res.Err,
		CreatedAt:      time.Now().UTC(),
	})

	if res.Success {
		metrics.Deliveries.WithLabelValues("success").Inc()
		if err := e.subs.RecordSuccess(ctx, sub.ID); err != nil {
			e.log.Error("record success", zap.Int64("subscription_id", sub.ID), zap.Error(err))
		}
		return outcome{success: true}
	}

	metrics.Deliveries.WithLabelValues("failed").Inc()
	e.recordFailure(ctx, sub)
	return outcome{success: false, retryable: !res.Terminal, err: res.Err}
}

// recordFailure bumps the subscription's consecutive-failure counter;
// one outcome per dispatch pass, never one per internal retry.
func (e *Engine) recordFailure(ctx context.Context, sub model.Subscription) {
	failures, active, err := e.subs.RecordFailure(ctx, sub.ID)
	if err != nil {
		e.log.Error("record failure", zap.Int64("subscription_id", sub.ID), zap.Error(err))
		return
	}
	if !active && failures == e.failThreshold {
		metrics.BreakerTrips.Inc()
		e.log.Warn("subscription suspended after consecutive failures",
			zap.Int64("subscription_id", sub.ID),
			zap.Int("failures", failures),
		)
	}
}
