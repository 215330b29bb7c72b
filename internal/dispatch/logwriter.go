package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hookrelay/webhook-relay/internal/model"
	"github.com/hookrelay/webhook-relay/internal/repository"
)

// LogWriter batches delivery records into ClickHouse with size/time
// based flushes. Losing a batch on a hard crash is acceptable; the log
// is observability, not correctness state.
type LogWriter struct {
	repo      repository.DeliveryLogRepository
	ch        chan model.DeliveryRecord
	batchSize int
	flushWait time.Duration
	log       *zap.Logger
}

func NewLogWriter(repo repository.DeliveryLogRepository, batchSize int, flushWait time.Duration, log *zap.Logger) *LogWriter {
	if batchSize <= 0 {
		batchSize = 200
	}
	if flushWait <= 0 {
		flushWait = 500 * time.Millisecond
	}
	return &LogWriter{
		repo:      repo,
		ch:        make(chan model.DeliveryRecord, batchSize*2),
		batchSize: batchSize,
		flushWait: flushWait,
		log:       log,
	}
}

var _ LogSink = (*LogWriter)(nil)

func (w *LogWriter) Append(rec model.DeliveryRecord) {
	w.ch <- rec
}

// Run flushes until ctx is cancelled, then drains what is buffered.
func (w *LogWriter) Run(ctx context.Context) {
	tick := time.NewTicker(w.flushWait)
	defer tick.Stop()

	buf := make([]model.DeliveryRecord, 0, w.batchSize)

	flush := func(fctx context.Context) {
		if len(buf) == 0 {
			return
		}
		if err := w.repo.AppendBatch(fctx, buf); err != nil {
			w.log.Error("delivery log flush failed", zap.Int("records", len(buf)), zap.Error(err))
		}
		buf = buf[:0]
	}

	for {
		select {
		case <-ctx.Done():
			// drain without blocking, then flush on a fresh context
			for {
				select {
				case rec := <-w.ch:
					buf = append(buf, rec)
					continue
				default:
				}
				break
			}
			fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flush(fctx)
			cancel()
			return

		case rec := <-w.ch:
			buf = append(buf, rec)
			if len(buf) >= w.batchSize {
				flush(ctx)
			}

		case <-tick.C:
			flush(ctx)
		}
	}
}
