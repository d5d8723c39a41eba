package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/enroll-cli/internal/account"
	"github.com/xkilldash9x/enroll-cli/internal/orchestrator"
)

const persistTimeout = 30 * time.Second

type record struct {
	batchID string
	snap    account.Snapshot
	result  *account.BatchResult
}

// AsyncRecorder decouples persistence from the attempt loop. Records are
// queued and written by a single goroutine in arrival order, so a slow
// database never stalls the browser.
type AsyncRecorder struct {
	target orchestrator.Recorder
	queue  chan record
	wg     sync.WaitGroup
	once   sync.Once
	logger *zap.Logger
}

// NewAsyncRecorder starts the consumer goroutine. Call Close when the run is
// over.
func NewAsyncRecorder(target orchestrator.Recorder, buffer int, logger *zap.Logger) *AsyncRecorder {
	if buffer < 1 {
		buffer = 1
	}
	r := &AsyncRecorder{
		target: target,
		queue:  make(chan record, buffer),
		logger: logger.Named("recorder"),
	}
	r.wg.Add(1)
	go r.consume()
	return r
}

// RecordAttempt queues a snapshot.
func (r *AsyncRecorder) RecordAttempt(ctx context.Context, batchID string, snap account.Snapshot) error {
	return r.enqueue(ctx, record{batchID: batchID, snap: snap})
}

// RecordBatch queues the final batch result.
func (r *AsyncRecorder) RecordBatch(ctx context.Context, batchID string, result account.BatchResult) error {
	return r.enqueue(ctx, record{batchID: batchID, result: &result})
}

func (r *AsyncRecorder) enqueue(ctx context.Context, rec record) error {
	select {
	case r.queue <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting records and waits up to timeout for the queue to
// drain. It reports whether everything was written.
func (r *AsyncRecorder) Close(timeout time.Duration) bool {
	r.once.Do(func() { close(r.queue) })
	return timedWait(&r.wg, timeout)
}

func (r *AsyncRecorder) consume() {
	defer r.wg.Done()
	for rec := range r.queue {
		r.persist(rec)
	}
}

func (r *AsyncRecorder) persist(rec record) {
	// Persistence outlives the run context so an interrupt still saves
	// what was queued.
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if rec.result != nil {
		if err := r.target.RecordBatch(ctx, rec.batchID, *rec.result); err != nil {
			r.logger.Error("Failed to persist batch.", zap.String("batch_id", rec.batchID), zap.Error(err))
		}
		return
	}
	if err := r.target.RecordAttempt(ctx, rec.batchID, rec.snap); err != nil {
		r.logger.Error("Failed to persist attempt.",
			zap.String("batch_id", rec.batchID),
			zap.String("email", rec.snap.Email),
			zap.Error(err))
	}
}
