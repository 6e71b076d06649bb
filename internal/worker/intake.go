package worker

import (
	"context"
	"sync"
	"time"

	"github.com/castcle/wallet-engine/internal/observability"
	"github.com/castcle/wallet-engine/internal/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// VerifyQueue is the durable queue the intake loop feeds.
type VerifyQueue interface {
	Enqueue(ctx context.Context, transactionID uuid.UUID) (queue.Job, error)
	Depth(ctx context.Context) (int64, error)
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// PendingLister surfaces the oldest unverified transactions.
type PendingLister interface {
	ListOldestPending(ctx context.Context, limit int32) ([]uuid.UUID, error)
}

// IntakeWorker moves PENDING transactions from the ledger onto the
// verification queue on a fixed schedule. A tick with outstanding queue work
// enqueues nothing, so the queue never holds more than one batch and a slow
// verifier never gets buried. Each tick first sweeps jobs abandoned by
// crashed workers back onto the queue, so an orphaned job cannot hold the
// backpressure check open forever.
type IntakeWorker struct {
	pending    PendingLister
	queue      VerifyQueue
	interval   time.Duration
	batchSize  int32
	staleAfter time.Duration
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// NewIntakeWorker constructs an intake worker with the default five minute
// schedule and batch of five.
func NewIntakeWorker(pending PendingLister, q VerifyQueue) *IntakeWorker {
	return &IntakeWorker{
		pending:    pending,
		queue:      q,
		interval:   5 * time.Minute,
		batchSize:  5,
		staleAfter: 15 * time.Minute,
		stopCh:     make(chan struct{}),
	}
}

// WithInterval updates the tick interval.
func (w *IntakeWorker) WithInterval(interval time.Duration) *IntakeWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// WithBatchSize updates the per-tick batch limit.
func (w *IntakeWorker) WithBatchSize(size int32) *IntakeWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// WithStaleAfter updates how long an in-flight job may sit unacknowledged
// before the sweep requeues it.
func (w *IntakeWorker) WithStaleAfter(d time.Duration) *IntakeWorker {
	if d > 0 {
		w.staleAfter = d
	}
	return w
}

// Start blocks and runs the intake loop until Stop or context cancellation.
func (w *IntakeWorker) Start(ctx context.Context) {
	zap.L().Info("intake worker starting", zap.Duration("interval", w.interval), zap.Int32("batch_size", w.batchSize))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("intake worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("intake worker stop signal received")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *IntakeWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *IntakeWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// RunOnce performs a single intake tick. Exported for manual triggering.
func (w *IntakeWorker) RunOnce(ctx context.Context) {
	reclaimed, err := w.queue.ReclaimStale(ctx, w.staleAfter)
	if err != nil {
		observability.IncrementWorkerRun("intake", "failed")
		zap.L().Error("intake stale sweep failed", zap.Error(err))
		return
	}
	if reclaimed > 0 {
		zap.L().Warn("stale verification jobs requeued", zap.Int("count", reclaimed))
	}

	depth, err := w.queue.Depth(ctx)
	if err != nil {
		observability.IncrementWorkerRun("intake", "failed")
		zap.L().Error("intake depth check failed", zap.Error(err))
		return
	}
	observability.SetQueueDepth("verify", depth)
	if depth > 0 {
		observability.IncrementWorkerRun("intake", "skipped")
		zap.L().Debug("intake skipped, queue busy", zap.Int64("depth", depth))
		return
	}

	ids, err := w.pending.ListOldestPending(ctx, w.batchSize)
	if err != nil {
		observability.IncrementWorkerRun("intake", "failed")
		zap.L().Error("intake pending scan failed", zap.Error(err))
		return
	}

	enqueued := 0
	for _, id := range ids {
		job, err := w.queue.Enqueue(ctx, id)
		if err != nil {
			observability.IncrementWorkerRun("intake", "failed")
			zap.L().Error("intake enqueue failed", zap.Error(err), zap.String("transaction_id", id.String()))
			return
		}
		enqueued++
		zap.L().Info("transaction queued for verification",
			zap.String("job_id", job.ID),
			zap.String("transaction_id", id.String()))
	}

	observability.IncrementWorkerRun("intake", "success")
	if enqueued > 0 {
		zap.L().Info("intake batch enqueued", zap.Int("count", enqueued))
	}
}
