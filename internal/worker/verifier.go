package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/castcle/wallet-engine/internal/domain"
	"github.com/castcle/wallet-engine/internal/observability"
	"github.com/castcle/wallet-engine/internal/queue"
	"github.com/castcle/wallet-engine/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobSource is the consuming side of the durable queue.
type JobSource interface {
	Reserve(ctx context.Context, wait time.Duration) (*queue.Delivery, error)
	Ack(ctx context.Context, d *queue.Delivery) error
	Retry(ctx context.Context, d *queue.Delivery) error
}

// Processor runs the verification pipeline for one queued transaction.
type Processor interface {
	Process(ctx context.Context, jobID string, transactionID uuid.UUID) (service.ProcessResult, error)
}

// CompletionHook receives the verdict of every finished job, success or
// failure.
type CompletionHook interface {
	JobCompleted(ctx context.Context, jobID string, transactionID uuid.UUID, status domain.TxStatus, failureMessage *string)
}

// VerifierWorker consumes the verification queue. A job that produced a
// verdict is acked even when the verdict is FAILED; only infrastructure
// faults send a job back for redelivery.
type VerifierWorker struct {
	source    JobSource
	processor Processor
	completed CompletionHook
	wait      time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
}

func NewVerifierWorker(source JobSource, processor Processor, completed CompletionHook) *VerifierWorker {
	return &VerifierWorker{
		source:    source,
		processor: processor,
		completed: completed,
		wait:      5 * time.Second,
		stopCh:    make(chan struct{}),
	}
}

// WithReserveWait updates how long one reserve call blocks for a job.
func (w *VerifierWorker) WithReserveWait(wait time.Duration) *VerifierWorker {
	if wait > 0 {
		w.wait = wait
	}
	return w
}

// Start blocks and consumes jobs until Stop or context cancellation.
func (w *VerifierWorker) Start(ctx context.Context) {
	zap.L().Info("verifier worker starting", zap.Duration("reserve_wait", w.wait))
	for {
		select {
		case <-ctx.Done():
			zap.L().Info("verifier worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("verifier worker stop signal received")
			return
		default:
			w.consumeOne(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *VerifierWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *VerifierWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *VerifierWorker) consumeOne(ctx context.Context) {
	delivery, err := w.source.Reserve(ctx, w.wait)
	if err != nil {
		if errors.Is(err, queue.ErrEmpty) || errors.Is(err, context.Canceled) {
			return
		}
		observability.IncrementWorkerRun("verifier", "failed")
		zap.L().Error("reserve verification job failed", zap.Error(err))
		return
	}

	job := delivery.Job
	result, err := w.processor.Process(ctx, job.ID, job.TransactionID)
	if err != nil {
		// Infrastructure fault: the transaction is still PENDING, so the
		// job goes back for another delivery.
		observability.IncrementWorkerRun("verifier", "retried")
		zap.L().Warn("verification job failed, retrying",
			zap.Error(err),
			zap.String("job_id", job.ID),
			zap.String("transaction_id", job.TransactionID.String()),
			zap.Int("attempts", job.Attempts))
		if retryErr := w.source.Retry(ctx, delivery); retryErr != nil {
			zap.L().Error("retry requeue failed", zap.Error(retryErr), zap.String("job_id", job.ID))
		}
		return
	}

	if ackErr := w.source.Ack(ctx, delivery); ackErr != nil {
		// The verdict is committed; a redelivery will observe the settled
		// status and no-op.
		zap.L().Error("ack failed after settled verdict", zap.Error(ackErr), zap.String("job_id", job.ID))
	}

	w.completed.JobCompleted(ctx, job.ID, job.TransactionID, result.Status, result.FailureMessage)
	observability.IncrementWorkerRun("verifier", "success")
}
