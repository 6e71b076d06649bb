// Package queue implements the durable work queue the scheduler and workers
// communicate through. Jobs live in Redis lists: pending for undelivered
// work, processing for in-flight deliveries, dead for jobs that exhausted
// their retry budget. Jobs abandoned on the processing list by a crashed
// worker are swept back to pending by ReclaimStale. Delivery is
// at-least-once; consumers must be idempotent.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "wallet:queue"

// ErrEmpty is returned by Reserve when no job arrived within the wait window.
var ErrEmpty = errors.New("queue empty")

// Job is one unit of verification work.
type Job struct {
	ID            string    `json:"id"`
	TransactionID uuid.UUID `json:"transactionId"`
	Attempts      int       `json:"attempts"`
	EnqueuedAt    time.Time `json:"enqueuedAt"`
}

// Delivery is a reserved job together with the raw payload needed to ack or
// retry it.
type Delivery struct {
	Job Job
	raw string
}

// Queue is a named durable queue.
type Queue struct {
	rdb         redis.Cmdable
	name        string
	maxAttempts int
}

// New creates a queue. maxAttempts bounds redeliveries before a job is
// dead-lettered.
func New(rdb redis.Cmdable, name string, maxAttempts int) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Queue{rdb: rdb, name: name, maxAttempts: maxAttempts}
}

func (q *Queue) pendingKey() string    { return fmt.Sprintf("%s:%s:pending", keyPrefix, q.name) }
func (q *Queue) processingKey() string { return fmt.Sprintf("%s:%s:processing", keyPrefix, q.name) }
func (q *Queue) deadKey() string       { return fmt.Sprintf("%s:%s:dead", keyPrefix, q.name) }

// Enqueue appends a new job for the given transaction.
func (q *Queue) Enqueue(ctx context.Context, transactionID uuid.UUID) (Job, error) {
	job := Job{
		ID:            uuid.NewString(),
		TransactionID: transactionID,
		EnqueuedAt:    time.Now().UTC(),
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return Job{}, fmt.Errorf("marshal job: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.pendingKey(), payload).Err(); err != nil {
		return Job{}, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

// Depth returns the number of outstanding jobs: undelivered plus in-flight.
// The intake loop uses this as its backpressure signal.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	pending, err := q.rdb.LLen(ctx, q.pendingKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("pending depth: %w", err)
	}
	processing, err := q.rdb.LLen(ctx, q.processingKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("processing depth: %w", err)
	}
	return pending + processing, nil
}

// Reserve blocks up to wait for a job, atomically moving it from pending to
// processing so a crashed worker's job stays recoverable via ReclaimStale.
func (q *Queue) Reserve(ctx context.Context, wait time.Duration) (*Delivery, error) {
	raw, err := q.rdb.BLMove(ctx, q.pendingKey(), q.processingKey(), "RIGHT", "LEFT", wait).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("reserve job: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		// A payload we cannot decode can never succeed; dead-letter it.
		q.rdb.LRem(ctx, q.processingKey(), 1, raw)
		q.rdb.LPush(ctx, q.deadKey(), raw)
		return nil, fmt.Errorf("decode job payload: %w", err)
	}
	return &Delivery{Job: job, raw: raw}, nil
}

// Ack removes a completed delivery from the processing list.
func (q *Queue) Ack(ctx context.Context, d *Delivery) error {
	if err := q.rdb.LRem(ctx, q.processingKey(), 1, d.raw).Err(); err != nil {
		return fmt.Errorf("ack job: %w", err)
	}
	return nil
}

// Retry requeues a delivery after an infrastructure fault. The job keeps its
// id so a redelivery stays traceable; once attempts reach the bound the job
// is dead-lettered instead. A delivery no longer on the processing list was
// already acked or reclaimed and is left alone.
func (q *Queue) Retry(ctx context.Context, d *Delivery) error {
	removed, err := q.rdb.LRem(ctx, q.processingKey(), 1, d.raw).Result()
	if err != nil {
		return fmt.Errorf("remove job for retry: %w", err)
	}
	if removed == 0 {
		return nil
	}

	job := d.Job
	job.Attempts++
	job.EnqueuedAt = time.Now().UTC()
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal retried job: %w", err)
	}

	target := q.pendingKey()
	if job.Attempts >= q.maxAttempts {
		target = q.deadKey()
	}
	if err := q.rdb.LPush(ctx, target, payload).Err(); err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	return nil
}

// ReclaimStale routes processing entries older than olderThan back through
// the retry path. A worker that dies between Reserve and Ack leaves its job
// on the processing list; without the sweep the job would sit there forever
// and its Depth contribution would back the intake loop off indefinitely.
// The bounded attempt count still applies, so a job that keeps stalling
// workers ends up dead-lettered rather than looping.
func (q *Queue) ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error) {
	raws, err := q.rdb.LRange(ctx, q.processingKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("scan processing list: %w", err)
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	reclaimed := 0
	for _, raw := range raws {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			q.rdb.LRem(ctx, q.processingKey(), 1, raw)
			q.rdb.LPush(ctx, q.deadKey(), raw)
			continue
		}
		if job.EnqueuedAt.After(cutoff) {
			continue
		}
		// Retry refreshes the timestamp, so a reclaimed job is not swept
		// again until it goes stale a second time.
		if err := q.Retry(ctx, &Delivery{Job: job, raw: raw}); err != nil {
			return reclaimed, err
		}
		reclaimed++
	}
	return reclaimed, nil
}
