package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/castcle/wallet-engine/internal/domain"
	"github.com/castcle/wallet-engine/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestQueueKeyLayout(t *testing.T) {
	q := New(nil, "verify", 3)
	require.Equal(t, "wallet:queue:verify:pending", q.pendingKey())
	require.Equal(t, "wallet:queue:verify:processing", q.processingKey())
	require.Equal(t, "wallet:queue:verify:dead", q.deadKey())
}

func TestNewBoundsMaxAttempts(t *testing.T) {
	q := New(nil, "verify", 0)
	require.Equal(t, 3, q.maxAttempts)
}

func TestEnqueueReserveAck(t *testing.T) {
	_, client := newTestRedis(t)
	q := New(client, "verify", 3)
	ctx := context.Background()
	txID := uuid.New()

	job, err := q.Enqueue(ctx, txID)
	require.NoError(t, err)
	require.Equal(t, txID, job.TransactionID)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, depth)

	d, err := q.Reserve(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, job.ID, d.Job.ID)
	require.Equal(t, txID, d.Job.TransactionID)

	// In-flight work still counts as outstanding.
	depth, err = q.Depth(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, depth)

	require.NoError(t, q.Ack(ctx, d))
	depth, err = q.Depth(ctx)
	require.NoError(t, err)
	require.Zero(t, depth)
}

func TestReserveEmptyReturnsErrEmpty(t *testing.T) {
	_, client := newTestRedis(t)
	q := New(client, "verify", 3)

	_, err := q.Reserve(context.Background(), time.Second)
	require.ErrorIs(t, err, ErrEmpty)
}

func TestRetryRedeliversUntilDeadLetter(t *testing.T) {
	_, client := newTestRedis(t)
	q := New(client, "verify", 2)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, uuid.New())
	require.NoError(t, err)

	d, err := q.Reserve(ctx, time.Second)
	require.NoError(t, err)
	require.NoError(t, q.Retry(ctx, d))

	d, err = q.Reserve(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, d.Job.Attempts)
	require.NoError(t, q.Retry(ctx, d))

	// Second retry hits the attempt bound: the job is dead-lettered and no
	// longer counts as outstanding work.
	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	require.Zero(t, depth)
	require.EqualValues(t, 1, client.LLen(ctx, "wallet:queue:verify:dead").Val())
}

func TestRetryAfterAckIsNoOp(t *testing.T) {
	_, client := newTestRedis(t)
	q := New(client, "verify", 3)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, uuid.New())
	require.NoError(t, err)
	d, err := q.Reserve(ctx, time.Second)
	require.NoError(t, err)
	require.NoError(t, q.Ack(ctx, d))

	require.NoError(t, q.Retry(ctx, d))
	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	require.Zero(t, depth)
	require.Zero(t, client.LLen(ctx, "wallet:queue:verify:dead").Val())
}

func TestReclaimStaleRequeuesCrashedWorkerJob(t *testing.T) {
	_, client := newTestRedis(t)
	q := New(client, "verify", 3)
	ctx := context.Background()
	txID := uuid.New()

	_, err := q.Enqueue(ctx, txID)
	require.NoError(t, err)

	// Reserved but never acked: the worker died mid-job.
	_, err = q.Reserve(ctx, time.Second)
	require.NoError(t, err)

	reclaimed, err := q.ReclaimStale(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, reclaimed)

	d, err := q.Reserve(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, txID, d.Job.TransactionID)
	require.Equal(t, 1, d.Job.Attempts)
	require.NoError(t, q.Ack(ctx, d))

	// Outstanding count drains to zero, so intake backpressure clears.
	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	require.Zero(t, depth)
}

func TestReclaimStaleLeavesFreshJobsAlone(t *testing.T) {
	_, client := newTestRedis(t)
	q := New(client, "verify", 3)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, uuid.New())
	require.NoError(t, err)
	_, err = q.Reserve(ctx, time.Second)
	require.NoError(t, err)

	reclaimed, err := q.ReclaimStale(ctx, time.Hour)
	require.NoError(t, err)
	require.Zero(t, reclaimed)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, depth)
}

func TestPublishWithdrawOncePerTransaction(t *testing.T) {
	_, client := newTestRedis(t)
	pq := NewPayoutQueue(client)
	ctx := context.Background()
	tx := models.Transaction{
		ID:     uuid.New(),
		Type:   domain.TxTypeWithdraw,
		Status: domain.TxStatusWithdrawing,
	}

	require.NoError(t, pq.PublishWithdraw(ctx, tx))
	// A redelivered verification job publishes again; the mark dedups it.
	require.NoError(t, pq.PublishWithdraw(ctx, tx))

	require.EqualValues(t, 1, client.LLen(ctx, payoutKey).Val())

	var got models.Transaction
	raw, err := client.LIndex(ctx, payoutKey, 0).Result()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	require.Equal(t, tx.ID, got.ID)
}

// dropWrites simulates a connection dying on list writes and cleanup while
// reads still succeed.
type dropWrites struct{}

func (dropWrites) DialHook(next redis.DialHook) redis.DialHook { return next }

func (dropWrites) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		switch cmd.Name() {
		case "lpush", "del":
			err := errors.New("connection reset")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (dropWrites) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestPublishWithdrawFailedPushStaysRetryable(t *testing.T) {
	mr, _ := newTestRedis(t)
	ctx := context.Background()
	tx := models.Transaction{
		ID:     uuid.New(),
		Type:   domain.TxTypeWithdraw,
		Status: domain.TxStatusWithdrawing,
	}

	faulty := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { faulty.Close() })
	faulty.AddHook(dropWrites{})
	require.Error(t, NewPayoutQueue(faulty).PublishWithdraw(ctx, tx))

	// A failed publish must not leave a mark behind: the next delivery on a
	// healthy connection emits the job.
	healthy := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { healthy.Close() })
	require.NoError(t, NewPayoutQueue(healthy).PublishWithdraw(ctx, tx))
	require.EqualValues(t, 1, healthy.LLen(ctx, payoutKey).Val())
}
