package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/castcle/wallet-engine/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	payoutKey        = keyPrefix + ":payout:pending"
	payoutMarkPrefix = keyPrefix + ":payout:published:"
	payoutMarkTTL    = 7 * 24 * time.Hour
)

// PayoutQueue hands WITHDRAWING transactions to the downstream payout
// worker. Delivery is at-least-once: a published mark per transaction id
// suppresses duplicates from redelivered verification jobs, and the payout
// worker deduplicates by transaction id for the rare window the mark misses.
type PayoutQueue struct {
	rdb redis.Cmdable
}

func NewPayoutQueue(rdb redis.Cmdable) *PayoutQueue {
	return &PayoutQueue{rdb: rdb}
}

// PublishWithdraw enqueues the full transaction record for the external
// payout worker. The job is pushed before the published mark is written: a
// crash mid-publish can at worst produce a duplicate job on the next
// delivery, never a silently dropped one.
func (p *PayoutQueue) PublishWithdraw(ctx context.Context, tx models.Transaction) error {
	mark := payoutMarkPrefix + tx.ID.String()
	published, err := p.rdb.Exists(ctx, mark).Result()
	if err != nil {
		return fmt.Errorf("check payout mark: %w", err)
	}
	if published > 0 {
		// Already handed off by a previous delivery of the same job.
		return nil
	}

	payload, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal payout job: %w", err)
	}
	if err := p.rdb.LPush(ctx, payoutKey, payload).Err(); err != nil {
		return fmt.Errorf("enqueue payout job: %w", err)
	}

	if err := p.rdb.Set(ctx, mark, 1, payoutMarkTTL).Err(); err != nil {
		// The job is already on the list; a redelivery may push a duplicate
		// for the payout worker to dedup, so the handoff itself is safe.
		zap.L().Warn("payout mark write failed",
			zap.Error(err),
			zap.String("transaction_id", tx.ID.String()))
	}
	return nil
}
