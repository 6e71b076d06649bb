package service

import (
	"context"
	"fmt"

	"github.com/castcle/wallet-engine/internal/domain"
	"github.com/google/uuid"
)

// transactionTransitions is the closed transition table. PENDING is consumed
// exactly once; FAILED and VERIFIED are terminal except the status-only
// VERIFIED -> WITHDRAWING handoff.
var transactionTransitions = map[domain.TxStatus]map[domain.TxStatus]struct{}{
	domain.TxStatusPending: {
		domain.TxStatusVerified:    {},
		domain.TxStatusFailed:      {},
		domain.TxStatusWithdrawing: {},
	},
	domain.TxStatusVerified: {
		domain.TxStatusWithdrawing: {},
	},
	domain.TxStatusFailed:      {},
	domain.TxStatusWithdrawing: {},
}

func canTransition(current, next domain.TxStatus) bool {
	nextStates, ok := transactionTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

// transitionTransactionStatus applies one validated status transition. The
// update is conditioned on the current status, so a duplicate delivery of
// the same job observes zero affected rows and reports no transition rather
// than double-applying. Returns whether this call performed the move.
func transitionTransactionStatus(ctx context.Context, q Ledger, audit *AuditService, transactionID uuid.UUID, current, next domain.TxStatus, failureMessage *string, jobID *string) (bool, error) {
	if current == next {
		return false, nil
	}
	if !canTransition(current, next) {
		return false, fmt.Errorf("invalid transaction status transition: %s -> %s", current, next)
	}

	rows, err := q.UpdateTransactionStatusFrom(ctx, transactionID, current, next, failureMessage)
	if err != nil {
		return false, fmt.Errorf("update transaction status: %w", err)
	}
	if rows == 0 {
		// Another worker already moved this transaction on.
		return false, nil
	}

	if err := audit.Write(ctx, q, transactionID, "status_transition", current, next, failureMessage, jobID); err != nil {
		return false, err
	}
	return true, nil
}
