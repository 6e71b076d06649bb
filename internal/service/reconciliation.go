package service

import (
	"context"
	"fmt"

	"github.com/castcle/wallet-engine/internal/observability"
	"go.uber.org/zap"
)

// ReconciliationService verifies ledger integrity invariants.
type ReconciliationService struct {
	store QueryStore
}

// NewReconciliationService creates a reconciliation service.
func NewReconciliationService(store QueryStore) *ReconciliationService {
	return &ReconciliationService{store: store}
}

// Run sweeps the settled ledger for two invariant violations: settled
// transactions whose output sum drifted from the input value, and owners
// whose derived spendable balance went negative. Findings are reported, not
// repaired.
func (s *ReconciliationService) Run(ctx context.Context) error {
	queries := s.store.Queries()

	violations, err := queries.ListChecksumViolations(ctx)
	if err != nil {
		return fmt.Errorf("run checksum sweep: %w", err)
	}
	for _, v := range violations {
		observability.IncrementLedgerImbalance("checksum")
		zap.L().Error("CRITICAL: settled transaction checksum violation",
			zap.String("transaction_id", v.TransactionID.String()),
			zap.String("from_value", v.FromValue.String()),
			zap.String("output_total", v.OutputTotal.String()))
	}

	negatives, err := queries.ListNegativeBalances(ctx)
	if err != nil {
		return fmt.Errorf("run negative balance sweep: %w", err)
	}
	for _, n := range negatives {
		observability.IncrementLedgerImbalance("negative_balance")
		zap.L().Error("CRITICAL: negative derived balance",
			zap.String("owner_id", n.OwnerID.String()),
			zap.String("balance", n.Balance.String()))
	}

	if len(violations) == 0 && len(negatives) == 0 {
		zap.L().Info("Ledger Balanced")
	}
	return nil
}
