package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/castcle/wallet-engine/internal/domain"
	"github.com/castcle/wallet-engine/internal/models"
	"github.com/castcle/wallet-engine/internal/observability"
	"github.com/castcle/wallet-engine/internal/verification"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PayoutPublisher hands settled withdrawals to the downstream payout worker.
type PayoutPublisher interface {
	PublishWithdraw(ctx context.Context, tx models.Transaction) error
}

// TransactionService owns the transaction lifecycle: intake of tentative
// transfers and withdrawals, balance queries, and the verification step the
// queue workers invoke.
type TransactionService struct {
	store   QueryStore
	payouts PayoutPublisher
	audit   *AuditService
}

func NewTransactionService(store QueryStore, payouts PayoutPublisher) *TransactionService {
	return &TransactionService{
		store:   store,
		payouts: payouts,
		audit:   NewAuditService(store),
	}
}

// CreateTransactionRequest describes a tentative SEND or WITHDRAW movement.
// The caller has already performed user-facing authorization; the engine
// only appends it in PENDING and lets the pipeline decide.
type CreateTransactionRequest struct {
	Type domain.TxType
	From models.WalletEndpoint
	To   []models.WalletEndpoint
	Data models.TransactionData
}

func (r CreateTransactionRequest) validate() error {
	switch r.Type {
	case domain.TxTypeSend, domain.TxTypeWithdraw:
	default:
		return fmt.Errorf("unsupported transaction type: %s", r.Type)
	}
	if !r.From.Value.IsPositive() {
		return fmt.Errorf("from value must be positive, got %s", r.From.Value)
	}
	if r.From.OwnerID == nil {
		return errors.New("from.ownerId is required")
	}
	if len(r.To) == 0 {
		return errors.New("at least one recipient is required")
	}
	for i, out := range r.To {
		if !out.Value.IsPositive() {
			return fmt.Errorf("to[%d].value must be positive, got %s", i, out.Value)
		}
	}
	return nil
}

// Create appends a new PENDING transaction to the ledger. Verification is
// asynchronous: the returned record reflects the tentative state only.
func (s *TransactionService) Create(ctx context.Context, req CreateTransactionRequest) (*models.Transaction, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	tx := models.Transaction{
		ID:     uuid.New(),
		Type:   req.Type,
		Status: domain.TxStatusPending,
		From:   req.From,
		To:     req.To,
		Data:   req.Data,
	}

	err := s.store.RunInTx(ctx, func(q Ledger) error {
		if err := q.InsertTransaction(ctx, tx); err != nil {
			return err
		}
		return s.audit.Write(ctx, q, tx.ID, "created", "", domain.TxStatusPending, nil, nil)
	})
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetTransaction returns the transaction with its current status.
func (s *TransactionService) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	tx, err := s.store.Queries().GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetBalance derives the owner's spendable PERSONAL balance from verified
// ledger history. Owners with no history get zero, never an error.
func (s *TransactionService) GetBalance(ctx context.Context, ownerID uuid.UUID) (decimal.Decimal, error) {
	balance, err := s.store.Queries().GetPersonalBalance(ctx, ownerID)
	if err != nil {
		return decimal.Zero, err
	}
	if balance.IsNegative() {
		// The ledger invariant says this cannot happen; surface it loudly
		// but never hand a negative balance to a caller.
		zap.L().Error("derived negative balance", zap.String("owner_id", ownerID.String()), zap.String("balance", balance.String()))
		return decimal.Zero, nil
	}
	return balance, nil
}

// ProcessResult is the verdict of one verification job.
type ProcessResult struct {
	Status         domain.TxStatus
	FailureMessage *string
	// Transitioned is false when a duplicate delivery found the
	// transaction already settled.
	Transitioned bool
}

// Process runs the verification pipeline for one PENDING transaction and
// applies its single status-transition write. The balance snapshot and the
// status write share one database transaction, so there is no window between
// the sufficiency check and the commit. Errors returned here are
// infrastructure faults: the transaction stays PENDING and the queue retries.
func (s *TransactionService) Process(ctx context.Context, jobID string, transactionID uuid.UUID) (ProcessResult, error) {
	var (
		result ProcessResult
		record models.Transaction
	)

	err := s.store.RunInTx(ctx, func(q Ledger) error {
		tx, err := q.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		record = tx

		if tx.Status != domain.TxStatusPending {
			// Duplicate delivery: the transition already happened.
			result = ProcessResult{Status: tx.Status, FailureMessage: tx.FailureMessage}
			return nil
		}

		snap, err := s.buildSnapshot(ctx, q, tx)
		if err != nil {
			return err
		}

		verdict := verification.Run(tx, snap)
		next := domain.TxStatusFailed
		var failureMessage *string
		if verdict.OK() {
			next = domain.TxStatusVerified
			if tx.HasExternalWithdraw() {
				next = domain.TxStatusWithdrawing
			}
		} else {
			msg := verdict.FailureMessage
			failureMessage = &msg
		}

		transitioned, err := transitionTransactionStatus(ctx, q, s.audit, tx.ID, domain.TxStatusPending, next, failureMessage, &jobID)
		if err != nil {
			return err
		}

		record.Status = next
		record.FailureMessage = failureMessage
		result = ProcessResult{Status: next, FailureMessage: failureMessage, Transitioned: transitioned}
		return nil
	})
	if err != nil {
		return ProcessResult{}, err
	}

	observability.IncrementVerification(string(result.Status))

	// The payout handoff is idempotent per transaction id, so re-publishing
	// on a duplicate delivery repairs a handoff lost between the status
	// commit and the enqueue without ever emitting a second job.
	if result.Status == domain.TxStatusWithdrawing {
		if err := s.payouts.PublishWithdraw(ctx, record); err != nil {
			return ProcessResult{}, fmt.Errorf("publish withdraw handoff: %w", err)
		}
		observability.IncrementPayoutHandoff()
	}

	return result, nil
}

// buildSnapshot gathers the single consistent read the pipeline verifies
// against.
func (s *TransactionService) buildSnapshot(ctx context.Context, q Ledger, tx models.Transaction) (verification.Snapshot, error) {
	var snap verification.Snapshot

	if tx.From.Kind == domain.WalletPersonal && tx.From.OwnerID != nil {
		balance, err := q.GetPersonalBalance(ctx, *tx.From.OwnerID)
		if err != nil {
			return snap, fmt.Errorf("snapshot sender balance: %w", err)
		}
		snap.SenderBalance = balance
	}

	if tx.Type == domain.TxTypeAirdrop && tx.Data.CampaignID != nil {
		campaign, err := q.GetCampaign(ctx, *tx.Data.CampaignID)
		if err != nil {
			if errors.Is(err, models.ErrCampaignNotFound) {
				// Budget stays zero; sufficiency fails downstream.
				return snap, nil
			}
			return snap, fmt.Errorf("snapshot campaign budget: %w", err)
		}
		// The distributor reserved this transaction's share at grant time,
		// so add it back: the re-check must see the pre-reservation budget
		// or the claim would fail against its own reservation.
		snap.CampaignBudget = campaign.RewardBalance.Add(tx.TotalOut())
	}

	return snap, nil
}
