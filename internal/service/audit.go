package service

import (
	"context"
	"fmt"

	"github.com/castcle/wallet-engine/internal/domain"
	"github.com/castcle/wallet-engine/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuditService writes the durable audit trail: one row plus one structured
// log line per recorded event.
type AuditService struct {
	store QueryStore
}

func NewAuditService(store QueryStore) *AuditService {
	return &AuditService{store: store}
}

// Write stores a single immutable audit record inside the caller's
// transaction scope.
func (s *AuditService) Write(ctx context.Context, q Ledger, transactionID uuid.UUID, action string, prevStatus, nextStatus domain.TxStatus, failureMessage *string, jobID *string) error {
	if err := q.InsertAuditLog(ctx, repository.AuditRecord{
		JobID:          jobID,
		TransactionID:  transactionID,
		Action:         action,
		PrevStatus:     statusParam(prevStatus),
		NextStatus:     statusParam(nextStatus),
		FailureMessage: failureMessage,
	}); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// JobCompleted is the worker completion hook. It records the job verdict on
// every path, success or failure; an audit write error is logged but never
// propagated so it cannot mask the job outcome.
func (s *AuditService) JobCompleted(ctx context.Context, jobID string, transactionID uuid.UUID, status domain.TxStatus, failureMessage *string) {
	fields := []zap.Field{
		zap.String("job_id", jobID),
		zap.String("transaction_id", transactionID.String()),
		zap.String("status", string(status)),
	}
	if failureMessage != nil {
		fields = append(fields, zap.String("failure_message", *failureMessage))
	}
	zap.L().Info("transaction job completed", fields...)

	if err := s.store.Queries().InsertAuditLog(ctx, repository.AuditRecord{
		JobID:          &jobID,
		TransactionID:  transactionID,
		Action:         "job_completed",
		NextStatus:     statusParam(status),
		FailureMessage: failureMessage,
	}); err != nil {
		zap.L().Error("audit record write failed", zap.Error(err), zap.String("job_id", jobID))
	}
}

func statusParam(s domain.TxStatus) *string {
	if s == "" {
		return nil
	}
	v := string(s)
	return &v
}
