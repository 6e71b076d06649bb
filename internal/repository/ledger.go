package repository

import (
	"context"
	"time"

	"github.com/castcle/wallet-engine/internal/domain"
	"github.com/castcle/wallet-engine/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger is the data access contract the services run against. *Queries
// satisfies it; tests substitute an in-memory store.
type Ledger interface {
	InsertTransaction(ctx context.Context, tx models.Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (models.Transaction, error)
	ListOldestPending(ctx context.Context, limit int32) ([]uuid.UUID, error)
	UpdateTransactionStatusFrom(ctx context.Context, id uuid.UUID, from, to domain.TxStatus, failureMessage *string) (int64, error)
	GetPersonalBalance(ctx context.Context, ownerID uuid.UUID) (decimal.Decimal, error)

	InsertCampaign(ctx context.Context, c models.Campaign) error
	GetCampaign(ctx context.Context, id uuid.UUID) (models.Campaign, error)
	GetActiveCampaign(ctx context.Context, ctype domain.CampaignType, now time.Time) (models.Campaign, error)
	DecrementCampaignBudget(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (int64, error)
	AcquireClaimLock(ctx context.Context, key string) error
	CountAirdropsByMobile(ctx context.Context, mobileNumber string) (int64, error)
	CountCampaignReferredAirdrops(ctx context.Context, campaignID, referredID uuid.UUID) (int64, error)

	InsertAuditLog(ctx context.Context, rec AuditRecord) error
	ListChecksumViolations(ctx context.Context) ([]ChecksumViolation, error)
	ListNegativeBalances(ctx context.Context) ([]NegativeBalance, error)
}

var _ Ledger = (*Queries)(nil)
