package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/castcle/wallet-engine/internal/domain"
	"github.com/castcle/wallet-engine/internal/models"
	"github.com/castcle/wallet-engine/internal/observability"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CampaignService distributes promotional rewards from shared, finite
// campaign budgets. Claims are best-effort: a missing campaign, exhausted
// budget or duplicate claim is a logged skip, never a caller-facing failure.
type CampaignService struct {
	store QueryStore
	audit *AuditService
	now   func() time.Time
}

func NewCampaignService(store QueryStore) *CampaignService {
	return &CampaignService{
		store: store,
		audit: NewAuditService(store),
		now:   time.Now,
	}
}

// CreateCampaignRequest describes a new reward pool set up by an operator.
type CreateCampaignRequest struct {
	Type            domain.CampaignType
	RewardBalance   decimal.Decimal
	RewardsPerClaim decimal.Decimal
	MaxClaims       int32
	StartDate       time.Time
	EndDate         *time.Time
	Visibility      string
}

// CreateCampaign stores a new campaign.
func (s *CampaignService) CreateCampaign(ctx context.Context, req CreateCampaignRequest) (*models.Campaign, error) {
	if req.RewardBalance.IsNegative() {
		return nil, fmt.Errorf("reward balance must not be negative, got %s", req.RewardBalance)
	}
	if !req.RewardsPerClaim.IsPositive() {
		return nil, fmt.Errorf("rewards per claim must be positive, got %s", req.RewardsPerClaim)
	}
	if req.Visibility == "" {
		req.Visibility = domain.CampaignVisibilityPublished
	}

	campaign := models.Campaign{
		ID:              uuid.New(),
		Type:            req.Type,
		RewardBalance:   req.RewardBalance,
		RewardsPerClaim: req.RewardsPerClaim,
		MaxClaims:       req.MaxClaims,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		Visibility:      req.Visibility,
	}
	if err := s.store.Queries().InsertCampaign(ctx, campaign); err != nil {
		return nil, err
	}
	return &campaign, nil
}

// GetCampaign loads one campaign.
func (s *CampaignService) GetCampaign(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	campaign, err := s.store.Queries().GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

// ClaimFriendReferral grants the friend-referral double payout: referrer and
// referred each receive rewardsPerClaim from the active campaign. The
// referred user's id is the one-shot guard key; a user can only ever be
// referred once.
func (s *CampaignService) ClaimFriendReferral(ctx context.Context, referrerID, referredID uuid.UUID) error {
	return s.grant(ctx, grantSpec{
		campaignType: domain.CampaignFriendReferral,
		lockKey:      "referral:" + referredID.String(),
		duplicate: func(cctx context.Context, q Ledger, campaign models.Campaign) (bool, error) {
			count, err := q.CountCampaignReferredAirdrops(cctx, campaign.ID, referredID)
			if err != nil {
				return false, err
			}
			return count > 0, nil
		},
		recipients: func(campaign models.Campaign) []models.WalletEndpoint {
			return []models.WalletEndpoint{
				{Kind: domain.WalletPersonal, Value: campaign.RewardsPerClaim, OwnerID: &referrerID},
				{Kind: domain.WalletPersonal, Value: campaign.RewardsPerClaim, OwnerID: &referredID},
			}
		},
		data: func(campaign models.Campaign) models.TransactionData {
			// The referred role is recorded explicitly so the duplicate guard
			// never confuses it with a referrer-side payout.
			return models.TransactionData{
				CampaignID: &campaign.ID,
				ReferrerID: &referrerID,
				ReferredID: &referredID,
				Note:       "friend referral reward",
			}
		},
	})
}

// ClaimMobileVerification grants the single mobile-verification payout. The
// claimed mobile number is the uniqueness key across all non-failed
// airdrops, so re-verifying the same number on another account grants
// nothing.
func (s *CampaignService) ClaimMobileVerification(ctx context.Context, ownerID uuid.UUID, countryCode, mobileNumber string) error {
	if mobileNumber == "" {
		return errors.New("mobile number is required")
	}
	return s.grant(ctx, grantSpec{
		campaignType: domain.CampaignVerifyMobile,
		lockKey:      "mobile:" + mobileNumber,
		duplicate: func(cctx context.Context, q Ledger, campaign models.Campaign) (bool, error) {
			count, err := q.CountAirdropsByMobile(cctx, mobileNumber)
			if err != nil {
				return false, err
			}
			return count > 0, nil
		},
		recipients: func(campaign models.Campaign) []models.WalletEndpoint {
			return []models.WalletEndpoint{
				{Kind: domain.WalletPersonal, Value: campaign.RewardsPerClaim, OwnerID: &ownerID},
			}
		},
		data: func(campaign models.Campaign) models.TransactionData {
			return models.TransactionData{
				CampaignID:   &campaign.ID,
				MobileNumber: mobileNumber,
				CountryCode:  countryCode,
				Note:         "mobile verification reward",
			}
		},
	})
}

type grantSpec struct {
	campaignType domain.CampaignType
	lockKey      string
	duplicate    func(ctx context.Context, q Ledger, campaign models.Campaign) (bool, error)
	recipients   func(campaign models.Campaign) []models.WalletEndpoint
	data         func(campaign models.Campaign) models.TransactionData
}

// grant runs one claim. The claim lock serializes concurrent claims on the
// same guard key, the duplicate check runs after the lock, and the budget
// decrement is a single conditional arithmetic update: either the airdrop
// row and the decrement both commit, or neither does.
func (s *CampaignService) grant(ctx context.Context, spec grantSpec) error {
	err := s.store.RunInTx(ctx, func(q Ledger) error {
		if err := q.AcquireClaimLock(ctx, spec.lockKey); err != nil {
			return err
		}

		campaign, err := q.GetActiveCampaign(ctx, spec.campaignType, s.now())
		if err != nil {
			return err
		}

		dup, err := spec.duplicate(ctx, q, campaign)
		if err != nil {
			return err
		}
		if dup {
			return models.ErrDuplicateClaim
		}

		recipients := spec.recipients(campaign)
		total := decimal.Zero
		for _, out := range recipients {
			total = total.Add(out.Value)
		}

		rows, err := q.DecrementCampaignBudget(ctx, campaign.ID, total)
		if err != nil {
			return err
		}
		if rows == 0 {
			return models.ErrBudgetExhausted
		}

		tx := models.Transaction{
			ID:     uuid.New(),
			Type:   domain.TxTypeAirdrop,
			Status: domain.TxStatusPending,
			From:   models.WalletEndpoint{Kind: domain.WalletCastcleAirdrop, Value: total},
			To:     recipients,
			Data:   spec.data(campaign),
		}
		if err := q.InsertTransaction(ctx, tx); err != nil {
			return err
		}
		return s.audit.Write(ctx, q, tx.ID, "airdrop_granted", "", domain.TxStatusPending, nil, nil)
	})

	switch {
	case err == nil:
		observability.IncrementCampaignClaim(string(spec.campaignType), "granted")
		return nil
	case errors.Is(err, models.ErrCampaignNotFound):
		observability.IncrementCampaignClaim(string(spec.campaignType), "no_active_campaign")
		zap.L().Info("reward claim skipped: no active campaign", zap.String("campaign_type", string(spec.campaignType)))
		return nil
	case errors.Is(err, models.ErrBudgetExhausted):
		observability.IncrementCampaignClaim(string(spec.campaignType), "budget_exhausted")
		zap.L().Info("reward claim skipped: budget exhausted", zap.String("campaign_type", string(spec.campaignType)))
		return nil
	case errors.Is(err, models.ErrDuplicateClaim):
		observability.IncrementCampaignClaim(string(spec.campaignType), "duplicate")
		zap.L().Info("reward claim skipped: duplicate", zap.String("campaign_type", string(spec.campaignType)), zap.String("lock_key", spec.lockKey))
		return nil
	default:
		return err
	}
}
