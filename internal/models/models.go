package models

import (
	"time"

	"github.com/castcle/wallet-engine/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletEndpoint is one side of a monetary movement. Internal endpoints carry
// an owner id; external payout destinations carry an address and chain id.
type WalletEndpoint struct {
	Kind    domain.WalletKind `json:"walletKind"`
	Value   decimal.Decimal   `json:"value"`
	OwnerID *uuid.UUID        `json:"ownerId,omitempty"`
	Address *string           `json:"address,omitempty"`
	ChainID *string           `json:"chainId,omitempty"`
}

// TransactionData is the free-form context attached to a transaction:
// campaign reference, user-facing note, or mobile-verification metadata.
type TransactionData struct {
	CampaignID   *uuid.UUID `json:"campaignId,omitempty"`
	Note         string     `json:"note,omitempty"`
	MobileNumber string     `json:"mobileNumber,omitempty"`
	CountryCode  string     `json:"countryCode,omitempty"`
	ReferrerID   *uuid.UUID `json:"referrerId,omitempty"`
	ReferredID   *uuid.UUID `json:"referredId,omitempty"`
}

// Transaction is one append-only ledger row. Once VERIFIED or FAILED it is
// never mutated except the status-only VERIFIED -> WITHDRAWING transition.
type Transaction struct {
	ID             uuid.UUID        `json:"id"`
	Type           domain.TxType    `json:"type"`
	Status         domain.TxStatus  `json:"status"`
	From           WalletEndpoint   `json:"from"`
	To             []WalletEndpoint `json:"to"`
	Data           TransactionData  `json:"data"`
	FailureMessage *string          `json:"failureMessage,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// TotalOut sums the credited values across all recipients.
func (t Transaction) TotalOut() decimal.Decimal {
	total := decimal.Zero
	for _, out := range t.To {
		total = total.Add(out.Value)
	}
	return total
}

// HasExternalWithdraw reports whether any recipient is an off-platform
// payout destination, which routes the transaction through WITHDRAWING.
func (t Transaction) HasExternalWithdraw() bool {
	for _, out := range t.To {
		if out.Kind == domain.WalletExternalWithdraw {
			return true
		}
	}
	return false
}

// Campaign is a time-boxed, budget-limited promotional reward pool. It is
// decremented as claims are granted and becomes inert once the budget or the
// date window runs out; it is never deleted.
type Campaign struct {
	ID              uuid.UUID           `json:"id"`
	Type            domain.CampaignType `json:"type"`
	RewardBalance   decimal.Decimal     `json:"rewardBalance"`
	RewardsPerClaim decimal.Decimal     `json:"rewardsPerClaim"`
	MaxClaims       int32               `json:"maxClaims"`
	StartDate       time.Time           `json:"startDate"`
	EndDate         *time.Time          `json:"endDate,omitempty"`
	Visibility      string              `json:"visibility"`
	CreatedAt       time.Time           `json:"createdAt"`
}

// Active reports whether the campaign can still grant rewards at now.
func (c Campaign) Active(now time.Time) bool {
	if c.Visibility != domain.CampaignVisibilityPublished {
		return false
	}
	if now.Before(c.StartDate) {
		return false
	}
	if c.EndDate != nil && now.After(*c.EndDate) {
		return false
	}
	return true
}
