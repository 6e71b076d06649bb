// Package verification holds the pure business rules of the transaction
// verification pipeline. The storage layer only supplies the Snapshot; the
// rules themselves never touch the database.
package verification

import (
	"github.com/castcle/wallet-engine/internal/domain"
	"github.com/castcle/wallet-engine/internal/models"
	"github.com/shopspring/decimal"
)

// Snapshot is the single consistent read the checks run against: the
// sender's derived balance and, for airdrops, the campaign budget available
// to this transaction.
type Snapshot struct {
	SenderBalance  decimal.Decimal
	CampaignBudget decimal.Decimal
}

// Verdict is the pipeline outcome. FailureMessage is empty iff OK.
type Verdict struct {
	WalletTypeOK   bool
	BalanceOK      bool
	ChecksumOK     bool
	FailureMessage string
}

// OK reports whether every check passed.
func (v Verdict) OK() bool {
	return v.WalletTypeOK && v.BalanceOK && v.ChecksumOK
}

// legalSources maps each transaction type to its legal from-endpoint kinds.
var legalSources = map[domain.TxType]map[domain.WalletKind]struct{}{
	domain.TxTypeSend: {
		domain.WalletPersonal: {},
	},
	domain.TxTypeWithdraw: {
		domain.WalletPersonal: {},
	},
	domain.TxTypeAirdrop: {
		domain.WalletCastcleAirdrop: {},
	},
}

// legalRecipients maps each transaction type to its legal to-endpoint kinds.
var legalRecipients = map[domain.TxType]map[domain.WalletKind]struct{}{
	domain.TxTypeSend: {
		domain.WalletPersonal:         {},
		domain.WalletFee:              {},
		domain.WalletExternalWithdraw: {},
	},
	domain.TxTypeWithdraw: {
		domain.WalletExternalWithdraw: {},
		domain.WalletFee:              {},
	},
	domain.TxTypeAirdrop: {
		domain.WalletPersonal: {},
	},
}

// Run evaluates the three checks in fixed priority order; the first failing
// check determines the failure message.
func Run(tx models.Transaction, snap Snapshot) Verdict {
	v := Verdict{
		WalletTypeOK: walletTypesLegal(tx),
		BalanceOK:    balanceSufficient(tx, snap),
		ChecksumOK:   checksumBalanced(tx),
	}
	switch {
	case !v.WalletTypeOK:
		v.FailureMessage = domain.FailureInvalidWalletType
	case !v.BalanceOK:
		v.FailureMessage = domain.FailureInsufficientFunds
	case !v.ChecksumOK:
		v.FailureMessage = domain.FailureInvalidChecksum
	}
	return v
}

func walletTypesLegal(tx models.Transaction) bool {
	sources, ok := legalSources[tx.Type]
	if !ok {
		return false
	}
	if _, ok := sources[tx.From.Kind]; !ok {
		return false
	}
	if len(tx.To) == 0 {
		return false
	}

	recipients := legalRecipients[tx.Type]
	for _, out := range tx.To {
		if _, ok := recipients[out.Kind]; !ok {
			return false
		}
		switch out.Kind {
		case domain.WalletExternalWithdraw:
			// External payouts are addressed off-platform.
			if out.Address == nil || *out.Address == "" {
				return false
			}
		default:
			// Every on-platform recipient must name its owner. For
			// airdrops this is what ties the grant to a claimant.
			if out.OwnerID == nil {
				return false
			}
		}
	}
	return true
}

func balanceSufficient(tx models.Transaction, snap Snapshot) bool {
	switch tx.Type {
	case domain.TxTypeAirdrop:
		return snap.CampaignBudget.GreaterThanOrEqual(tx.TotalOut())
	default:
		return snap.SenderBalance.GreaterThanOrEqual(tx.From.Value)
	}
}

// checksumBalanced enforces that no value is created or destroyed in
// transit: the debit equals the sum of all credits exactly.
func checksumBalanced(tx models.Transaction) bool {
	return tx.From.Value.Equal(tx.TotalOut())
}
