package verification

import (
	"testing"

	"github.com/castcle/wallet-engine/internal/domain"
	"github.com/castcle/wallet-engine/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func personalOut(owner uuid.UUID, value string) models.WalletEndpoint {
	return models.WalletEndpoint{Kind: domain.WalletPersonal, Value: dec(value), OwnerID: &owner}
}

func externalOut(value string) models.WalletEndpoint {
	addr := "0xdeadbeef"
	chain := "eth"
	return models.WalletEndpoint{Kind: domain.WalletExternalWithdraw, Value: dec(value), Address: &addr, ChainID: &chain}
}

func sendTx(fromValue string, to ...models.WalletEndpoint) models.Transaction {
	owner := uuid.New()
	return models.Transaction{
		ID:     uuid.New(),
		Type:   domain.TxTypeSend,
		Status: domain.TxStatusPending,
		From:   models.WalletEndpoint{Kind: domain.WalletPersonal, Value: dec(fromValue), OwnerID: &owner},
		To:     to,
	}
}

func TestSendInsufficientFunds(t *testing.T) {
	// Sender with no prior inbound history has balance zero.
	tx := sendTx("10", personalOut(uuid.New(), "10"))
	v := Run(tx, Snapshot{SenderBalance: decimal.Zero})

	require.False(t, v.OK())
	require.True(t, v.WalletTypeOK)
	require.False(t, v.BalanceOK)
	require.Equal(t, domain.FailureInsufficientFunds, v.FailureMessage)
}

func TestSendChecksumMismatch(t *testing.T) {
	tx := sendTx("20", personalOut(uuid.New(), "5"))
	v := Run(tx, Snapshot{SenderBalance: dec("100")})

	require.False(t, v.OK())
	require.True(t, v.WalletTypeOK)
	require.True(t, v.BalanceOK)
	require.False(t, v.ChecksumOK)
	require.Equal(t, domain.FailureInvalidChecksum, v.FailureMessage)
}

func TestAirdropRecipientMissingOwner(t *testing.T) {
	tx := models.Transaction{
		ID:     uuid.New(),
		Type:   domain.TxTypeAirdrop,
		Status: domain.TxStatusPending,
		From:   models.WalletEndpoint{Kind: domain.WalletCastcleAirdrop, Value: dec("5")},
		To:     []models.WalletEndpoint{{Kind: domain.WalletPersonal, Value: dec("5")}},
	}
	v := Run(tx, Snapshot{CampaignBudget: dec("100")})

	require.False(t, v.WalletTypeOK)
	require.Equal(t, domain.FailureInvalidWalletType, v.FailureMessage)
}

func TestSendFundedByAirdropVerifies(t *testing.T) {
	tx := sendTx("10", personalOut(uuid.New(), "10"))
	v := Run(tx, Snapshot{SenderBalance: dec("10")})

	require.True(t, v.OK())
	require.Empty(t, v.FailureMessage)
}

func TestFailurePriorityWalletTypeFirst(t *testing.T) {
	// Illegal wallet kind, insufficient balance and a broken checksum at
	// once: the wallet-type failure wins.
	tx := models.Transaction{
		ID:     uuid.New(),
		Type:   domain.TxTypeSend,
		Status: domain.TxStatusPending,
		From:   models.WalletEndpoint{Kind: domain.WalletAds, Value: dec("10")},
		To:     []models.WalletEndpoint{personalOut(uuid.New(), "3")},
	}
	v := Run(tx, Snapshot{SenderBalance: decimal.Zero})

	require.Equal(t, domain.FailureInvalidWalletType, v.FailureMessage)
}

func TestWithdrawToExternalAddress(t *testing.T) {
	owner := uuid.New()
	tx := models.Transaction{
		ID:     uuid.New(),
		Type:   domain.TxTypeWithdraw,
		Status: domain.TxStatusPending,
		From:   models.WalletEndpoint{Kind: domain.WalletPersonal, Value: dec("7.5"), OwnerID: &owner},
		To:     []models.WalletEndpoint{externalOut("7"), {Kind: domain.WalletFee, Value: dec("0.5"), OwnerID: &owner}},
	}
	v := Run(tx, Snapshot{SenderBalance: dec("8")})

	require.True(t, v.OK())
	require.True(t, tx.HasExternalWithdraw())
}

func TestWithdrawMissingAddressFails(t *testing.T) {
	owner := uuid.New()
	tx := models.Transaction{
		ID:     uuid.New(),
		Type:   domain.TxTypeWithdraw,
		Status: domain.TxStatusPending,
		From:   models.WalletEndpoint{Kind: domain.WalletPersonal, Value: dec("7"), OwnerID: &owner},
		To:     []models.WalletEndpoint{{Kind: domain.WalletExternalWithdraw, Value: dec("7")}},
	}
	v := Run(tx, Snapshot{SenderBalance: dec("10")})

	require.Equal(t, domain.FailureInvalidWalletType, v.FailureMessage)
}

func TestAirdropBudgetInsufficient(t *testing.T) {
	tx := models.Transaction{
		ID:     uuid.New(),
		Type:   domain.TxTypeAirdrop,
		Status: domain.TxStatusPending,
		From:   models.WalletEndpoint{Kind: domain.WalletCastcleAirdrop, Value: dec("10")},
		To:     []models.WalletEndpoint{personalOut(uuid.New(), "5"), personalOut(uuid.New(), "5")},
	}
	v := Run(tx, Snapshot{CampaignBudget: dec("9")})

	require.Equal(t, domain.FailureInsufficientFunds, v.FailureMessage)
}

func TestNoRecipientsIsIllegal(t *testing.T) {
	tx := sendTx("10")
	v := Run(tx, Snapshot{SenderBalance: dec("10")})

	require.Equal(t, domain.FailureInvalidWalletType, v.FailureMessage)
}

func TestChecksumExactDecimalEquality(t *testing.T) {
	owner := uuid.New()
	cases := []struct {
		name string
		from string
		to   []string
		ok   bool
	}{
		{name: "exact_split", from: "10", to: []string{"9.5", "0.5"}, ok: true},
		{name: "off_by_smallest_unit", from: "10", to: []string{"9.999999999999999999"}, ok: false},
		{name: "trailing_zero_equality", from: "10.00", to: []string{"10"}, ok: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			outs := make([]models.WalletEndpoint, 0, len(tc.to))
			for _, v := range tc.to {
				outs = append(outs, personalOut(owner, v))
			}
			tx := sendTx(tc.from, outs...)
			v := Run(tx, Snapshot{SenderBalance: dec("100")})
			require.Equal(t, tc.ok, v.ChecksumOK)
		})
	}
}
