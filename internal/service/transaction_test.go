package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/castcle/wallet-engine/internal/domain"
	"github.com/castcle/wallet-engine/internal/models"
	"github.com/castcle/wallet-engine/internal/testutil/memstore"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type stubPublisher struct {
	calls     int
	published map[uuid.UUID]int
	err       error
}

func newStubPublisher() *stubPublisher {
	return &stubPublisher{published: make(map[uuid.UUID]int)}
}

func (p *stubPublisher) PublishWithdraw(ctx context.Context, tx models.Transaction) error {
	p.calls++
	if p.err != nil {
		return p.err
	}
	p.published[tx.ID]++
	return nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// seedCredit appends a settled airdrop that funds the owner's balance.
func seedCredit(t *testing.T, store *memstore.Store, ownerID uuid.UUID, value string, status domain.TxStatus) uuid.UUID {
	t.Helper()
	tx := models.Transaction{
		ID:     uuid.New(),
		Type:   domain.TxTypeAirdrop,
		Status: status,
		From:   models.WalletEndpoint{Kind: domain.WalletCastcleAirdrop, Value: dec(value)},
		To:     []models.WalletEndpoint{{Kind: domain.WalletPersonal, Value: dec(value), OwnerID: &ownerID}},
	}
	require.NoError(t, store.Queries().InsertTransaction(context.Background(), tx))
	return tx.ID
}

func sendRequest(from uuid.UUID, fromValue string, to ...models.WalletEndpoint) CreateTransactionRequest {
	return CreateTransactionRequest{
		Type: domain.TxTypeSend,
		From: models.WalletEndpoint{Kind: domain.WalletPersonal, Value: dec(fromValue), OwnerID: &from},
		To:   to,
	}
}

func TestCreateAppendsPending(t *testing.T) {
	store := memstore.New()
	svc := NewTransactionService(store, newStubPublisher())
	sender, recipient := uuid.New(), uuid.New()

	tx, err := svc.Create(context.Background(), sendRequest(sender, "10",
		models.WalletEndpoint{Kind: domain.WalletPersonal, Value: dec("10"), OwnerID: &recipient}))
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusPending, tx.Status)

	loaded, err := svc.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusPending, loaded.Status)
	require.Nil(t, loaded.FailureMessage)
}

func TestCreateRejectsBadRequests(t *testing.T) {
	store := memstore.New()
	svc := NewTransactionService(store, newStubPublisher())
	sender := uuid.New()

	_, err := svc.Create(context.Background(), CreateTransactionRequest{
		Type: domain.TxTypeAirdrop,
		From: models.WalletEndpoint{Kind: domain.WalletCastcleAirdrop, Value: dec("1")},
	})
	require.Error(t, err)

	_, err = svc.Create(context.Background(), sendRequest(sender, "10"))
	require.Error(t, err)

	_, err = svc.Create(context.Background(), sendRequest(sender, "0",
		models.WalletEndpoint{Kind: domain.WalletPersonal, Value: dec("0"), OwnerID: &sender}))
	require.Error(t, err)
}

func TestGetBalanceUnknownOwnerIsZero(t *testing.T) {
	store := memstore.New()
	svc := NewTransactionService(store, newStubPublisher())

	balance, err := svc.GetBalance(context.Background(), uuid.New())
	require.NoError(t, err)
	require.True(t, balance.IsZero())
}

func TestProcessInsufficientFundsFails(t *testing.T) {
	store := memstore.New()
	svc := NewTransactionService(store, newStubPublisher())
	sender, recipient := uuid.New(), uuid.New()
	seedCredit(t, store, sender, "10", domain.TxStatusVerified)

	tx, err := svc.Create(context.Background(), sendRequest(sender, "25",
		models.WalletEndpoint{Kind: domain.WalletPersonal, Value: dec("25"), OwnerID: &recipient}))
	require.NoError(t, err)

	result, err := svc.Process(context.Background(), "job-1", tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusFailed, result.Status)
	require.True(t, result.Transitioned)
	require.NotNil(t, result.FailureMessage)
	require.Equal(t, domain.FailureInsufficientFunds, *result.FailureMessage)
}

func TestProcessChecksumMismatchFails(t *testing.T) {
	store := memstore.New()
	svc := NewTransactionService(store, newStubPublisher())
	sender, recipient := uuid.New(), uuid.New()
	seedCredit(t, store, sender, "100", domain.TxStatusVerified)

	tx, err := svc.Create(context.Background(), sendRequest(sender, "10",
		models.WalletEndpoint{Kind: domain.WalletPersonal, Value: dec("9.999999999999999999"), OwnerID: &recipient}))
	require.NoError(t, err)

	result, err := svc.Process(context.Background(), "job-1", tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusFailed, result.Status)
	require.Equal(t, domain.FailureInvalidChecksum, *result.FailureMessage)
}

func TestProcessWalletTypeTakesPriority(t *testing.T) {
	store := memstore.New()
	svc := NewTransactionService(store, newStubPublisher())
	sender := uuid.New()

	// No owner on the recipient, no funds and a broken checksum: the wallet
	// type message wins.
	tx, err := svc.Create(context.Background(), sendRequest(sender, "25",
		models.WalletEndpoint{Kind: domain.WalletPersonal, Value: dec("5")}))
	require.NoError(t, err)

	result, err := svc.Process(context.Background(), "job-1", tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusFailed, result.Status)
	require.Equal(t, domain.FailureInvalidWalletType, *result.FailureMessage)
}

func TestProcessPendingCreditFundsSend(t *testing.T) {
	store := memstore.New()
	svc := NewTransactionService(store, newStubPublisher())
	sender, recipient := uuid.New(), uuid.New()

	// A not-yet-verified airdrop credit already counts toward the spendable
	// balance; only FAILED credits are excluded.
	seedCredit(t, store, sender, "50", domain.TxStatusPending)

	tx, err := svc.Create(context.Background(), sendRequest(sender, "30",
		models.WalletEndpoint{Kind: domain.WalletPersonal, Value: dec("30"), OwnerID: &recipient}))
	require.NoError(t, err)

	result, err := svc.Process(context.Background(), "job-1", tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusVerified, result.Status)
	require.Nil(t, result.FailureMessage)

	balance, err := svc.GetBalance(context.Background(), recipient)
	require.NoError(t, err)
	require.True(t, balance.Equal(dec("30")))
}

func TestProcessFailedDebitDoesNotReduceBalance(t *testing.T) {
	store := memstore.New()
	svc := NewTransactionService(store, newStubPublisher())
	sender, recipient := uuid.New(), uuid.New()
	seedCredit(t, store, sender, "10", domain.TxStatusVerified)

	tx, err := svc.Create(context.Background(), sendRequest(sender, "25",
		models.WalletEndpoint{Kind: domain.WalletPersonal, Value: dec("25"), OwnerID: &recipient}))
	require.NoError(t, err)
	_, err = svc.Process(context.Background(), "job-1", tx.ID)
	require.NoError(t, err)

	balance, err := svc.GetBalance(context.Background(), sender)
	require.NoError(t, err)
	require.True(t, balance.Equal(dec("10")))
}

func TestProcessWithdrawRoutesThroughWithdrawing(t *testing.T) {
	store := memstore.New()
	publisher := newStubPublisher()
	svc := NewTransactionService(store, publisher)
	sender := uuid.New()
	seedCredit(t, store, sender, "100", domain.TxStatusVerified)

	address := "0xabc123"
	tx, err := svc.Create(context.Background(), CreateTransactionRequest{
		Type: domain.TxTypeWithdraw,
		From: models.WalletEndpoint{Kind: domain.WalletPersonal, Value: dec("40"), OwnerID: &sender},
		To: []models.WalletEndpoint{
			{Kind: domain.WalletExternalWithdraw, Value: dec("39"), Address: &address},
			{Kind: domain.WalletFee, Value: dec("1"), OwnerID: &sender},
		},
	})
	require.NoError(t, err)

	result, err := svc.Process(context.Background(), "job-1", tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusWithdrawing, result.Status)
	require.Equal(t, 1, publisher.published[tx.ID])

	// The full withdrawn amount is debited immediately; the FEE output is
	// not a personal credit.
	balance, err := svc.GetBalance(context.Background(), sender)
	require.NoError(t, err)
	require.True(t, balance.Equal(dec("60")))
}

func TestProcessDuplicateDeliveryIsNoOp(t *testing.T) {
	store := memstore.New()
	publisher := newStubPublisher()
	svc := NewTransactionService(store, publisher)
	sender := uuid.New()
	seedCredit(t, store, sender, "100", domain.TxStatusVerified)

	address := "0xabc123"
	tx, err := svc.Create(context.Background(), CreateTransactionRequest{
		Type: domain.TxTypeWithdraw,
		From: models.WalletEndpoint{Kind: domain.WalletPersonal, Value: dec("40"), OwnerID: &sender},
		To:   []models.WalletEndpoint{{Kind: domain.WalletExternalWithdraw, Value: dec("40"), Address: &address}},
	})
	require.NoError(t, err)

	first, err := svc.Process(context.Background(), "job-1", tx.ID)
	require.NoError(t, err)
	require.True(t, first.Transitioned)

	second, err := svc.Process(context.Background(), "job-1", tx.ID)
	require.NoError(t, err)
	require.False(t, second.Transitioned)
	require.Equal(t, domain.TxStatusWithdrawing, second.Status)

	// The handoff is re-offered on redelivery; dedup belongs to the queue.
	require.Equal(t, 2, publisher.calls)

	balance, err := svc.GetBalance(context.Background(), sender)
	require.NoError(t, err)
	require.True(t, balance.Equal(dec("60")))
}

func TestProcessPublishFailureSurfacesError(t *testing.T) {
	store := memstore.New()
	publisher := newStubPublisher()
	publisher.err = errors.New("redis down")
	svc := NewTransactionService(store, publisher)
	sender := uuid.New()
	seedCredit(t, store, sender, "100", domain.TxStatusVerified)

	address := "0xabc123"
	tx, err := svc.Create(context.Background(), CreateTransactionRequest{
		Type: domain.TxTypeWithdraw,
		From: models.WalletEndpoint{Kind: domain.WalletPersonal, Value: dec("40"), OwnerID: &sender},
		To:   []models.WalletEndpoint{{Kind: domain.WalletExternalWithdraw, Value: dec("40"), Address: &address}},
	})
	require.NoError(t, err)

	_, err = svc.Process(context.Background(), "job-1", tx.ID)
	require.Error(t, err)

	// The verdict is already committed; the redelivery repairs the handoff.
	loaded, err := svc.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusWithdrawing, loaded.Status)
}

func TestProcessAirdropSeesPreReservationBudget(t *testing.T) {
	store := memstore.New()
	svc := NewTransactionService(store, newStubPublisher())
	claimant := uuid.New()

	// The distributor already decremented the budget to zero when it granted
	// this claim; verification must not fail the claim against its own
	// reservation.
	campaign := models.Campaign{
		ID:              uuid.New(),
		Type:            domain.CampaignVerifyMobile,
		RewardBalance:   dec("0"),
		RewardsPerClaim: dec("5"),
		StartDate:       time.Now().Add(-time.Hour),
		Visibility:      domain.CampaignVisibilityPublished,
	}
	require.NoError(t, store.Queries().InsertCampaign(context.Background(), campaign))

	tx := models.Transaction{
		ID:     uuid.New(),
		Type:   domain.TxTypeAirdrop,
		Status: domain.TxStatusPending,
		From:   models.WalletEndpoint{Kind: domain.WalletCastcleAirdrop, Value: dec("5")},
		To:     []models.WalletEndpoint{{Kind: domain.WalletPersonal, Value: dec("5"), OwnerID: &claimant}},
		Data:   models.TransactionData{CampaignID: &campaign.ID},
	}
	require.NoError(t, store.Queries().InsertTransaction(context.Background(), tx))

	result, err := svc.Process(context.Background(), "job-1", tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusVerified, result.Status)
}

func TestProcessUnknownTransaction(t *testing.T) {
	store := memstore.New()
	svc := NewTransactionService(store, newStubPublisher())

	_, err := svc.Process(context.Background(), "job-1", uuid.New())
	require.ErrorIs(t, err, models.ErrTransactionNotFound)
}
