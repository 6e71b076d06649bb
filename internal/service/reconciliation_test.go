package service

import (
	"context"
	"testing"

	"github.com/castcle/wallet-engine/internal/domain"
	"github.com/castcle/wallet-engine/internal/models"
	"github.com/castcle/wallet-engine/internal/testutil/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestReconciliationHealthyLedger(t *testing.T) {
	store := memstore.New()
	owner := uuid.New()
	seedCredit(t, store, owner, "10", domain.TxStatusVerified)

	svc := NewReconciliationService(store)
	require.NoError(t, svc.Run(context.Background()))
}

func TestReconciliationDetectsChecksumDrift(t *testing.T) {
	store := memstore.New()
	owner := uuid.New()

	// A settled row whose outputs do not add up should be surfaced by the
	// sweep even though the pipeline would have rejected it.
	tx := models.Transaction{
		ID:     uuid.New(),
		Type:   domain.TxTypeAirdrop,
		Status: domain.TxStatusVerified,
		From:   models.WalletEndpoint{Kind: domain.WalletCastcleAirdrop, Value: dec("10")},
		To:     []models.WalletEndpoint{{Kind: domain.WalletPersonal, Value: dec("9"), OwnerID: &owner}},
	}
	require.NoError(t, store.Queries().InsertTransaction(context.Background(), tx))

	violations, err := store.Queries().ListChecksumViolations(context.Background())
	require.NoError(t, err)
	require.Len(t, violations, 1)
	require.Equal(t, tx.ID, violations[0].TransactionID)

	svc := NewReconciliationService(store)
	require.NoError(t, svc.Run(context.Background()))
}

func TestReconciliationDetectsNegativeBalance(t *testing.T) {
	store := memstore.New()
	sender := uuid.New()

	// A verified debit with no backing credit drives the derived balance
	// negative.
	recipient := uuid.New()
	tx := models.Transaction{
		ID:     uuid.New(),
		Type:   domain.TxTypeSend,
		Status: domain.TxStatusVerified,
		From:   models.WalletEndpoint{Kind: domain.WalletPersonal, Value: dec("5"), OwnerID: &sender},
		To:     []models.WalletEndpoint{{Kind: domain.WalletPersonal, Value: dec("5"), OwnerID: &recipient}},
	}
	require.NoError(t, store.Queries().InsertTransaction(context.Background(), tx))

	negatives, err := store.Queries().ListNegativeBalances(context.Background())
	require.NoError(t, err)
	require.Len(t, negatives, 1)
	require.Equal(t, sender, negatives[0].OwnerID)
	require.True(t, negatives[0].Balance.Equal(dec("-5")))

	svc := NewReconciliationService(store)
	require.NoError(t, svc.Run(context.Background()))
}
