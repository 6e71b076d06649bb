package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/castcle/wallet-engine/internal/domain"
	"github.com/castcle/wallet-engine/internal/models"
	"github.com/castcle/wallet-engine/internal/testutil/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func seedCampaign(t *testing.T, store *memstore.Store, ctype domain.CampaignType, budget, perClaim string) models.Campaign {
	t.Helper()
	campaign := models.Campaign{
		ID:              uuid.New(),
		Type:            ctype,
		RewardBalance:   dec(budget),
		RewardsPerClaim: dec(perClaim),
		MaxClaims:       1,
		StartDate:       time.Now().Add(-time.Hour),
		Visibility:      domain.CampaignVisibilityPublished,
	}
	require.NoError(t, store.Queries().InsertCampaign(context.Background(), campaign))
	return campaign
}

func listAirdrops(t *testing.T, store *memstore.Store) []models.Transaction {
	t.Helper()
	ids, err := store.Queries().ListOldestPending(context.Background(), 100)
	require.NoError(t, err)
	var out []models.Transaction
	for _, id := range ids {
		tx, err := store.Queries().GetTransaction(context.Background(), id)
		require.NoError(t, err)
		if tx.Type == domain.TxTypeAirdrop {
			out = append(out, tx)
		}
	}
	return out
}

func TestClaimMobileVerificationGrants(t *testing.T) {
	store := memstore.New()
	svc := NewCampaignService(store)
	campaign := seedCampaign(t, store, domain.CampaignVerifyMobile, "100", "5")
	claimant := uuid.New()

	require.NoError(t, svc.ClaimMobileVerification(context.Background(), claimant, "+66", "0812345678"))

	airdrops := listAirdrops(t, store)
	require.Len(t, airdrops, 1)
	tx := airdrops[0]
	require.Equal(t, domain.TxStatusPending, tx.Status)
	require.Equal(t, domain.WalletCastcleAirdrop, tx.From.Kind)
	require.True(t, tx.From.Value.Equal(dec("5")))
	require.Len(t, tx.To, 1)
	require.Equal(t, claimant, *tx.To[0].OwnerID)
	require.Equal(t, "0812345678", tx.Data.MobileNumber)

	updated, err := store.Queries().GetCampaign(context.Background(), campaign.ID)
	require.NoError(t, err)
	require.True(t, updated.RewardBalance.Equal(dec("95")))
}

func TestClaimMobileVerificationDuplicateNumberSkips(t *testing.T) {
	store := memstore.New()
	svc := NewCampaignService(store)
	campaign := seedCampaign(t, store, domain.CampaignVerifyMobile, "100", "5")

	require.NoError(t, svc.ClaimMobileVerification(context.Background(), uuid.New(), "+66", "0812345678"))
	// Same number on a different account grants nothing and is not an error.
	require.NoError(t, svc.ClaimMobileVerification(context.Background(), uuid.New(), "+66", "0812345678"))

	require.Len(t, listAirdrops(t, store), 1)
	updated, err := store.Queries().GetCampaign(context.Background(), campaign.ID)
	require.NoError(t, err)
	require.True(t, updated.RewardBalance.Equal(dec("95")))
}

func TestClaimFriendReferralDoublePayout(t *testing.T) {
	store := memstore.New()
	svc := NewCampaignService(store)
	campaign := seedCampaign(t, store, domain.CampaignFriendReferral, "100", "5")
	referrer, referred := uuid.New(), uuid.New()

	require.NoError(t, svc.ClaimFriendReferral(context.Background(), referrer, referred))

	airdrops := listAirdrops(t, store)
	require.Len(t, airdrops, 1)
	tx := airdrops[0]
	require.Len(t, tx.To, 2)
	require.True(t, tx.From.Value.Equal(dec("10")))
	require.True(t, tx.TotalOut().Equal(dec("10")))
	require.Equal(t, referrer, *tx.To[0].OwnerID)
	require.Equal(t, referred, *tx.To[1].OwnerID)

	updated, err := store.Queries().GetCampaign(context.Background(), campaign.ID)
	require.NoError(t, err)
	require.True(t, updated.RewardBalance.Equal(dec("90")))
}

func TestClaimFriendReferralReferredOnlyOnce(t *testing.T) {
	store := memstore.New()
	svc := NewCampaignService(store)
	seedCampaign(t, store, domain.CampaignFriendReferral, "100", "5")
	referred := uuid.New()

	require.NoError(t, svc.ClaimFriendReferral(context.Background(), uuid.New(), referred))
	require.NoError(t, svc.ClaimFriendReferral(context.Background(), uuid.New(), referred))

	require.Len(t, listAirdrops(t, store), 1)
}

func TestReferrerPayoutDoesNotBlockBeingReferred(t *testing.T) {
	store := memstore.New()
	svc := NewCampaignService(store)
	seedCampaign(t, store, domain.CampaignFriendReferral, "100", "5")
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()

	// Bob earns a referrer-side payout first.
	require.NoError(t, svc.ClaimFriendReferral(context.Background(), bob, carol))
	// Bob has never been the referred party, so this claim must still grant.
	require.NoError(t, svc.ClaimFriendReferral(context.Background(), alice, bob))

	airdrops := listAirdrops(t, store)
	require.Len(t, airdrops, 2)
	for _, tx := range airdrops {
		require.NotNil(t, tx.Data.ReferredID)
	}
}

func TestClaimBudgetExhaustedSkips(t *testing.T) {
	store := memstore.New()
	svc := NewCampaignService(store)
	campaign := seedCampaign(t, store, domain.CampaignVerifyMobile, "3", "5")

	require.NoError(t, svc.ClaimMobileVerification(context.Background(), uuid.New(), "+66", "0812345678"))

	require.Empty(t, listAirdrops(t, store))
	updated, err := store.Queries().GetCampaign(context.Background(), campaign.ID)
	require.NoError(t, err)
	require.True(t, updated.RewardBalance.Equal(dec("3")))
}

func TestClaimWithoutActiveCampaignSkips(t *testing.T) {
	store := memstore.New()
	svc := NewCampaignService(store)

	require.NoError(t, svc.ClaimMobileVerification(context.Background(), uuid.New(), "+66", "0812345678"))
	require.Empty(t, listAirdrops(t, store))
}

func TestClaimExpiredCampaignSkips(t *testing.T) {
	store := memstore.New()
	svc := NewCampaignService(store)
	ended := time.Now().Add(-time.Hour)
	campaign := models.Campaign{
		ID:              uuid.New(),
		Type:            domain.CampaignVerifyMobile,
		RewardBalance:   dec("100"),
		RewardsPerClaim: dec("5"),
		StartDate:       time.Now().Add(-48 * time.Hour),
		EndDate:         &ended,
		Visibility:      domain.CampaignVisibilityPublished,
	}
	require.NoError(t, store.Queries().InsertCampaign(context.Background(), campaign))

	require.NoError(t, svc.ClaimMobileVerification(context.Background(), uuid.New(), "+66", "0812345678"))
	require.Empty(t, listAirdrops(t, store))
}

func TestConcurrentClaimsNeverOverspend(t *testing.T) {
	store := memstore.New()
	svc := NewCampaignService(store)
	// Budget for exactly 4 of the 10 claims.
	campaign := seedCampaign(t, store, domain.CampaignVerifyMobile, "20", "5")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			mobile := fmt.Sprintf("08%08d", n)
			require.NoError(t, svc.ClaimMobileVerification(context.Background(), uuid.New(), "+66", mobile))
		}(i)
	}
	wg.Wait()

	require.Len(t, listAirdrops(t, store), 4)
	updated, err := store.Queries().GetCampaign(context.Background(), campaign.ID)
	require.NoError(t, err)
	require.True(t, updated.RewardBalance.IsZero())
}

func TestCreateCampaignValidation(t *testing.T) {
	store := memstore.New()
	svc := NewCampaignService(store)

	_, err := svc.CreateCampaign(context.Background(), CreateCampaignRequest{
		Type:            domain.CampaignVerifyMobile,
		RewardBalance:   dec("100"),
		RewardsPerClaim: dec("0"),
		StartDate:       time.Now(),
	})
	require.Error(t, err)

	campaign, err := svc.CreateCampaign(context.Background(), CreateCampaignRequest{
		Type:            domain.CampaignVerifyMobile,
		RewardBalance:   dec("100"),
		RewardsPerClaim: dec("5"),
		StartDate:       time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)
	require.Equal(t, domain.CampaignVisibilityPublished, campaign.Visibility)
}
