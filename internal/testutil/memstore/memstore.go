// Package memstore is an in-memory ledger used by service and handler tests.
// It mirrors the relational store's observable behavior, including the
// conditional status transition, the conditional budget decrement and the
// derived balance aggregation, behind a single mutex.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/castcle/wallet-engine/internal/domain"
	"github.com/castcle/wallet-engine/internal/models"
	"github.com/castcle/wallet-engine/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Store struct {
	mu           sync.Mutex
	transactions map[uuid.UUID]*models.Transaction
	campaigns    map[uuid.UUID]*models.Campaign
	AuditRecords []repository.AuditRecord
	seq          int64
	created      map[uuid.UUID]int64
}

func New() *Store {
	return &Store{
		transactions: make(map[uuid.UUID]*models.Transaction),
		campaigns:    make(map[uuid.UUID]*models.Campaign),
		created:      make(map[uuid.UUID]int64),
	}
}

// Queries returns the store itself; every method takes the lock, so reads
// outside RunInTx stay consistent.
func (s *Store) Queries() repository.Ledger { return ledger{s} }

// RunInTx serializes the whole function under the store mutex. Rollback on
// error is not simulated; tests that need failure atomicity assert on the
// returned error instead.
func (s *Store) RunInTx(ctx context.Context, fn func(q repository.Ledger) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(lockedLedger{s})
}

// ledger takes the mutex per call, for use outside a transaction.
type ledger struct{ s *Store }

// lockedLedger runs with the mutex already held by RunInTx.
type lockedLedger struct{ s *Store }

func (l ledger) InsertTransaction(ctx context.Context, tx models.Transaction) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.insertTransaction(tx)
}

func (l ledger) GetTransaction(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.getTransaction(id)
}

func (l ledger) ListOldestPending(ctx context.Context, limit int32) ([]uuid.UUID, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.listOldestPending(limit)
}

func (l ledger) UpdateTransactionStatusFrom(ctx context.Context, id uuid.UUID, from, to domain.TxStatus, failureMessage *string) (int64, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.updateStatusFrom(id, from, to, failureMessage)
}

func (l ledger) GetPersonalBalance(ctx context.Context, ownerID uuid.UUID) (decimal.Decimal, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.personalBalance(ownerID), nil
}

func (l ledger) InsertCampaign(ctx context.Context, c models.Campaign) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.insertCampaign(c)
}

func (l ledger) GetCampaign(ctx context.Context, id uuid.UUID) (models.Campaign, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.getCampaign(id)
}

func (l ledger) GetActiveCampaign(ctx context.Context, ctype domain.CampaignType, now time.Time) (models.Campaign, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.getActiveCampaign(ctype, now)
}

func (l ledger) DecrementCampaignBudget(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (int64, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.decrementBudget(id, amount)
}

func (l ledger) AcquireClaimLock(ctx context.Context, key string) error { return nil }

func (l ledger) CountAirdropsByMobile(ctx context.Context, mobileNumber string) (int64, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.countAirdropsByMobile(mobileNumber), nil
}

func (l ledger) CountCampaignReferredAirdrops(ctx context.Context, campaignID, referredID uuid.UUID) (int64, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.countCampaignReferredAirdrops(campaignID, referredID), nil
}

func (l ledger) InsertAuditLog(ctx context.Context, rec repository.AuditRecord) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	l.s.AuditRecords = append(l.s.AuditRecords, rec)
	return nil
}

func (l ledger) ListChecksumViolations(ctx context.Context) ([]repository.ChecksumViolation, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.checksumViolations(), nil
}

func (l ledger) ListNegativeBalances(ctx context.Context) ([]repository.NegativeBalance, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.negativeBalances(), nil
}

func (l lockedLedger) InsertTransaction(ctx context.Context, tx models.Transaction) error {
	return l.s.insertTransaction(tx)
}

func (l lockedLedger) GetTransaction(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	return l.s.getTransaction(id)
}

func (l lockedLedger) ListOldestPending(ctx context.Context, limit int32) ([]uuid.UUID, error) {
	return l.s.listOldestPending(limit)
}

func (l lockedLedger) UpdateTransactionStatusFrom(ctx context.Context, id uuid.UUID, from, to domain.TxStatus, failureMessage *string) (int64, error) {
	return l.s.updateStatusFrom(id, from, to, failureMessage)
}

func (l lockedLedger) GetPersonalBalance(ctx context.Context, ownerID uuid.UUID) (decimal.Decimal, error) {
	return l.s.personalBalance(ownerID), nil
}

func (l lockedLedger) InsertCampaign(ctx context.Context, c models.Campaign) error {
	return l.s.insertCampaign(c)
}

func (l lockedLedger) GetCampaign(ctx context.Context, id uuid.UUID) (models.Campaign, error) {
	return l.s.getCampaign(id)
}

func (l lockedLedger) GetActiveCampaign(ctx context.Context, ctype domain.CampaignType, now time.Time) (models.Campaign, error) {
	return l.s.getActiveCampaign(ctype, now)
}

func (l lockedLedger) DecrementCampaignBudget(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (int64, error) {
	return l.s.decrementBudget(id, amount)
}

func (l lockedLedger) AcquireClaimLock(ctx context.Context, key string) error { return nil }

func (l lockedLedger) CountAirdropsByMobile(ctx context.Context, mobileNumber string) (int64, error) {
	return l.s.countAirdropsByMobile(mobileNumber), nil
}

func (l lockedLedger) CountCampaignReferredAirdrops(ctx context.Context, campaignID, referredID uuid.UUID) (int64, error) {
	return l.s.countCampaignReferredAirdrops(campaignID, referredID), nil
}

func (l lockedLedger) InsertAuditLog(ctx context.Context, rec repository.AuditRecord) error {
	l.s.AuditRecords = append(l.s.AuditRecords, rec)
	return nil
}

func (l lockedLedger) ListChecksumViolations(ctx context.Context) ([]repository.ChecksumViolation, error) {
	return l.s.checksumViolations(), nil
}

func (l lockedLedger) ListNegativeBalances(ctx context.Context) ([]repository.NegativeBalance, error) {
	return l.s.negativeBalances(), nil
}

func (s *Store) insertTransaction(tx models.Transaction) error {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	cp := tx
	cp.To = append([]models.WalletEndpoint(nil), tx.To...)
	s.transactions[tx.ID] = &cp
	s.seq++
	s.created[tx.ID] = s.seq
	return nil
}

func (s *Store) getTransaction(id uuid.UUID) (models.Transaction, error) {
	tx, ok := s.transactions[id]
	if !ok {
		return models.Transaction{}, models.ErrTransactionNotFound
	}
	cp := *tx
	cp.To = append([]models.WalletEndpoint(nil), tx.To...)
	return cp, nil
}

func (s *Store) listOldestPending(limit int32) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id, tx := range s.transactions {
		if tx.Status == domain.TxStatusPending {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return s.created[ids[i]] < s.created[ids[j]] })
	if int32(len(ids)) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *Store) updateStatusFrom(id uuid.UUID, from, to domain.TxStatus, failureMessage *string) (int64, error) {
	tx, ok := s.transactions[id]
	if !ok || tx.Status != from {
		return 0, nil
	}
	tx.Status = to
	tx.FailureMessage = failureMessage
	return 1, nil
}

func (s *Store) personalBalance(ownerID uuid.UUID) decimal.Decimal {
	balance := decimal.Zero
	for _, tx := range s.transactions {
		if tx.Status != domain.TxStatusFailed {
			for _, out := range tx.To {
				if out.Kind == domain.WalletPersonal && out.OwnerID != nil && *out.OwnerID == ownerID {
					balance = balance.Add(out.Value)
				}
			}
		}
		if tx.From.Kind == domain.WalletPersonal && tx.From.OwnerID != nil && *tx.From.OwnerID == ownerID {
			if tx.Status == domain.TxStatusVerified || tx.Status == domain.TxStatusWithdrawing {
				balance = balance.Sub(tx.From.Value)
			}
		}
	}
	return balance
}

func (s *Store) insertCampaign(c models.Campaign) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	cp := c
	s.campaigns[c.ID] = &cp
	return nil
}

func (s *Store) getCampaign(id uuid.UUID) (models.Campaign, error) {
	c, ok := s.campaigns[id]
	if !ok {
		return models.Campaign{}, models.ErrCampaignNotFound
	}
	return *c, nil
}

func (s *Store) getActiveCampaign(ctype domain.CampaignType, now time.Time) (models.Campaign, error) {
	var best *models.Campaign
	for _, c := range s.campaigns {
		if c.Type != ctype || !c.Active(now) {
			continue
		}
		if best == nil || c.StartDate.After(best.StartDate) {
			best = c
		}
	}
	if best == nil {
		return models.Campaign{}, models.ErrCampaignNotFound
	}
	return *best, nil
}

func (s *Store) decrementBudget(id uuid.UUID, amount decimal.Decimal) (int64, error) {
	c, ok := s.campaigns[id]
	if !ok || c.RewardBalance.LessThan(amount) {
		return 0, nil
	}
	c.RewardBalance = c.RewardBalance.Sub(amount)
	return 1, nil
}

func (s *Store) countAirdropsByMobile(mobileNumber string) int64 {
	var count int64
	for _, tx := range s.transactions {
		if tx.Type == domain.TxTypeAirdrop && tx.Status != domain.TxStatusFailed && tx.Data.MobileNumber == mobileNumber {
			count++
		}
	}
	return count
}

func (s *Store) countCampaignReferredAirdrops(campaignID, referredID uuid.UUID) int64 {
	var count int64
	for _, tx := range s.transactions {
		if tx.Type != domain.TxTypeAirdrop || tx.Status == domain.TxStatusFailed {
			continue
		}
		if tx.Data.CampaignID == nil || *tx.Data.CampaignID != campaignID {
			continue
		}
		if tx.Data.ReferredID != nil && *tx.Data.ReferredID == referredID {
			count++
		}
	}
	return count
}

func (s *Store) checksumViolations() []repository.ChecksumViolation {
	var out []repository.ChecksumViolation
	for id, tx := range s.transactions {
		if tx.Status != domain.TxStatusVerified && tx.Status != domain.TxStatusWithdrawing {
			continue
		}
		total := tx.TotalOut()
		if !tx.From.Value.Equal(total) {
			out = append(out, repository.ChecksumViolation{TransactionID: id, FromValue: tx.From.Value, OutputTotal: total})
		}
	}
	return out
}

func (s *Store) negativeBalances() []repository.NegativeBalance {
	owners := make(map[uuid.UUID]struct{})
	for _, tx := range s.transactions {
		if tx.From.OwnerID != nil {
			owners[*tx.From.OwnerID] = struct{}{}
		}
		for _, out := range tx.To {
			if out.OwnerID != nil {
				owners[*out.OwnerID] = struct{}{}
			}
		}
	}
	var out []repository.NegativeBalance
	for owner := range owners {
		if b := s.personalBalance(owner); b.IsNegative() {
			out = append(out, repository.NegativeBalance{OwnerID: owner, Balance: b})
		}
	}
	return out
}
