package service

import (
	"context"

	"github.com/castcle/wallet-engine/internal/repository"
)

// Ledger is the data access contract the services run against. It is
// declared alongside *repository.Queries, which satisfies it; tests
// substitute an in-memory store.
type Ledger = repository.Ledger

// QueryStore defines the minimal data access contract required by services.
type QueryStore interface {
	Queries() Ledger
	RunInTx(ctx context.Context, fn func(q Ledger) error) error
}

type pgStore struct {
	store *repository.Store
}

// NewStore adapts a repository store to the service contract.
func NewStore(store *repository.Store) QueryStore {
	return pgStore{store: store}
}

func (s pgStore) Queries() Ledger {
	return s.store.Queries()
}

func (s pgStore) RunInTx(ctx context.Context, fn func(q Ledger) error) error {
	return s.store.RunInTx(ctx, func(q *repository.Queries) error {
		return fn(q)
	})
}
