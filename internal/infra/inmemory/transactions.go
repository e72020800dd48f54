package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/savings-autopilot/internal/domain"
	"github.com/dvloznov/savings-autopilot/internal/engine"
)

// TransactionStore is an in-memory engine.TransactionProvider, keyed by
// user and account. Read-mostly; writes happen only at load time.
type TransactionStore struct {
	mu  sync.RWMutex
	txs map[string][]domain.Transaction // userID/accountID -> transactions
}

// NewTransactionStore creates an empty transaction store.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{txs: make(map[string][]domain.Transaction)}
}

// AddTransactions loads transactions for a user's account.
func (s *TransactionStore) AddTransactions(userID, accountID string, txs ...domain.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userID + "/" + accountID
	s.txs[key] = append(s.txs[key], txs...)
}

// GetAccountTransactions implements engine.TransactionProvider. Results
// are ordered oldest first.
func (s *TransactionStore) GetAccountTransactions(ctx context.Context, userID, accountID string, from time.Time) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Transaction
	for _, tx := range s.txs[userID+"/"+accountID] {
		if tx.Date.Before(from) {
			continue
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

var _ engine.TransactionProvider = (*TransactionStore)(nil)
