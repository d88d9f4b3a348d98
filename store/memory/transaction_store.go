package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Phavyajai/webhook-transaction-processor/core"
)

// TransactionStore keeps the ledger in a mutex-guarded map. It mirrors the
// SQL store's contract, including first-writer-wins dedup on transaction_id,
// and backs tests plus local runs that do not want a database.
type TransactionStore struct {
	mu           sync.Mutex
	transactions map[string]core.Transaction
	Now          func() time.Time
}

func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		transactions: map[string]core.Transaction{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *TransactionStore) InsertIfAbsent(_ context.Context, txn core.Transaction) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("memory: transaction store is nil")
	}
	transactionID := strings.TrimSpace(txn.TransactionID)
	if transactionID == "" {
		return false, fmt.Errorf("memory: transaction id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.transactions[transactionID]; exists {
		return false, nil
	}
	txn.TransactionID = transactionID
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = s.now()
	}
	s.transactions[transactionID] = txn
	return true, nil
}

func (s *TransactionStore) FindByTransactionID(_ context.Context, transactionID string) (core.Transaction, error) {
	if s == nil {
		return core.Transaction{}, fmt.Errorf("memory: transaction store is nil")
	}
	transactionID = strings.TrimSpace(transactionID)

	s.mu.Lock()
	defer s.mu.Unlock()
	txn, exists := s.transactions[transactionID]
	if !exists {
		return core.Transaction{}, core.NotFoundError(transactionID)
	}
	return txn, nil
}

func (s *TransactionStore) MarkProcessed(_ context.Context, transactionID string, at time.Time) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("memory: transaction store is nil")
	}
	transactionID = strings.TrimSpace(transactionID)

	s.mu.Lock()
	defer s.mu.Unlock()
	txn, exists := s.transactions[transactionID]
	if !exists {
		return false, nil
	}
	if txn.Status != core.TransactionStatusProcessing {
		return false, nil
	}
	processedAt := at.UTC()
	txn.Status = core.TransactionStatusProcessed
	txn.ProcessedAt = &processedAt
	s.transactions[transactionID] = txn
	return true, nil
}

// Remove drops a transaction from the ledger. Tests use it to simulate a
// record disappearing between acceptance and settlement.
func (s *TransactionStore) Remove(transactionID string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transactions, strings.TrimSpace(transactionID))
}

func (s *TransactionStore) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transactions)
}

func (s *TransactionStore) now() time.Time {
	if s == nil || s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now()
}

var _ core.TransactionStore = (*TransactionStore)(nil)
