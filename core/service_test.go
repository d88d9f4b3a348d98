package core

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type fakeTransactionStore struct {
	mu        sync.Mutex
	records   map[string]Transaction
	insertErr error
	findErr   error
}

func newFakeTransactionStore() *fakeTransactionStore {
	return &fakeTransactionStore{records: map[string]Transaction{}}
}

func (s *fakeTransactionStore) InsertIfAbsent(_ context.Context, txn Transaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return false, s.insertErr
	}
	if _, exists := s.records[txn.TransactionID]; exists {
		return false, nil
	}
	s.records[txn.TransactionID] = txn
	return true, nil
}

func (s *fakeTransactionStore) FindByTransactionID(_ context.Context, transactionID string) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return Transaction{}, s.findErr
	}
	txn, exists := s.records[transactionID]
	if !exists {
		return Transaction{}, NotFoundError(transactionID)
	}
	return txn, nil
}

func (s *fakeTransactionStore) MarkProcessed(_ context.Context, transactionID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, exists := s.records[transactionID]
	if !exists || txn.Status != TransactionStatusProcessing {
		return false, nil
	}
	processedAt := at.UTC()
	txn.Status = TransactionStatusProcessed
	txn.ProcessedAt = &processedAt
	s.records[transactionID] = txn
	return true, nil
}

func (s *fakeTransactionStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *fakeTransactionStore) get(transactionID string) (Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.records[transactionID]
	return txn, ok
}

type fakeSettlementQueue struct {
	mu         sync.Mutex
	tasks      []SettlementTask
	enqueueErr error
}

func (q *fakeSettlementQueue) Enqueue(_ context.Context, task SettlementTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *fakeSettlementQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func newTestService(t *testing.T, store TransactionStore, queue SettlementEnqueuer) *Service {
	t.Helper()
	service, err := NewService(Config{},
		WithTransactionStore(store),
		WithSettlementEnqueuer(queue),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func acceptInput(transactionID string) AcceptTransactionInput {
	return AcceptTransactionInput{
		TransactionID:      transactionID,
		SourceAccount:      "acct-source",
		DestinationAccount: "acct-dest",
		AmountMinor:        4500,
		Currency:           "USD",
	}
}

func TestServiceAccept_RecordsAndSchedulesSettlement(t *testing.T) {
	store := newFakeTransactionStore()
	queue := &fakeSettlementQueue{}
	service := newTestService(t, store, queue)

	result, err := service.Accept(context.Background(), acceptInput("tx-1"))
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if result.Deduped {
		t.Fatalf("expected first delivery to insert, got deduped")
	}
	if result.TransactionID != "tx-1" {
		t.Fatalf("expected transaction id tx-1, got %q", result.TransactionID)
	}

	txn, ok := store.get("tx-1")
	if !ok {
		t.Fatalf("expected record to be stored")
	}
	if txn.Status != TransactionStatusProcessing {
		t.Fatalf("expected new record in PROCESSING, got %q", txn.Status)
	}
	if txn.ProcessedAt != nil {
		t.Fatalf("expected nil processed_at on insert")
	}
	if txn.ID == "" {
		t.Fatalf("expected storage identity to be assigned")
	}
	if txn.CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be set")
	}
	if queue.len() != 1 {
		t.Fatalf("expected one settlement task, got %d", queue.len())
	}
	if queue.tasks[0].TransactionID != "tx-1" {
		t.Fatalf("expected settlement task for tx-1, got %q", queue.tasks[0].TransactionID)
	}
}

func TestServiceAccept_DuplicateDeliveryHasNoSideEffects(t *testing.T) {
	store := newFakeTransactionStore()
	queue := &fakeSettlementQueue{}
	service := newTestService(t, store, queue)

	first, err := service.Accept(context.Background(), acceptInput("tx-dup"))
	if err != nil {
		t.Fatalf("first accept: %v", err)
	}
	original, _ := store.get("tx-dup")

	retried := acceptInput("tx-dup")
	retried.AmountMinor = 9900
	second, err := service.Accept(context.Background(), retried)
	if err != nil {
		t.Fatalf("second accept: %v", err)
	}

	if first.Deduped {
		t.Fatalf("expected first delivery inserted")
	}
	if !second.Deduped {
		t.Fatalf("expected retried delivery to be deduped")
	}
	if store.len() != 1 {
		t.Fatalf("expected single record, got %d", store.len())
	}
	stored, _ := store.get("tx-dup")
	if stored.AmountMinor != original.AmountMinor {
		t.Fatalf("expected original record untouched, amount changed to %d", stored.AmountMinor)
	}
	if queue.len() != 1 {
		t.Fatalf("expected no second settlement task, got %d", queue.len())
	}
}

func TestServiceAccept_ValidatesPayload(t *testing.T) {
	store := newFakeTransactionStore()
	queue := &fakeSettlementQueue{}
	service := newTestService(t, store, queue)

	cases := []struct {
		name  string
		input AcceptTransactionInput
	}{
		{"missing transaction id", AcceptTransactionInput{SourceAccount: "a", DestinationAccount: "b", Currency: "USD"}},
		{"missing source account", AcceptTransactionInput{TransactionID: "tx", DestinationAccount: "b", Currency: "USD"}},
		{"missing destination account", AcceptTransactionInput{TransactionID: "tx", SourceAccount: "a", Currency: "USD"}},
		{"missing currency", AcceptTransactionInput{TransactionID: "tx", SourceAccount: "a", DestinationAccount: "b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.Accept(context.Background(), tc.input)
			if err == nil {
				t.Fatalf("expected validation error")
			}
			var richErr *goerrors.Error
			if !goerrors.As(err, &richErr) {
				t.Fatalf("expected rich error, got %T", err)
			}
			if richErr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", richErr.Code)
			}
			if richErr.TextCode != TxnErrorBadInput {
				t.Fatalf("expected %s, got %s", TxnErrorBadInput, richErr.TextCode)
			}
		})
	}
	if store.len() != 0 {
		t.Fatalf("expected no records from invalid payloads")
	}
	if queue.len() != 0 {
		t.Fatalf("expected no settlement tasks from invalid payloads")
	}
}

func TestServiceAccept_StorageFailurePropagates(t *testing.T) {
	store := newFakeTransactionStore()
	store.insertErr = StorageError(fmt.Errorf("disk on fire"), "core: insert transaction", nil)
	queue := &fakeSettlementQueue{}
	service := newTestService(t, store, queue)

	_, err := service.Accept(context.Background(), acceptInput("tx-broken"))
	if err == nil {
		t.Fatalf("expected storage failure to propagate")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected rich error, got %T", err)
	}
	if richErr.TextCode != TxnErrorStorageFailure {
		t.Fatalf("expected %s, got %s", TxnErrorStorageFailure, richErr.TextCode)
	}
	if queue.len() != 0 {
		t.Fatalf("expected no settlement task after storage failure")
	}
}

func TestServiceAccept_EnqueueFailureStillAcknowledges(t *testing.T) {
	store := newFakeTransactionStore()
	queue := &fakeSettlementQueue{enqueueErr: fmt.Errorf("queue full")}
	service := newTestService(t, store, queue)

	result, err := service.Accept(context.Background(), acceptInput("tx-stuck"))
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if result.Deduped {
		t.Fatalf("expected insert despite enqueue failure")
	}
	txn, ok := store.get("tx-stuck")
	if !ok || txn.Status != TransactionStatusProcessing {
		t.Fatalf("expected durable PROCESSING record, got %#v", txn)
	}
}

func TestServiceAccept_ConcurrentSameIDInsertsOnce(t *testing.T) {
	store := newFakeTransactionStore()
	queue := &fakeSettlementQueue{}
	service := newTestService(t, store, queue)

	const attempts = 16
	results := make([]AcceptResult, attempts)
	errs := make([]error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = service.Accept(context.Background(), acceptInput("tx-race"))
		}(i)
	}
	wg.Wait()

	inserted := 0
	for i := 0; i < attempts; i++ {
		if errs[i] != nil {
			t.Fatalf("accept %d: %v", i, errs[i])
		}
		if !results[i].Deduped {
			inserted++
		}
	}
	if inserted != 1 {
		t.Fatalf("expected exactly one insert, got %d", inserted)
	}
	if store.len() != 1 {
		t.Fatalf("expected single record, got %d", store.len())
	}
	if queue.len() != 1 {
		t.Fatalf("expected single settlement task, got %d", queue.len())
	}
}

func TestServiceLookup_ReturnsStoredRecord(t *testing.T) {
	store := newFakeTransactionStore()
	queue := &fakeSettlementQueue{}
	service := newTestService(t, store, queue)

	if _, err := service.Accept(context.Background(), acceptInput("tx-read")); err != nil {
		t.Fatalf("accept: %v", err)
	}

	txn, err := service.Lookup(context.Background(), "tx-read")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if txn.TransactionID != "tx-read" {
		t.Fatalf("expected tx-read, got %q", txn.TransactionID)
	}
	if txn.Status != TransactionStatusProcessing {
		t.Fatalf("expected PROCESSING before settlement, got %q", txn.Status)
	}
}

func TestServiceLookup_MissingIDIsNotFound(t *testing.T) {
	store := newFakeTransactionStore()
	service := newTestService(t, store, &fakeSettlementQueue{})

	_, err := service.Lookup(context.Background(), "tx-unknown")
	if err == nil {
		t.Fatalf("expected not found")
	}
	if !IsNotFound(err) {
		t.Fatalf("expected not-found envelope, got %v", err)
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected rich error, got %T", err)
	}
	if richErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", richErr.Code)
	}
}

func TestServiceLookup_RequiresID(t *testing.T) {
	store := newFakeTransactionStore()
	service := newTestService(t, store, &fakeSettlementQueue{})

	_, err := service.Lookup(context.Background(), "  ")
	if err == nil {
		t.Fatalf("expected bad input error")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected rich error, got %T", err)
	}
	if richErr.TextCode != TxnErrorBadInput {
		t.Fatalf("expected %s, got %s", TxnErrorBadInput, richErr.TextCode)
	}
}

func TestNewService_RequiresStore(t *testing.T) {
	if _, err := NewService(Config{}); err == nil {
		t.Fatalf("expected error without transaction store")
	}
}

func TestNewService_RuntimeConfigOverridesDefaults(t *testing.T) {
	store := newFakeTransactionStore()
	service, err := NewService(Config{
		Settlement: SettlementConfig{Delay: 5 * time.Second},
	},
		WithTransactionStore(store),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	cfg := service.Config()
	if cfg.Settlement.Delay != 5*time.Second {
		t.Fatalf("expected runtime delay override, got %s", cfg.Settlement.Delay)
	}
	if cfg.Settlement.Workers != DefaultConfig().Settlement.Workers {
		t.Fatalf("expected default workers, got %d", cfg.Settlement.Workers)
	}
	if cfg.ServiceName != DefaultConfig().ServiceName {
		t.Fatalf("expected default service name, got %q", cfg.ServiceName)
	}
}
