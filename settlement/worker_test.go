package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/Phavyajai/webhook-transaction-processor/core"
	"github.com/Phavyajai/webhook-transaction-processor/store/memory"
)

func seedTransaction(t *testing.T, store *memory.TransactionStore, transactionID string) core.Transaction {
	t.Helper()
	txn := core.Transaction{
		ID:                 "id-" + transactionID,
		TransactionID:      transactionID,
		SourceAccount:      "acct-source",
		DestinationAccount: "acct-dest",
		AmountMinor:        4500,
		Currency:           "USD",
		Status:             core.TransactionStatusProcessing,
		CreatedAt:          time.Now().UTC(),
	}
	inserted, err := store.InsertIfAbsent(context.Background(), txn)
	if err != nil {
		t.Fatalf("seed insert: %v", err)
	}
	if !inserted {
		t.Fatalf("expected seed insert for %s", transactionID)
	}
	return txn
}

func newTestWorker(t *testing.T, store core.TransactionStore, dequeuer core.SettlementDequeuer, delay time.Duration) *Worker {
	t.Helper()
	worker, err := NewWorker(store, dequeuer, WorkerConfig{Delay: delay, Workers: 1})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	return worker
}

func TestWorkerProcess_SettlesAfterDelay(t *testing.T) {
	store := memory.NewTransactionStore()
	queue := NewMemoryQueue(1)
	defer queue.Close()
	seeded := seedTransaction(t, store, "tx-settle")

	worker := newTestWorker(t, store, queue, 10*time.Millisecond)
	state := worker.Process(context.Background(), core.SettlementTask{TransactionID: "tx-settle"})
	if state != TaskStateDone {
		t.Fatalf("expected done, got %q", state)
	}

	txn, err := store.FindByTransactionID(context.Background(), "tx-settle")
	if err != nil {
		t.Fatalf("lookup after settlement: %v", err)
	}
	if !txn.Processed() {
		t.Fatalf("expected PROCESSED, got %q", txn.Status)
	}
	if txn.ProcessedAt == nil {
		t.Fatalf("expected processed_at to be set")
	}
	if txn.ProcessedAt.Before(seeded.CreatedAt) {
		t.Fatalf("expected processed_at >= created_at, got %s < %s", txn.ProcessedAt, seeded.CreatedAt)
	}
}

func TestWorkerProcess_MissingRecordIsSkipped(t *testing.T) {
	store := memory.NewTransactionStore()
	queue := NewMemoryQueue(1)
	defer queue.Close()
	seedTransaction(t, store, "tx-vanish")
	store.Remove("tx-vanish")

	worker := newTestWorker(t, store, queue, time.Millisecond)
	state := worker.Process(context.Background(), core.SettlementTask{TransactionID: "tx-vanish"})
	if state != TaskStateSkipped {
		t.Fatalf("expected skipped for missing record, got %q", state)
	}
}

func TestWorkerProcess_AlreadyProcessedKeepsFirstTimestamp(t *testing.T) {
	store := memory.NewTransactionStore()
	queue := NewMemoryQueue(1)
	defer queue.Close()
	seedTransaction(t, store, "tx-twice")

	firstAt := time.Now().UTC().Add(-time.Minute)
	if updated, err := store.MarkProcessed(context.Background(), "tx-twice", firstAt); err != nil || !updated {
		t.Fatalf("first mark: updated=%v err=%v", updated, err)
	}

	worker := newTestWorker(t, store, queue, time.Millisecond)
	state := worker.Process(context.Background(), core.SettlementTask{TransactionID: "tx-twice"})
	if state != TaskStateDone {
		t.Fatalf("expected done for already processed record, got %q", state)
	}

	txn, err := store.FindByTransactionID(context.Background(), "tx-twice")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if txn.ProcessedAt == nil || !txn.ProcessedAt.Equal(firstAt) {
		t.Fatalf("expected first transition timestamp to survive, got %v", txn.ProcessedAt)
	}
}

func TestWorkerProcess_CancelledDuringWaitLeavesProcessing(t *testing.T) {
	store := memory.NewTransactionStore()
	queue := NewMemoryQueue(1)
	defer queue.Close()
	seedTransaction(t, store, "tx-shutdown")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	worker := newTestWorker(t, store, queue, time.Hour)
	state := worker.Process(ctx, core.SettlementTask{TransactionID: "tx-shutdown"})
	if state != TaskStateSkipped {
		t.Fatalf("expected skipped on shutdown, got %q", state)
	}

	txn, err := store.FindByTransactionID(context.Background(), "tx-shutdown")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if txn.Processed() {
		t.Fatalf("expected record to stay PROCESSING through shutdown")
	}
}

func TestWorkerRun_ConsumesQueuedTasks(t *testing.T) {
	store := memory.NewTransactionStore()
	queue := NewMemoryQueue(4)
	defer queue.Close()
	seedTransaction(t, store, "tx-run-1")
	seedTransaction(t, store, "tx-run-2")

	worker := newTestWorker(t, store, queue, time.Millisecond)
	worker.Config.Workers = 2

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- worker.Run(ctx)
	}()

	for _, transactionID := range []string{"tx-run-1", "tx-run-2"} {
		if err := queue.Enqueue(ctx, core.SettlementTask{TransactionID: transactionID}); err != nil {
			t.Fatalf("enqueue %s: %v", transactionID, err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		first, errFirst := store.FindByTransactionID(context.Background(), "tx-run-1")
		second, errSecond := store.FindByTransactionID(context.Background(), "tx-run-2")
		if errFirst == nil && errSecond == nil && first.Processed() && second.Processed() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected both records settled before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected worker to stop after cancel")
	}
}
