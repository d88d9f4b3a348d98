package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// TransactionStore is the durable ledger of transactions. All mutation in the
// system flows through InsertIfAbsent and MarkProcessed; each is individually
// atomic and no cross-record transactions exist.
type TransactionStore interface {
	// InsertIfAbsent persists a new transaction. A uniqueness violation on
	// transaction_id reports inserted=false with a nil error; concurrent
	// attempts with the same id yield exactly one inserted=true. Any other
	// storage failure propagates.
	InsertIfAbsent(ctx context.Context, txn Transaction) (bool, error)

	// FindByTransactionID returns the record for the external id, or a
	// CategoryNotFound error.
	FindByTransactionID(ctx context.Context, transactionID string) (Transaction, error)

	// MarkProcessed transitions the record to PROCESSED with processed_at=at.
	// Rows already processed keep their original timestamp; re-applying is a
	// no-op with updated=false. A missing row reports updated=false with a
	// nil error.
	MarkProcessed(ctx context.Context, transactionID string, at time.Time) (bool, error)
}

// SettlementTask identifies one unit of detached settlement work.
type SettlementTask struct {
	TransactionID string
}

// SettlementEnqueuer schedules a settlement task. Scheduling happens only
// after a confirmed first insert, and the caller never waits on the task.
type SettlementEnqueuer interface {
	Enqueue(ctx context.Context, task SettlementTask) error
}

// SettlementDelivery is a dequeued task awaiting acknowledgment.
type SettlementDelivery interface {
	Task() SettlementTask
	Ack(ctx context.Context) error
}

// SettlementDequeuer hands tasks to the worker pool.
type SettlementDequeuer interface {
	Dequeue(ctx context.Context) (SettlementDelivery, error)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

var _ MetricsRecorder = NopMetricsRecorder{}
