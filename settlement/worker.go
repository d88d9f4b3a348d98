package settlement

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/Phavyajai/webhook-transaction-processor/core"
)

const (
	TaskStateScheduled = "scheduled"
	TaskStateWaiting   = "waiting"
	TaskStateSettling  = "settling"
	TaskStateDone      = "done"
	TaskStateSkipped   = "skipped"
)

const (
	DefaultDelay   = 30 * time.Second
	DefaultWorkers = 4
)

type WorkerConfig struct {
	// Delay is the fixed simulated settlement latency. The store is touched
	// only after the wait; no session or connection is held across it.
	Delay   time.Duration
	Workers int
}

// Worker consumes settlement tasks and applies the single PROCESSING ->
// PROCESSED transition. It never retries and never reports back to the
// request that scheduled the task; outcomes are observable only through the
// store.
type Worker struct {
	Store    core.TransactionStore
	Dequeuer core.SettlementDequeuer
	Config   WorkerConfig
	Logger   core.Logger
	Metrics  core.MetricsRecorder
	Now      func() time.Time
}

func NewWorker(store core.TransactionStore, dequeuer core.SettlementDequeuer, cfg WorkerConfig) (*Worker, error) {
	if store == nil {
		return nil, fmt.Errorf("settlement: transaction store is required")
	}
	if dequeuer == nil {
		return nil, fmt.Errorf("settlement: dequeuer is required")
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Worker{
		Store:    store,
		Dequeuer: dequeuer,
		Config:   cfg,
		Logger:   glog.Nop(),
		Metrics:  core.NopMetricsRecorder{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// Run consumes tasks until ctx is cancelled. In-flight tasks finish their
// current attempt; queued tasks left behind are simply not settled, which a
// restart observes as records still in PROCESSING.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.Store == nil || w.Dequeuer == nil {
		return fmt.Errorf("settlement: worker requires store and dequeuer")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var wg sync.WaitGroup
	for i := 0; i < w.workers(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.consume(ctx)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (w *Worker) consume(ctx context.Context) {
	for {
		delivery, err := w.Dequeuer.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// A closed queue ends consumption; anything else is logged and
			// ends this worker rather than spinning.
			w.logError(ctx, "settlement dequeue failed", map[string]any{"error": err.Error()})
			return
		}
		w.runTask(ctx, delivery)
	}
}

func (w *Worker) runTask(ctx context.Context, delivery core.SettlementDelivery) {
	task := delivery.Task()
	state := w.Process(ctx, task)
	if err := delivery.Ack(ctx); err != nil {
		w.logError(ctx, "settlement ack failed", map[string]any{
			"transaction_id": task.TransactionID,
			"state":          state,
			"error":          err.Error(),
		})
	}
}

// Process runs one task to its terminal state and returns it. Exposed so
// tests and synchronous queues can drive tasks directly.
func (w *Worker) Process(ctx context.Context, task core.SettlementTask) string {
	if w == nil || w.Store == nil {
		return TaskStateSkipped
	}
	transactionID := strings.TrimSpace(task.TransactionID)
	if transactionID == "" {
		return TaskStateSkipped
	}
	startedAt := w.clock()
	w.logInfo(ctx, "settlement task scheduled", map[string]any{
		"transaction_id": transactionID,
		"state":          TaskStateScheduled,
	})

	if !w.wait(ctx) {
		// Shutdown during the wait; the record stays PROCESSING.
		w.observeTask(ctx, startedAt, transactionID, TaskStateSkipped)
		return TaskStateSkipped
	}

	// Settling: the record is re-read fresh after the wait.
	txn, err := w.Store.FindByTransactionID(ctx, transactionID)
	if err != nil {
		if core.IsNotFound(err) {
			// Record deleted or never committed; benign, no retry.
			w.logInfo(ctx, "settlement skipped, record missing", map[string]any{
				"transaction_id": transactionID,
				"state":          TaskStateSkipped,
			})
			w.observeTask(ctx, startedAt, transactionID, TaskStateSkipped)
			return TaskStateSkipped
		}
		w.logError(ctx, "settlement read failed", map[string]any{
			"transaction_id": transactionID,
			"state":          TaskStateSettling,
			"error":          err.Error(),
		})
		w.observeTask(ctx, startedAt, transactionID, TaskStateSkipped)
		return TaskStateSkipped
	}

	if txn.Processed() {
		w.observeTask(ctx, startedAt, transactionID, TaskStateDone)
		return TaskStateDone
	}

	if _, err := w.Store.MarkProcessed(ctx, transactionID, w.clock()); err != nil {
		// Best-effort: a failed mark is logged and dropped, observable only
		// through a later lookup still reading PROCESSING.
		w.logError(ctx, "settlement mark failed", map[string]any{
			"transaction_id": transactionID,
			"state":          TaskStateSettling,
			"error":          err.Error(),
		})
		w.observeTask(ctx, startedAt, transactionID, TaskStateSkipped)
		return TaskStateSkipped
	}

	w.logInfo(ctx, "settlement task done", map[string]any{
		"transaction_id": transactionID,
		"state":          TaskStateDone,
	})
	w.observeTask(ctx, startedAt, transactionID, TaskStateDone)
	return TaskStateDone
}

func (w *Worker) wait(ctx context.Context) bool {
	delay := w.Config.Delay
	if delay <= 0 {
		return ctx == nil || ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (w *Worker) workers() int {
	if w != nil && w.Config.Workers > 0 {
		return w.Config.Workers
	}
	return DefaultWorkers
}

func (w *Worker) clock() time.Time {
	if w != nil && w.Now != nil {
		return w.Now().UTC()
	}
	return time.Now().UTC()
}

func (w *Worker) observeTask(ctx context.Context, startedAt time.Time, transactionID string, state string) {
	if w == nil || w.Metrics == nil {
		return
	}
	tags := map[string]string{
		"state": state,
	}
	w.Metrics.IncCounter(ctx, "txprocessor.settlement.tasks.total", 1, tags)
	w.Metrics.ObserveHistogram(
		ctx,
		"txprocessor.settlement.duration_ms",
		float64(time.Since(startedAt).Milliseconds()),
		tags,
	)
}

func (w *Worker) logInfo(ctx context.Context, message string, fields map[string]any) {
	w.logWithLevel(ctx, false, message, fields)
}

func (w *Worker) logError(ctx context.Context, message string, fields map[string]any) {
	w.logWithLevel(ctx, true, message, fields)
}

func (w *Worker) logWithLevel(ctx context.Context, isError bool, message string, fields map[string]any) {
	if w == nil || w.Logger == nil {
		return
	}
	logger := w.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(core.FieldsLogger); ok {
		logger = fieldsLogger.WithFields(fields)
	}
	args := make([]any, 0, len(fields)*2)
	for key, value := range fields {
		args = append(args, key, value)
	}
	if isError {
		logger.Error(message, args...)
		return
	}
	logger.Info(message, args...)
}
