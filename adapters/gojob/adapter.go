package gojob

import (
	"context"
	"fmt"
	"strings"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"

	"github.com/Phavyajai/webhook-transaction-processor/core"
)

const (
	JobIDSettlement = "txprocessor.settlement"

	paramTransactionID = "transaction_id"
)

// ToExecutionMessage maps a settlement task to a go-job message. The
// transaction id doubles as the idempotency key so queue-level dedup drops
// duplicate schedules of the same transaction.
func ToExecutionMessage(task core.SettlementTask) *job.ExecutionMessage {
	transactionID := strings.TrimSpace(task.TransactionID)
	return &job.ExecutionMessage{
		JobID:          JobIDSettlement,
		ScriptPath:     JobIDSettlement,
		Parameters:     map[string]any{paramTransactionID: transactionID},
		IdempotencyKey: transactionID,
		DedupPolicy:    job.DeduplicationPolicy("drop"),
	}
}

// FromExecutionMessage recovers the settlement task from a go-job message.
func FromExecutionMessage(msg *job.ExecutionMessage) (core.SettlementTask, error) {
	if msg == nil {
		return core.SettlementTask{}, fmt.Errorf("gojob: execution message is required")
	}
	transactionID := ""
	if raw, ok := msg.Parameters[paramTransactionID]; ok {
		if value, ok := raw.(string); ok {
			transactionID = strings.TrimSpace(value)
		}
	}
	if transactionID == "" {
		transactionID = strings.TrimSpace(msg.IdempotencyKey)
	}
	if transactionID == "" {
		return core.SettlementTask{}, fmt.Errorf("gojob: execution message has no transaction id")
	}
	return core.SettlementTask{TransactionID: transactionID}, nil
}

type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, task core.SettlementTask) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if strings.TrimSpace(task.TransactionID) == "" {
		return fmt.Errorf("gojob: settlement task transaction id is required")
	}
	_, err := a.enqueuer.Enqueue(ctx, ToExecutionMessage(task))
	return err
}

type DeliveryAdapter struct {
	delivery queue.Delivery
	task     core.SettlementTask
}

func NewDeliveryAdapter(delivery queue.Delivery) (*DeliveryAdapter, error) {
	if delivery == nil {
		return nil, fmt.Errorf("gojob: delivery is required")
	}
	task, err := FromExecutionMessage(delivery.Message())
	if err != nil {
		return nil, err
	}
	return &DeliveryAdapter{delivery: delivery, task: task}, nil
}

func (d *DeliveryAdapter) Task() core.SettlementTask {
	if d == nil {
		return core.SettlementTask{}
	}
	return d.task
}

func (d *DeliveryAdapter) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Ack(ctx)
}

type DequeuerAdapter struct {
	dequeuer queue.Dequeuer
}

func NewDequeuerAdapter(dequeuer queue.Dequeuer) *DequeuerAdapter {
	return &DequeuerAdapter{dequeuer: dequeuer}
}

// Dequeue skips malformed messages after acking them; settlement never
// retries, so a message without a transaction id has nowhere to go.
func (a *DequeuerAdapter) Dequeue(ctx context.Context) (core.SettlementDelivery, error) {
	if a == nil || a.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	for {
		delivery, err := a.dequeuer.Dequeue(ctx)
		if err != nil {
			return nil, err
		}
		adapted, err := NewDeliveryAdapter(delivery)
		if err != nil {
			_ = delivery.Ack(ctx)
			continue
		}
		return adapted, nil
	}
}

var (
	_ core.SettlementEnqueuer = (*EnqueuerAdapter)(nil)
	_ core.SettlementDelivery = (*DeliveryAdapter)(nil)
	_ core.SettlementDequeuer = (*DequeuerAdapter)(nil)
)
