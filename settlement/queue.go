package settlement

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Phavyajai/webhook-transaction-processor/core"
)

const DefaultQueueCapacity = 256

// MemoryQueue is a bounded in-process task queue. It is the single-node
// implementation of the settlement queue contracts; swapping in a broker-
// backed queue only requires another Enqueuer/Dequeuer pair.
//
// Closure is signalled through a separate done channel rather than by closing
// the task channel, so an Enqueue blocked on a full queue unblocks with an
// error instead of panicking on a send to a closed channel.
type MemoryQueue struct {
	tasks chan core.SettlementTask
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &MemoryQueue{
		tasks: make(chan core.SettlementTask, capacity),
		done:  make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task core.SettlementTask) error {
	if q == nil {
		return fmt.Errorf("settlement: queue is not configured")
	}
	task.TransactionID = strings.TrimSpace(task.TransactionID)
	if task.TransactionID == "" {
		return fmt.Errorf("settlement: transaction id is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-q.done:
		return fmt.Errorf("settlement: queue is closed")
	default:
	}

	select {
	case q.tasks <- task:
		return nil
	case <-q.done:
		return fmt.Errorf("settlement: queue is closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (core.SettlementDelivery, error) {
	if q == nil {
		return nil, fmt.Errorf("settlement: queue is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case task := <-q.tasks:
		return memoryDelivery{task: task}, nil
	case <-q.done:
		// Drain tasks accepted before closure.
		select {
		case task := <-q.tasks:
			return memoryDelivery{task: task}, nil
		default:
			return nil, fmt.Errorf("settlement: queue is closed")
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting new tasks and unblocks pending Enqueue calls. Tasks
// already queued remain consumable until drained.
func (q *MemoryQueue) Close() {
	if q == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Len reports queued tasks not yet dequeued.
func (q *MemoryQueue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.tasks)
}

type memoryDelivery struct {
	task core.SettlementTask
}

func (d memoryDelivery) Task() core.SettlementTask {
	return d.task
}

func (d memoryDelivery) Ack(context.Context) error {
	// Channel receive already removed the task.
	return nil
}

var (
	_ core.SettlementEnqueuer = (*MemoryQueue)(nil)
	_ core.SettlementDequeuer = (*MemoryQueue)(nil)
)
