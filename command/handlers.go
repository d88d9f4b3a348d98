package command

import (
	"context"
	"strings"

	gocmd "github.com/goliatone/go-command"

	"github.com/Phavyajai/webhook-transaction-processor/core"
)

// IngestionService is the mutating surface commands dispatch into.
type IngestionService interface {
	Accept(ctx context.Context, input core.AcceptTransactionInput) (core.AcceptResult, error)
}

// SettlementProcessor drives a single settlement task to its terminal state.
type SettlementProcessor interface {
	Process(ctx context.Context, task core.SettlementTask) string
}

type AcceptTransactionCommand struct {
	service IngestionService
}

func NewAcceptTransactionCommand(service IngestionService) *AcceptTransactionCommand {
	return &AcceptTransactionCommand{service: service}
}

func (c *AcceptTransactionCommand) Execute(ctx context.Context, msg AcceptTransactionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: ingestion service is required")
	}
	out, err := c.service.Accept(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SettleTransactionCommand struct {
	processor SettlementProcessor
}

func NewSettleTransactionCommand(processor SettlementProcessor) *SettleTransactionCommand {
	return &SettleTransactionCommand{processor: processor}
}

func (c *SettleTransactionCommand) Execute(ctx context.Context, msg SettleTransactionMessage) error {
	if c == nil || c.processor == nil {
		return commandDependencyError("command: settlement processor is required")
	}
	transactionID := strings.TrimSpace(msg.TransactionID)
	if transactionID == "" {
		return commandInvalidInputError("command: transaction id is required")
	}
	state := c.processor.Process(ctx, core.SettlementTask{TransactionID: transactionID})
	storeResult(ctx, state)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
