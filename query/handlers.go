package query

import (
	"context"

	"github.com/Phavyajai/webhook-transaction-processor/core"
)

type TransactionReader interface {
	Lookup(ctx context.Context, transactionID string) (core.Transaction, error)
}

type GetTransactionQuery struct {
	reader TransactionReader
}

func NewGetTransactionQuery(reader TransactionReader) *GetTransactionQuery {
	return &GetTransactionQuery{reader: reader}
}

func (q *GetTransactionQuery) Query(ctx context.Context, msg GetTransactionMessage) (core.Transaction, error) {
	if q == nil || q.reader == nil {
		return core.Transaction{}, queryDependencyError("query: transaction reader is required")
	}
	return q.reader.Lookup(ctx, msg.TransactionID)
}
