package query

import (
	"fmt"
	"strings"
)

const TypeGetTransaction = "txprocessor.query.transaction.get"

type GetTransactionMessage struct {
	TransactionID string
}

func (GetTransactionMessage) Type() string { return TypeGetTransaction }

func (m GetTransactionMessage) Validate() error {
	if strings.TrimSpace(m.TransactionID) == "" {
		return fmt.Errorf("query: transaction id is required")
	}
	return nil
}
