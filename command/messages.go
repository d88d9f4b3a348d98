package command

import (
	"fmt"
	"strings"

	"github.com/Phavyajai/webhook-transaction-processor/core"
)

const (
	TypeAcceptTransaction = "txprocessor.command.transaction.accept"
	TypeSettleTransaction = "txprocessor.command.transaction.settle"
)

type AcceptTransactionMessage struct {
	Input core.AcceptTransactionInput
}

func (AcceptTransactionMessage) Type() string { return TypeAcceptTransaction }

func (m AcceptTransactionMessage) Validate() error {
	if strings.TrimSpace(m.Input.TransactionID) == "" {
		return fmt.Errorf("command: transaction id is required")
	}
	return nil
}

type SettleTransactionMessage struct {
	TransactionID string
}

func (SettleTransactionMessage) Type() string { return TypeSettleTransaction }

func (m SettleTransactionMessage) Validate() error {
	if strings.TrimSpace(m.TransactionID) == "" {
		return fmt.Errorf("command: transaction id is required")
	}
	return nil
}
