package core

import (
	"fmt"
	"strings"
	"time"
)

type TransactionStatus string

const (
	TransactionStatusProcessing TransactionStatus = "PROCESSING"
	TransactionStatusProcessed  TransactionStatus = "PROCESSED"
)

// Transaction is the ledger record for a single webhook notification. ID is
// the storage identity; TransactionID is the sender-supplied dedup key and is
// unique for the lifetime of the store.
type Transaction struct {
	ID                 string
	TransactionID      string
	SourceAccount      string
	DestinationAccount string
	// AmountMinor carries the amount in minor units (cents for two-decimal
	// currencies). The stored column is NUMERIC(12,2).
	AmountMinor int64
	Currency    string
	Status      TransactionStatus
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// Processed reports whether the record has completed its single status
// transition.
func (t Transaction) Processed() bool {
	return t.Status == TransactionStatusProcessed
}

// AmountString renders the minor-unit amount with two fractional digits.
func (t Transaction) AmountString() string {
	minor := t.AmountMinor
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

type AcceptTransactionInput struct {
	TransactionID      string
	SourceAccount      string
	DestinationAccount string
	AmountMinor        int64
	Currency           string
}

func (in AcceptTransactionInput) Validate() error {
	if strings.TrimSpace(in.TransactionID) == "" {
		return fmt.Errorf("core: transaction id is required")
	}
	if strings.TrimSpace(in.SourceAccount) == "" {
		return fmt.Errorf("core: source account is required")
	}
	if strings.TrimSpace(in.DestinationAccount) == "" {
		return fmt.Errorf("core: destination account is required")
	}
	if strings.TrimSpace(in.Currency) == "" {
		return fmt.Errorf("core: currency is required")
	}
	return nil
}

// AcceptResult is the sender-facing acknowledgment. Deduped marks retried
// deliveries; the sender sees the same acknowledgment either way.
type AcceptResult struct {
	TransactionID string
	Deduped       bool
	AcceptedAt    time.Time
}
