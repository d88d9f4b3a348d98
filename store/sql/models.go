package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type transactionRecord struct {
	bun.BaseModel `bun:"table:transactions,alias:txn"`

	ID                 string     `bun:"id,pk"`
	TransactionID      string     `bun:"transaction_id,notnull,unique"`
	SourceAccount      string     `bun:"source_account,notnull"`
	DestinationAccount string     `bun:"destination_account,notnull"`
	Amount             string     `bun:"amount,notnull"`
	Currency           string     `bun:"currency,notnull"`
	Status             string     `bun:"status,notnull"`
	CreatedAt          time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ProcessedAt        *time.Time `bun:"processed_at,nullzero"`
}
