package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"

	"github.com/Phavyajai/webhook-transaction-processor/core"
)

// TransactionStore is the bun-backed ledger. The transactions table carries a
// unique constraint on transaction_id; InsertIfAbsent leans on it for
// concurrent dedup instead of a read-then-write race.
type TransactionStore struct {
	db   *bun.DB
	repo repository.Repository[*transactionRecord]
}

func NewTransactionStore(db *bun.DB) (*TransactionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*transactionRecord](db, transactionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid transaction repository wiring: %w", err)
		}
	}
	return &TransactionStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *TransactionStore) InsertIfAbsent(ctx context.Context, txn core.Transaction) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: transaction store is not configured")
	}
	transactionID := strings.TrimSpace(txn.TransactionID)
	if transactionID == "" {
		return false, fmt.Errorf("sqlstore: transaction id is required")
	}

	record := transactionToRecord(txn)
	record.TransactionID = transactionID
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, core.StorageError(err, "sqlstore: insert transaction", map[string]any{
			"transaction_id": transactionID,
		})
	}
	return true, nil
}

func (s *TransactionStore) FindByTransactionID(ctx context.Context, transactionID string) (core.Transaction, error) {
	if s == nil || s.db == nil {
		return core.Transaction{}, fmt.Errorf("sqlstore: transaction store is not configured")
	}
	transactionID = strings.TrimSpace(transactionID)
	record := &transactionRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.transaction_id = ?", transactionID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Transaction{}, core.NotFoundError(transactionID)
		}
		return core.Transaction{}, core.StorageError(err, "sqlstore: find transaction", map[string]any{
			"transaction_id": transactionID,
		})
	}
	txn, err := recordToTransaction(record)
	if err != nil {
		return core.Transaction{}, core.StorageError(err, "sqlstore: decode transaction", map[string]any{
			"transaction_id": transactionID,
		})
	}
	return txn, nil
}

func (s *TransactionStore) MarkProcessed(ctx context.Context, transactionID string, at time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: transaction store is not configured")
	}
	transactionID = strings.TrimSpace(transactionID)
	result, err := s.db.NewUpdate().
		Model((*transactionRecord)(nil)).
		Set("status = ?", string(core.TransactionStatusProcessed)).
		Set("processed_at = ?", at.UTC()).
		Where("transaction_id = ?", transactionID).
		Where("status = ?", string(core.TransactionStatusProcessing)).
		Exec(ctx)
	if err != nil {
		return false, core.StorageError(err, "sqlstore: mark transaction processed", map[string]any{
			"transaction_id": transactionID,
		})
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, core.StorageError(err, "sqlstore: mark transaction processed", map[string]any{
			"transaction_id": transactionID,
		})
	}
	return affected > 0, nil
}

func transactionToRecord(txn core.Transaction) *transactionRecord {
	record := &transactionRecord{
		ID:                 txn.ID,
		TransactionID:      txn.TransactionID,
		SourceAccount:      txn.SourceAccount,
		DestinationAccount: txn.DestinationAccount,
		Amount:             minorToDecimal(txn.AmountMinor),
		Currency:           txn.Currency,
		Status:             string(txn.Status),
		CreatedAt:          txn.CreatedAt,
	}
	if txn.ProcessedAt != nil {
		value := txn.ProcessedAt.UTC()
		record.ProcessedAt = &value
	}
	return record
}

func recordToTransaction(record *transactionRecord) (core.Transaction, error) {
	if record == nil {
		return core.Transaction{}, nil
	}
	amountMinor, err := decimalToMinor(record.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	result := core.Transaction{
		ID:                 record.ID,
		TransactionID:      record.TransactionID,
		SourceAccount:      record.SourceAccount,
		DestinationAccount: record.DestinationAccount,
		AmountMinor:        amountMinor,
		Currency:           record.Currency,
		Status:             core.TransactionStatus(record.Status),
		CreatedAt:          record.CreatedAt,
	}
	if record.ProcessedAt != nil {
		value := *record.ProcessedAt
		result.ProcessedAt = &value
	}
	return result, nil
}

func minorToDecimal(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// decimalToMinor parses a stored NUMERIC(12,2) rendering back to minor units.
// A value that does not parse is reported as an error so a corrupt row cannot
// masquerade as a zero amount.
func decimalToMinor(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	negative := strings.HasPrefix(value, "-")
	value = strings.TrimPrefix(value, "-")

	whole, frac, _ := strings.Cut(value, ".")
	if len(frac) > 2 {
		frac = frac[:2]
	}
	for len(frac) < 2 {
		frac += "0"
	}
	wholePart, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: malformed stored amount %q", value)
	}
	fracPart, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: malformed stored amount %q", value)
	}
	minor := wholePart*100 + fracPart
	if negative {
		minor = -minor
	}
	return minor, nil
}

// isUniqueViolation checks the driver-typed constraint errors first (postgres
// 23505, sqlite constraint-unique) and falls back to message matching for
// drivers that wrap them.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

var _ core.TransactionStore = (*TransactionStore)(nil)
