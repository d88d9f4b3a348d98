package sqlstore

import (
	"fmt"
	"testing"

	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"
)

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"postgres unique violation", &pq.Error{Code: "23505"}, true},
		{"postgres other code", &pq.Error{Code: "23503"}, false},
		{
			"sqlite unique constraint",
			sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique},
			true,
		},
		{
			"sqlite primary key constraint",
			sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey},
			true,
		},
		{
			"sqlite other constraint",
			sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintNotNull},
			false,
		},
		{"sqlite message fallback", fmt.Errorf("UNIQUE constraint failed: transactions.transaction_id"), true},
		{"postgres message fallback", fmt.Errorf(`duplicate key value violates unique constraint "ux_transactions_transaction_id"`), true},
		{"unrelated error", fmt.Errorf("connection refused"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isUniqueViolation(tc.err); got != tc.expected {
				t.Fatalf("expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestMinorDecimalConversion(t *testing.T) {
	cases := []struct {
		minor   int64
		decimal string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{4500, "45.00"},
		{1999905, "19999.05"},
		{-125, "-1.25"},
	}
	for _, tc := range cases {
		if got := minorToDecimal(tc.minor); got != tc.decimal {
			t.Fatalf("minorToDecimal(%d): expected %q, got %q", tc.minor, tc.decimal, got)
		}
		got, err := decimalToMinor(tc.decimal)
		if err != nil {
			t.Fatalf("decimalToMinor(%q): %v", tc.decimal, err)
		}
		if got != tc.minor {
			t.Fatalf("decimalToMinor(%q): expected %d, got %d", tc.decimal, tc.minor, got)
		}
	}

	if got, err := decimalToMinor("45"); err != nil || got != 4500 {
		t.Fatalf("expected bare integer to parse as whole units, got %d (%v)", got, err)
	}
	if got, err := decimalToMinor("45.5"); err != nil || got != 4550 {
		t.Fatalf("expected single fraction digit to scale, got %d (%v)", got, err)
	}
}

func TestDecimalToMinor_RejectsMalformedValues(t *testing.T) {
	for _, value := range []string{"abc", "12.x", "1e3", "12,50"} {
		if _, err := decimalToMinor(value); err == nil {
			t.Fatalf("expected error for malformed amount %q", value)
		}
	}
}

func TestRecordToTransaction_SurfacesMalformedAmount(t *testing.T) {
	record := &transactionRecord{
		ID:            "id-1",
		TransactionID: "tx-corrupt",
		Amount:        "not-a-number",
		Status:        "PROCESSING",
	}
	if _, err := recordToTransaction(record); err == nil {
		t.Fatalf("expected malformed stored amount to error instead of reading as zero")
	}
}

func TestTransactionCacheKey(t *testing.T) {
	key, err := TransactionCacheKey("tx-1")
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	if key != "txprocessor::transaction::v1::tx-1" {
		t.Fatalf("unexpected cache key %q", key)
	}

	escaped, err := TransactionCacheKey("tx/with spaces")
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	if escaped == "txprocessor::transaction::v1::tx/with spaces" {
		t.Fatalf("expected escaped key, got %q", escaped)
	}

	if _, err := TransactionCacheKey("  "); err == nil {
		t.Fatalf("expected error for blank transaction id")
	}
}
