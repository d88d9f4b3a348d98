package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TxnErrorBadInput       = "TXN_BAD_INPUT"
	TxnErrorNotFound       = "TXN_NOT_FOUND"
	TxnErrorDuplicate      = "TXN_DUPLICATE"
	TxnErrorStorageFailure = "TXN_STORAGE_FAILURE"
	TxnErrorInternal       = "TXN_INTERNAL_ERROR"
)

// ErrorMapper normalizes arbitrary errors into the service envelope.
type ErrorMapper func(err error) *goerrors.Error

func txnErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureTxnErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return newTxnError(err.Error(), goerrors.CategoryNotFound, TxnErrorNotFound)
	case strings.Contains(msg, "duplicate"):
		return newTxnError(err.Error(), goerrors.CategoryConflict, TxnErrorDuplicate)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newTxnError(err.Error(), goerrors.CategoryBadInput, TxnErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureTxnErrorEnvelope(mapped)
}

func newTxnError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureTxnErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureTxnErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = txnHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTxnTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTxnTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return TxnErrorBadInput
	case goerrors.CategoryNotFound:
		return TxnErrorNotFound
	case goerrors.CategoryConflict:
		return TxnErrorDuplicate
	case goerrors.CategoryOperation, goerrors.CategoryExternal:
		return TxnErrorStorageFailure
	default:
		return TxnErrorInternal
	}
}

func txnHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// NotFoundError builds the typed negative result for lookups of unknown ids.
func NotFoundError(transactionID string) error {
	return goerrors.New("core: transaction not found", goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(TxnErrorNotFound).
		WithMetadata(map[string]any{"transaction_id": transactionID})
}

// StorageError wraps a persistence failure that is not the expected
// uniqueness violation; these always propagate to the ingestion caller.
func StorageError(source error, message string, metadata map[string]any) error {
	err := goerrors.Wrap(source, goerrors.CategoryInternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(TxnErrorStorageFailure)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// IsNotFound reports whether err carries the lookup-miss envelope.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Category == goerrors.CategoryNotFound
	}
	return false
}
