package command

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/Phavyajai/webhook-transaction-processor/core"
)

func commandDependencyError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.TxnErrorInternal)
}

func commandInvalidInputError(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.TxnErrorBadInput)
}
