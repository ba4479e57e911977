package handler

import (
	"errors"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
)

// errorMessage returns the client facing message of err
func errorMessage(err error) string {
	var abortErr *ledger.RunAbortError
	if errors.As(err, &abortErr) {
		return abortErr.Error()
	}
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}
