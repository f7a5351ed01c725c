package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"balance-ledger/pkg/ledger"

	"github.com/lib/pq"
)

// SQLSTATE codes the store maps onto the ledger error taxonomy.
const (
	codeLockNotAvailable     = "55P03"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeQueryCanceled        = "57014"
	codeNumericOutOfRange    = "22003"
)

// mapError translates driver errors into ledger errors. what names the
// object being accessed, for example "account 42".
func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ledger.ErrAccountNotFound)
	}
	if errors.Is(err, ledger.ErrInvalidKind) {
		return fmt.Errorf("%s: %w", what, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeLockNotAvailable, codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%s: %w: %s", what, ledger.ErrContention, pqErr.Message)
		case codeUniqueViolation:
			return fmt.Errorf("%s: %w", what, ledger.ErrAlreadyExists)
		case codeForeignKeyViolation:
			return fmt.Errorf("%s: %w", what, ledger.ErrAccountNotFound)
		case codeQueryCanceled:
			return fmt.Errorf("%s: %w: %s", what, ledger.ErrContention, pqErr.Message)
		case codeNumericOutOfRange:
			ve := &ledger.ValidationError{}
			ve.Add("%s: value exceeds the stored precision", what)
			return ve
		}
		return fmt.Errorf("%s: %w: %s (%s)", what, ledger.ErrStorageFault, pqErr.Message, pqErr.Code)
	}

	// Connection loss, scan failures and anything else unexpected.
	return fmt.Errorf("%s: %w: %v", what, ledger.ErrStorageFault, err)
}
