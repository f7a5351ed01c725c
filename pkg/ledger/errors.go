package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Ledger errors. Stores and the engine wrap these with fmt.Errorf("...: %w")
// so callers can match them with errors.Is.
var (
	// ErrNotFound is returned when an account or operation does not exist
	ErrNotFound = errors.New("ledger: not found")

	// ErrAccountNotFound is returned when the referenced account does not exist
	ErrAccountNotFound = fmt.Errorf("%w: account", ErrNotFound)

	// ErrAlreadyExists is returned when an account id or principal is taken
	ErrAlreadyExists = errors.New("ledger: already exists")

	// ErrInsufficientFunds is returned when an operation would make the balance negative
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrContention is returned when the account lock was not acquired in time
	ErrContention = errors.New("ledger: account lock contention")

	// ErrStorageFault is returned when the underlying persistence is unavailable
	ErrStorageFault = errors.New("ledger: storage unavailable")

	// ErrInvalidKind is a defect: a kind outside deposit/withdraw reached the engine
	ErrInvalidKind = errors.New("ledger: invalid operation kind")
)

// ValidationError carries one message per violated input rule.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "ledger: validation failed: " + strings.Join(e.Violations, "; ")
}

// Add records a violation.
func (e *ValidationError) Add(format string, args ...any) {
	e.Violations = append(e.Violations, fmt.Sprintf(format, args...))
}

// Err returns e when it holds violations and nil otherwise.
func (e *ValidationError) Err() error {
	if e == nil || len(e.Violations) == 0 {
		return nil
	}
	return e
}

// IsNotFound checks if the error indicates a missing account or operation.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsInsufficientFunds checks if the error is a business-rule rejection for a negative balance.
func IsInsufficientFunds(err error) bool {
	return errors.Is(err, ErrInsufficientFunds)
}

// IsAlreadyExists checks if the error indicates a taken account id or principal.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsContention checks if the error indicates lock contention.
func IsContention(err error) bool {
	return errors.Is(err, ErrContention)
}

// IsStorageFault checks if the error indicates unavailable storage.
func IsStorageFault(err error) bool {
	return errors.Is(err, ErrStorageFault)
}

// IsRetryable reports whether the error is transient: contention or a storage fault.
func IsRetryable(err error) bool {
	return IsContention(err) || IsStorageFault(err)
}

// IsTerminal reports whether retrying the same input will fail the same way.
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	return IsNotFound(err) ||
		IsValidation(err) ||
		IsInsufficientFunds(err) ||
		errors.Is(err, ErrInvalidKind) ||
		IsAlreadyExists(err)
}

// ClassifyError returns a string classification of the error type for metrics.
func ClassifyError(err error) string {
	if err == nil {
		return "none"
	}

	switch {
	case IsValidation(err):
		return "validation"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrContention):
		return "contention"
	case errors.Is(err, ErrStorageFault):
		return "storage_fault"
	case errors.Is(err, ErrInvalidKind):
		return "invalid_kind"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "other"
	}
}
