package ledger

import (
	"errors"
	"fmt"
)

// Domain errors returned by the ledger.
var (
	// ErrNoAccount is returned when the singleton account row is missing.
	ErrNoAccount = errors.New("no account found")

	// ErrInsufficientBalance is returned when a debit exceeds the balance.
	ErrInsufficientBalance = errors.New("insufficient balance for debit transaction")

	// ErrInvalidKind is returned for a kind other than credit or debit.
	ErrInvalidKind = errors.New("invalid transaction type: use 'credit' or 'debit'")

	// ErrInvalidAmount is returned for a zero or negative amount.
	ErrInvalidAmount = errors.New("amount must be greater than 0")

	// ErrAmountPrecision is returned for an amount with more decimal
	// places than the stores keep.
	ErrAmountPrecision = errors.New("amount must have at most 30 decimal places")

	// ErrInvalidDate is returned when a transaction date cannot be parsed.
	ErrInvalidDate = errors.New("invalid transaction date")

	// ErrTransactionNotFound is returned by stores when no transaction has the id.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// StorageError wraps an unexpected store failure of an update or delete.
type StorageError struct {
	// Op is the failed operation ("update" or "delete").
	Op  string
	Err error
}

// Error renders the message reported to clients, including the cause.
func (e *StorageError) Error() string {
	return fmt.Sprintf("Unable to %s transaction: %v", e.Op, e.Err)
}

// Unwrap returns the underlying store error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsDomainError reports whether err is a business rule rejection rather
// than an infrastructure failure.
func IsDomainError(err error) bool {
	switch {
	case errors.Is(err, ErrNoAccount),
		errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrInvalidKind),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrAmountPrecision),
		errors.Is(err, ErrInvalidDate),
		errors.Is(err, ErrTransactionNotFound):
		return true
	}
	return false
}

// Classify returns a short label for err, for logs and metrics.
func Classify(err error) string {
	if err == nil {
		return "none"
	}

	switch {
	case errors.Is(err, ErrNoAccount):
		return "no_account"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrInvalidKind):
		return "invalid_kind"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrAmountPrecision):
		return "amount_precision"
	case errors.Is(err, ErrInvalidDate):
		return "invalid_date"
	case errors.Is(err, ErrTransactionNotFound):
		return "not_found"
	}

	var se *StorageError
	if errors.As(err, &se) {
		return "storage"
	}
	return "other"
}
