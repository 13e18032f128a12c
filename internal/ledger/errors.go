package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("item not found")
	ErrInvalidQuantity        = errors.New("quantity must be > 0")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInvalidAdjustment      = errors.New("invalid adjustment")
	ErrItemDiscontinued       = errors.New("item is discontinued")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrTransferFailure        = errors.New("transfer failed")
	ErrIntegrityFailure       = errors.New("ledger integrity failure")

	ErrInvalidTransfer        = errors.New("invalid transfer")
	ErrInvalidThresholds      = errors.New("invalid stock thresholds")
	ErrAlertNotFound          = errors.New("alert not found")
	ErrInvalidAlertTransition = errors.New("invalid alert transition")
	ErrDuplicateItem          = errors.New("item already exists")
	ErrInvalidItem            = errors.New("invalid item")
	ErrInvalidRange           = errors.New("invalid date range")
)

// IsRetryable reports whether the caller may reload and reapply the operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// TransferError is returned when the second leg of a transfer fails after
// the first leg committed.
type TransferError struct {
	Reference  string
	FromItemID string
	ToItemID   string
	Cause      error
	// RollbackErr is set when the compensating movement could not be recorded.
	RollbackErr error
}

func (e *TransferError) Error() string {
	if e.RollbackErr != nil {
		return fmt.Sprintf("transfer %s from %s to %s failed: %v; rollback failed: %v",
			e.Reference, e.FromItemID, e.ToItemID, e.Cause, e.RollbackErr)
	}
	return fmt.Sprintf("transfer %s from %s to %s failed and was rolled back: %v",
		e.Reference, e.FromItemID, e.ToItemID, e.Cause)
}

func (e *TransferError) Unwrap() []error {
	errs := []error{ErrTransferFailure, e.Cause}
	if e.RollbackErr != nil {
		errs = append(errs, ErrIntegrityFailure, e.RollbackErr)
	}
	return errs
}

// RolledBack reports whether the first leg was compensated.
func (e *TransferError) RolledBack() bool {
	return e.RollbackErr == nil
}
