package svm

import (
	"errors"
	"fmt"
)

// ErrTransactionFailed is matched by a ConfirmationError whose transaction landed with an error
var ErrTransactionFailed = errors.New("transaction failed")

// ConfirmationError is returned when a broadcast transaction could not be confirmed.
// The transaction may still land; Signature identifies it.
type ConfirmationError struct {
	Signature string
	Err       error
}

func (e *ConfirmationError) Error() string {
	return fmt.Sprintf("transaction %s not confirmed: %v", e.Signature, e.Err)
}

func (e *ConfirmationError) Unwrap() error {
	return e.Err
}

// transactionError wraps the err value of a signature status
func transactionError(status any) error {
	return fmt.Errorf("%w: %v", ErrTransactionFailed, status)
}
