package versioning

import (
	"errors"
	"fmt"
)

// ErrSaveInProgress rejects a save while another save of the same quotation is running.
var ErrSaveInProgress = errors.New("a save of this quotation is already in progress")

// NetworkError is a failed call to the Store.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// CancelledError reports that the caller cancelled the save during Step.
type CancelledError struct {
	Step Step
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("save cancelled during %s", e.Step)
}

// RollbackFailure means compensation did not complete. The store may hold a partial or orphaned
// version and must be checked manually; it is never retried automatically.
type RollbackFailure struct {
	BaseNumber string
	CreatedID  string
	PriorID    string
	Cause      error
	Err        error
}

func (e *RollbackFailure) Error() string {
	return fmt.Sprintf("rollback of %s (created %q, prior %q) failed, verify the quotation manually: %v",
		e.BaseNumber, e.CreatedID, e.PriorID, e.Err)
}

func (e *RollbackFailure) Unwrap() []error {
	var errs []error
	for _, err := range []error{e.Err, e.Cause} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
