package utils

import "fmt"

// ValidationError rejects a request before any I/O happens.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ConflictError means another run holds the reconciliation lease.
// Callers may retry later; the run is never queued.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// DatabaseError wraps a local ledger failure. The local ledger is the
// system of record, so these abort the whole run.
type DatabaseError struct {
	Err error
}

func (e *DatabaseError) Error() string { return "database error: " + e.Err.Error() }
func (e *DatabaseError) Unwrap() error { return e.Err }

// RemoteApiError wraps a failure talking to the payment processor.
// Per-payment fetch failures degrade into a discrepancy instead of
// aborting; only the orchestrator decides what is fatal.
type RemoteApiError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote api error: %s: %v", e.Message, e.Err)
	}
	return "remote api error: " + e.Message
}

func (e *RemoteApiError) Unwrap() error { return e.Err }
