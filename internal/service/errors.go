package service

import "errors"

var (
	// ErrReconciliationRetriesExceeded is returned when a reconciliation
	// pass keeps hitting storage merge conflicts past the retry ceiling.
	// Surfacing it avoids an unbounded retry loop; the next scheduled
	// cycle starts fresh.
	ErrReconciliationRetriesExceeded = errors.New("reconciliation retries exceeded")
)

// maxReconcileAttempts caps conflict-triggered retries of one response-
// handling pass. The algorithm is idempotent given the same inputs, so each
// retry starts from scratch against a fresh transaction.
const maxReconcileAttempts = 5
