package store

import "errors"

// Sentinel errors returned by the local store. Callers should use
// [errors.Is] to match against these values.
var (
	// ErrMergeConflict is returned by Tx.Save when a concurrent writer
	// advanced the feature's revision since the transaction began. The
	// reconciliation pass that hit it must be discarded and re-run from
	// scratch against a fresh transaction.
	ErrMergeConflict = errors.New("local store merge conflict")

	// ErrRecordNotFound is returned when a fetch targets an identifier or
	// key with no row in the local store.
	ErrRecordNotFound = errors.New("record not found in local store")

	// ErrTxDone is returned when a repository method is called on a
	// transaction that was already saved or discarded.
	ErrTxDone = errors.New("transaction already finished")
)

// Low-level database operation errors, returned (or wrapped) by the sqlite
// implementation when a SQL-level operation fails.
var (
	// ErrBuildingSQLQuery is returned when constructing a parameterised
	// SQL query fails.
	ErrBuildingSQLQuery = errors.New("error building sql query")

	// ErrExecutingQuery is returned when executing a read-only query
	// against the database fails.
	ErrExecutingQuery = errors.New("error executing sql query")

	// ErrBeginningTransaction is returned when the database driver cannot
	// start a new transaction.
	ErrBeginningTransaction = errors.New("failed to begin transaction")

	// ErrCommittingTransaction is returned when committing an open
	// transaction fails. The transaction is considered rolled back.
	ErrCommittingTransaction = errors.New("failed to commit transaction")
)
