package custom_errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Error kinds surfaced by the scheduler. Errors are classified with crdb.Mark,
// so callers test them with errors.Is while the original cause is preserved.
var (
	// ErrPersistence means the shared store read or write failed.
	ErrPersistence = crdb.New("persistence error")
	// ErrNotFound means the job id is not in the registry.
	ErrNotFound = crdb.New("job not found")
	// ErrBadRequest means the caller supplied something the scheduler cannot act on.
	ErrBadRequest = crdb.New("bad request")
	// ErrLockTimeout means the registry persistence lock was not acquired in time.
	ErrLockTimeout = crdb.New("registry lock timeout")
)

// Persistence wraps a store failure and classifies it as ErrPersistence.
func Persistence(err error, msg string) error {
	return crdb.Mark(crdb.Wrap(err, msg), ErrPersistence)
}

// NotFound builds an ErrNotFound error for id.
func NotFound(id string) error {
	return crdb.Mark(crdb.Newf("job %q not found", id), ErrNotFound)
}

// BadRequest wraps err and classifies it as ErrBadRequest.
func BadRequest(err error, msg string) error {
	return crdb.Mark(crdb.Wrap(err, msg), ErrBadRequest)
}
