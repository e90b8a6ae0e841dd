package domain

import "github.com/cockroachdb/errors"

// Request classification and validation failures. None of them mutate state.
var (
	ErrMalformedRequest  = errors.New("malformed request")
	ErrUndefinedType     = errors.New("undefined type")
	ErrUnknownType       = errors.New("unknown type")
	ErrIncompleteRequest = errors.New("incomplete request")
)

var (
	// ErrStoreUnavailable marks failures of the job store or the record store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotifyFailure marks a notification that could not be published.
	ErrNotifyFailure = errors.New("notify failure")

	ErrNotFound    = errors.New("not found")
	ErrJobNotFound = errors.New("job not found")
	ErrConflict    = errors.New("conflict")
)
