package vecstore

import "fmt"

// StoreErrorKind classifies gateway failures so callers can decide log level
// and user-visible translation without string matching.
type StoreErrorKind string

const (
	// KindUnavailable means the backing store could not be reached.
	KindUnavailable StoreErrorKind = "unavailable"
	// KindInvalid means the request was malformed (e.g. dimension mismatch).
	KindInvalid StoreErrorKind = "invalid"
	// KindNotFound means the target collection or point does not exist.
	KindNotFound StoreErrorKind = "not_found"
)

// StoreError wraps a gateway failure with its kind. It satisfies the error
// interface and unwraps to the underlying cause.
type StoreError struct {
	// Kind classifies the failure.
	Kind StoreErrorKind
	// Op is the gateway operation that failed (e.g. "upsert").
	Op string
	// Err is the underlying cause.
	Err error
}

// Error returns the formatted error message.
func (e *StoreError) Error() string {
	return fmt.Sprintf("vecstore: %s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StoreError) Unwrap() error { return e.Err }

// newStoreError constructs a StoreError for the given operation and kind.
func newStoreError(op string, kind StoreErrorKind, err error) *StoreError {
	return &StoreError{Kind: kind, Op: op, Err: err}
}
