package repositories

import "fmt"

// ErrorKind classifies repository failures for callers that branch on them.
type ErrorKind string

const (
	// ErrorNotFound means the record does not exist.
	ErrorNotFound ErrorKind = "not_found"
	// ErrorConflict means the write collided with existing state.
	ErrorConflict ErrorKind = "conflict"
	// ErrorUnavailable means the backing store could not be reached.
	ErrorUnavailable ErrorKind = "unavailable"
)

// Error is a RepositoryError for stores without their own error type.
type Error struct {
	Op   string
	Kind ErrorKind
	Err  error
}

var _ RepositoryError = (*Error)(nil)

// NewError constructs a typed repository error.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap exposes the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound implements RepositoryError.
func (e *Error) IsNotFound() bool { return e != nil && e.Kind == ErrorNotFound }

// IsConflict implements RepositoryError.
func (e *Error) IsConflict() bool { return e != nil && e.Kind == ErrorConflict }

// IsUnavailable implements RepositoryError.
func (e *Error) IsUnavailable() bool { return e != nil && e.Kind == ErrorUnavailable }
