package catalog

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a catalog resource cannot be located.
var ErrNotFound = errors.New("catalog: not found")

// Error implements repositories.RepositoryError for CMS backed lookups.
type Error struct {
	op          string
	err         error
	notFound    bool
	unavailable bool
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsNotFound reports whether the product or coupon does not exist.
func (e *Error) IsNotFound() bool { return e != nil && e.notFound }

// IsConflict is always false for the read only catalog.
func (e *Error) IsConflict() bool { return false }

// IsUnavailable reports whether the CMS could not be reached.
func (e *Error) IsUnavailable() bool { return e != nil && e.unavailable }

func notFound(op, what string) *Error {
	return &Error{op: op, err: fmt.Errorf("%w: %s", ErrNotFound, what), notFound: true}
}

func unavailable(op string, err error) *Error {
	return &Error{op: op, err: err, unavailable: true}
}
