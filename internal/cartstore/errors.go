package cartstore

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidItem indicates a line item without product id, with a negative price or a non-positive quantity.
	ErrInvalidItem = errors.New("cart: invalid item")
	// ErrItemNotFound indicates the product is not in the cart.
	ErrItemNotFound = errors.New("cart: item not found")
	// ErrInvalidFreight indicates a freight option that cannot be selected.
	ErrInvalidFreight = errors.New("cart: invalid freight option")
	// ErrInvalidStep indicates an unknown checkout step name.
	ErrInvalidStep = errors.New("cart: invalid checkout step")
	// ErrCartIDRequired indicates an empty cart session id.
	ErrCartIDRequired = errors.New("cart: id is required")
)

// Error implements repositories.RepositoryError for cart session persistence.
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

// IsNotFound reports whether the cart session does not exist or expired.
func (e *Error) IsNotFound() bool { return e != nil && e.notFound }

// IsConflict is always false; the last write wins.
func (e *Error) IsConflict() bool { return false }

// IsUnavailable reports whether the session backend could not be reached.
func (e *Error) IsUnavailable() bool { return e != nil && e.unavailable }

func notFoundError(op, cartID string) *Error {
	return &Error{op: op, err: fmt.Errorf("cart %s not found", cartID), notFound: true}
}

func unavailableError(op string, err error) *Error {
	return &Error{op: op, err: err, unavailable: true}
}
