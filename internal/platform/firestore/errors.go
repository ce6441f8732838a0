package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type failure uint8

const (
	failureOther failure = iota
	failureMissing
	failureContended
	failureOffline
)

// classify folds a gRPC status code into the three outcomes services branch on. Auth failures
// count as offline since a retry after credentials refresh may succeed.
func classify(code codes.Code) failure {
	switch code {
	case codes.NotFound:
		return failureMissing
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted:
		return failureContended
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded,
		codes.Unauthenticated, codes.PermissionDenied:
		return failureOffline
	}
	return failureOther
}

// Error is the repositories.RepositoryError returned by this package.
type Error struct {
	op  string
	err error
	why failure
}

func (e *Error) Error() string {
	if e.op == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) IsNotFound() bool    { return e != nil && e.why == failureMissing }
func (e *Error) IsConflict() bool    { return e != nil && e.why == failureContended }
func (e *Error) IsUnavailable() bool { return e != nil && e.why == failureOffline }

// NotFound reports a query that matched nothing.
func NotFound(op, message string) error {
	return &Error{op: op, err: errors.New(message), why: failureMissing}
}

// WrapError tags err with op and a failure class. Context errors are returned as is, and an
// error that never reached the server (a failed dial) is offline.
func WrapError(op string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if existing := (*Error)(nil); errors.As(err, &existing) {
		if existing.op == "" {
			existing.op = op
		}
		return existing
	}
	st, ok := status.FromError(err)
	if !ok {
		return &Error{op: op, err: err, why: failureOffline}
	}
	if st.Code() == codes.Canceled {
		return context.Canceled
	}
	return &Error{op: op, err: err, why: classify(st.Code())}
}
