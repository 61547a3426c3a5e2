package models

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by Engine wraps exactly one of these
// unless it is an unexpected infrastructure failure.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")
)

// Conflicts. The operation aborted and nothing was written; callers may retry
// a lock timeout as is.
var (
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrConflict)
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", ErrConflict)
	ErrOverReturn        = fmt.Errorf("%w: return exceeds outstanding quantity", ErrConflict)
	ErrLockTimeout       = fmt.Errorf("%w: lock wait timeout", ErrConflict)
	ErrDuplicateSku      = fmt.Errorf("%w: duplicate sku", ErrConflict)
)

func wrapf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

func validationErrorf(format string, args ...any) error {
	return wrapf(ErrValidation, format, args...)
}

func notFoundErrorf(format string, args ...any) error {
	return wrapf(ErrNotFound, format, args...)
}

type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindNotFound   ErrorKind = "not_found"
	ErrorKindForbidden  ErrorKind = "forbidden"
	ErrorKindConflict   ErrorKind = "conflict"
	ErrorKindInternal   ErrorKind = "internal"
)

// KindOf classifies err for transport layers.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrForbidden):
		return ErrorKindForbidden
	case errors.Is(err, ErrValidation):
		return ErrorKindValidation
	case errors.Is(err, ErrNotFound):
		return ErrorKindNotFound
	case errors.Is(err, ErrConflict):
		return ErrorKindConflict
	}
	return ErrorKindInternal
}

type BulkEditFailure struct {
	Index   int    `json:"index"`
	Id      int    `json:"id"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// BulkEditError aggregates every entry that failed validation in an
// all-or-nothing batch. When it is returned nothing from the batch was saved.
type BulkEditError struct {
	Operation string            `json:"operation"`
	Failures  []BulkEditFailure `json:"failures"`
}

func (e *BulkEditError) add(index int, id int, err error) {
	e.Failures = append(e.Failures, BulkEditFailure{Index: index, Id: id, Message: err.Error(), Err: err})
}

func (e *BulkEditError) empty() bool {
	return len(e.Failures) == 0
}

func (e *BulkEditError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Message)
	}
	return fmt.Sprintf("%s rejected, no changes saved: %s", e.Operation, strings.Join(msgs, "; "))
}

func (e *BulkEditError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}
