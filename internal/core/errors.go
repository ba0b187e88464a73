package core

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors. Callers classify with errors.Is; the web layer maps them
// to status codes through KindOf and to user messages through MapError.
var (
	ErrTableNotFound       = errors.New("table not found")
	ErrLineOutOfRange      = errors.New("line number out of range")
	ErrLengthMismatch      = errors.New("header/data length mismatch")
	ErrTypeMismatch        = errors.New("type mismatch")
	ErrDuplicateID         = errors.New("table id already registered")
	ErrUnsupportedPosition = errors.New("unsupported insert position")
	ErrInvalidPage         = errors.New("invalid page request")
	ErrStartBeyondData     = errors.New("start beyond data")
	ErrInvalidCondition    = errors.New("invalid search condition")
	ErrInvalidID           = errors.New("invalid table id")
	ErrInvalidHeaders      = errors.New("invalid headers")
	ErrPathMismatch        = errors.New("path does not match registered table")
	ErrFileUnreadable      = errors.New("file unreadable")
	ErrWriteFailed         = errors.New("write failed")
	ErrPathOutsideDataDir  = errors.New("path outside data directory")
)

// Kind tells callers whose fault an error is.
type Kind int

const (
	// KindInternal is an I/O or programming failure on our side.
	KindInternal Kind = iota
	// KindClient is a bad request or bad data; retrying unchanged will fail again.
	KindClient
	// KindNotFound is a client error naming something that does not exist.
	KindNotFound
	// KindConflict is a client error colliding with existing state.
	KindConflict
	// KindUnavailable means the request may succeed if retried later.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindClient:
		return "client"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error carries the operation that failed and the offending detail
// (file, line, column, raw value) alongside a sentinel.
type Error struct {
	Kind   Kind
	Op     string
	Err    error
	Detail string
}

func (e *Error) Error() string {
	msg := e.Err.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError wraps err with op and a formatted detail, picking the kind from
// the sentinel it wraps.
func newError(op string, err error, format string, args ...any) *Error {
	detail := format
	if len(args) > 0 {
		detail = fmt.Sprintf(format, args...)
	}
	return &Error{
		Kind:   sentinelKind(err),
		Op:     op,
		Err:    err,
		Detail: detail,
	}
}

func sentinelKind(err error) Kind {
	switch {
	case errors.Is(err, ErrTableNotFound):
		return KindNotFound
	case errors.Is(err, ErrDuplicateID):
		return KindConflict
	case errors.Is(err, ErrTooManyLoads):
		return KindUnavailable
	case errors.Is(err, ErrWriteFailed):
		return KindInternal
	case errors.Is(err, ErrLineOutOfRange),
		errors.Is(err, ErrLengthMismatch),
		errors.Is(err, ErrTypeMismatch),
		errors.Is(err, ErrUnsupportedPosition),
		errors.Is(err, ErrInvalidPage),
		errors.Is(err, ErrStartBeyondData),
		errors.Is(err, ErrInvalidCondition),
		errors.Is(err, ErrInvalidID),
		errors.Is(err, ErrInvalidHeaders),
		errors.Is(err, ErrPathMismatch),
		errors.Is(err, ErrPathOutsideDataDir),
		errors.Is(err, ErrFileUnreadable):
		return KindClient
	}
	return KindInternal
}

// KindOf classifies any error. Errors that did not come from this package
// are internal unless they are context cancellations.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindUnavailable
	}
	return sentinelKind(err)
}

// IsClientError reports whether err was caused by the caller's request or data.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindClient, KindNotFound, KindConflict:
		return true
	}
	return false
}
