package core

import (
	"errors"
	"fmt"
)

// Code is a stable, caller-facing error code.
type Code string

const (
	CodeNotFound               Code = "NOT_FOUND"
	CodeNotActive              Code = "NOT_ACTIVE"
	CodeBidTooLow              Code = "BID_TOO_LOW"
	CodeSelfBidForbidden       Code = "SELF_BID_FORBIDDEN"
	CodeNotAvailable           Code = "NOT_AVAILABLE"
	CodeHasBidsCannotCancel    Code = "HAS_BIDS_CANNOT_CANCEL"
	CodeVersionConflict        Code = "VERSION_CONFLICT"
	CodePersistenceUnavailable Code = "PERSISTENCE_UNAVAILABLE"
	CodeInvalidRequest         Code = "INVALID_REQUEST"
	CodeForbidden              Code = "FORBIDDEN"
	CodeUnavailable            Code = "UNAVAILABLE"
)

// Error carries a Code and a human-readable reason. The wrapped cause is never
// shown to callers; it exists for logging.
type Error struct {
	Code   Code
	Reason string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error with the same code, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrNotFound               = &Error{Code: CodeNotFound, Reason: "auction not found"}
	ErrNotActive              = &Error{Code: CodeNotActive, Reason: "auction is not accepting bids"}
	ErrBidTooLow              = &Error{Code: CodeBidTooLow, Reason: "bid is below the minimum increment"}
	ErrSelfBidForbidden       = &Error{Code: CodeSelfBidForbidden, Reason: "seller cannot bid on own auction"}
	ErrNotAvailable           = &Error{Code: CodeNotAvailable, Reason: "buy now is not available"}
	ErrHasBidsCannotCancel    = &Error{Code: CodeHasBidsCannotCancel, Reason: "auction has bids and cannot be cancelled"}
	ErrVersionConflict        = &Error{Code: CodeVersionConflict, Reason: "auction was modified concurrently"}
	ErrPersistenceUnavailable = &Error{Code: CodePersistenceUnavailable, Reason: "storage is unavailable"}
	ErrInvalidRequest         = &Error{Code: CodeInvalidRequest, Reason: "invalid request"}
	ErrForbidden              = &Error{Code: CodeForbidden, Reason: "operation not permitted"}
	ErrUnavailable            = &Error{Code: CodeUnavailable, Reason: "engine is shutting down"}
)

// Errorf builds an *Error with a formatted reason.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// PersistenceError wraps a storage failure as PERSISTENCE_UNAVAILABLE.
func PersistenceError(op string, cause error) *Error {
	return &Error{Code: CodePersistenceUnavailable, Reason: op + " failed", cause: cause}
}

// CodeOf extracts the code from err. Errors outside the taxonomy report UNAVAILABLE.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnavailable
}

// ReasonOf returns the caller-facing reason for err without internal causes.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ErrUnavailable.Reason
}
