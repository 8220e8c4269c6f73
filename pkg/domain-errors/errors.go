// Package domainerrors provides coded errors shared across service
// boundaries. Stores return sentinel errors for infrastructure facts
// (pkg/platform/sentinel); services translate them into coded errors here so
// transports can map them uniformly to status codes.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error for transport mapping and retry decisions.
type Code string

const (
	// CodeInvalidInput marks malformed or missing caller input.
	CodeInvalidInput Code = "invalid_input"
	// CodeNotFound marks a record or tombstone that does not exist.
	CodeNotFound Code = "not_found"
	// CodeConflict marks an operation applied to an entity in the wrong
	// state, e.g. restoring a record that is not deleted.
	CodeConflict Code = "conflict"
	// CodeQuotaExceeded marks a creation rejected by the monthly plan limit.
	CodeQuotaExceeded Code = "quota_exceeded"
	// CodeRateLimited marks a write rejected by the sliding-window throttle.
	CodeRateLimited Code = "rate_limited"
	// CodeUnavailable marks a transient infrastructure failure; callers may
	// retry.
	CodeUnavailable Code = "unavailable"
	// CodeInternal marks everything else.
	CodeInternal Code = "internal"
)

// Error is a coded error with an operator-facing message and an optional
// wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message. Returns nil when err is nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf extracts the code from err, defaulting to CodeInternal for uncoded
// errors and "" for nil.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

// Message extracts the operator-facing message from err, falling back to
// err.Error() for uncoded errors.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Message
	}
	return err.Error()
}

// ToHTTPStatus maps a code to the status the external HTTP collaborator
// should emit. Quota rejections map to 403 with the quota message.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeQuotaExceeded:
		return http.StatusForbidden
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
