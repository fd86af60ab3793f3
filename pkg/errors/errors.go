package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrInternal
)

// Claim business-rule codes. These are surfaced verbatim in API error
// bodies and are never retried.
const (
	ErrDuplicateClaim ErrorCode = iota + 2000
	ErrInsufficientFunds
	ErrLedgerUninitialized
	ErrUnknownEventType
)

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Code extracts the ErrorCode from err, or ErrInternal if err is not
// an AppError.
func Code(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return Code(err) == code
}

func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

func Internal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// DuplicateClaim signals that a non-rejected claim already exists for
// the policy.
func DuplicateClaim(policyID string) *AppError {
	return &AppError{
		Code:    ErrDuplicateClaim,
		Message: fmt.Sprintf("a claim already exists for policy %s", policyID),
	}
}

// InsufficientFunds signals that the ledger balance cannot cover the
// requested amount. Amounts are in display units.
func InsufficientFunds(requested, available float64) *AppError {
	return &AppError{
		Code:    ErrInsufficientFunds,
		Message: fmt.Sprintf("insufficient funds: requested %.6f, available %.6f", requested, available),
	}
}

// LedgerUninitialized signals that the claims ledger singleton has not
// been created yet.
func LedgerUninitialized() *AppError {
	return &AppError{
		Code:    ErrLedgerUninitialized,
		Message: "claims ledger is not initialized",
	}
}

// UnknownEventType signals a trigger request for an event with no
// registered templates.
func UnknownEventType(eventType string) *AppError {
	return &AppError{
		Code:    ErrUnknownEventType,
		Message: fmt.Sprintf("unknown event type %q", eventType),
	}
}
