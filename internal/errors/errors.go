package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Herd error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrAlreadyRunning ErrorCode = "ALREADY_RUNNING" // 409
	ErrConflict       ErrorCode = "CONFLICT"        // 409
	ErrNoActiveToken  ErrorCode = "NO_ACTIVE_TOKEN" // 412
	ErrUpstream       ErrorCode = "UPSTREAM"        // 502
	ErrInternal       ErrorCode = "INTERNAL"        // 500
)

// HerdError represents a structured error with code, status, and details.
type HerdError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *HerdError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *HerdError {
	return &HerdError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing token or campaign.
func NewNotFound(kind, identifier string) *HerdError {
	return &HerdError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewAlreadyRunning creates a 409 error when a campaign for the same owner and
// feature is still running.
func NewAlreadyRunning(owner, feature, campaignID string) *HerdError {
	return &HerdError{
		Code:    ErrAlreadyRunning,
		Status:  409,
		Message: fmt.Sprintf("%s campaign already running for %q", feature, owner),
		Details: map[string]any{"owner": owner, "feature": feature, "campaign_id": campaignID},
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *HerdError {
	return &HerdError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewNoActiveToken creates a 412 error when an owner has nothing to run a campaign with.
func NewNoActiveToken(owner string) *HerdError {
	return &HerdError{
		Code:    ErrNoActiveToken,
		Status:  412,
		Message: fmt.Sprintf("no active token for %q; add one with token_add or activate an existing one", owner),
		Details: map[string]any{"owner": owner},
	}
}

// NewUpstream creates a 502 error for a rejected or failed remote call.
func NewUpstream(operation string, status int, code string) *HerdError {
	msg := fmt.Sprintf("%s failed with status %d", operation, status)
	if code != "" {
		msg = fmt.Sprintf("%s failed: %s", operation, code)
	}
	return &HerdError{
		Code:    ErrUpstream,
		Status:  502,
		Message: msg,
		Details: map[string]any{"operation": operation, "upstream_status": status, "upstream_code": code},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *HerdError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &HerdError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if err (or anything it wraps) is a HerdError with the given code.
func Is(err error, code ErrorCode) bool {
	var hErr *HerdError
	if stderrors.As(err, &hErr) {
		return hErr.Code == code
	}
	return false
}

// As returns the HerdError wrapped by err, if any.
func As(err error) (*HerdError, bool) {
	var hErr *HerdError
	if stderrors.As(err, &hErr) {
		return hErr, true
	}
	return nil, false
}
