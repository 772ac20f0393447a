package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// ErrUnknown is the fallback for errors carrying no code
	ErrUnknown ErrorCode = "UNKNOWN"

	// Bundle errors
	ErrBundleRoot   ErrorCode = "BUNDLE_ROOT"
	ErrBundleFormat ErrorCode = "BUNDLE_FORMAT"

	// Configuration errors
	ErrConfigLoad  ErrorCode = "CONFIG_LOAD"
	ErrConfigParse ErrorCode = "CONFIG_PARSE"
)

// ScopeError represents a structured error with code and details
type ScopeError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *ScopeError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *ScopeError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface
func (e *ScopeError) Is(target error) bool {
	var targetErr *ScopeError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new ScopeError with the given code and message
func New(code ErrorCode, message string) *ScopeError {
	return &ScopeError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new ScopeError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *ScopeError {
	return &ScopeError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a ScopeError
func Wrap(err error, code ErrorCode, message string) *ScopeError {
	if err == nil {
		return nil
	}
	return &ScopeError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *ScopeError {
	if err == nil {
		return nil
	}
	return &ScopeError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *ScopeError) WithDetail(key string, value interface{}) *ScopeError {
	e.Details[key] = value
	return e
}

// GetCode extracts the error code from an error, or ErrUnknown
func GetCode(err error) ErrorCode {
	var scopeErr *ScopeError
	if errors.As(err, &scopeErr) {
		return scopeErr.Code
	}
	return ErrUnknown
}
