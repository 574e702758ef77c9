// Package errors provides the structured error kinds shared by every file system in cachingfs.
//
// Three kinds matter to callers of a file system: NotFound (the path does not exist),
// Throttled (the backing store is rate limited, retry later) and SystemError (anything
// else the backing store reports). The remaining codes describe local failures such as
// invalid configuration or a broken internal contract.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for cachingfs operations.
type ErrorCode string

const (
	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigLoad    ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigSave    ErrorCode = "CONFIG_SAVE"

	// File system errors
	ErrCodeFileNotFound ErrorCode = "FILE_NOT_FOUND"
	ErrCodePathInvalid  ErrorCode = "PATH_INVALID"
	ErrCodeNotDirectory ErrorCode = "NOT_DIRECTORY"

	// Backing store errors
	ErrCodeThrottled    ErrorCode = "STORAGE_THROTTLED"
	ErrCodeSystemError  ErrorCode = "STORAGE_SYSTEM_ERROR"
	ErrCodeAccessDenied ErrorCode = "STORAGE_ACCESS_DENIED"

	// Cache errors
	ErrCodeCacheCorrupt ErrorCode = "CACHE_CORRUPT"
	ErrCodeCacheClosed  ErrorCode = "CACHE_CLOSED"

	// Internal errors
	ErrCodeInternalError  ErrorCode = "INTERNAL_ERROR"
	ErrCodeNotSupported   ErrorCode = "NOT_SUPPORTED"
	ErrCodeRetryExhausted ErrorCode = "RETRY_EXHAUSTED"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryFilesystem    ErrorCategory = "filesystem"
	CategoryStorage       ErrorCategory = "storage"
	CategoryCache         ErrorCategory = "cache"
	CategoryInternal      ErrorCategory = "internal"
)

// Error is a structured error with context and metadata.
type Error struct {
	Code     ErrorCode         `json:"code"`
	Category ErrorCategory     `json:"category"`
	Message  string            `json:"message"`
	Context  map[string]string `json:"context,omitempty"`
	Cause    error             `json:"-"`

	Component string `json:"component,omitempty"`
	Operation string `json:"operation,omitempty"`
	Path      string `json:"path,omitempty"`

	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Component != "" {
		b.WriteString("[")
		b.WriteString(e.Component)
		if e.Operation != "" {
			b.WriteString(":")
			b.WriteString(e.Operation)
		}
		b.WriteString("] ")
	}
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if e.Path != "" {
		fmt.Fprintf(&b, " (path %q)", e.Path)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// NewError creates a new error with default category and retry hint.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Context:   make(map[string]string),
		Retryable: IsRetryableByDefault(code),
		Timestamp: time.Now(),
	}
}

// NotFound returns an ErrCodeFileNotFound error for path.
func NotFound(path string) *Error {
	return NewError(ErrCodeFileNotFound, "path does not exist").WithPath(path)
}

// Throttled returns an ErrCodeThrottled error for path wrapping cause.
func Throttled(path string, cause error) *Error {
	return NewError(ErrCodeThrottled, "backing store is throttling requests").WithPath(path).WithCause(cause)
}

// SystemError returns an ErrCodeSystemError error for path wrapping cause.
func SystemError(path string, cause error) *Error {
	return NewError(ErrCodeSystemError, "backing store failure").WithPath(path).WithCause(cause)
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound     = &Error{Code: ErrCodeFileNotFound}
	ErrThrottled    = &Error{Code: ErrCodeThrottled}
	ErrSystem       = &Error{Code: ErrCodeSystemError}
	ErrNotSupported = &Error{Code: ErrCodeNotSupported}
)

// IsNotFound reports whether err is a NotFound error anywhere in its chain.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsThrottled reports whether err is a Throttled error anywhere in its chain.
func IsThrottled(err error) bool {
	return errors.Is(err, ErrThrottled)
}

// IsRetryable reports whether err carries the retryable hint.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// CodeOf returns the code of the first *Error in err's chain, or ErrCodeInternalError.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternalError
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "INVALID_CONFIG") || strings.HasPrefix(codeStr, "CONFIG_"):
		return CategoryConfiguration
	case strings.HasPrefix(codeStr, "FILE_") || strings.HasPrefix(codeStr, "PATH_") ||
		strings.HasPrefix(codeStr, "NOT_DIRECTORY"):
		return CategoryFilesystem
	case strings.HasPrefix(codeStr, "STORAGE_"):
		return CategoryStorage
	case strings.HasPrefix(codeStr, "CACHE_"):
		return CategoryCache
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault determines if an error is retryable by default.
func IsRetryableByDefault(code ErrorCode) bool {
	switch code {
	case ErrCodeThrottled:
		return true
	default:
		return false
	}
}

// WithContext adds contextual information to an error
func (e *Error) WithContext(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *Error) WithOperation(operation string) *Error {
	e.Operation = operation
	return e
}

// WithPath sets the path the error refers to
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithCause sets the underlying cause
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}
