package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewError(t *testing.T) {
	t.Parallel()

	t.Run("creates error with defaults", func(t *testing.T) {
		err := NewError(ErrCodeInvalidConfig, "configuration is invalid")
		if err.Code != ErrCodeInvalidConfig {
			t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidConfig)
		}
		if err.Category != CategoryConfiguration {
			t.Errorf("Category = %v, want %v", err.Category, CategoryConfiguration)
		}
		if err.Context == nil {
			t.Error("Context map is nil")
		}
		if err.Timestamp.IsZero() {
			t.Error("Timestamp not set")
		}
		if err.Retryable {
			t.Error("InvalidConfig should not be retryable")
		}
	})

	t.Run("throttled is retryable", func(t *testing.T) {
		if !NewError(ErrCodeThrottled, "slow down").Retryable {
			t.Error("Throttled should be retryable by default")
		}
	})
}

func TestGetCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code     ErrorCode
		expected ErrorCategory
	}{
		{ErrCodeInvalidConfig, CategoryConfiguration},
		{ErrCodeConfigLoad, CategoryConfiguration},
		{ErrCodeFileNotFound, CategoryFilesystem},
		{ErrCodePathInvalid, CategoryFilesystem},
		{ErrCodeNotDirectory, CategoryFilesystem},
		{ErrCodeThrottled, CategoryStorage},
		{ErrCodeSystemError, CategoryStorage},
		{ErrCodeCacheCorrupt, CategoryCache},
		{ErrCodeInternalError, CategoryInternal},
		{ErrCodeNotSupported, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := GetCategory(tt.code); got != tt.expected {
				t.Errorf("GetCategory(%v) = %v, want %v", tt.code, got, tt.expected)
			}
		})
	}
}

func TestKindHelpers(t *testing.T) {
	t.Parallel()

	cause := fmt.Errorf("503 slow down")

	tests := []struct {
		name      string
		err       error
		notFound  bool
		throttled bool
		retryable bool
	}{
		{"not found", NotFound("a.txt"), true, false, false},
		{"wrapped not found", fmt.Errorf("read: %w", NotFound("a.txt")), true, false, false},
		{"throttled", Throttled("a.txt", cause), false, true, true},
		{"system error", SystemError("a.txt", cause), false, false, false},
		{"plain error", cause, false, false, false},
		{"nil", nil, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.notFound {
				t.Errorf("IsNotFound = %v, want %v", got, tt.notFound)
			}
			if got := IsThrottled(tt.err); got != tt.throttled {
				t.Errorf("IsThrottled = %v, want %v", got, tt.throttled)
			}
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestErrorFormatting(t *testing.T) {
	t.Parallel()

	err := SystemError("docs/a.txt", fmt.Errorf("disk on fire")).
		WithComponent("local").
		WithOperation("read")

	msg := err.Error()
	for _, want := range []string{"[local:read]", string(ErrCodeSystemError), `"docs/a.txt"`, "disk on fire"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}

	if !errors.Is(err, ErrSystem) {
		t.Error("errors.Is(err, ErrSystem) = false")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("errors.Is(err, ErrNotFound) = true")
	}
	if errors.Unwrap(err) == nil {
		t.Error("Unwrap returned nil")
	}
}

func TestCodeOf(t *testing.T) {
	t.Parallel()

	if got := CodeOf(fmt.Errorf("x: %w", Throttled("", nil))); got != ErrCodeThrottled {
		t.Errorf("CodeOf = %v, want %v", got, ErrCodeThrottled)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != ErrCodeInternalError {
		t.Errorf("CodeOf = %v, want %v", got, ErrCodeInternalError)
	}
}
