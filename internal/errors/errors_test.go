package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeAuthRequired, "test error message")

	if err.Code != ErrCodeAuthRequired {
		t.Errorf("expected code %s, got %s", ErrCodeAuthRequired, err.Code)
	}

	if err.Message != "test error message" {
		t.Errorf("expected message 'test error message', got '%s'", err.Message)
	}

	if err.Cause != nil {
		t.Errorf("expected nil cause, got %v", err.Cause)
	}
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := Wrap(ErrCodeStoreRead, "failed to read token", cause)

	if err.Code != ErrCodeStoreRead {
		t.Errorf("expected code %s, got %s", ErrCodeStoreRead, err.Code)
	}

	if err.Cause != cause {
		t.Errorf("expected cause to be set")
	}

	if !errors.Is(err, cause) {
		t.Errorf("Wrap should support errors.Is")
	}
}

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		wantCode string
		wantMsg  string
	}{
		{
			name:     "simple error",
			err:      New(ErrCodeAPIValidation, "phone rejected"),
			wantCode: "API-002",
			wantMsg:  "phone rejected",
		},
		{
			name:     "error with cause",
			err:      Wrap(ErrCodeStoreWrite, "write failed", fmt.Errorf("permission denied")),
			wantCode: "STORE-002",
			wantMsg:  "permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()

			if !strings.Contains(errStr, tt.wantCode) {
				t.Errorf("error string should contain code %s, got: %s", tt.wantCode, errStr)
			}

			if !strings.Contains(errStr, tt.wantMsg) {
				t.Errorf("error string should contain message '%s', got: %s", tt.wantMsg, errStr)
			}
		})
	}
}

func TestWithSuggestions(t *testing.T) {
	err := New(ErrCodeAuthInvalidCode, "bad code").
		WithSuggestions("Suggestion 1", "Suggestion 2", "Suggestion 3")

	if len(err.Suggestions) != 3 {
		t.Errorf("expected 3 suggestions, got %d", len(err.Suggestions))
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "Suggestions:") {
		t.Errorf("error string should contain suggestions section")
	}
	for _, suggestion := range err.Suggestions {
		if !strings.Contains(errStr, suggestion) {
			t.Errorf("error string should contain suggestion: %s", suggestion)
		}
	}
}

func TestWithDocs(t *testing.T) {
	docsURL := "https://github.com/felixgeelhaar/coffeeclub#docs"
	err := New(ErrCodeConfigInvalid, "invalid config").WithDocs(docsURL)

	if err.DocsURL != docsURL {
		t.Errorf("expected DocsURL %s, got %s", docsURL, err.DocsURL)
	}

	if !strings.Contains(err.Error(), "Documentation: "+docsURL) {
		t.Errorf("error string should contain docs URL")
	}
}

func TestNewAuthRequiredError(t *testing.T) {
	err := NewAuthRequiredError()

	if err.Code != ErrCodeAuthRequired {
		t.Errorf("expected code %s, got %s", ErrCodeAuthRequired, err.Code)
	}

	if !strings.Contains(err.Error(), "coffeeclub auth login") {
		t.Errorf("suggestions should point at the login command")
	}

	if err.DocsURL == "" {
		t.Errorf("expected docs URL to be set")
	}
}

func TestNewAPIUnreachableError(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := NewAPIUnreachableError("http://localhost:5050", cause)

	if err.Code != ErrCodeAPIUnreachable {
		t.Errorf("expected code %s, got %s", ErrCodeAPIUnreachable, err.Code)
	}

	if !strings.Contains(err.Message, "http://localhost:5050") {
		t.Errorf("error message should contain the base URL")
	}

	if !errors.Is(err, cause) {
		t.Errorf("cause should be preserved")
	}

	if len(err.Suggestions) < 3 {
		t.Errorf("expected at least 3 suggestions, got %d", len(err.Suggestions))
	}
}

func TestNewStoreError(t *testing.T) {
	cause := fmt.Errorf("open secure.json: permission denied")
	err := NewStoreError(ErrCodeStoreRead, "accessToken", cause)

	if err.Code != ErrCodeStoreRead {
		t.Errorf("expected code %s, got %s", ErrCodeStoreRead, err.Code)
	}

	if !strings.Contains(err.Message, "accessToken") {
		t.Errorf("error message should name the key")
	}

	if !strings.Contains(err.Error(), "read_policy") {
		t.Errorf("suggestions should mention the read policy")
	}
}

func TestNewInputRequiredError(t *testing.T) {
	err := NewInputRequiredError("phone")

	if !strings.Contains(err.Message, "phone is required") {
		t.Errorf("unexpected message: %s", err.Message)
	}

	if !strings.Contains(err.Error(), "--phone") {
		t.Errorf("suggestion should mention the flag")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := NewAuthRejectedError(cause)

	if errors.Unwrap(err) != cause {
		t.Errorf("Unwrap should return the cause")
	}

	var target *Error
	wrapped := fmt.Errorf("verify: %w", err)
	if !errors.As(wrapped, &target) {
		t.Fatalf("errors.As should find *Error through wrapping")
	}
	if target.Code != ErrCodeAuthRejected {
		t.Errorf("expected code %s, got %s", ErrCodeAuthRejected, target.Code)
	}
}

func TestErrorCodes(t *testing.T) {
	codes := []ErrorCode{
		ErrCodeAuthRequired,
		ErrCodeAuthInvalidPhone,
		ErrCodeAuthInvalidCode,
		ErrCodeAuthRejected,
		ErrCodeAuthExpired,
		ErrCodeAuthInFlight,
		ErrCodeAPIUnreachable,
		ErrCodeAPIValidation,
		ErrCodeAPIServer,
		ErrCodeAPIContract,
		ErrCodeAPIDecode,
		ErrCodeStoreRead,
		ErrCodeStoreWrite,
		ErrCodeStoreBackend,
		ErrCodeDeviceRegistration,
		ErrCodeConfigInvalid,
		ErrCodeConfigRead,
		ErrCodeConfigWrite,
		ErrCodeInputRequired,
		ErrCodeInputInvalid,
	}

	for _, code := range codes {
		parts := strings.Split(string(code), "-")
		if len(parts) != 2 {
			t.Errorf("error code %s should have format CATEGORY-NNN", code)
			continue
		}

		if len(parts[1]) != 3 {
			t.Errorf("error code %s should have 3-digit number", code)
		}
	}
}
