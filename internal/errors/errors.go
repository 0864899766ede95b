package errors

import (
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Auth errors (AUTH-001 to AUTH-099)
	ErrCodeAuthRequired     ErrorCode = "AUTH-001"
	ErrCodeAuthInvalidPhone ErrorCode = "AUTH-002"
	ErrCodeAuthInvalidCode  ErrorCode = "AUTH-003"
	ErrCodeAuthRejected     ErrorCode = "AUTH-004"
	ErrCodeAuthExpired      ErrorCode = "AUTH-005"
	ErrCodeAuthInFlight     ErrorCode = "AUTH-006"

	// API errors (API-001 to API-099)
	ErrCodeAPIUnreachable ErrorCode = "API-001"
	ErrCodeAPIValidation  ErrorCode = "API-002"
	ErrCodeAPIServer      ErrorCode = "API-003"
	ErrCodeAPIContract    ErrorCode = "API-004"
	ErrCodeAPIDecode      ErrorCode = "API-005"

	// Secure store errors (STORE-001 to STORE-099)
	ErrCodeStoreRead    ErrorCode = "STORE-001"
	ErrCodeStoreWrite   ErrorCode = "STORE-002"
	ErrCodeStoreBackend ErrorCode = "STORE-003"

	// Device errors (DEVICE-001 to DEVICE-099)
	ErrCodeDeviceRegistration ErrorCode = "DEVICE-001"

	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigInvalid ErrorCode = "CONFIG-001"
	ErrCodeConfigRead    ErrorCode = "CONFIG-002"
	ErrCodeConfigWrite   ErrorCode = "CONFIG-003"

	// Input errors (INPUT-001 to INPUT-099)
	ErrCodeInputRequired ErrorCode = "INPUT-001"
	ErrCodeInputInvalid  ErrorCode = "INPUT-002"
)

// Error represents an enhanced error with code, suggestions, and documentation
type Error struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new Error wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *Error) WithSuggestions(suggestions ...string) *Error {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *Error) WithDocs(url string) *Error {
	e.DocsURL = url
	return e
}

// Common error constructors for frequently used errors

// NewAuthRequiredError is returned when a command needs a signed-in customer
func NewAuthRequiredError() *Error {
	return New(ErrCodeAuthRequired, "you are not signed in").
		WithSuggestion("Run 'coffeeclub auth login' to sign in with your phone number").
		WithDocs("https://github.com/felixgeelhaar/coffeeclub#signing-in")
}

// NewAuthRejectedError wraps a rejected verification code
func NewAuthRejectedError(cause error) *Error {
	return Wrap(ErrCodeAuthRejected, "verification code was rejected", cause).
		WithSuggestion("Check the 6-digit code from the SMS and try again").
		WithSuggestion("Run 'coffeeclub auth register --phone <number>' to get a new code")
}

// NewAuthExpiredError wraps a 401 that survived the refresh attempt
func NewAuthExpiredError(cause error) *Error {
	return Wrap(ErrCodeAuthExpired, "your session has expired", cause).
		WithSuggestion("Run 'coffeeclub auth login' to sign in again")
}

// NewAPIUnreachableError wraps a transport failure
func NewAPIUnreachableError(baseURL string, cause error) *Error {
	return Wrap(ErrCodeAPIUnreachable, fmt.Sprintf("loyalty API is unreachable at %s", baseURL), cause).
		WithSuggestion("Check your network connection").
		WithSuggestion("Verify api.base_url with 'coffeeclub config view' or set COFFEECLUB_API_URL").
		WithSuggestion("Run 'coffeeclub health' to diagnose connectivity")
}

// NewAPIValidationError wraps a 4xx rejection of the request content
func NewAPIValidationError(details string, cause error) *Error {
	return Wrap(ErrCodeAPIValidation, fmt.Sprintf("request rejected: %s", details), cause).
		WithSuggestion("Check the values you entered and try again")
}

// NewAPIServerError wraps a 5xx response
func NewAPIServerError(cause error) *Error {
	return Wrap(ErrCodeAPIServer, "loyalty API failed to process the request", cause).
		WithSuggestion("Wait a moment and retry").
		WithSuggestion("Run 'coffeeclub health' to check the API status")
}

// NewStoreError wraps a secure store failure
func NewStoreError(code ErrorCode, key string, cause error) *Error {
	return Wrap(code, fmt.Sprintf("secure store failed for %s", key), cause).
		WithSuggestion("Check permissions on the store file shown by 'coffeeclub config view'").
		WithSuggestion("Set store.read_policy to lenient to treat unreadable entries as signed out")
}

// NewInputRequiredError creates a missing input error
func NewInputRequiredError(name string) *Error {
	return New(ErrCodeInputRequired, fmt.Sprintf("%s is required", name)).
		WithSuggestion(fmt.Sprintf("Pass --%s or run the command in an interactive terminal", name))
}

// NewConfigInvalidError creates a configuration validation error
func NewConfigInvalidError(details string) *Error {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", details)).
		WithSuggestion("Run 'coffeeclub config view' to inspect the active configuration").
		WithSuggestion("Run 'coffeeclub config init --force' to restore defaults")
}
