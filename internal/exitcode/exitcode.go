package exitcode

import (
	"context"
	stderrors "errors"
	"os"
	"strings"

	"github.com/felixgeelhaar/coffeeclub/internal/errors"
	"github.com/felixgeelhaar/coffeeclub/internal/gateway"
	"github.com/felixgeelhaar/coffeeclub/internal/securestore"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid usage or input rejected by the API
	UsageError = 2

	// AuthError indicates an authentication or authorization failure
	AuthError = 5

	// NetworkError indicates the API could not be reached
	NetworkError = 6

	// StorageError indicates the secure store could not be read or written
	StorageError = 7

	// Interrupted indicates the command was cancelled (Ctrl-C)
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	if err == nil {
		Exit(Success)
		return
	}

	Exit(DetermineExitCode(err))
}

// DetermineExitCode analyzes an error and returns the appropriate exit code.
// Typed errors are checked first; message matching is the fallback for
// errors produced outside this module (cobra flag parsing, for example).
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	if stderrors.Is(err, context.Canceled) {
		return Interrupted
	}

	var appErr *errors.Error
	if stderrors.As(err, &appErr) {
		if code, ok := fromErrorCode(appErr.Code); ok {
			return code
		}
	}

	if stderrors.Is(err, securestore.ErrStorage) {
		return StorageError
	}

	if apiErr, ok := gateway.AsAPIError(err); ok {
		switch {
		case apiErr.IsNetwork():
			return NetworkError
		case apiErr.IsAuth():
			return AuthError
		case apiErr.IsValidation():
			return UsageError
		case stderrors.Is(apiErr, gateway.ErrContractViolation):
			return UsageError
		default:
			return GeneralError
		}
	}

	return fromMessage(strings.ToLower(err.Error()))
}

func fromErrorCode(code errors.ErrorCode) (int, bool) {
	switch code {
	case errors.ErrCodeAuthRequired, errors.ErrCodeAuthRejected, errors.ErrCodeAuthExpired:
		return AuthError, true
	case errors.ErrCodeAuthInvalidPhone, errors.ErrCodeAuthInvalidCode,
		errors.ErrCodeAPIValidation, errors.ErrCodeAPIContract,
		errors.ErrCodeInputRequired, errors.ErrCodeInputInvalid,
		errors.ErrCodeConfigInvalid:
		return UsageError, true
	case errors.ErrCodeAPIUnreachable:
		return NetworkError, true
	case errors.ErrCodeStoreRead, errors.ErrCodeStoreWrite, errors.ErrCodeStoreBackend:
		return StorageError, true
	case errors.ErrCodeAPIServer, errors.ErrCodeAPIDecode:
		return GeneralError, true
	}
	return 0, false
}

func fromMessage(errMsg string) int {
	// Authentication errors
	if strings.Contains(errMsg, "unauthorized") || strings.Contains(errMsg, "not signed in") {
		return AuthError
	}

	// Network errors
	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host") {
		return NetworkError
	}
	if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "unreachable") {
		return NetworkError
	}

	// Usage errors
	if strings.Contains(errMsg, "invalid flag") || strings.Contains(errMsg, "unknown command") {
		return UsageError
	}
	if strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "unknown flag") {
		return UsageError
	}
	if strings.Contains(errMsg, "accepts") && strings.Contains(errMsg, "arg(s)") {
		return UsageError
	}

	// Default to general error
	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags, arguments or input)"
	case AuthError:
		return "Authentication error"
	case NetworkError:
		return "Network error"
	case StorageError:
		return "Secure storage error"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
