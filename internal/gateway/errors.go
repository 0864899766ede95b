package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	// ErrContractViolation is wrapped by errors for requests rejected locally
	// by the OpenAPI validator. They never reach the network.
	ErrContractViolation = errors.New("gateway: request violates API contract")

	// ErrDecode is wrapped when a 2xx body cannot be decoded.
	ErrDecode = errors.New("gateway: cannot decode response")
)

// APIError is the uniform error for every failed call. StatusCode is 0 when
// no response was received.
type APIError struct {
	Message    string
	StatusCode int
	Errors     []string
	RequestID  string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("network error: %s", e.Message)
	}
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsNetwork reports a transport failure (no response).
func (e *APIError) IsNetwork() bool {
	return e.StatusCode == 0 && !errors.Is(e.Err, ErrContractViolation)
}

// IsAuth reports a 401 or 403.
func (e *APIError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsValidation reports any other 4xx.
func (e *APIError) IsValidation() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && !e.IsAuth()
}

// IsServer reports a 5xx.
func (e *APIError) IsServer() bool {
	return e.StatusCode >= 500
}

// AsAPIError unwraps err to an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// StatusCode returns the HTTP status carried by err, or -1 when err is not
// an *APIError.
func StatusCode(err error) int {
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.StatusCode
	}
	return -1
}

// errorBody covers the shapes the backend returns: a bare string array, an
// object with message/errors, or ASP.NET problem details.
type errorBody struct {
	Message string          `json:"message"`
	Title   string          `json:"title"`
	Detail  string          `json:"detail"`
	Errors  json.RawMessage `json:"errors"`
}

const maxRawMessage = 200

// newHTTPError builds an APIError from a non-2xx response body.
func newHTTPError(status int, body []byte, requestID string) *APIError {
	apiErr := &APIError{StatusCode: status, RequestID: requestID}
	trimmed := strings.TrimSpace(string(body))

	var list []string
	var obj errorBody
	switch {
	case trimmed == "":
	case json.Unmarshal(body, &list) == nil:
		apiErr.Errors = list
		apiErr.Message = strings.Join(list, "; ")
	case json.Unmarshal(body, &obj) == nil:
		apiErr.Errors = decodeErrorList(obj.Errors)
		apiErr.Message = firstNonEmpty(obj.Message, obj.Detail, obj.Title, strings.Join(apiErr.Errors, "; "))
	default:
		if len(trimmed) > maxRawMessage {
			trimmed = trimmed[:maxRawMessage] + "..."
		}
		apiErr.Message = trimmed
	}

	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	if apiErr.Message == "" {
		apiErr.Message = "An error occurred"
	}
	return apiErr
}

// decodeErrorList accepts ["a","b"] or {"Field":["a"],"Other":["b"]}.
func decodeErrorList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}

	var fields map[string][]string
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []string
	for _, name := range names {
		for _, msg := range fields[name] {
			out = append(out, fmt.Sprintf("%s: %s", name, msg))
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
