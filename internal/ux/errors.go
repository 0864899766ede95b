package ux

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/coffeeclub/internal/auth"
	"github.com/felixgeelhaar/coffeeclub/internal/errors"
	"github.com/felixgeelhaar/coffeeclub/internal/feedback"
	"github.com/felixgeelhaar/coffeeclub/internal/gateway"
	"github.com/felixgeelhaar/coffeeclub/internal/securestore"
)

// ErrorContext carries what the suggestions need to be specific.
type ErrorContext struct {
	// BaseURL is the API root the failing call used.
	BaseURL string
}

// EnhanceError maps a failure from any layer to a coded *errors.Error with
// suggestions. Coded errors and cancellations pass through unchanged, and
// so do errors it does not recognise.
func EnhanceError(err error, ec ErrorContext) error {
	if err == nil {
		return nil
	}

	var coded *errors.Error
	if stderrors.As(err, &coded) || stderrors.Is(err, context.Canceled) {
		return err
	}

	switch {
	case stderrors.Is(err, auth.ErrInvalidPhone):
		return errors.Wrap(errors.ErrCodeAuthInvalidPhone, "invalid phone number", err).
			WithSuggestion("Enter 10 to 15 digits; spaces, dashes and brackets are ignored")
	case stderrors.Is(err, auth.ErrInvalidCode):
		return errors.Wrap(errors.ErrCodeAuthInvalidCode, "invalid verification code", err).
			WithSuggestion("Enter the 6-digit code from the SMS")
	case stderrors.Is(err, auth.ErrInFlight):
		return errors.Wrap(errors.ErrCodeAuthInFlight, "a sign-in request is already running", err).
			WithSuggestion("Wait for the current request to finish")
	case stderrors.Is(err, auth.ErrNotAuthenticated):
		e := errors.NewAuthRequiredError()
		e.Cause = err
		return e
	case stderrors.Is(err, feedback.ErrEmptySubject):
		return errors.Wrap(errors.ErrCodeInputRequired, "feedback subject is empty", err).
			WithSuggestion("Pass --subject with a short summary")
	case stderrors.Is(err, feedback.ErrEmptyContent):
		return errors.Wrap(errors.ErrCodeInputRequired, "feedback message is empty", err).
			WithSuggestion("Pass --message with your feedback")
	}

	var storeErr *securestore.StorageError
	if stderrors.As(err, &storeErr) {
		code := errors.ErrCodeStoreWrite
		switch storeErr.Op {
		case "get":
			code = errors.ErrCodeStoreRead
		case "open":
			code = errors.ErrCodeStoreBackend
		}
		return errors.NewStoreError(code, storeErr.Key, err)
	}

	if apiErr, ok := gateway.AsAPIError(err); ok {
		return enhanceAPIError(apiErr, err, ec)
	}

	return enhanceByMessage(err)
}

func enhanceAPIError(apiErr *gateway.APIError, err error, ec ErrorContext) error {
	switch {
	case stderrors.Is(apiErr, gateway.ErrContractViolation):
		return errors.Wrap(errors.ErrCodeAPIContract, "request does not match the API contract", err).
			WithSuggestion("Check the values you entered; nothing was sent to the server")
	case stderrors.Is(apiErr, gateway.ErrDecode):
		return errors.Wrap(errors.ErrCodeAPIDecode, "unexpected response from the loyalty API", err).
			WithSuggestion("Check that api.base_url points at the Coffee Club API")
	case apiErr.IsNetwork():
		return errors.NewAPIUnreachableError(ec.BaseURL, err)
	case apiErr.IsAuth():
		return errors.NewAuthExpiredError(err)
	case apiErr.IsValidation():
		details := apiErr.Message
		if len(apiErr.Errors) > 0 {
			details = strings.Join(apiErr.Errors, "; ")
		}
		return errors.NewAPIValidationError(details, err)
	case apiErr.IsServer():
		return errors.NewAPIServerError(err)
	}
	return err
}

func enhanceByMessage(err error) error {
	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "permission denied") {
		return errors.Wrap(errors.ErrCodeStoreBackend, "permission denied", err).
			WithSuggestion("Check permissions on the coffeeclub home directory (COFFEECLUB_HOME)")
	}
	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host") {
		return errors.Wrap(errors.ErrCodeAPIUnreachable, "loyalty API is unreachable", err).
			WithSuggestion("Check your network connection and api.base_url")
	}
	return err
}

// FormatError enhances err and prefixes it with context.
func FormatError(err error, context string, ec ErrorContext) error {
	if err == nil {
		return nil
	}
	enhanced := EnhanceError(err, ec)
	if context == "" {
		return enhanced
	}
	var coded *errors.Error
	if stderrors.As(enhanced, &coded) {
		coded.Message = context + ": " + coded.Message
		return coded
	}
	return fmt.Errorf("%s: %w", context, enhanced)
}
