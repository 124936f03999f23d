package core

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorIntegrationNotFound = "INTEGRATION_NOT_FOUND"
	ErrorIntegrationDisabled = "INTEGRATION_DISABLED"
	ErrorProviderNotFound    = "PROVIDER_NOT_FOUND"
	ErrorOperationNotFound   = "OPERATION_NOT_FOUND"
	ErrorReconnectRequired   = "RECONNECT_REQUIRED"
	ErrorExhaustedRetries    = "EXHAUSTED_RETRIES"
	ErrorTransient           = "TRANSIENT_ERROR"
	ErrorRateLimited         = "RATE_LIMITED"
	ErrorCancelled           = "CANCELLED"
	ErrorBadInput            = "BAD_INPUT"
	ErrorInternal            = "INTERNAL_ERROR"
)

// Kind is the caller-facing error classification of a dispatch.
type Kind string

const (
	KindNone              Kind = ""
	KindNotFound          Kind = "NotFound"
	KindDisabled          Kind = "Disabled"
	KindProviderNotFound  Kind = "ProviderNotFound"
	KindOperationNotFound Kind = "OperationNotFound"
	KindReconnectRequired Kind = "ReconnectRequired"
	KindExhaustedRetries  Kind = "ExhaustedRetries"
	KindTransientError    Kind = "TransientError"
	KindCancelled         Kind = "Cancelled"
	KindBadInput          Kind = "BadInput"
	KindInternal          Kind = "Internal"
)

var textCodeKinds = map[string]Kind{
	ErrorIntegrationNotFound: KindNotFound,
	ErrorIntegrationDisabled: KindDisabled,
	ErrorProviderNotFound:    KindProviderNotFound,
	ErrorOperationNotFound:   KindOperationNotFound,
	ErrorReconnectRequired:   KindReconnectRequired,
	ErrorExhaustedRetries:    KindExhaustedRetries,
	ErrorTransient:           KindTransientError,
	ErrorRateLimited:         KindTransientError,
	ErrorCancelled:           KindCancelled,
	ErrorBadInput:            KindBadInput,
	ErrorInternal:            KindInternal,
}

// KindOf classifies err. Errors that did not pass through the service error
// envelope are reported as KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if kind, ok := textCodeKinds[strings.TrimSpace(richErr.TextCode)]; ok {
			return kind
		}
	}
	if isContextDone(err) {
		return KindCancelled
	}
	return KindInternal
}

// IsRetryable reports whether a caller may retry later with the same input.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransientError
}

func newIntegrationError(message string, category goerrors.Category, textCode string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(httpStatus(category)).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func wrapIntegrationError(source error, category goerrors.Category, message string, textCode string, metadata map[string]any) *goerrors.Error {
	if source == nil {
		return newIntegrationError(message, category, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(httpStatus(category)).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func integrationNotFoundError(source error, integrationID string) error {
	return wrapIntegrationError(source, goerrors.CategoryNotFound,
		"core: integration not found", ErrorIntegrationNotFound,
		map[string]any{"integration_id": integrationID})
}

func integrationDisabledError(integration Integration) error {
	return newIntegrationError("core: integration is disabled", goerrors.CategoryBadInput, ErrorIntegrationDisabled,
		map[string]any{
			"integration_id": integration.ID,
			"provider":       integration.ProviderIdentifier,
			"refresh_needed": integration.RefreshNeeded,
		})
}

func providerNotFoundError(source error, providerIdentifier string) error {
	return wrapIntegrationError(source, goerrors.CategoryBadInput,
		"core: unsupported provider", ErrorProviderNotFound,
		map[string]any{"provider": providerIdentifier})
}

func operationNotFoundError(providerIdentifier string, operation string) error {
	return newIntegrationError("core: operation not found", goerrors.CategoryBadInput, ErrorOperationNotFound,
		map[string]any{"provider": providerIdentifier, "operation": operation})
}

func reconnectRequiredError(integration Integration) error {
	return newIntegrationError("core: integration must be reconnected", goerrors.CategoryAuth, ErrorReconnectRequired,
		map[string]any{
			"integration_id": integration.ID,
			"provider":       integration.ProviderIdentifier,
			"action":         "reconnect",
		})
}

func exhaustedRetriesError(integration Integration, operation string, attempts int) error {
	return newIntegrationError("core: access token still rejected after refresh", goerrors.CategoryOperation, ErrorExhaustedRetries,
		map[string]any{
			"integration_id": integration.ID,
			"provider":       integration.ProviderIdentifier,
			"operation":      operation,
			"attempts":       attempts,
		})
}

func transientError(source error, integration Integration, operation string) error {
	return wrapIntegrationError(source, goerrors.CategoryExternal, "core: provider operation failed", ErrorTransient,
		map[string]any{
			"integration_id": integration.ID,
			"provider":       integration.ProviderIdentifier,
			"operation":      operation,
		})
}

func cancelledError(source error, integration Integration, operation string) error {
	return wrapIntegrationError(source, goerrors.CategoryOperation, "core: dispatch cancelled", ErrorCancelled,
		map[string]any{
			"integration_id": integration.ID,
			"operation":      operation,
		})
}

func badInputError(message string) error {
	return newIntegrationError(message, goerrors.CategoryBadInput, ErrorBadInput, nil)
}

func integrationErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}
	switch {
	case errors.Is(err, ErrIntegrationNotFound):
		return ensureErrorEnvelope(goerrors.Wrap(err, goerrors.CategoryNotFound, err.Error()).WithTextCode(ErrorIntegrationNotFound))
	case errors.Is(err, ErrProviderNotFound):
		return ensureErrorEnvelope(goerrors.Wrap(err, goerrors.CategoryBadInput, err.Error()).WithTextCode(ErrorProviderNotFound))
	case errors.Is(err, ErrOperationNotFound):
		return ensureErrorEnvelope(goerrors.Wrap(err, goerrors.CategoryBadInput, err.Error()).WithTextCode(ErrorOperationNotFound))
	case isContextDone(err):
		return ensureErrorEnvelope(goerrors.Wrap(err, goerrors.CategoryOperation, err.Error()).WithTextCode(ErrorCancelled))
	}
	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorIntegrationNotFound
	case goerrors.CategoryAuth:
		return ErrorReconnectRequired
	case goerrors.CategoryExternal, goerrors.CategoryRateLimit:
		return ErrorTransient
	default:
		return ErrorInternal
	}
}

func httpStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func isContextDone(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
