package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ServiceErrorBadInput        = "VENDIT_BAD_INPUT"
	ServiceErrorAuthFailed      = "VENDIT_AUTH_FAILED"
	ServiceErrorUnauthorized    = "VENDIT_UNAUTHORIZED"
	ServiceErrorForbidden       = "VENDIT_FORBIDDEN"
	ServiceErrorNotFound        = "VENDIT_NOT_FOUND"
	ServiceErrorStreamNotFound  = "VENDIT_STREAM_NOT_FOUND"
	ServiceErrorConflict        = "VENDIT_CONFLICT"
	ServiceErrorRateLimited     = "VENDIT_RATE_LIMITED"
	ServiceErrorTransient       = "VENDIT_TRANSIENT_FAILURE"
	ServiceErrorExternalFailure = "VENDIT_EXTERNAL_FAILURE"
	ServiceErrorOperationFailed = "VENDIT_OPERATION_FAILED"
	ServiceErrorInternal        = "VENDIT_INTERNAL_ERROR"
)

const (
	AuthReasonInvalidCredentials = "invalid_credentials"
	AuthReasonRetriesExhausted   = "retries_exhausted"
	AuthReasonEmptyResponse      = "empty_response"
)

// NewAuthError marks a definitive credential rejection. Callers stop
// retrying once they see one.
func NewAuthError(message string, reason string) *goerrors.Error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = AuthReasonInvalidCredentials
	}
	return ensureServiceErrorEnvelope(
		goerrors.New(message, goerrors.CategoryAuth).
			WithTextCode(ServiceErrorAuthFailed).
			WithMetadata(map[string]any{"reason": reason}),
	)
}

// NewTransientError marks a failure worth retrying: 5xx responses,
// throttling, or network-level faults. A zero status code means the
// request never produced a response.
func NewTransientError(message string, statusCode int) *goerrors.Error {
	category := goerrors.CategoryExternal
	textCode := ServiceErrorTransient
	if statusCode == http.StatusTooManyRequests {
		category = goerrors.CategoryRateLimit
		textCode = ServiceErrorRateLimited
	}
	wrapped := goerrors.New(message, category).WithTextCode(textCode)
	if statusCode > 0 {
		wrapped = wrapped.WithMetadata(map[string]any{"status_code": statusCode})
	}
	return ensureServiceErrorEnvelope(wrapped)
}

// NewFatalError marks a non-retryable client failure such as a 4xx
// response or a payload the caller cannot repair by retrying.
func NewFatalError(message string, statusCode int) *goerrors.Error {
	wrapped := goerrors.New(message, goerrors.CategoryBadInput).
		WithTextCode(ServiceErrorOperationFailed)
	if statusCode > 0 {
		wrapped = wrapped.WithMetadata(map[string]any{"status_code": statusCode})
	}
	return ensureServiceErrorEnvelope(wrapped)
}

func IsAuthError(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return false
	}
	switch richErr.Category {
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return true
	}
	switch richErr.TextCode {
	case ServiceErrorAuthFailed, ServiceErrorUnauthorized, ServiceErrorForbidden:
		return true
	}
	return false
}

func IsTransientError(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return false
	}
	switch richErr.Category {
	case goerrors.CategoryExternal, goerrors.CategoryRateLimit:
		return true
	}
	switch richErr.TextCode {
	case ServiceErrorTransient, ServiceErrorRateLimited, ServiceErrorExternalFailure:
		return true
	}
	return false
}

func IsFatalError(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return false
	}
	if IsAuthError(err) || IsTransientError(err) {
		return false
	}
	switch richErr.Category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation, goerrors.CategoryNotFound:
		return true
	}
	switch richErr.TextCode {
	case ServiceErrorOperationFailed, ServiceErrorBadInput, ServiceErrorStreamNotFound:
		return true
	}
	return false
}

// AuthErrorReason reports the reason attached to an auth failure, or ""
// when the error is not an auth failure.
func AuthErrorReason(err error) string {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return ""
	}
	if !IsAuthError(err) {
		return ""
	}
	if raw, ok := richErr.Metadata["reason"]; ok {
		if reason, ok := raw.(string); ok {
			return reason
		}
	}
	return ""
}

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "stream") && (strings.Contains(msg, "not registered") || strings.Contains(msg, "not found")):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ServiceErrorStreamNotFound)
	case strings.Contains(msg, "credential") && strings.Contains(msg, "not found"):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ServiceErrorNotFound)
	case strings.Contains(msg, "not found") &&
		(strings.Contains(msg, "bookmark") || strings.Contains(msg, "token") || strings.Contains(msg, "sync run")):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ServiceErrorNotFound)
	case strings.Contains(msg, "bookmark conflict"), strings.Contains(msg, "cursor conflict"):
		return newServiceError(err.Error(), goerrors.CategoryConflict, ServiceErrorConflict)
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return newServiceError(err.Error(), goerrors.CategoryRateLimit, ServiceErrorRateLimited)
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "invalid credentials"):
		return newServiceError(err.Error(), goerrors.CategoryAuth, ServiceErrorAuthFailed)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ServiceErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ServiceErrorBadInput
	case goerrors.CategoryNotFound:
		return ServiceErrorNotFound
	case goerrors.CategoryAuth:
		return ServiceErrorAuthFailed
	case goerrors.CategoryAuthz:
		return ServiceErrorForbidden
	case goerrors.CategoryConflict:
		return ServiceErrorConflict
	case goerrors.CategoryRateLimit:
		return ServiceErrorRateLimited
	case goerrors.CategoryExternal:
		return ServiceErrorExternalFailure
	case goerrors.CategoryOperation:
		return ServiceErrorOperationFailed
	default:
		return ServiceErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
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
