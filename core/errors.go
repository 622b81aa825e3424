package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	AppErrorNetwork             = "APPSTATE_NETWORK"
	AppErrorInvalidCredentials  = "APPSTATE_INVALID_CREDENTIALS"
	AppErrorUnconfirmedEmail    = "APPSTATE_UNCONFIRMED_EMAIL"
	AppErrorTokenInvalid        = "APPSTATE_TOKEN_INVALID"
	AppErrorProviderUnavailable = "APPSTATE_PROVIDER_UNAVAILABLE"
	AppErrorTimeout             = "APPSTATE_TIMEOUT"
	AppErrorRateLimited         = "APPSTATE_RATE_LIMITED"
	AppErrorBadInput            = "APPSTATE_BAD_INPUT"
	AppErrorInternal            = "APPSTATE_INTERNAL_ERROR"
)

var (
	ErrProviderUnavailable = errors.New("core: provider unavailable")
	// ErrUnconfirmedEmail is a sentinel, not a user-facing error: callers
	// receiving an empty user message navigate to the confirmation flow
	// instead of showing an error banner.
	ErrUnconfirmedEmail = errors.New("core: email not confirmed")
)

func NewNetworkError(message string, cause error) *goerrors.Error {
	out := goerrors.New(message, goerrors.CategoryExternal).
		WithCode(http.StatusBadGateway).
		WithTextCode(AppErrorNetwork)
	if cause != nil {
		out = goerrors.Wrap(cause, goerrors.CategoryExternal, message).
			WithCode(http.StatusBadGateway).
			WithTextCode(AppErrorNetwork)
	}
	return out
}

func NewInvalidCredentialsError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(AppErrorInvalidCredentials)
}

func NewUnconfirmedEmailError(email string) *goerrors.Error {
	return goerrors.Wrap(ErrUnconfirmedEmail, goerrors.CategoryAuth, "core: email not confirmed").
		WithCode(http.StatusForbidden).
		WithTextCode(AppErrorUnconfirmedEmail).
		WithMetadata(map[string]any{"email": strings.TrimSpace(email)})
}

func NewTokenInvalidError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(AppErrorTokenInvalid)
}

func NewProviderUnavailableError(message string, cause error) *goerrors.Error {
	if cause == nil {
		cause = ErrProviderUnavailable
	}
	return goerrors.Wrap(cause, goerrors.CategoryExternal, message).
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(AppErrorProviderUnavailable)
}

func NewTimeoutError(operation string, deadline time.Duration) *goerrors.Error {
	return goerrors.New(
		fmt.Sprintf("core: %s exceeded %s deadline", strings.TrimSpace(operation), deadline),
		goerrors.CategoryOperation,
	).
		WithCode(http.StatusGatewayTimeout).
		WithTextCode(AppErrorTimeout).
		WithMetadata(map[string]any{
			"operation":   strings.TrimSpace(operation),
			"deadline_ms": deadline.Milliseconds(),
		})
}

func appErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureAppErrorEnvelope(richErr)
	}
	if errors.Is(err, ErrUnconfirmedEmail) {
		return NewUnconfirmedEmailError("")
	}
	if errors.Is(err, ErrProviderUnavailable) {
		return NewProviderUnavailableError(err.Error(), err)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "invalid credentials"), strings.Contains(msg, "invalid login"):
		return newAppError(err.Error(), goerrors.CategoryAuth, AppErrorInvalidCredentials)
	case strings.Contains(msg, "not confirmed"), strings.Contains(msg, "unconfirmed"):
		return NewUnconfirmedEmailError("")
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return newAppError(err.Error(), goerrors.CategoryOperation, AppErrorTimeout)
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many"):
		return newAppError(err.Error(), goerrors.CategoryRateLimit, AppErrorRateLimited)
	case strings.Contains(msg, "network"), strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"), strings.Contains(msg, "unreachable"):
		return newAppError(err.Error(), goerrors.CategoryExternal, AppErrorNetwork)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "malformed"):
		return newAppError(err.Error(), goerrors.CategoryBadInput, AppErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureAppErrorEnvelope(mapped)
}

func newAppError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureAppErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureAppErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = appHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultAppTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultAppTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return AppErrorBadInput
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return AppErrorInvalidCredentials
	case goerrors.CategoryRateLimit:
		return AppErrorRateLimited
	case goerrors.CategoryExternal:
		return AppErrorNetwork
	case goerrors.CategoryOperation:
		return AppErrorTimeout
	default:
		return AppErrorInternal
	}
}

func appHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	case goerrors.CategoryOperation:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage formats an error for display. The unconfirmed-email sentinel
// yields an empty string on purpose: the caller routes to the confirmation
// flow instead of rendering a banner.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = appErrorMapper(err)
	}
	switch richErr.TextCode {
	case AppErrorUnconfirmedEmail:
		return ""
	case AppErrorRateLimited:
		if retryAfter, ok := retryAfterFromMetadata(richErr.Metadata); ok {
			return fmt.Sprintf("Too many attempts, try again in %s.", retryAfter.Round(time.Second))
		}
		return "Too many attempts, try again later."
	case AppErrorNetwork:
		return "Connection problem. Check your network and try again."
	case AppErrorInvalidCredentials:
		return "Invalid email or password."
	case AppErrorTimeout:
		return "The operation timed out. Try again."
	case AppErrorTokenInvalid:
		return "This link is invalid or has expired."
	case AppErrorProviderUnavailable:
		return "Service temporarily unavailable."
	default:
		return "Something went wrong. Try again."
	}
}

func retryAfterFromMetadata(metadata map[string]any) (time.Duration, bool) {
	if len(metadata) == 0 {
		return 0, false
	}
	switch value := metadata["retry_after_ms"].(type) {
	case int64:
		return time.Duration(value) * time.Millisecond, value > 0
	case int:
		return time.Duration(value) * time.Millisecond, value > 0
	case float64:
		return time.Duration(value) * time.Millisecond, value > 0
	}
	return 0, false
}
