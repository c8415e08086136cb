package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/febriansr/authgate/internal/domain"
)

// Code is the closed set of error codes the wire contract exposes.
// Domain errors map onto it exactly once, here; anything unrecognized
// becomes CodeInternal with no detail leaked.
type Code string

const (
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeDuplicateEmail     Code = "DUPLICATE_EMAIL"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeEmailNotVerified   Code = "EMAIL_NOT_VERIFIED"
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodeNotFound           Code = "NOT_FOUND"
	CodeInvalidToken       Code = "INVALID_OR_EXPIRED_TOKEN"
	CodeInternal           Code = "INTERNAL_ERROR"
)

type Error struct {
	Code        Code              `json:"code"`
	Message     string            `json:"message"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
}

func (e *Error) Error() string { return string(e.Code) + ": " + e.Message }

func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeValidation, CodeInvalidToken:
		return http.StatusBadRequest
	case CodeInvalidCredentials, CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeEmailNotVerified:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDuplicateEmail:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func newError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// mapError converts a handler error into a wire error. Domain sentinels
// pass through with their fixed code; everything else is logged with
// detail server-side and collapsed to CodeInternal.
func mapError(ctx context.Context, logger *slog.Logger, procedure string, err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	switch {
	case errors.Is(err, domain.ErrDuplicateEmail):
		return newError(CodeDuplicateEmail, "email already registered, use another one")
	case errors.Is(err, domain.ErrInvalidCredentials):
		return newError(CodeInvalidCredentials, "invalid email or password")
	case errors.Is(err, domain.ErrEmailNotVerified):
		return newError(CodeEmailNotVerified, "email not verified, please check your inbox")
	case errors.Is(err, domain.ErrUserNotFound):
		return newError(CodeNotFound, "user not found")
	case errors.Is(err, domain.ErrTokenInvalid):
		return newError(CodeInvalidToken, "token is invalid or expired")
	case errors.Is(err, domain.ErrUnauthenticated):
		return newError(CodeUnauthenticated, "not authenticated")
	// ErrAlreadyVerified has no code of its own in the wire contract;
	// it surfaces as a 400 like the original resend flow.
	case errors.Is(err, domain.ErrAlreadyVerified):
		return newError(CodeValidation, "email already verified")
	}

	logger.ErrorContext(ctx, "procedure failed", "procedure", procedure, "error", err)
	return newError(CodeInternal, "internal server error")
}
