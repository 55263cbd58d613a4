package errors

import (
	stderrors "errors"
	"net/http"
)

// Shared errors used across the domain packages
var (
	Unauthenticated = NewUnauthorizedError("UNAUTHENTICATED", "Authentication required")
	AdminOnly       = NewForbiddenError("FORBIDDEN", "Administrator rights required")
	NetworkFailure  = NewUnavailableError("NETWORK_FAILURE", "The request could not reach the server")
)

// FromError converts an error to an AppError.
// AppErrors anywhere in the chain are returned as-is; bare kind sentinels get a
// generic code for their kind; anything else becomes an internal server error.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	switch {
	case stderrors.Is(err, ErrInvalid):
		return NewBadRequestError("INVALID_REQUEST", err.Error())
	case stderrors.Is(err, ErrUnauthenticated):
		return Unauthenticated
	case stderrors.Is(err, ErrForbidden):
		return NewForbiddenError("FORBIDDEN", err.Error())
	case stderrors.Is(err, ErrNotFound):
		return NewNotFoundError("NOT_FOUND", err.Error())
	case stderrors.Is(err, ErrConflict):
		return NewConflictError("CONFLICT", err.Error())
	case stderrors.Is(err, ErrRateLimited):
		return NewTooManyRequestsError("RATE_LIMITED", err.Error())
	case stderrors.Is(err, ErrNetwork):
		return NetworkFailure.WithCause(err)
	}

	return NewInternalServerError("INTERNAL_ERROR", "An unexpected error occurred").WithCause(err)
}

// GetStatusCode extracts the HTTP status code from an error, returns 500 if unknown
func GetStatusCode(err error) int {
	if appErr := FromError(err); appErr != nil {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) string {
	if appErr := FromError(err); appErr != nil {
		return appErr.Code
	}
	return "UNKNOWN_ERROR"
}

// IsRetryable reports whether the caller may retry the failed operation as-is
func IsRetryable(err error) bool {
	return stderrors.Is(err, ErrNetwork)
}
