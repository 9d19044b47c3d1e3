package apperrors

import (
	"fmt"
	"net/http"
)

type ErrorType string

// The error taxonomy mirrors how the vault core classifies rejections:
// validation failures are rejected before any state change, state conflicts
// clear on their own once the blocking condition passes, limit violations
// require the caller to wait for a window reset, liquidity pauses are
// protective and affect subsequent calls too, and timelocks are never
// overridable.
const (
	ErrValidation     ErrorType = "VALIDATION"
	ErrStateConflict  ErrorType = "STATE_CONFLICT"
	ErrLimitExceeded  ErrorType = "LIMIT_EXCEEDED"
	ErrLiquidityPause ErrorType = "LIQUIDITY_PAUSED"
	ErrTimelock       ErrorType = "TIMELOCK"
	ErrAuthFailed     ErrorType = "AUTH_FAILED"
	ErrNotFound       ErrorType = "NOT_FOUND"
	ErrInternal       ErrorType = "INTERNAL_ERROR"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func Newf(errType ErrorType, format string, args ...any) *AppError {
	return New(errType, fmt.Sprintf(format, args...), nil)
}

func NewValidation(msg string) *AppError {
	return New(ErrValidation, msg, nil)
}

func NewStateConflict(msg string) *AppError {
	return New(ErrStateConflict, msg, nil)
}

func NewLimitExceeded(msg string) *AppError {
	return New(ErrLimitExceeded, msg, nil)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

// IsType reports whether err is an AppError of the given type.
func IsType(err error, t ErrorType) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Type == t
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrValidation, ErrLimitExceeded:
		return http.StatusBadRequest
	case ErrStateConflict, ErrTimelock:
		return http.StatusConflict
	case ErrLiquidityPause:
		return http.StatusServiceUnavailable
	case ErrAuthFailed:
		return http.StatusUnauthorized
	case ErrNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrValidation:
		return "Check request parameters."
	case ErrStateConflict:
		return "Retry after the blocking condition clears."
	case ErrLimitExceeded:
		return "Reduce the amount or wait for the window to reset."
	case ErrLiquidityPause:
		return "Claims resume once silo liquidity recovers."
	case ErrTimelock:
		return "Wait for the timelock deadline to pass."
	case ErrAuthFailed:
		return "Check operator key and role grants."
	default:
		return ""
	}
}
