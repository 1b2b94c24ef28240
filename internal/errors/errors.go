package errors

import (
	"errors"
	"fmt"

	"github.com/Proton-105/devotion/internal/devotion"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

const (
	CodeValidation          = "E100"
	CodeDatabase            = "E200"
	CodeConflict            = "E210"
	CodeUnavailable         = "E300"
	CodeNotInitialized      = "E400"
	CodeRateLimit           = "E500"
	CodeAlreadyInitialized  = "E601"
	CodeNotFound            = "E602"
	CodeUnauthorized        = "E603"
	CodeInsufficientBalance = "E604"
	CodeOverflow            = "E605"
	CodeInProgress          = "E606"
)

type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:        CodeValidation,
		Message:     msg,
		UserMessage: fmt.Sprintf("Invalid request. %s", msg),
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       nil,
	}
}

func NewDatabaseError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        CodeDatabase,
		Message:     fmt.Sprintf("Database error: %s", underlyingMsg),
		UserMessage: "Temporary problem, try again later",
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

// NewConflictError marks a transaction that lost an optimistic race and may be re-run.
func NewConflictError(cause error) *AppError {
	return &AppError{
		Code:        CodeConflict,
		Message:     "Concurrent update conflict",
		UserMessage: "The ledger changed while processing, try again",
		Severity:    SeverityLow,
		Retryable:   true,
		cause:       cause,
	}
}

func NewUnavailableError(component string, cause error) *AppError {
	return &AppError{
		Code:        CodeUnavailable,
		Message:     fmt.Sprintf("%s unavailable", component),
		UserMessage: "Service temporarily unavailable",
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}

func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Code:        CodeRateLimit,
		Message:     fmt.Sprintf("Rate limit exceeded: retry after %d seconds", retryAfter),
		UserMessage: fmt.Sprintf("Too many requests. Try again in %d seconds", retryAfter),
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       nil,
	}
}

func NewInProgressError(cause error) *AppError {
	return &AppError{
		Code:        CodeInProgress,
		Message:     "Request with this idempotency key is in progress",
		UserMessage: "The same request is still being processed",
		Severity:    SeverityLow,
		Retryable:   true,
		cause:       cause,
	}
}

func newLedgerError(code string, severity Severity, userMessage string, cause error) *AppError {
	return &AppError{
		Code:        code,
		Message:     cause.Error(),
		UserMessage: userMessage,
		Severity:    severity,
		Retryable:   false,
		cause:       cause,
	}
}

// FromLedger converts ledger rule violations into AppErrors. Errors that are
// already AppErrors pass through; anything else is treated as a database failure.
func FromLedger(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr
	}

	switch {
	case errors.Is(err, devotion.ErrInvalidArgument):
		return newLedgerError(CodeValidation, SeverityLow, "Invalid request", err)
	case errors.Is(err, devotion.ErrNotInitialized):
		return newLedgerError(CodeNotInitialized, SeverityMedium, "Ledger is not initialized", err)
	case errors.Is(err, devotion.ErrAlreadyInitialized):
		return newLedgerError(CodeAlreadyInitialized, SeverityLow, "Ledger is already initialized", err)
	case errors.Is(err, devotion.ErrNotFound):
		return newLedgerError(CodeNotFound, SeverityLow, "Devotion not found", err)
	case errors.Is(err, devotion.ErrUnauthorized):
		return newLedgerError(CodeUnauthorized, SeverityMedium, "Accounts do not belong to the caller", err)
	case errors.Is(err, devotion.ErrInsufficientBalance):
		return newLedgerError(CodeInsufficientBalance, SeverityLow, "Insufficient balance", err)
	case errors.Is(err, devotion.ErrArithmeticOverflow):
		return newLedgerError(CodeOverflow, SeverityHigh, "Amount out of range", err)
	default:
		return NewDatabaseError(err)
	}
}
