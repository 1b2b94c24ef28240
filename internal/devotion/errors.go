package devotion

import (
	"errors"
	"fmt"

	"github.com/Proton-105/devotion/internal/fixedpoint"
)

var (
	// ErrAlreadyInitialized indicates the ledger configuration already exists.
	ErrAlreadyInitialized = errors.New("ledger already initialized")
	// ErrNotInitialized indicates an operation ran before initialize.
	ErrNotInitialized = errors.New("ledger not initialized")
	// ErrNotFound indicates a missing devotion record or mint.
	ErrNotFound = errors.New("record not found")
	// ErrUnauthorized indicates the caller may not act on the referenced accounts.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrAccountMismatch indicates a supplied account does not match the one derived for the caller.
	ErrAccountMismatch = fmt.Errorf("%w: account mismatch", ErrUnauthorized)
	// ErrInsufficientBalance indicates a source balance or staked amount is too small.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrArithmeticOverflow indicates an intermediate or result left its integer range.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	// ErrInvalidArgument indicates a malformed request such as a zero withdrawal.
	ErrInvalidArgument = errors.New("invalid argument")
)

// arithmetic maps fixed-point failures onto ErrArithmeticOverflow.
func arithmetic(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, fixedpoint.ErrOverflow) ||
		errors.Is(err, fixedpoint.ErrDivideByZero) ||
		errors.Is(err, fixedpoint.ErrNegative) {
		return fmt.Errorf("%w: %w", ErrArithmeticOverflow, err)
	}
	return err
}

// statusOf returns a short label for err used by operation recorders.
func statusOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAlreadyInitialized):
		return "already_initialized"
	case errors.Is(err, ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrArithmeticOverflow):
		return "overflow"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	default:
		return "error"
	}
}

// IsRuleViolation reports whether err is a ledger rule rejection rather than an infrastructure failure.
func IsRuleViolation(err error) bool {
	s := statusOf(err)
	return s != "ok" && s != "error"
}
