// Package poolerr defines the error taxonomy shared by the exchange ledger and its token
// collaborators.
//
// Every failure is terminal for the call that produced it. Errors carry a stable code so that
// callers can match them with errors.Is regardless of the detail attached with Wrapf.
package poolerr

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	CodeInvalidAmount         = "INVALID_AMOUNT"
	CodeInsufficientBalance   = "INSUFFICIENT_BALANCE"
	CodeInsufficientAllowance = "INSUFFICIENT_ALLOWANCE"
	CodeInsufficientLiquidity = "INSUFFICIENT_LIQUIDITY"
	CodeInvalidRate           = "INVALID_RATE"
	CodeExceedsRoyaltyBalance = "EXCEEDS_ROYALTY_BALANCE"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodePaused                = "PAUSED"
	CodeReentrantCall         = "REENTRANT_CALL"
	CodeInvalidRecipient      = "INVALID_RECIPIENT"
	CodeUnknown               = "UNKNOWN"
)

// Error is a ledger failure identified by Code.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

var (
	ErrInvalidAmount         = newError(CodeInvalidAmount, "amount must be positive")
	ErrInsufficientBalance   = newError(CodeInsufficientBalance, "insufficient balance")
	ErrInsufficientAllowance = newError(CodeInsufficientAllowance, "insufficient allowance")
	ErrInsufficientLiquidity = newError(CodeInsufficientLiquidity, "insufficient reserve in pool")
	ErrInvalidRate           = newError(CodeInvalidRate, "invalid exchange rate")
	ErrExceedsRoyaltyBalance = newError(CodeExceedsRoyaltyBalance, "amount exceeds royalties balance")
	ErrUnauthorized          = newError(CodeUnauthorized, "account is missing role")
	ErrPaused                = newError(CodePaused, "token transfers are paused")
	ErrReentrantCall         = newError(CodeReentrantCall, "reentrant call")
	ErrInvalidRecipient      = newError(CodeInvalidRecipient, "invalid recipient")
)

// Wrapf returns a copy of sentinel with a formatted message appended. The result still matches
// sentinel under errors.Is.
func Wrapf(sentinel *Error, format string, args ...any) error {
	return &Error{
		Code:    sentinel.Code,
		Message: sentinel.Message + ": " + fmt.Sprintf(format, args...),
	}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeUnknown.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}
