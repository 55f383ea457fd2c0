// Package apperrors defines the coded business errors shared by both services.
// Codes travel over HTTP between services so a remote rejection can be matched
// with errors.Is on the calling side.
package apperrors

import (
	"errors"
	"fmt"
)

const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeAccountNotFound      = "ACCOUNT_NOT_FOUND"
	CodeTransactionNotFound  = "TRANSACTION_NOT_FOUND"
	CodeInsufficientBalance  = "INSUFFICIENT_BALANCE"
	CodeAccountNotActive     = "ACCOUNT_NOT_ACTIVE"
	CodeRemoteUnavailable    = "REMOTE_UNAVAILABLE"
	CodeDuplicateTransaction = "DUPLICATE_TRANSACTION"
	CodeForbidden            = "FORBIDDEN"
	CodeCompensationFailed   = "COMPENSATION_FAILED"
	CodeInvalidState         = "INVALID_STATE"
)

var (
	ErrValidation           = errors.New(CodeValidation)
	ErrAccountNotFound      = errors.New(CodeAccountNotFound)
	ErrTransactionNotFound  = errors.New(CodeTransactionNotFound)
	ErrInsufficientBalance  = errors.New(CodeInsufficientBalance)
	ErrAccountNotActive     = errors.New(CodeAccountNotActive)
	ErrRemoteUnavailable    = errors.New(CodeRemoteUnavailable)
	ErrDuplicateTransaction = errors.New(CodeDuplicateTransaction)
	ErrForbidden            = errors.New(CodeForbidden)
	ErrCompensationFailed   = errors.New(CodeCompensationFailed)
	ErrInvalidState         = errors.New(CodeInvalidState)
)

var byCode = map[string]error{
	CodeValidation:           ErrValidation,
	CodeAccountNotFound:      ErrAccountNotFound,
	CodeTransactionNotFound:  ErrTransactionNotFound,
	CodeInsufficientBalance:  ErrInsufficientBalance,
	CodeAccountNotActive:     ErrAccountNotActive,
	CodeRemoteUnavailable:    ErrRemoteUnavailable,
	CodeDuplicateTransaction: ErrDuplicateTransaction,
	CodeForbidden:            ErrForbidden,
	CodeCompensationFailed:   ErrCompensationFailed,
	CodeInvalidState:         ErrInvalidState,
}

// Error is a business error carrying a stable code and a human readable message.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an Error wrapping the sentinel for code.
func New(sentinel error, format string, args ...any) *Error {
	return &Error{
		Code:    sentinel.Error(),
		Message: fmt.Sprintf(format, args...),
		Err:     sentinel,
	}
}

// FromCode rebuilds an Error received from a remote service. Unknown codes
// wrap ErrRemoteUnavailable.
func FromCode(code, message string) *Error {
	sentinel, ok := byCode[code]
	if !ok {
		sentinel = ErrRemoteUnavailable
	}
	return &Error{Code: sentinel.Error(), Message: message, Err: sentinel}
}

// CodeOf returns the code of the first coded error in err's chain, or "".
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	for code, sentinel := range byCode {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return ""
}
