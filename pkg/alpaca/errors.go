package alpaca

import (
	"errors"
	"fmt"
)

// ErrorCode is an ASCOM Alpaca error number reported inside the response envelope.
type ErrorCode int

const (
	ErrCodeNone                  ErrorCode = 0
	ErrCodeNotImplemented        ErrorCode = 0x400
	ErrCodeInvalidValue          ErrorCode = 0x401
	ErrCodeValueNotSet           ErrorCode = 0x402
	ErrCodeNotConnected          ErrorCode = 0x407
	ErrCodeInvalidWhileParked    ErrorCode = 0x408
	ErrCodeInvalidWhileSlaved    ErrorCode = 0x409
	ErrCodeInvalidOperation      ErrorCode = 0x40B
	ErrCodeActionNotImplemented  ErrorCode = 0x40C
	ErrCodeUnspecified           ErrorCode = 0x500
	ErrCodeDriverSpecificMinimum ErrorCode = 0x500
	ErrCodeDriverSpecificMaximum ErrorCode = 0xFFF
)

// Error is an Alpaca-level failure. It travels in the JSON body, never in the
// HTTP status.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("alpaca error 0x%X: %s", int(e.Code), e.Message)
}

// NewError creates an Alpaca error with a formatted message.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrNotConnected           = &Error{Code: ErrCodeNotConnected, Message: "Device is not connected"}
	ErrPropertyNotImplemented = &Error{Code: ErrCodeNotImplemented, Message: "Property or method not implemented"}
	ErrActionNotImplemented   = &Error{Code: ErrCodeActionNotImplemented, Message: "Action not implemented"}

	ErrZeroHardwareID    = errors.New("hardware identifier is zero")
	ErrInvalidHardwareID = errors.New("invalid hardware identifier")
	ErrDuplicateDevice   = errors.New("duplicate device")
	ErrNotFound          = errors.New("not found")
)

// errorFields maps any error onto the envelope's ErrorNumber and ErrorMessage.
// Errors that are not Alpaca errors are reported as unspecified failures.
func errorFields(err error) (ErrorCode, string) {
	if err == nil {
		return ErrCodeNone, ""
	}

	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr.Code, aerr.Message
	}
	return ErrCodeUnspecified, err.Error()
}
