package contracts

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies gateway failures. Validation and business-rule codes are
// never retried; TransactionFailed always carries the underlying cause.
type Code string

const (
	ErrNoSigner            Code = "NO_SIGNER"
	ErrInvalidAddress      Code = "INVALID_ADDRESS"
	ErrInvalidParameters   Code = "INVALID_PARAMETERS"
	ErrInsufficientStake   Code = "INSUFFICIENT_STAKE"
	ErrInsufficientDeposit Code = "INSUFFICIENT_DEPOSIT"
	ErrTransactionFailed   Code = "TRANSACTION_FAILED"
)

// Error is the typed error every public gateway operation surfaces.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func wrapError(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// CodeOf extracts the gateway code from err, or "" if err is untyped.
func CodeOf(err error) Code {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}

var transientMarkers = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"timeout",
	"deadline exceeded",
	"temporarily unavailable",
	"try again",
	"too many requests",
	"429",
	"502",
	"503",
	"eof",
	"network is unreachable",
	"no such host",
}

var terminalMarkers = []string{
	"user rejected",
	"user denied",
	"execution reverted",
	"revert",
	"insufficient funds",
	"nonce too low",
	"invalid sender",
	"already known",
}

// isTransient reports whether a raw transport error is worth another attempt.
// Typed gateway errors are always terminal; for everything else the provider
// gives us little more than a message, so classify on known markers and treat
// unknown errors as transient provider noise.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var ge *Error
	if errors.As(err, &ge) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range terminalMarkers {
		if strings.Contains(msg, marker) {
			return false
		}
	}
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return true
}
