package aligned

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures along the submission path.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindConfiguration
	KindValidation
	KindNonceFetch
	KindFeeEstimation
	KindConnection
	KindConnectionLost
	KindRejected
	KindTimeout
	KindProtocol
	KindCanceled
	KindOnchain
)

// String returns the representation used in logs, metrics and responses.
func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindValidation:
		return "validation"
	case KindNonceFetch:
		return "nonce_fetch"
	case KindFeeEstimation:
		return "fee_estimation"
	case KindConnection:
		return "connection"
	case KindConnectionLost:
		return "connection_lost"
	case KindRejected:
		return "rejected"
	case KindTimeout:
		return "timeout"
	case KindProtocol:
		return "protocol"
	case KindCanceled:
		return "canceled"
	case KindOnchain:
		return "onchain"
	default:
		return "unknown"
	}
}

// IsInfrastructure reports whether the kind means a dependency could not be
// reached before anything was submitted.
func (k ErrorKind) IsInfrastructure() bool {
	switch k {
	case KindConfiguration, KindNonceFetch, KindFeeEstimation, KindUnknown:
		return true
	default:
		return false
	}
}

// Error is the structured error returned by every component on the
// submission path.
type Error struct {
	Kind ErrorKind
	// Code is the batcher's rejection code (e.g. "invalid_nonce"), if any.
	Code    string
	Message string
	Cause   error
}

// Error returns the message, followed by the cause when present. Rejections
// carry the batcher's message verbatim.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors of the same kind (and code, when the target sets one).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// NewError creates an error of the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf creates an error of the given kind with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithCause sets the underlying cause.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// Rejected builds a KindRejected error carrying the batcher's message.
func Rejected(code, message string) *Error {
	return &Error{Kind: KindRejected, Code: code, Message: message}
}

// Sentinels for errors.Is checks.
var (
	ErrRejected       = &Error{Kind: KindRejected}
	ErrTimeout        = &Error{Kind: KindTimeout}
	ErrConnectionLost = &Error{Kind: KindConnectionLost}
	ErrValidation     = &Error{Kind: KindValidation}
)

// KindOf returns the kind of err, or KindUnknown for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// AsError unwraps err into *Error.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
