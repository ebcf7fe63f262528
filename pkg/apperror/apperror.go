package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// SchemaVersion is carried on every descriptor so clients can detect
// incompatible changes to the error envelope.
const SchemaVersion = 1

// Kind is the closed set of error categories the core branches on.
type Kind int

const (
	// KindDomain is a business-rule violation. Never retried, maps to 4xx.
	KindDomain Kind = iota
	// KindInfra is an environment or dependency failure. Retryability
	// depends on the code; maps to 5xx.
	KindInfra
	// KindProgrammer is a contract violation by calling code. Never
	// retried, always a bug in the deployed code.
	KindProgrammer
)

func (k Kind) String() string {
	switch k {
	case KindDomain:
		return "DOMAIN"
	case KindInfra:
		return "INFRA"
	case KindProgrammer:
		return "PROGRAMMER"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Infra error codes produced by the remapper. The retryable flag for each
// code is fixed here and nowhere else.
const (
	CodeTxConflict        = "TX_CONFLICT"
	CodeLockTimeout       = "LOCK_TIMEOUT"
	CodeTimeout           = "TIMEOUT"
	CodeConnectionLost    = "CONNECTION_LOST"
	CodeResourceExhausted = "RESOURCE_EXHAUSTED"
	CodeConstraint        = "CONSTRAINT_VIOLATION"
	CodeMalformedResponse = "MALFORMED_RESPONSE"
	CodeInternal          = "INTERNAL"
)

// Error is the application error descriptor. Once constructed it is never
// re-classified, only wrapped and rethrown.
type Error struct {
	Kind          Kind   `json:"kind"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	Retryable     bool   `json:"retryable"`
	HTTPStatus    int    `json:"http_status"`
	SchemaVersion int    `json:"schema_version"`
	Err           error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Kind, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s/%s: %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Domain creates a business-rule violation error.
func Domain(code, message string, httpStatus int) *Error {
	if httpStatus == 0 {
		httpStatus = http.StatusUnprocessableEntity
	}
	return &Error{
		Kind:          KindDomain,
		Code:          code,
		Message:       message,
		Retryable:     false,
		HTTPStatus:    httpStatus,
		SchemaVersion: SchemaVersion,
	}
}

// Infra creates an infrastructure error with an explicit retryable flag.
func Infra(code, message string, retryable bool, err error) *Error {
	return &Error{
		Kind:          KindInfra,
		Code:          code,
		Message:       message,
		Retryable:     retryable,
		HTTPStatus:    http.StatusInternalServerError,
		SchemaVersion: SchemaVersion,
		Err:           err,
	}
}

// Programmer creates a contract-violation error. These indicate bugs and
// must fail loudly in every environment.
func Programmer(code, message string) *Error {
	return &Error{
		Kind:          KindProgrammer,
		Code:          code,
		Message:       message,
		Retryable:     false,
		HTTPStatus:    http.StatusInternalServerError,
		SchemaVersion: SchemaVersion,
	}
}

// As unwraps err to an *Error if one is anywhere in its chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsRetryable reports whether err is a classified infra error marked
// retryable. Domain and programmer errors are never retryable.
func IsRetryable(err error) bool {
	ae, ok := As(err)
	return ok && ae.Kind == KindInfra && ae.Retryable
}

// IsCode reports whether err carries the given classified code.
func IsCode(err error, code string) bool {
	ae, ok := As(err)
	return ok && ae.Code == code
}
