package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error so callers and the HTTP layer can react without string matching.
type Kind string

const (
	KindValidation           Kind = "VALIDATION_ERROR"
	KindInvalidAmount        Kind = "INVALID_AMOUNT"
	KindNotAuthorized        Kind = "NOT_AUTHORIZED"
	KindNotFound             Kind = "NOT_FOUND"
	KindConflict             Kind = "CONFLICT"
	KindNotApproved          Kind = "NOT_APPROVED"
	KindRequestRejected      Kind = "REQUEST_REJECTED"
	KindCorruptLedgerEntry   Kind = "CORRUPT_LEDGER_ENTRY"
	KindNoEffectDetected     Kind = "NO_EFFECT_DETECTED"
	KindLedgerRejected       Kind = "LEDGER_REJECTED"
	KindTransientUnavailable Kind = "TRANSIENT_UNAVAILABLE"
	KindOutcomeUnknown       Kind = "OUTCOME_UNKNOWN"
	KindCanceled             Kind = "REQUEST_CANCELED"
	KindRateLimited          Kind = "RATE_LIMITED"
	KindInternal             Kind = "INTERNAL_ERROR"
)

var statusByKind = map[Kind]int{
	KindValidation:           http.StatusBadRequest,
	KindInvalidAmount:        http.StatusBadRequest,
	KindNotAuthorized:        http.StatusForbidden,
	KindNotFound:             http.StatusNotFound,
	KindConflict:             http.StatusConflict,
	KindNotApproved:          http.StatusConflict,
	KindRequestRejected:      http.StatusConflict,
	KindCorruptLedgerEntry:   http.StatusBadGateway,
	KindNoEffectDetected:     http.StatusBadGateway,
	KindLedgerRejected:       http.StatusUnprocessableEntity,
	KindTransientUnavailable: http.StatusServiceUnavailable,
	KindOutcomeUnknown:       http.StatusGatewayTimeout,
	KindCanceled:             http.StatusRequestTimeout,
	KindRateLimited:          http.StatusTooManyRequests,
	KindInternal:             http.StatusInternalServerError,
}

type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind so errors.Is(err, apperr.ErrNotAuthorized) works for any message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// StatusCode returns the HTTP status for the error kind.
func (e *Error) StatusCode() int {
	if code, ok := statusByKind[e.Kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// Retryable is true only for transient failures. Submissions are never retried by this
// service, so callers must check the operation type as well.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransientUnavailable
}

func (e *Error) WithDetail(key string, value any) *Error {
	clone := e.clone()
	clone.Details[key] = value
	return clone
}

func (e *Error) WithError(err error) *Error {
	clone := e.clone()
	clone.Err = err
	return clone
}

func (e *Error) clone() *Error {
	c := *e
	c.Details = make(map[string]any, len(e.Details))
	for k, v := range e.Details {
		c.Details[k] = v
	}
	return &c
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Details: map[string]any{}}
}

func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Details: map[string]any{}, Err: err}
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation           = New(KindValidation, "invalid parameters")
	ErrInvalidAmount        = New(KindInvalidAmount, "invalid amount")
	ErrNotAuthorized        = New(KindNotAuthorized, "caller is not authorized")
	ErrNotFound             = New(KindNotFound, "resource not found")
	ErrConflict             = New(KindConflict, "conflicting state")
	ErrNotApproved          = New(KindNotApproved, "withdrawal request is not approved")
	ErrRequestRejected      = New(KindRequestRejected, "withdrawal request was rejected")
	ErrCorruptLedgerEntry   = New(KindCorruptLedgerEntry, "corrupt ledger entry")
	ErrNoEffectDetected     = New(KindNoEffectDetected, "submission confirmed without effect")
	ErrLedgerRejected       = New(KindLedgerRejected, "ledger rejected submission")
	ErrTransientUnavailable = New(KindTransientUnavailable, "ledger temporarily unavailable")
	ErrOutcomeUnknown       = New(KindOutcomeUnknown, "submission outcome unknown, check the ledger before submitting again")
)

// Validation builds a validation error carrying the ordered violation list.
func Validation(violations []string) *Error {
	return ErrValidation.WithDetail("violations", violations)
}

// LedgerRejected records which step of the submission aborted.
func LedgerRejected(stepIndex int, message string) *Error {
	e := New(KindLedgerRejected, message)
	e.Details["step_index"] = stepIndex
	return e
}

// From converts any error into an *Error, defaulting to an internal error.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, context.Canceled) {
		return Wrap(err, KindCanceled, "request canceled")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(err, KindTransientUnavailable, "request timed out")
	}
	return Wrap(err, KindInternal, "internal error")
}

// KindOf returns the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
