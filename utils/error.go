package utils

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var ErrorRecordNotFound = errors.New("record not found")

// ErrorKind is the closed set of failure categories surfaced to callers.
type ErrorKind string

const (
	KindValidation             ErrorKind = "ValidationError"
	KindNotFound               ErrorKind = "NotFoundError"
	KindUnauthorized           ErrorKind = "UnauthorizedError"
	KindUnknownJurisdiction    ErrorKind = "UnknownJurisdiction"
	KindInvalidStateTransition ErrorKind = "InvalidStateTransition"
	KindConcurrencyConflict    ErrorKind = "ConcurrencyConflict"
	KindCompliance             ErrorKind = "ComplianceError"
	KindNothingToInvoice       ErrorKind = "NothingToInvoice"
	KindExternalService        ErrorKind = "ExternalServiceError"
	KindInternal               ErrorKind = "InternalError"
)

// BillingError carries a kind, a caller-facing message and an optional cause.
type BillingError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *BillingError) Error() string {
	if e.Cause != nil && e.Message != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

func (e *BillingError) Unwrap() error { return e.Cause }

// Is matches any BillingError of the same kind, so sentinels work with errors.Is.
func (e *BillingError) Is(target error) bool {
	t, ok := target.(*BillingError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation             = &BillingError{Kind: KindValidation}
	ErrNotFound               = &BillingError{Kind: KindNotFound}
	ErrUnauthorized           = &BillingError{Kind: KindUnauthorized}
	ErrUnknownJurisdiction    = &BillingError{Kind: KindUnknownJurisdiction}
	ErrInvalidStateTransition = &BillingError{Kind: KindInvalidStateTransition}
	ErrConcurrencyConflict    = &BillingError{Kind: KindConcurrencyConflict}
	ErrCompliance             = &BillingError{Kind: KindCompliance}
	ErrNothingToInvoice       = &BillingError{Kind: KindNothingToInvoice}
	ErrExternalService        = &BillingError{Kind: KindExternalService}
)

func newKind(kind ErrorKind, format string, args ...any) *BillingError {
	return &BillingError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NewValidationError(format string, args ...any) error {
	return newKind(KindValidation, format, args...)
}

func NewNotFoundError(format string, args ...any) error {
	return newKind(KindNotFound, format, args...)
}

func NewUnauthorizedError(format string, args ...any) error {
	return newKind(KindUnauthorized, format, args...)
}

func NewUnknownJurisdictionError(bar string) error {
	return newKind(KindUnknownJurisdiction, "no rules for jurisdiction %q", bar)
}

func NewInvalidStateTransitionError(from, to string) error {
	return newKind(KindInvalidStateTransition, "cannot move invoice from %s to %s", from, to)
}

func NewConcurrencyConflictError(format string, args ...any) error {
	return newKind(KindConcurrencyConflict, format, args...)
}

func NewComplianceError(format string, args ...any) error {
	return newKind(KindCompliance, format, args...)
}

func NewNothingToInvoiceError(format string, args ...any) error {
	return newKind(KindNothingToInvoice, format, args...)
}

func NewExternalServiceError(cause error, format string, args ...any) error {
	e := newKind(KindExternalService, format, args...)
	e.Cause = cause
	return e
}

// KindOf returns the kind of the first BillingError in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var be *BillingError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindInternal
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// NotFoundOr maps gorm.ErrRecordNotFound to a NotFoundError naming what was missing.
func NotFoundOr(err error, what string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, ErrorRecordNotFound) {
		return NewNotFoundError("%s %v not found", what, id)
	}
	return err
}
