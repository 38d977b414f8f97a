package domain

import (
	"errors"
	"fmt"
)

// Kind classifies errors for callers that only need to know how to react.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindState
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindState:
		return "state"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Error is an error with a stable machine-readable code.
// Two Errors match under errors.Is when their codes are equal, so a sentinel
// still matches after Errorf has attached details to it.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func NewError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Errorf returns a copy of sentinel whose message carries the formatted detail.
func Errorf(sentinel *Error, format string, args ...any) *Error {
	return &Error{
		Kind:    sentinel.Kind,
		Code:    sentinel.Code,
		Message: sentinel.Message + ": " + fmt.Sprintf(format, args...),
	}
}

var (
	ErrValidation  = NewError(KindValidation, "VALIDATION_FAILED", "validation failed")
	ErrNotFound    = NewError(KindNotFound, "NOT_FOUND", "not found")
	ErrInternal    = NewError(KindInternal, "INTERNAL", "internal error")
	ErrRateLimited = NewError(KindRateLimited, "RATE_LIMITED", "rate limited")
	// ErrPricingInconsistency means a show's price sheet lacks a seat type it should cover.
	ErrPricingInconsistency = NewError(KindInternal, "PRICING_INCONSISTENCY", "pricing inconsistency")
)

// KindOf reports the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// CodeOf reports the code of the first *Error in err's chain, or "INTERNAL".
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrInternal.Code
}

// RateLimitedError carries the time after which the caller may try again.
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %ds", e.RetryAfterSeconds)
}

func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}
