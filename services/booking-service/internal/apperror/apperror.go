// Package apperror defines the domain error taxonomy of the booking engine.
//
// Domain errors are always caller-correctable outcomes. Anything that is not an
// *Error (store or network failures, context deadlines) is infrastructure and must
// be surfaced as-is.
package apperror

import (
	"errors"
	"fmt"
	"time"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindExpired    Kind = "expired"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

type Error struct {
	Kind    Kind
	Message string
	// Field names the offending input for validation errors.
	Field string
	// Interval is the conflicting occupied interval, when known.
	Interval *Interval
	// From/To describe a rejected status transition.
	From string
	To   string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches any *Error of the same kind, so errors.Is(err, apperror.ErrConflict) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Field == ""
}

var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrExpired    = &Error{Kind: KindExpired}
)

func Validation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: msg}
}

func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Field: what, Message: what + " not found"}
}

func Expired(msg string) *Error {
	return &Error{Kind: KindExpired, Message: msg}
}

func SlotTaken(start, end time.Time) *Error {
	return &Error{
		Kind:     KindConflict,
		Message:  "slot no longer available",
		Interval: &Interval{Start: start, End: end},
	}
}

func IllegalTransition(from, to string) *Error {
	return &Error{
		Kind:    KindConflict,
		Message: fmt.Sprintf("cannot transition appointment from %s to %s", from, to),
		From:    from,
		To:      to,
	}
}

// KindOf returns the domain kind of err, or "" for infrastructure errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
