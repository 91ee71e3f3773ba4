// Package apperr carries the failure kind and whether the failure has
// already been logged where it happened.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindUpstream is a failed collaborator: database, wallet or provider.
	KindUpstream Kind = iota
	// KindValidation is input that cannot be processed as sent.
	KindValidation
)

func (k Kind) String() string {
	if k == KindValidation {
		return "validation"
	}
	return "upstream"
}

type Error struct {
	Kind     Kind
	Reported bool
	Op       string
	Err      error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Reported wraps a failure that has already been logged at its origin.
func Reported(op string, err error) *Error {
	return &Error{Kind: KindUpstream, Reported: true, Op: op, Err: err}
}

func Validation(op string, err error) *Error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

// IsReported reports whether any error in the chain was already logged.
func IsReported(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Reported
	}
	return false
}

// KindOf returns KindUpstream for errors that carry no kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstream
}
