package contract

import (
	"errors"
	"fmt"

	"github.com/artpar/amodule/core/spec"
)

// Sentinel errors for matching with errors.Is.
var (
	ErrUnknownMethod    = errors.New("unknown method")
	ErrArityMismatch    = errors.New("arity mismatch")
	ErrTypeMismatch     = errors.New("type mismatch")
	ErrInvalidDirection = errors.New("invalid direction")
)

// UnknownMethodError reports a method name absent from the specification.
type UnknownMethodError struct {
	Method string
}

func (e *UnknownMethodError) Error() string {
	return fmt.Sprintf("unknown method %q", e.Method)
}

// Is matches ErrUnknownMethod.
func (e *UnknownMethodError) Is(target error) bool {
	return target == ErrUnknownMethod
}

// ArityMismatchError reports a wrong number of values.
type ArityMismatchError struct {
	Method    string
	Direction spec.Direction
	Want      int
	Got       int
}

func (e *ArityMismatchError) Error() string {
	return fmt.Sprintf("%s %s: expected %d values, got %d", e.Method, e.Direction, e.Want, e.Got)
}

// Is matches ErrArityMismatch.
func (e *ArityMismatchError) Is(target error) bool {
	return target == ErrArityMismatch
}

// TypeMismatchError reports a value that does not satisfy its descriptor.
type TypeMismatchError struct {
	Method    string
	Direction spec.Direction
	Param     string

	// Expected is the descriptor string from the specification.
	Expected string

	// Observed describes the value, e.g. "ndarray uint8(100, 120, 4)".
	Observed string

	// Reason names the part of the descriptor that failed.
	Reason string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s %s %q: expected %s, observed %s: %s",
		e.Method, e.Direction, e.Param, e.Expected, e.Observed, e.Reason)
}

// Is matches ErrTypeMismatch.
func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}

// Direction returns the direction an error was raised for, if it has
// one. Callers use it to tell bad input from bad output.
func Direction(err error) (spec.Direction, bool) {
	var am *ArityMismatchError
	if errors.As(err, &am) {
		return am.Direction, true
	}
	var tm *TypeMismatchError
	if errors.As(err, &tm) {
		return tm.Direction, true
	}
	return "", false
}

// IsViolation reports whether err is any contract violation.
func IsViolation(err error) bool {
	return errors.Is(err, ErrUnknownMethod) ||
		errors.Is(err, ErrArityMismatch) ||
		errors.Is(err, ErrTypeMismatch)
}
