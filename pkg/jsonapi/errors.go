package jsonapi

import (
	"fmt"
	"strconv"
)

// ErrorBuilder provides a fluent API for building Error objects.
type ErrorBuilder struct {
	err Error
}

// NewError creates a new ErrorBuilder with the given status, code, and title.
func NewError(status int, code, title string) *ErrorBuilder {
	return &ErrorBuilder{
		err: Error{
			Status: strconv.Itoa(status),
			Code:   code,
			Title:  title,
		},
	}
}

// Detail sets the error detail message.
func (b *ErrorBuilder) Detail(detail string) *ErrorBuilder {
	b.err.Detail = detail
	return b
}

// Detailf sets the error detail message with formatting.
func (b *ErrorBuilder) Detailf(format string, args ...any) *ErrorBuilder {
	b.err.Detail = fmt.Sprintf(format, args...)
	return b
}

// Pointer sets the JSON pointer to the source of the error.
// Example: "/threshold"
func (b *ErrorBuilder) Pointer(pointer string) *ErrorBuilder {
	if b.err.Source == nil {
		b.err.Source = &ErrorSource{}
	}
	b.err.Source.Pointer = pointer
	return b
}

// Parameter sets the query or path parameter that caused the error.
func (b *ErrorBuilder) Parameter(param string) *ErrorBuilder {
	if b.err.Source == nil {
		b.err.Source = &ErrorSource{}
	}
	b.err.Source.Parameter = param
	return b
}

// Header sets the header that caused the error.
func (b *ErrorBuilder) Header(header string) *ErrorBuilder {
	if b.err.Source == nil {
		b.err.Source = &ErrorSource{}
	}
	b.err.Source.Header = header
	return b
}

// Meta adds metadata to the error.
func (b *ErrorBuilder) Meta(key string, value any) *ErrorBuilder {
	if b.err.Meta == nil {
		b.err.Meta = make(Meta)
	}
	b.err.Meta[key] = value
	return b
}

// Build returns the constructed Error.
func (b *ErrorBuilder) Build() Error {
	return b.err
}

// StatusCode returns the HTTP status code as an int.
func (e Error) StatusCode() int {
	code, _ := strconv.Atoi(e.Status)
	return code
}

// Common error constructors

// ErrBadRequest creates a 400 Bad Request error.
func ErrBadRequest(detail string) Error {
	return NewError(400, "bad_request", "Bad Request").Detail(detail).Build()
}

// ErrUnauthorized creates a 401 Unauthorized error.
func ErrUnauthorized(detail string) Error {
	if detail == "" {
		detail = "Authentication required"
	}
	return NewError(401, "unauthorized", "Unauthorized").Detail(detail).Build()
}

// ErrNotFound creates a 404 Not Found error.
func ErrNotFound(resourceType string) Error {
	return NewError(404, "not_found", "Not Found").
		Detailf("The requested %s was not found", resourceType).
		Build()
}

// ErrNotFoundWithID creates a 404 Not Found error with resource ID.
func ErrNotFoundWithID(resourceType, id string) Error {
	return NewError(404, "not_found", "Not Found").
		Detailf("The %s with ID '%s' was not found", resourceType, id).
		Build()
}

// ErrInternal creates a 500 Internal Server Error.
func ErrInternal(detail string) Error {
	if detail == "" {
		detail = "An internal error occurred"
	}
	return NewError(500, "internal_error", "Internal Server Error").Detail(detail).Build()
}

// ErrNotImplemented creates a 501 Not Implemented error.
func ErrNotImplemented(feature string) Error {
	return NewError(501, "not_implemented", "Not Implemented").
		Detailf("%s is not implemented", feature).
		Build()
}

// ErrServiceUnavailable creates a 503 Service Unavailable error.
func ErrServiceUnavailable(detail string) Error {
	if detail == "" {
		detail = "Service temporarily unavailable"
	}
	return NewError(503, "service_unavailable", "Service Unavailable").Detail(detail).Build()
}

// -----------------------------------------------------------------------------
// Contract Errors
// -----------------------------------------------------------------------------

// ErrUnknownMethod creates a 404 error for a method the module does not declare.
func ErrUnknownMethod(method string) Error {
	return NewError(404, "unknown_method", "Unknown Method").
		Detailf("The module does not declare a method named '%s'", method).
		Parameter("method").
		Build()
}

// ErrArityMismatch creates a 422 error for a wrong number of values.
func ErrArityMismatch(detail string) Error {
	return NewError(422, "arity_mismatch", "Arity Mismatch").Detail(detail).Build()
}

// ErrTypeMismatch creates a 422 error for an input value that does not
// satisfy its type descriptor.
func ErrTypeMismatch(param, detail string) Error {
	return NewError(422, "type_mismatch", "Type Mismatch").
		Detail(detail).
		Pointer("/" + param).
		Build()
}

// ErrContractViolation creates a 500 error for outputs that break the
// module's declared contract.
func ErrContractViolation(detail string) Error {
	return NewError(500, "contract_violation", "Contract Violation").Detail(detail).Build()
}
