// Package contract checks runtime values against a module specification.
//
// Validate guards both sides of an operation: inputs before the module
// logic runs and outputs after it returns. Checks are pure; the
// specification is only read.
package contract

import (
	"fmt"

	"github.com/artpar/amodule/core/ndarray"
	"github.com/artpar/amodule/core/spec"
)

// Shaped is implemented by array values. *ndarray.Dense satisfies it.
type Shaped interface {
	Shape() []int
	DType() ndarray.DType
}

// Validate checks values positionally against the parameters declared for
// method and dir. It stops at the first violation.
func Validate(s *spec.Specification, method string, dir spec.Direction, values ...any) error {
	m, ok := s.Method(method)
	if !ok {
		return &UnknownMethodError{Method: method}
	}

	if !dir.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDirection, dir)
	}

	params := m.Params(dir)
	if len(values) != len(params) {
		return &ArityMismatchError{
			Method:    method,
			Direction: dir,
			Want:      len(params),
			Got:       len(values),
		}
	}

	for i, p := range params {
		if observed, reason, ok := match(p.Type, values[i]); !ok {
			return &TypeMismatchError{
				Method:    method,
				Direction: dir,
				Param:     p.Name,
				Expected:  p.Type.String(),
				Observed:  observed,
				Reason:    reason,
			}
		}
	}

	return nil
}

// Match checks a single value against a descriptor. The returned error,
// if any, is a *TypeMismatchError without method or parameter context.
func Match(desc spec.TypeDescriptor, v any) error {
	if observed, reason, ok := match(desc, v); !ok {
		return &TypeMismatchError{Expected: desc.String(), Observed: observed, Reason: reason}
	}
	return nil
}

// match returns a description of v and, on failure, the reason.
func match(desc spec.TypeDescriptor, v any) (observed, reason string, ok bool) {
	switch desc.Kind {
	case spec.KindNumeric:
		return matchNumeric(desc, v)
	case spec.KindNDArray:
		return matchArray(desc, v)
	default:
		return describe(v), fmt.Sprintf("unsupported descriptor kind %q", desc.Kind), false
	}
}

func matchNumeric(desc spec.TypeDescriptor, v any) (string, string, bool) {
	dt, isScalar := scalarDType(v)
	observed := describe(v)
	if !isScalar {
		return observed, "value is not a numeric scalar", false
	}
	if !desc.Elem.Accepts(dt) {
		return observed, fmt.Sprintf("element type %s does not satisfy %q", dt, desc.Elem), false
	}
	return observed, "", true
}

func matchArray(desc spec.TypeDescriptor, v any) (string, string, bool) {
	arr, isArray := v.(Shaped)
	observed := describe(v)
	if !isArray {
		return observed, "value is not an ndarray", false
	}

	shape := arr.Shape()
	if shape == nil {
		return observed, "ndarray is nil", false
	}

	if dt := arr.DType(); !desc.Elem.Accepts(dt) {
		return observed, fmt.Sprintf("element type %s does not satisfy %q", dt, desc.Elem), false
	}

	// Slots are aligned with the trailing axes.
	for i := 1; i <= len(desc.Dims); i++ {
		d := desc.Dims[len(desc.Dims)-i]
		if !d.Fixed {
			continue
		}
		axis := len(shape) - i
		if axis < 0 {
			return observed, fmt.Sprintf("rank %d is too small for fixed trailing dimension %d of size %d", len(shape), i, d.Size), false
		}
		if shape[axis] != d.Size {
			return observed, fmt.Sprintf("axis %d has size %d, want %d", axis, shape[axis], d.Size), false
		}
	}

	return observed, "", true
}

// scalarDType maps Go numeric scalar types onto dtypes.
func scalarDType(v any) (ndarray.DType, bool) {
	switch v.(type) {
	case int, int64:
		return ndarray.Int64, true
	case int8:
		return ndarray.Int8, true
	case int16:
		return ndarray.Int16, true
	case int32:
		return ndarray.Int32, true
	case uint, uint64:
		return ndarray.Uint64, true
	case uint8:
		return ndarray.Uint8, true
	case uint16:
		return ndarray.Uint16, true
	case uint32:
		return ndarray.Uint32, true
	case float32:
		return ndarray.Float32, true
	case float64:
		return ndarray.Float64, true
	default:
		return "", false
	}
}

func describe(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case Shaped:
		shape := x.Shape()
		if shape == nil {
			return "nil ndarray"
		}
		return fmt.Sprintf("ndarray %s%s", x.DType(), ndarray.FormatShape(shape))
	}
	if _, ok := scalarDType(v); ok {
		return fmt.Sprintf("%T(%v)", v, v)
	}
	return fmt.Sprintf("%T", v)
}
