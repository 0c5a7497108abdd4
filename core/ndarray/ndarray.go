// Package ndarray provides dense, row-major n-dimensional arrays.
//
// Arrays carry their shape and element type explicitly so that contract
// checks can inspect them without reflection.
package ndarray

import (
	"fmt"
	"strconv"
	"strings"
)

// DType names the element type of an array.
type DType string

const (
	Int8    DType = "int8"
	Int16   DType = "int16"
	Int32   DType = "int32"
	Int64   DType = "int64"
	Uint8   DType = "uint8"
	Uint16  DType = "uint16"
	Uint32  DType = "uint32"
	Uint64  DType = "uint64"
	Float32 DType = "float32"
	Float64 DType = "float64"
)

// IsInteger reports whether d is a signed or unsigned integer type.
func (d DType) IsInteger() bool {
	return d.IsSigned() || d.IsUnsigned()
}

// IsSigned reports whether d is a signed integer type.
func (d DType) IsSigned() bool {
	switch d {
	case Int8, Int16, Int32, Int64:
		return true
	}
	return false
}

// IsUnsigned reports whether d is an unsigned integer type.
func (d DType) IsUnsigned() bool {
	switch d {
	case Uint8, Uint16, Uint32, Uint64:
		return true
	}
	return false
}

// IsFloat reports whether d is a floating-point type.
func (d DType) IsFloat() bool {
	return d == Float32 || d == Float64
}

// Valid reports whether d is a known element type.
func (d DType) Valid() bool {
	return d.IsInteger() || d.IsFloat()
}

// Element is the set of Go types an array can hold.
type Element interface {
	int8 | int16 | int32 | int64 |
		uint8 | uint16 | uint32 | uint64 |
		float32 | float64
}

// DTypeOf returns the DType corresponding to T.
func DTypeOf[T Element]() DType {
	var zero T
	switch any(zero).(type) {
	case int8:
		return Int8
	case int16:
		return Int16
	case int32:
		return Int32
	case int64:
		return Int64
	case uint8:
		return Uint8
	case uint16:
		return Uint16
	case uint32:
		return Uint32
	case uint64:
		return Uint64
	case float32:
		return Float32
	default:
		return Float64
	}
}

// Dense is a row-major array of T.
type Dense[T Element] struct {
	shape   []int
	strides []int
	data    []T
}

// New allocates a zero-filled array with the given shape.
// It panics if any dimension is negative.
func New[T Element](shape ...int) *Dense[T] {
	n, err := size(shape)
	if err != nil {
		panic(err)
	}
	return &Dense[T]{
		shape:   cloneInts(shape),
		strides: strides(shape),
		data:    make([]T, n),
	}
}

// FromSlice wraps data as an array with the given shape.
// The slice is used directly, not copied.
func FromSlice[T Element](data []T, shape ...int) (*Dense[T], error) {
	n, err := size(shape)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("shape %s needs %d elements, got %d", FormatShape(shape), n, len(data))
	}
	return &Dense[T]{
		shape:   cloneInts(shape),
		strides: strides(shape),
		data:    data,
	}, nil
}

// Shape returns a copy of the array's dimension sizes.
// A nil array has a nil shape; any other array has a non-nil one.
func (a *Dense[T]) Shape() []int {
	if a == nil {
		return nil
	}
	return cloneInts(a.shape)
}

// Rank returns the number of dimensions, zero for a nil array.
func (a *Dense[T]) Rank() int {
	if a == nil {
		return 0
	}
	return len(a.shape)
}

// DType returns the element type.
func (a *Dense[T]) DType() DType {
	return DTypeOf[T]()
}

// Len returns the total number of elements.
func (a *Dense[T]) Len() int {
	if a == nil {
		return 0
	}
	return len(a.data)
}

// Data returns the underlying row-major storage.
func (a *Dense[T]) Data() []T {
	if a == nil {
		return nil
	}
	return a.data
}

// At returns the element at idx. It panics on a bad index.
func (a *Dense[T]) At(idx ...int) T {
	return a.data[a.offset(idx)]
}

// Set stores v at idx. It panics on a bad index.
func (a *Dense[T]) Set(v T, idx ...int) {
	a.data[a.offset(idx)] = v
}

// Equal reports whether b has the same shape and elements as a.
func (a *Dense[T]) Equal(b *Dense[T]) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.shape) != len(b.shape) {
		return false
	}
	for i := range a.shape {
		if a.shape[i] != b.shape[i] {
			return false
		}
	}
	for i := range a.data {
		if a.data[i] != b.data[i] {
			return false
		}
	}
	return true
}

// String returns a short description such as "uint8(100, 120, 3)".
func (a *Dense[T]) String() string {
	if a == nil {
		return string(a.DType()) + "(nil)"
	}
	return string(a.DType()) + FormatShape(a.shape)
}

func (a *Dense[T]) offset(idx []int) int {
	if len(idx) != len(a.shape) {
		panic(fmt.Sprintf("ndarray: index rank %d, array rank %d", len(idx), len(a.shape)))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= a.shape[i] {
			panic(fmt.Sprintf("ndarray: index %d out of range for axis %d of size %d", v, i, a.shape[i]))
		}
		off += v * a.strides[i]
	}
	return off
}

// FormatShape renders a shape as "(d0, d1, ...)".
func FormatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	if len(parts) == 1 {
		return "(" + parts[0] + ",)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func size(shape []int) (int, error) {
	n := 1
	for i, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("negative dimension %d at axis %d", d, i)
		}
		n *= d
	}
	return n, nil
}

func strides(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= shape[i]
	}
	return s
}

func cloneInts(s []int) []int {
	out := make([]int, len(s))
	copy(out, s)
	return out
}
