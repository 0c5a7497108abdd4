package spec

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/artpar/amodule/core/ndarray"
	"gopkg.in/yaml.v3"
)

// Kind is the base kind of a described value.
type Kind string

const (
	KindNumeric Kind = "numeric" // Integer or floating-point scalar
	KindNDArray Kind = "ndarray" // Shaped array with an element type
)

// ElemType constrains the element type of a value.
// The zero value accepts any element type.
type ElemType string

const (
	ElemAny   ElemType = ""
	ElemInt   ElemType = "int"   // Any signed or unsigned integer
	ElemUint  ElemType = "uint"  // Any unsigned integer
	ElemFloat ElemType = "float" // float32 or float64
)

// Valid reports whether e is a family name, an exact dtype, or empty.
func (e ElemType) Valid() bool {
	switch e {
	case ElemAny, ElemInt, ElemUint, ElemFloat:
		return true
	}
	return ndarray.DType(e).Valid()
}

// Accepts reports whether an observed dtype satisfies e.
func (e ElemType) Accepts(dt ndarray.DType) bool {
	switch e {
	case ElemAny:
		return dt.Valid()
	case ElemInt:
		return dt.IsInteger()
	case ElemUint:
		return dt.IsUnsigned()
	case ElemFloat:
		return dt.IsFloat()
	default:
		return ndarray.DType(e) == dt
	}
}

// Dim is one dimension slot of an ndarray descriptor.
type Dim struct {
	Size  int
	Fixed bool
}

// TypeDescriptor is the parsed form of a compact descriptor string.
type TypeDescriptor struct {
	// Raw is the descriptor as written in the specification.
	Raw  string
	Kind Kind
	Elem ElemType

	// Dims holds the dimension slots in declaration order. The last slot
	// is matched against the last axis of a value.
	Dims []Dim
}

// ParseDescriptor parses a descriptor such as "ndarray/uint8///3".
func ParseDescriptor(s string) (TypeDescriptor, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return TypeDescriptor{}, fmt.Errorf("empty type descriptor")
	}

	tokens := strings.Split(raw, "/")
	d := TypeDescriptor{Raw: raw, Kind: Kind(tokens[0])}

	switch d.Kind {
	case KindNumeric, KindNDArray:
	default:
		return TypeDescriptor{}, fmt.Errorf("descriptor %q: unknown kind %q", raw, tokens[0])
	}

	if len(tokens) > 1 {
		d.Elem = ElemType(tokens[1])
		if !d.Elem.Valid() {
			return TypeDescriptor{}, fmt.Errorf("descriptor %q: unknown element type %q", raw, tokens[1])
		}
	}

	if len(tokens) <= 2 {
		return d, nil
	}

	if d.Kind == KindNumeric {
		return TypeDescriptor{}, fmt.Errorf("descriptor %q: numeric descriptors take no dimensions", raw)
	}

	for i, tok := range tokens[2:] {
		if tok == "" {
			d.Dims = append(d.Dims, Dim{})
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil || n <= 0 {
			return TypeDescriptor{}, fmt.Errorf("descriptor %q: dimension %d must be empty or a positive integer, got %q", raw, i, tok)
		}
		d.Dims = append(d.Dims, Dim{Size: n, Fixed: true})
	}

	return d, nil
}

// MustParseDescriptor is like ParseDescriptor but panics on error.
func MustParseDescriptor(s string) TypeDescriptor {
	d, err := ParseDescriptor(s)
	if err != nil {
		panic(err)
	}
	return d
}

// String returns the descriptor as written.
func (d TypeDescriptor) String() string {
	return d.Raw
}

// IsZero reports whether d was never parsed.
func (d TypeDescriptor) IsZero() bool {
	return d.Kind == ""
}

// UnmarshalYAML parses the descriptor once while decoding.
func (d *TypeDescriptor) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("line %d: type must be a string: %w", node.Line, err)
	}
	parsed, err := ParseDescriptor(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = parsed
	return nil
}

// MarshalYAML emits the compact string form.
func (d TypeDescriptor) MarshalYAML() (any, error) {
	return d.Raw, nil
}

// MarshalJSON emits the compact string form.
func (d TypeDescriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Raw)
}

// UnmarshalJSON parses a compact descriptor string.
func (d *TypeDescriptor) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDescriptor(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
