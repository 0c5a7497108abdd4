package http

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/artpar/amodule/core/ndarray"
	"github.com/artpar/amodule/core/spec"
)

// ImageCodec converts arrays to and from their wire form.
type ImageCodec interface {
	DecodeBase64(s string) (*ndarray.Dense[uint8], error)
	EncodeBase64(a *ndarray.Dense[uint8]) (string, error)
}

// badRequestError marks a body that cannot be turned into values at all.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

// decodeInputs turns a JSON object into positional values for m. Missing
// fields are left out so the contract reports the arity mismatch.
//
// ndarray parameters arrive as base64 PNG strings. Numbers become int64
// when written as integer literals and float64 otherwise. Values of the
// wrong JSON type are passed through unchanged so the contract rejects
// them with a type mismatch.
func decodeInputs(m spec.MethodSpec, body map[string]any, codec ImageCodec) ([]any, error) {
	known := make(map[string]bool, len(m.Input))
	for _, p := range m.Input {
		known[p.Name] = true
	}
	var unknown []string
	for k := range body {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, badRequest("unknown input field(s): %s", strings.Join(unknown, ", "))
	}

	values := make([]any, 0, len(m.Input))
	for _, p := range m.Input {
		raw, ok := body[p.Name]
		if !ok {
			continue
		}
		v, err := decodeValue(p, raw, codec)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func decodeValue(p spec.ParamSpec, raw any, codec ImageCodec) (any, error) {
	switch p.Type.Kind {
	case spec.KindNDArray:
		s, ok := raw.(string)
		if !ok {
			return raw, nil
		}
		a, err := codec.DecodeBase64(s)
		if err != nil {
			return nil, badRequest("%s: %v", p.Name, err)
		}
		return a, nil
	default:
		if n, ok := raw.(json.Number); ok {
			return decodeNumber(n)
		}
		return raw, nil
	}
}

func decodeNumber(n json.Number) (any, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return nil, badRequest("invalid number %s", s)
	}
	return f, nil
}

// encodeOutputs turns validated outputs into a JSON object keyed by name.
func encodeOutputs(m spec.MethodSpec, out []any, codec ImageCodec) (map[string]any, error) {
	if len(out) != len(m.Output) {
		return nil, fmt.Errorf("%s: %d outputs for %d declared", m.Name, len(out), len(m.Output))
	}

	body := make(map[string]any, len(out))
	for i, p := range m.Output {
		v := out[i]
		switch p.Type.Kind {
		case spec.KindNDArray:
			a, ok := v.(*ndarray.Dense[uint8])
			if !ok {
				return nil, fmt.Errorf("%s: output %q: cannot encode %T as an image", m.Name, p.Name, v)
			}
			s, err := codec.EncodeBase64(a)
			if err != nil {
				return nil, fmt.Errorf("%s: output %q: %w", m.Name, p.Name, err)
			}
			body[p.Name] = s
		default:
			if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
				return nil, fmt.Errorf("%s: output %q: %v has no JSON form", m.Name, p.Name, f)
			}
			body[p.Name] = v
		}
	}
	return body, nil
}
