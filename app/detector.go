// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/artpar/amodule/core/contract"
	"github.com/artpar/amodule/core/ndarray"
	"github.com/artpar/amodule/core/spec"
	"github.com/artpar/amodule/domain/run"
	"github.com/artpar/amodule/domain/segment"
	"github.com/artpar/amodule/ports"
	"github.com/rs/zerolog"
)

// ErrNotImplemented is returned for methods the specification declares but
// the detector has no implementation for.
var ErrNotImplemented = errors.New("method not implemented")

// MethodFunc implements one specification method. Values have already
// passed input validation; the returned outputs are validated afterwards.
type MethodFunc func(ctx context.Context, values []any) ([]any, error)

// Detector runs the module's methods behind the specification contract.
type Detector struct {
	spec     *spec.Specification
	methods  map[string]MethodFunc
	runs     ports.RunStore
	observer ports.Observer
	clock    ports.Clock
	idGen    ports.IDGenerator
	logger   zerolog.Logger
}

// DetectorDeps contains dependencies for Detector.
// Runs and Observer are optional.
type DetectorDeps struct {
	Spec     *spec.Specification
	Runs     ports.RunStore
	Observer ports.Observer
	Clock    ports.Clock
	IDGen    ports.IDGenerator
	Logger   zerolog.Logger
}

// NewDetector creates a detector. The specification must declare every
// method the detector implements.
func NewDetector(deps DetectorDeps) (*Detector, error) {
	if deps.Spec == nil {
		return nil, fmt.Errorf("detector: specification is required")
	}
	if deps.Clock == nil || deps.IDGen == nil {
		return nil, fmt.Errorf("detector: clock and id generator are required")
	}

	d := &Detector{
		spec:     deps.Spec,
		runs:     deps.Runs,
		observer: deps.Observer,
		clock:    deps.Clock,
		idGen:    deps.IDGen,
		logger:   deps.Logger,
	}
	d.methods = map[string]MethodFunc{
		"process": d.process,
	}

	for name := range d.methods {
		if _, ok := d.spec.Method(name); !ok {
			return nil, fmt.Errorf("detector: specification %q does not declare method %q", d.spec.Module.Name, name)
		}
	}

	return d, nil
}

// Register installs or replaces the implementation of a declared method.
// It must not be called concurrently with Invoke.
func (d *Detector) Register(name string, fn MethodFunc) error {
	if _, ok := d.spec.Method(name); !ok {
		return &contract.UnknownMethodError{Method: name}
	}
	d.methods[name] = fn
	return nil
}

// Spec returns the specification the detector enforces.
func (d *Detector) Spec() *spec.Specification {
	return d.spec
}

// Name returns the module name.
func (d *Detector) Name() string {
	return d.spec.Module.Name
}

// Process segments the bright pixels of an (h, w, 3) image.
func (d *Detector) Process(ctx context.Context, image *ndarray.Dense[uint8], threshold int) (*ndarray.Dense[uint8], int, error) {
	out, err := d.Invoke(ctx, "process", image, threshold)
	if err != nil {
		return nil, 0, err
	}
	mask, _ := out[0].(*ndarray.Dense[uint8])
	n, _ := asInt(out[1])
	return mask, n, nil
}

func (d *Detector) process(_ context.Context, values []any) ([]any, error) {
	image, ok := values[0].(*ndarray.Dense[uint8])
	if !ok {
		return nil, fmt.Errorf("process: image must be a dense uint8 array, got %T", values[0])
	}
	// The contract leaves the leading slots unconstrained, so a rank 2
	// array can pass validation. Segmentation needs (h, w, c).
	if shape := image.Shape(); len(shape) != 3 || shape[2] == 0 {
		return nil, d.inputError("process", 0, "ndarray "+image.String(),
			fmt.Sprintf("segmentation needs shape (h, w, c) with c > 0, got %s", ndarray.FormatShape(shape)))
	}
	threshold, ok := asInt(values[1])
	if !ok {
		return nil, d.inputError("process", 1, fmt.Sprintf("%T(%v)", values[1], values[1]), "threshold is out of range")
	}

	mask, n, err := segment.Segment(image, threshold)
	if err != nil {
		return nil, err
	}
	return []any{mask, n}, nil
}

// inputError reports a value the implementation cannot handle even though
// it satisfied the contract. It is attributed to the caller.
func (d *Detector) inputError(method string, index int, observed, reason string) error {
	e := &contract.TypeMismatchError{
		Method:    method,
		Direction: spec.Input,
		Observed:  observed,
		Reason:    reason,
	}
	if m, ok := d.spec.Method(method); ok && index < len(m.Input) {
		e.Param = m.Input[index].Name
		e.Expected = m.Input[index].Type.String()
	}
	return e
}

// Invoke runs a method by name with positional values. Inputs are checked
// before the implementation runs and outputs after it returns. Every call
// is recorded as a run.
func (d *Detector) Invoke(ctx context.Context, method string, values ...any) ([]any, error) {
	start := d.clock.Now()
	out, err := d.invoke(ctx, method, values)

	r := run.Run{
		ID:        d.idGen.New(),
		Method:    method,
		Status:    run.StatusOf(err),
		Source:    SourceFrom(ctx),
		StartedAt: start,
		Duration:  d.clock.Now().Sub(start),
	}
	if err != nil {
		r.Error = err.Error()
	} else {
		r.Outputs = d.scalarOutputs(method, out)
	}
	d.record(ctx, r)

	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Detector) invoke(ctx context.Context, method string, values []any) ([]any, error) {
	if err := d.check(method, spec.Input, values); err != nil {
		return nil, err
	}

	impl, ok := d.methods[method]
	if !ok {
		return nil, fmt.Errorf("%s: %w", method, ErrNotImplemented)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := impl(ctx, values)
	if err != nil {
		return nil, err
	}

	if err := d.check(method, spec.Output, out); err != nil {
		d.logger.Error().Err(err).Str("method", method).Msg("implementation violated output contract")
		return nil, err
	}
	return out, nil
}

func (d *Detector) check(method string, dir spec.Direction, values []any) error {
	err := contract.Validate(d.spec, method, dir, values...)
	if errors.Is(err, contract.ErrUnknownMethod) {
		return err
	}
	if d.observer != nil {
		d.observer.Validated(method, string(dir), err == nil)
	}
	return err
}

func (d *Detector) scalarOutputs(method string, out []any) map[string]any {
	m, _ := d.spec.Method(method)
	scalars := make(map[string]any)
	for i, p := range m.Output {
		if i < len(out) && p.Type.Kind == spec.KindNumeric {
			scalars[p.Name] = out[i]
		}
	}
	return scalars
}

func (d *Detector) record(ctx context.Context, r run.Run) {
	if d.observer != nil {
		d.observer.Invoked(r.Method, r.Status, r.Duration)
	}

	d.logger.Debug().
		Str("run_id", r.ID).
		Str("method", r.Method).
		Str("status", string(r.Status)).
		Dur("duration", r.Duration).
		Msg("method invoked")

	if d.runs == nil {
		return
	}
	// Record even when the caller has gone away.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.runs.Save(saveCtx, r); err != nil {
		d.logger.Warn().Err(err).Str("run_id", r.ID).Msg("failed to record run")
	}
}

type sourceKey struct{}

// WithSource tags invocations made with ctx, e.g. "http" or "cli".
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

// SourceFrom returns the source set by WithSource, or "api".
func SourceFrom(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok && s != "" {
		return s
	}
	return "api"
}

// asInt converts any Go integer to int.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		if n < math.MinInt || n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case uint:
		if n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		if n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

// asFloat converts any Go number to float64.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	if i, ok := asInt(v); ok {
		return float64(i), true
	}
	return 0, false
}
