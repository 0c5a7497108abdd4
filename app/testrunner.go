package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/artpar/amodule/core/ndarray"
	"github.com/artpar/amodule/core/spec"
	"github.com/artpar/amodule/ports"
)

// CaseResult is the outcome of one specification test case.
type CaseResult struct {
	Index    int
	Inputs   []any
	Passed   bool
	Skipped  bool     // A fixture file is missing
	Failures []string // Output mismatches
	Err      error    // Invocation or fixture error
	Duration time.Duration
}

// TestReport collects the case results of one method.
type TestReport struct {
	Method  string
	Cases   []CaseResult
	Passed  int
	Failed  int
	Skipped int
}

// OK reports whether no case failed.
func (r TestReport) OK() bool {
	return r.Failed == 0
}

// TestRunner executes the test cases declared in the specification.
// File name values of array parameters are read through the codec.
type TestRunner struct {
	detector *Detector
	codec    ports.ImageCodec
	resolve  func(name string) string
	clock    ports.Clock
}

// NewTestRunner creates a test runner. resolve maps fixture file names to
// paths.
func NewTestRunner(d *Detector, codec ports.ImageCodec, resolve func(string) string) *TestRunner {
	return &TestRunner{detector: d, codec: codec, resolve: resolve, clock: d.clock}
}

// Run executes every test case of method. The error is non-nil only when
// the method is unknown.
func (t *TestRunner) Run(ctx context.Context, method string) (TestReport, error) {
	m, ok := t.detector.Spec().Method(method)
	if !ok {
		return TestReport{}, fmt.Errorf("test %q: unknown method", method)
	}

	ctx = WithSource(ctx, "test")
	report := TestReport{Method: method}

	for i, tc := range m.TestCases {
		res := t.runCase(ctx, m, i, tc)
		switch {
		case res.Skipped:
			report.Skipped++
		case res.Passed:
			report.Passed++
		default:
			report.Failed++
		}
		report.Cases = append(report.Cases, res)
	}

	return report, nil
}

// RunAll executes the test cases of every method, in name order.
func (t *TestRunner) RunAll(ctx context.Context) ([]TestReport, error) {
	var reports []TestReport
	for _, name := range t.detector.Spec().MethodNames() {
		r, err := t.Run(ctx, name)
		if err != nil {
			return reports, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

func (t *TestRunner) runCase(ctx context.Context, m spec.MethodSpec, index int, tc spec.TestCase) CaseResult {
	res := CaseResult{Index: index}
	in, want := tc.Split(m)
	res.Inputs = in

	values, err := t.materialize(m.Input, in)
	if err != nil {
		res.Err = err
		res.Skipped = errors.Is(err, fs.ErrNotExist)
		return res
	}

	start := t.clock.Now()
	got, err := t.detector.Invoke(ctx, m.Name, values...)
	res.Duration = t.clock.Now().Sub(start)
	if err != nil {
		res.Err = err
		return res
	}

	for i, p := range m.Output {
		failure, err := t.compare(p, want[i], got[i])
		if err != nil {
			res.Err = err
			res.Skipped = errors.Is(err, fs.ErrNotExist)
			return res
		}
		if failure != "" {
			res.Failures = append(res.Failures, fmt.Sprintf("%s: %s", p.Name, failure))
		}
	}

	res.Passed = len(res.Failures) == 0
	return res
}

// materialize loads file name values of array parameters.
func (t *TestRunner) materialize(params []spec.ParamSpec, in []any) ([]any, error) {
	values := make([]any, len(in))
	for i, v := range in {
		values[i] = v
		if name, ok := v.(string); ok && params[i].Type.Kind == spec.KindNDArray {
			a, err := t.codec.ReadFile(t.resolve(name))
			if err != nil {
				return nil, fmt.Errorf("input %q: %w", params[i].Name, err)
			}
			values[i] = a
		}
	}
	return values, nil
}

// compare returns a description of the mismatch between want and got, or
// "" when they agree.
func (t *TestRunner) compare(p spec.ParamSpec, want, got any) (string, error) {
	if p.Type.Kind == spec.KindNDArray {
		name, ok := want.(string)
		if !ok {
			return fmt.Sprintf("expected value %v is not a file name", want), nil
		}
		expected, err := t.codec.ReadFile(t.resolve(name))
		if err != nil {
			return "", fmt.Errorf("output %q: %w", p.Name, err)
		}
		actual, ok := got.(*ndarray.Dense[uint8])
		if !ok {
			return fmt.Sprintf("got %T, want a uint8 array", got), nil
		}
		if !actual.Equal(expected) {
			return fmt.Sprintf("array %s differs from %s %s", actual, name, expected), nil
		}
		return "", nil
	}

	w, wok := asFloat(want)
	g, gok := asFloat(got)
	if !wok || !gok || w != g {
		return fmt.Sprintf("got %v, want %v", got, want), nil
	}
	return "", nil
}
