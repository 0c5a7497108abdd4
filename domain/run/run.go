// Package run records invocations of module methods.
package run

import (
	"errors"
	"time"

	"github.com/artpar/amodule/core/contract"
	"github.com/artpar/amodule/core/spec"
)

// Status is the outcome of an invocation.
type Status string

const (
	StatusOK          Status = "ok"
	StatusInputError  Status = "input_error"  // Caller passed values violating the contract
	StatusOutputError Status = "output_error" // Implementation returned values violating the contract
	StatusError       Status = "error"        // Any other failure
)

// Run is a single invocation of a method.
type Run struct {
	ID     string
	Method string
	Status Status

	// Outputs holds the scalar outputs by parameter name. Arrays are not kept.
	Outputs map[string]any

	Error     string
	Source    string // "http", "cli", "test"
	StartedAt time.Time
	Duration  time.Duration
}

// StatusOf classifies an invocation error.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	if errors.Is(err, contract.ErrUnknownMethod) {
		return StatusInputError
	}
	if dir, ok := contract.Direction(err); ok {
		if dir == spec.Output {
			return StatusOutputError
		}
		return StatusInputError
	}
	return StatusError
}

// Summary aggregates runs by status.
type Summary struct {
	Total    int            `json:"total"`
	ByStatus map[Status]int `json:"by_status"`
	ByMethod map[string]int `json:"by_method"`

	// MeanDuration is over all runs in the summary.
	MeanDuration time.Duration `json:"mean_duration_ns"`
}

// Summarize aggregates a list of runs. This is a PURE function.
func Summarize(runs []Run) Summary {
	s := Summary{
		ByStatus: make(map[Status]int),
		ByMethod: make(map[string]int),
	}
	var total time.Duration
	for _, r := range runs {
		s.Total++
		s.ByStatus[r.Status]++
		s.ByMethod[r.Method]++
		total += r.Duration
	}
	if s.Total > 0 {
		s.MeanDuration = total / time.Duration(s.Total)
	}
	return s
}
