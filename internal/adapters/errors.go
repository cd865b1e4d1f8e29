package adapters

import (
	"fmt"
	"math"
)

// ModelAdapterError marks a transient failure from a model adapter.
// The pipeline logs it as a fail entry, does not advance state, and
// leaves the step eligible for retry. Timeouts are wrapped here too;
// an expired call is never treated as a rejection.
type ModelAdapterError struct {
	Adapter string
	Err     error
}

func (e *ModelAdapterError) Error() string {
	return fmt.Sprintf("%s adapter: %v", e.Adapter, e.Err)
}

func (e *ModelAdapterError) Unwrap() error { return e.Err }

// adapterErr wraps err as a ModelAdapterError for the named adapter.
func adapterErr(adapter string, err error) error {
	return &ModelAdapterError{Adapter: adapter, Err: err}
}

// ValidationError marks a malformed or out-of-range score from an
// adapter. The axis is then treated as absent, never coerced to zero.
type ValidationError struct {
	Adapter string
	Value   float64
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s adapter returned out-of-range score %v", e.Adapter, e.Value)
}

// ValidateScore checks an adapter-produced score. On success it
// returns the score as a present axis; otherwise nil and a
// ValidationError.
func ValidateScore(adapter string, v float64) (*float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 1 {
		return nil, &ValidationError{Adapter: adapter, Value: v}
	}
	return &v, nil
}
