// Package condition implements named, independently testable predicates over
// indicator state, a registry resolving them by name, and a declarative rule
// tree combining them with all_of/any_of semantics.
package condition

import (
	"fmt"

	"mtfbot/internal/indicator"
)

// Context is the evaluation input for a single symbol and timeframe. Series
// and Scalars are the indicator values computed from the kline window before
// evaluation starts; conditions never fetch data themselves.
type Context struct {
	Symbol    string
	Timeframe string
	Series    map[string][]float64
	Scalars   map[string]float64
	Klines    []indicator.Kline
}

// SeriesTail returns the last n values of a named series. ok is false when
// the series is missing or shorter than n.
func (c Context) SeriesTail(name string, n int) ([]float64, bool) {
	s, found := c.Series[name]
	if !found || len(s) < n {
		return nil, false
	}
	return s[len(s)-n:], true
}

// Scalar returns a named scalar, falling back to the tail of a series of the
// same name.
func (c Context) Scalar(name string) (float64, bool) {
	if v, found := c.Scalars[name]; found {
		return v, true
	}
	if s, found := c.Series[name]; found && len(s) > 0 {
		return s[len(s)-1], true
	}
	return 0, false
}

// Result is the outcome of evaluating one condition. Meta is always
// populated, on failure paths included, so diagnostics survive a failed run.
type Result struct {
	Name      string
	Passed    bool
	Value     float64
	Threshold float64
	Meta      map[string]any
}

// Condition is a named boolean predicate over an evaluation context.
type Condition interface {
	Name() string
	Evaluate(ctx Context) Result
}

// Parameterized is implemented by conditions whose thresholds can be
// overridden per rule reference without re-registering.
type Parameterized interface {
	Condition
	WithOverrides(overrides map[string]any) Condition
}

// NotFoundError reports a rule referencing a condition absent from the
// registry. It is a configuration error and must surface, never be treated
// as a silent pass or fail.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("condition %q is not registered", e.Name)
}

// missingData builds the standard failure result for absent or short series.
func missingData(name, field string, available int) Result {
	return Result{
		Name:   name,
		Passed: false,
		Meta: map[string]any{
			"missing_data":     true,
			"series_used":      field,
			"available_points": available,
		},
	}
}
