package condition

import (
	"fmt"
	"math"
)

// windowed is the shared shape behind the increasing/decreasing templates:
// the last n values of a series must move in one direction within tolerance.
type windowed struct {
	name      string
	field     string
	n         int
	strict    bool
	eps       float64
	direction float64 // +1 increasing, -1 decreasing
}

// Increasing builds a condition passing iff the last n values of field are
// strictly (or non-strictly, per strict) increasing within tolerance eps.
func Increasing(field string, n int, strict bool, eps float64) Condition {
	return windowed{
		name:      fmt.Sprintf("increasing(%s,%d)", field, n),
		field:     field,
		n:         n,
		strict:    strict,
		eps:       eps,
		direction: 1,
	}
}

// Decreasing is the mirrored template.
func Decreasing(field string, n int, strict bool, eps float64) Condition {
	return windowed{
		name:      fmt.Sprintf("decreasing(%s,%d)", field, n),
		field:     field,
		n:         n,
		strict:    strict,
		eps:       eps,
		direction: -1,
	}
}

func (w windowed) Name() string { return w.name }

func (w windowed) WithOverrides(overrides map[string]any) Condition {
	out := w
	if v, ok := asString(overrides["field"]); ok {
		out.field = v
	}
	if v, ok := asInt(overrides["n"]); ok {
		out.n = v
	}
	if v, ok := overrides["strict"].(bool); ok {
		out.strict = v
	}
	if v, ok := asFloat(overrides["eps"]); ok {
		out.eps = v
	}
	return out
}

func (w windowed) Evaluate(ctx Context) Result {
	available := len(ctx.Series[w.field])
	tail, ok := ctx.SeriesTail(w.field, w.n)
	if !ok || w.n < 2 {
		return missingData(w.name, w.field, available)
	}

	passed := true
	for i := 1; i < len(tail); i++ {
		step := (tail[i] - tail[i-1]) * w.direction
		if w.strict {
			if step <= w.eps {
				passed = false
				break
			}
		} else if step < -w.eps {
			passed = false
			break
		}
	}
	return Result{
		Name:   w.name,
		Passed: passed,
		Value:  tail[len(tail)-1],
		Meta: map[string]any{
			"series_used":      w.field,
			"available_points": available,
			"window":           w.n,
			"strict":           w.strict,
			"eps":              w.eps,
		},
	}
}

// threshold compares the latest value of a field against a bound.
type threshold struct {
	name  string
	field string
	bound float64
	above bool
}

// Above builds a condition passing when field's latest value exceeds bound.
func Above(name, field string, bound float64) Condition {
	return threshold{name: name, field: field, bound: bound, above: true}
}

// Below is the mirrored comparator.
func Below(name, field string, bound float64) Condition {
	return threshold{name: name, field: field, bound: bound, above: false}
}

func (t threshold) Name() string { return t.name }

func (t threshold) WithOverrides(overrides map[string]any) Condition {
	out := t
	if v, ok := asFloat(overrides["threshold"]); ok {
		out.bound = v
	}
	if v, ok := asString(overrides["field"]); ok {
		out.field = v
	}
	return out
}

func (t threshold) Evaluate(ctx Context) Result {
	value, ok := ctx.Scalar(t.field)
	if !ok {
		return missingData(t.name, t.field, len(ctx.Series[t.field]))
	}
	passed := value > t.bound
	if !t.above {
		passed = value < t.bound
	}
	return Result{
		Name:      t.name,
		Passed:    passed,
		Value:     value,
		Threshold: t.bound,
		Meta:      map[string]any{"series_used": t.field},
	}
}

// Rename exposes a condition under a different registry name, keeping any
// override support of the wrapped condition.
func Rename(c Condition, name string) Condition {
	return renamed{inner: c, name: name}
}

type renamed struct {
	inner Condition
	name  string
}

func (r renamed) Name() string { return r.name }

func (r renamed) Evaluate(ctx Context) Result {
	res := r.inner.Evaluate(ctx)
	res.Name = r.name
	return res
}

func (r renamed) WithOverrides(overrides map[string]any) Condition {
	if p, ok := r.inner.(Parameterized); ok {
		return renamed{inner: p.WithOverrides(overrides), name: r.name}
	}
	return r
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		if x == math.Trunc(x) {
			return int(x), true
		}
		return 0, false
	default:
		return 0, false
	}
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}
