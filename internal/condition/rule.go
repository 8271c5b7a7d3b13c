package condition

import (
	"fmt"
	"strings"

	"mtfbot/internal/signal"
)

// Node is one vertex of a declarative rule tree.
type Node interface {
	// Eval runs the subtree against ctx. Child diagnostics are collected
	// even after the combinator's outcome is already decided. A non-nil
	// error means a configuration problem (unregistered condition) and
	// must surface to the caller.
	Eval(reg *Registry, ctx Context, side signal.Side) (TreeResult, error)
}

// TreeResult is the outcome of one subtree with per-condition diagnostics
// flattened in evaluation order.
type TreeResult struct {
	Passed     bool
	Reason     string
	Conditions []Result
}

// Leaf references a registered condition by name, with optional parameter
// overrides.
type Leaf struct {
	Name      string
	Overrides map[string]any
}

// Eval resolves and runs the referenced condition.
func (l Leaf) Eval(reg *Registry, ctx Context, side signal.Side) (TreeResult, error) {
	res, err := reg.Evaluate(ctx, l.Name, side, l.Overrides)
	if err != nil {
		return TreeResult{Conditions: []Result{res}}, err
	}
	reason := ""
	if !res.Passed {
		reason = fmt.Sprintf("%s failed (value=%v threshold=%v)", res.Name, res.Value, res.Threshold)
	}
	return TreeResult{Passed: res.Passed, Reason: reason, Conditions: []Result{res}}, nil
}

// AllOf passes when every child passes. The first failing child sets the
// reason, but the remaining children still run for diagnostics.
type AllOf struct {
	Children []Node
}

// Eval implements Node.
func (a AllOf) Eval(reg *Registry, ctx Context, side signal.Side) (TreeResult, error) {
	out := TreeResult{Passed: true}
	var firstErr error
	for _, child := range a.Children {
		res, err := child.Eval(reg, ctx, side)
		out.Conditions = append(out.Conditions, res.Conditions...)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if !res.Passed && out.Passed {
			out.Passed = false
			out.Reason = res.Reason
		}
	}
	if len(a.Children) == 0 {
		out.Passed = false
		out.Reason = "all_of has no children"
	}
	return out, firstErr
}

// AnyOf passes when at least one child passes.
type AnyOf struct {
	Children []Node
}

// Eval implements Node.
func (a AnyOf) Eval(reg *Registry, ctx Context, side signal.Side) (TreeResult, error) {
	out := TreeResult{}
	var firstErr error
	var failures []string
	for _, child := range a.Children {
		res, err := child.Eval(reg, ctx, side)
		out.Conditions = append(out.Conditions, res.Conditions...)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if res.Passed {
			out.Passed = true
		} else if res.Reason != "" {
			failures = append(failures, res.Reason)
		}
	}
	if !out.Passed {
		out.Reason = "no alternative passed"
		if len(failures) > 0 {
			out.Reason = "no alternative passed: " + strings.Join(failures, "; ")
		}
	}
	return out, firstErr
}

// Validate walks a rule tree and reports every condition reference the
// registry cannot resolve. Used to reject unknown names at load time rather
// than at evaluation time.
func Validate(reg *Registry, node Node) error {
	var missing []string
	walk(node, func(l Leaf) {
		if !reg.Has(l.Name) {
			missing = append(missing, l.Name)
		}
	})
	if len(missing) > 0 {
		return &NotFoundError{Name: strings.Join(missing, ", ")}
	}
	return nil
}

func walk(node Node, visit func(Leaf)) {
	switch n := node.(type) {
	case Leaf:
		visit(n)
	case AllOf:
		for _, c := range n.Children {
			walk(c, visit)
		}
	case AnyOf:
		for _, c := range n.Children {
			walk(c, visit)
		}
	}
}
