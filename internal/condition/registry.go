package condition

import (
	"fmt"
	"sort"
	"sync"

	"mtfbot/internal/signal"
)

// RegisterOption configures a single registration.
type RegisterOption func(*registration)

// WithPriority sets the collision priority; the highest priority wins a name
// collision, ties are broken by registration order (first wins).
func WithPriority(p int) RegisterOption {
	return func(r *registration) { r.priority = p }
}

// WithTimeframes restricts the condition to the listed timeframes.
func WithTimeframes(tfs ...string) RegisterOption {
	return func(r *registration) {
		r.timeframes = make(map[string]struct{}, len(tfs))
		for _, tf := range tfs {
			r.timeframes[tf] = struct{}{}
		}
	}
}

// WithSides restricts the condition to the listed sides.
func WithSides(sides ...signal.Side) RegisterOption {
	return func(r *registration) {
		r.sides = make(map[signal.Side]struct{}, len(sides))
		for _, s := range sides {
			r.sides[s] = struct{}{}
		}
	}
}

type registration struct {
	cond       Condition
	priority   int
	seq        int
	timeframes map[string]struct{}
	sides      map[signal.Side]struct{}
}

func (r registration) allows(timeframe string, side signal.Side) bool {
	if len(r.timeframes) > 0 {
		if _, ok := r.timeframes[timeframe]; !ok {
			return false
		}
	}
	if len(r.sides) > 0 {
		if _, ok := r.sides[side]; !ok {
			return false
		}
	}
	return true
}

// Registry maps condition names to evaluators. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	conds map[string]registration
	seq   int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{conds: make(map[string]registration)}
}

// Register adds a condition under its own name. On a name collision the
// higher priority wins; an equal or lower priority leaves the existing
// registration in place.
func (r *Registry) Register(c Condition, opts ...RegisterOption) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	reg := registration{cond: c, seq: r.seq}
	for _, opt := range opts {
		opt(&reg)
	}
	if existing, found := r.conds[c.Name()]; found && existing.priority >= reg.priority {
		return
	}
	r.conds[c.Name()] = reg
}

// Lookup resolves a name; found is false for unregistered conditions.
func (r *Registry) Lookup(name string) (Condition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, found := r.conds[name]
	if !found {
		return nil, false
	}
	return reg.cond, true
}

// Names lists registered condition names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.conds))
	for name := range r.conds {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Has reports whether a name is registered.
func (r *Registry) Has(name string) bool {
	_, found := r.Lookup(name)
	return found
}

// Evaluate resolves and runs one condition by name with panic isolation: a
// panicking predicate yields a failed Result carrying the error payload, so
// one bad indicator never aborts a whole run. A missing name returns a
// NotFoundError alongside the failed result.
func (r *Registry) Evaluate(ctx Context, name string, side signal.Side, overrides map[string]any) (Result, error) {
	r.mu.RLock()
	reg, found := r.conds[name]
	r.mu.RUnlock()
	if !found {
		return Result{Name: name, Passed: false, Meta: map[string]any{"error": true, "not_found": true}},
			&NotFoundError{Name: name}
	}
	if !reg.allows(ctx.Timeframe, side) {
		return Result{
			Name:   name,
			Passed: false,
			Meta:   map[string]any{"restricted": true, "timeframe": ctx.Timeframe, "side": string(side)},
		}, nil
	}

	cond := reg.cond
	if len(overrides) > 0 {
		if p, ok := cond.(Parameterized); ok {
			cond = p.WithOverrides(overrides)
		}
	}
	return safeEvaluate(cond, ctx), nil
}

// EvaluateAll runs every named condition and never aborts midway; per-name
// resolution errors are folded into the returned results.
func (r *Registry) EvaluateAll(ctx Context, names []string, side signal.Side) []Result {
	out := make([]Result, 0, len(names))
	for _, name := range names {
		res, err := r.Evaluate(ctx, name, side, nil)
		if err != nil {
			res.Meta["resolve_error"] = err.Error()
		}
		out = append(out, res)
	}
	return out
}

func safeEvaluate(c Condition, ctx Context) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			res = Result{
				Name:   c.Name(),
				Passed: false,
				Meta: map[string]any{
					"error": true,
					"panic": fmt.Sprintf("%v", rec),
				},
			}
		}
	}()
	res = c.Evaluate(ctx)
	if res.Meta == nil {
		res.Meta = map[string]any{}
	}
	if res.Name == "" {
		res.Name = c.Name()
	}
	return res
}
