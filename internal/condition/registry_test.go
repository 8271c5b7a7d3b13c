package condition

import (
	"errors"
	"testing"

	"mtfbot/internal/signal"
)

type stubCondition struct {
	name   string
	passed bool
	panics bool
}

func (s stubCondition) Name() string { return s.name }

func (s stubCondition) Evaluate(Context) Result {
	if s.panics {
		panic("indicator blew up")
	}
	return Result{Name: s.name, Passed: s.passed, Meta: map[string]any{}}
}

func TestRegistryPriorityResolvesCollisions(t *testing.T) {
	reg := NewRegistry()
	reg.Register(stubCondition{name: "x", passed: false}, WithPriority(1))
	reg.Register(stubCondition{name: "x", passed: true}, WithPriority(5))
	reg.Register(stubCondition{name: "x", passed: false}, WithPriority(5)) // tie: first wins

	res, err := reg.Evaluate(Context{}, "x", signal.Long, nil)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if !res.Passed {
		t.Fatalf("expected highest-priority registration to win")
	}
}

func TestRegistryUnknownName(t *testing.T) {
	reg := NewRegistry()
	res, err := reg.Evaluate(Context{}, "ghost", signal.Long, nil)
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if res.Passed {
		t.Fatalf("unknown condition must not pass")
	}
	if res.Meta["not_found"] != true {
		t.Fatalf("expected not_found meta, got %+v", res.Meta)
	}
}

func TestRegistryIsolatesPanics(t *testing.T) {
	reg := NewRegistry()
	reg.Register(stubCondition{name: "boom", panics: true})

	res, err := reg.Evaluate(Context{}, "boom", signal.Long, nil)
	if err != nil {
		t.Fatalf("panic must not surface as error: %v", err)
	}
	if res.Passed {
		t.Fatalf("panicking condition must fail")
	}
	if res.Meta["error"] != true {
		t.Fatalf("expected error meta, got %+v", res.Meta)
	}
	if res.Meta["panic"] != "indicator blew up" {
		t.Fatalf("expected panic payload, got %+v", res.Meta)
	}
}

func TestRegistryRestrictions(t *testing.T) {
	reg := NewRegistry()
	reg.Register(stubCondition{name: "long_only", passed: true}, WithSides(signal.Long))
	reg.Register(stubCondition{name: "h4_only", passed: true}, WithTimeframes("4h"))

	res, err := reg.Evaluate(Context{Timeframe: "15m"}, "long_only", signal.Short, nil)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if res.Passed || res.Meta["restricted"] != true {
		t.Fatalf("side-restricted condition evaluated off-side: %+v", res)
	}

	res, _ = reg.Evaluate(Context{Timeframe: "15m"}, "h4_only", signal.Long, nil)
	if res.Passed {
		t.Fatalf("timeframe-restricted condition evaluated off-timeframe")
	}
	res, _ = reg.Evaluate(Context{Timeframe: "4h"}, "h4_only", signal.Long, nil)
	if !res.Passed {
		t.Fatalf("expected pass on allowed timeframe")
	}
}

func TestEvaluateAllNeverAborts(t *testing.T) {
	reg := NewRegistry()
	reg.Register(stubCondition{name: "ok", passed: true})
	reg.Register(stubCondition{name: "boom", panics: true})

	results := reg.EvaluateAll(Context{}, []string{"ok", "missing", "boom"}, signal.Long)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].Passed || results[1].Passed || results[2].Passed {
		t.Fatalf("unexpected outcomes: %+v", results)
	}
	if results[1].Meta["resolve_error"] == nil {
		t.Fatalf("expected resolve_error meta for missing condition")
	}
}
