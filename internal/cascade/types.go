// Package cascade orchestrates condition evaluation across timeframes:
// coarse context timeframes must agree on a directional bias before the
// finer execution timeframes are consulted for entry timing. Validation is a
// pure function of the symbol's kline windows and the rule configuration;
// all I/O happens before it runs.
package cascade

import (
	"mtfbot/internal/condition"
	"mtfbot/internal/indicator"
	"mtfbot/internal/signal"
)

// State is the validator's terminal (or initial) state for one symbol run.
type State string

const (
	StatePending   State = "PENDING"
	StateNoContext State = "NO_CONTEXT"
	StateTradable  State = "TRADABLE"
	StateNotReady  State = "NOT_READY"
)

// ValidationResult is the outcome of one timeframe and side: the boolean
// combination of its configured condition set plus per-condition
// diagnostics.
type ValidationResult struct {
	Passed     bool
	Conditions []condition.Result
	Reason     string
}

// Decision is the per-symbol tradability verdict.
type Decision struct {
	Symbol             string
	State              State
	Tradable           bool
	Side               signal.Side
	ExecutionTimeframe string
	ContextSides       map[string]signal.Side
	Reason             string
}

// Rules holds the directional rule trees for one timeframe.
type Rules struct {
	Long  condition.Node
	Short condition.Node
}

// Config fixes evaluation order: both lists are ordered coarsest first.
type Config struct {
	ContextTimeframes   []string
	ExecutionTimeframes []string
	Rules               map[string]Rules
}

// Input is everything one validation run consumes.
type Input struct {
	Symbol string
	// Klines maps timeframe to its window, bars ordered oldest to newest.
	Klines map[string][]indicator.Kline
	// SkipContext bypasses the context-agreement gate.
	SkipContext bool
	// ForceTimeframe restricts the run to a single named timeframe,
	// bypassing the multi-timeframe loop (incremental updates).
	ForceTimeframe string
}
