package cascade

import (
	"fmt"

	"github.com/rs/zerolog"

	"mtfbot/internal/condition"
	"mtfbot/internal/indicator"
	"mtfbot/internal/metrics"
	"mtfbot/internal/signal"
)

// SideEvaluator validates one side of one timeframe. The indirection exists
// so validator tests can count exactly which timeframes were consulted.
type SideEvaluator interface {
	EvaluateSide(symbol, timeframe string, klines []indicator.Kline, side signal.Side) ValidationResult
}

// RuleEvaluator is the production SideEvaluator: it builds the indicator
// context and runs the configured rule tree for the requested side.
type RuleEvaluator struct {
	Registry *condition.Registry
	Rules    map[string]Rules
	Log      zerolog.Logger
}

// EvaluateSide implements SideEvaluator. A timeframe without rules for the
// side fails closed; an unregistered condition reference surfaces in the
// reason (configuration error, not a market condition).
func (e *RuleEvaluator) EvaluateSide(symbol, timeframe string, klines []indicator.Kline, side signal.Side) ValidationResult {
	rules, found := e.Rules[timeframe]
	if !found {
		return ValidationResult{Reason: fmt.Sprintf("no rules configured for %s", timeframe)}
	}
	var node condition.Node
	switch side {
	case signal.Long:
		node = rules.Long
	case signal.Short:
		node = rules.Short
	}
	if node == nil {
		return ValidationResult{Reason: fmt.Sprintf("no %s rules for %s", side, timeframe)}
	}

	ctx := BuildContext(symbol, timeframe, klines)
	tree, err := node.Eval(e.Registry, ctx, side)
	if err != nil {
		e.Log.Error().Err(err).Str("symbol", symbol).Str("timeframe", timeframe).Msg("rule configuration error")
		return ValidationResult{
			Conditions: tree.Conditions,
			Reason:     err.Error(),
		}
	}
	return ValidationResult{Passed: tree.Passed, Conditions: tree.Conditions, Reason: tree.Reason}
}

// Validator runs the multi-timeframe cascade for one symbol at a time.
type Validator struct {
	cfg  Config
	eval SideEvaluator
	log  zerolog.Logger
}

// NewValidator builds a validator over the given evaluation backend.
func NewValidator(cfg Config, eval SideEvaluator, log zerolog.Logger) *Validator {
	return &Validator{cfg: cfg, eval: eval, log: log}
}

// Validate runs the cascade. Context timeframes are evaluated coarsest
// first and must all agree on one side (unless skipped); the first execution
// timeframe matching the context side wins and finer ones are not consulted.
func (v *Validator) Validate(in Input) Decision {
	dec := Decision{
		Symbol:       in.Symbol,
		State:        StatePending,
		Side:         signal.None,
		ContextSides: make(map[string]signal.Side),
	}

	if in.ForceTimeframe != "" {
		return v.validateSingle(in, dec)
	}

	contextSide := signal.None
	if !in.SkipContext {
		for _, tf := range v.cfg.ContextTimeframes {
			side := v.sideFor(in, tf, signal.None)
			dec.ContextSides[tf] = side
			if side == signal.None || (contextSide != signal.None && side != contextSide) {
				dec.State = StateNoContext
				dec.Reason = fmt.Sprintf("context disagreement at %s: %v", tf, dec.ContextSides)
				v.log.Debug().Str("symbol", in.Symbol).Str("timeframe", tf).Msg("context timeframes disagree")
				metrics.CascadeOutcomes.WithLabelValues(string(StateNoContext)).Inc()
				return dec
			}
			contextSide = side
		}
	}

	for _, tf := range v.cfg.ExecutionTimeframes {
		side := v.sideFor(in, tf, contextSide)
		if side == signal.None {
			continue
		}
		if contextSide != signal.None && side != contextSide {
			continue
		}
		dec.State = StateTradable
		dec.Tradable = true
		dec.Side = side
		dec.ExecutionTimeframe = tf
		dec.Reason = fmt.Sprintf("%s confirmed %s entry", tf, side)
		metrics.CascadeOutcomes.WithLabelValues(string(StateTradable)).Inc()
		return dec
	}

	dec.State = StateNotReady
	dec.Reason = "no execution timeframe confirmed an entry"
	metrics.CascadeOutcomes.WithLabelValues(string(StateNotReady)).Inc()
	return dec
}

// validateSingle handles the ForceTimeframe mode used by incremental
// streaming updates: only the named timeframe is evaluated.
func (v *Validator) validateSingle(in Input, dec Decision) Decision {
	tf := in.ForceTimeframe
	side := v.sideFor(in, tf, signal.None)
	if side == signal.None {
		dec.State = StateNotReady
		dec.Reason = fmt.Sprintf("%s did not confirm either side", tf)
		metrics.CascadeOutcomes.WithLabelValues(string(StateNotReady)).Inc()
		return dec
	}
	dec.State = StateTradable
	dec.Tradable = true
	dec.Side = side
	dec.ExecutionTimeframe = tf
	dec.Reason = fmt.Sprintf("%s confirmed %s entry (single-timeframe)", tf, side)
	metrics.CascadeOutcomes.WithLabelValues(string(StateTradable)).Inc()
	return dec
}

// sideFor resolves one timeframe's side. With a known context side only that
// side is evaluated; otherwise long runs first and an ambiguous both-sides
// pass resolves to no side.
func (v *Validator) sideFor(in Input, tf string, want signal.Side) signal.Side {
	klines := in.Klines[tf]

	if want.Valid() {
		if v.eval.EvaluateSide(in.Symbol, tf, klines, want).Passed {
			return want
		}
		return signal.None
	}

	long := v.eval.EvaluateSide(in.Symbol, tf, klines, signal.Long)
	short := v.eval.EvaluateSide(in.Symbol, tf, klines, signal.Short)
	switch {
	case long.Passed && short.Passed:
		v.log.Warn().Str("symbol", in.Symbol).Str("timeframe", tf).Msg("both sides validated, treating as no bias")
		return signal.None
	case long.Passed:
		return signal.Long
	case short.Passed:
		return signal.Short
	default:
		return signal.None
	}
}
