package cascade

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtfbot/internal/indicator"
	"mtfbot/internal/signal"
)

// scriptedEvaluator returns pre-configured sides per timeframe and records
// every evaluation call so tests can assert which timeframes were consulted.
type scriptedEvaluator struct {
	sides map[string]signal.Side // timeframe -> validated side
	calls map[string]int
}

func newScripted(sides map[string]signal.Side) *scriptedEvaluator {
	return &scriptedEvaluator{sides: sides, calls: make(map[string]int)}
}

func (s *scriptedEvaluator) EvaluateSide(symbol, timeframe string, _ []indicator.Kline, side signal.Side) ValidationResult {
	s.calls[timeframe]++
	if s.sides[timeframe] == side {
		return ValidationResult{Passed: true}
	}
	return ValidationResult{Reason: "scripted failure"}
}

func testConfig() Config {
	return Config{
		ContextTimeframes:   []string{"4h", "1h"},
		ExecutionTimeframes: []string{"15m", "5m", "1m"},
	}
}

func TestContextDisagreementStopsCascade(t *testing.T) {
	eval := newScripted(map[string]signal.Side{
		"4h":  signal.Long,
		"1h":  signal.Short,
		"15m": signal.Long,
	})
	v := NewValidator(testConfig(), eval, zerolog.Nop())

	dec := v.Validate(Input{Symbol: "BTCUSDT"})

	require.Equal(t, StateNoContext, dec.State)
	assert.False(t, dec.Tradable)
	assert.Equal(t, signal.None, dec.Side)
	assert.Contains(t, dec.Reason, "disagreement")
	assert.Equal(t, signal.Long, dec.ContextSides["4h"])
	assert.Equal(t, signal.Short, dec.ContextSides["1h"])

	// Execution timeframes must never be consulted after a context veto.
	assert.Zero(t, eval.calls["15m"])
	assert.Zero(t, eval.calls["5m"])
	assert.Zero(t, eval.calls["1m"])
}

func TestFirstExecutionMatchWins(t *testing.T) {
	eval := newScripted(map[string]signal.Side{
		"4h":  signal.Long,
		"1h":  signal.Long,
		"15m": signal.Long,
		"5m":  signal.Long,
	})
	v := NewValidator(testConfig(), eval, zerolog.Nop())

	dec := v.Validate(Input{Symbol: "BTCUSDT"})

	require.Equal(t, StateTradable, dec.State)
	assert.True(t, dec.Tradable)
	assert.Equal(t, signal.Long, dec.Side)
	assert.Equal(t, "15m", dec.ExecutionTimeframe)

	// Finer execution timeframes stay untouched once one matched.
	assert.Equal(t, 1, eval.calls["15m"])
	assert.Zero(t, eval.calls["5m"])
	assert.Zero(t, eval.calls["1m"])
}

func TestExecutionMismatchFallsThrough(t *testing.T) {
	eval := newScripted(map[string]signal.Side{
		"4h": signal.Short,
		"1h": signal.Short,
		"5m": signal.Short,
	})
	v := NewValidator(testConfig(), eval, zerolog.Nop())

	dec := v.Validate(Input{Symbol: "ETHUSDT"})

	require.Equal(t, StateTradable, dec.State)
	assert.Equal(t, signal.Short, dec.Side)
	assert.Equal(t, "5m", dec.ExecutionTimeframe)
	assert.Equal(t, 1, eval.calls["15m"]) // tried, did not match
}

func TestNoExecutionMatchIsNotReady(t *testing.T) {
	eval := newScripted(map[string]signal.Side{
		"4h": signal.Long,
		"1h": signal.Long,
	})
	v := NewValidator(testConfig(), eval, zerolog.Nop())

	dec := v.Validate(Input{Symbol: "BTCUSDT"})

	require.Equal(t, StateNotReady, dec.State)
	assert.False(t, dec.Tradable)
	assert.Equal(t, signal.None, dec.Side)
	assert.Equal(t, "", dec.ExecutionTimeframe)
}

func TestSkipContextEvaluatesExecutionDirectly(t *testing.T) {
	eval := newScripted(map[string]signal.Side{
		"15m": signal.Short,
	})
	v := NewValidator(testConfig(), eval, zerolog.Nop())

	dec := v.Validate(Input{Symbol: "BTCUSDT", SkipContext: true})

	require.Equal(t, StateTradable, dec.State)
	assert.Equal(t, signal.Short, dec.Side)
	assert.Zero(t, eval.calls["4h"])
	assert.Zero(t, eval.calls["1h"])
	assert.Empty(t, dec.ContextSides)
}

func TestForceTimeframeBypassesCascade(t *testing.T) {
	eval := newScripted(map[string]signal.Side{
		"5m": signal.Long,
	})
	v := NewValidator(testConfig(), eval, zerolog.Nop())

	dec := v.Validate(Input{Symbol: "BTCUSDT", ForceTimeframe: "5m"})

	require.Equal(t, StateTradable, dec.State)
	assert.Equal(t, "5m", dec.ExecutionTimeframe)
	assert.Equal(t, 2, eval.calls["5m"]) // long then short probe
	assert.Len(t, eval.calls, 1)
}

func TestAmbiguousBothSidesYieldsNoBias(t *testing.T) {
	// Evaluator that passes both directions on 4h.
	eval := &bothSidesEvaluator{}
	v := NewValidator(testConfig(), eval, zerolog.Nop())

	dec := v.Validate(Input{Symbol: "BTCUSDT"})
	require.Equal(t, StateNoContext, dec.State)
	assert.Equal(t, signal.None, dec.ContextSides["4h"])
}

type bothSidesEvaluator struct{}

func (bothSidesEvaluator) EvaluateSide(string, string, []indicator.Kline, signal.Side) ValidationResult {
	return ValidationResult{Passed: true}
}
