package condition

import (
	"math"

	"mtfbot/internal/signal"
)

// Standard context keys populated by the cascade's indicator build.
const (
	FieldClose      = "close"
	FieldRSI        = "rsi"
	FieldADX        = "adx"
	FieldEMAFast    = "ema_fast"
	FieldEMASlow    = "ema_slow"
	FieldMACDHist   = "macd_hist_series"
	FieldOBV        = "obv"
	FieldVWAP       = "vwap"
	FieldATR        = "atr"
	FieldSenkouA    = "senkou_a"
	FieldSenkouB    = "senkou_b"
	FieldTenkan     = "tenkan"
	FieldKijun      = "kijun"
)

// funcCondition lifts a closure into the Condition interface for the native
// cross-field predicates that do not fit a template.
type funcCondition struct {
	name string
	fn   func(Context) Result
}

func (f funcCondition) Name() string              { return f.name }
func (f funcCondition) Evaluate(c Context) Result { return f.fn(c) }

// compareScalars builds a predicate on the sign of left minus right.
func compareScalars(name, left, right string, wantAbove bool) Condition {
	return funcCondition{name: name, fn: func(ctx Context) Result {
		lv, lok := ctx.Scalar(left)
		rv, rok := ctx.Scalar(right)
		if !lok || !rok {
			missing := left
			if lok {
				missing = right
			}
			return missingData(name, missing, len(ctx.Series[missing]))
		}
		passed := lv > rv
		if !wantAbove {
			passed = lv < rv
		}
		return Result{
			Name:      name,
			Passed:    passed,
			Value:     lv,
			Threshold: rv,
			Meta:      map[string]any{"series_used": left + "," + right},
		}
	}}
}

func ichimokuCloud(name string, bullish bool) Condition {
	return funcCondition{name: name, fn: func(ctx Context) Result {
		closePx, cok := ctx.Scalar(FieldClose)
		a, aok := ctx.Scalar(FieldSenkouA)
		b, bok := ctx.Scalar(FieldSenkouB)
		if !cok || !aok || !bok {
			return missingData(name, FieldSenkouA, 0)
		}
		var passed bool
		var bound float64
		if bullish {
			bound = math.Max(a, b)
			passed = closePx > bound
		} else {
			bound = math.Min(a, b)
			passed = closePx < bound
		}
		return Result{
			Name:      name,
			Passed:    passed,
			Value:     closePx,
			Threshold: bound,
			Meta:      map[string]any{"senkou_a": a, "senkou_b": b},
		}
	}}
}

// RegisterBuiltins installs the native condition set used by the default
// rule files. Side restrictions keep directional predicates off the wrong
// rule lists; thresholds are per-reference overridable.
func RegisterBuiltins(reg *Registry) {
	reg.Register(Below("rsi_oversold", FieldRSI, 30), WithSides(signal.Long))
	reg.Register(Above("rsi_overbought", FieldRSI, 70), WithSides(signal.Short))
	reg.Register(Above("rsi_bullish", FieldRSI, 50), WithSides(signal.Long))
	reg.Register(Below("rsi_bearish", FieldRSI, 50), WithSides(signal.Short))

	reg.Register(Above("macd_hist_positive", FieldMACDHist, 0), WithSides(signal.Long))
	reg.Register(Below("macd_hist_negative", FieldMACDHist, 0), WithSides(signal.Short))

	// Generic windowed templates; rule references override field/n/strict/eps.
	reg.Register(Rename(Increasing(FieldClose, 2, false, 0), "increasing"))
	reg.Register(Rename(Decreasing(FieldClose, 2, false, 0), "decreasing"))

	reg.Register(Above("adx_strong", FieldADX, 25))

	reg.Register(compareScalars("price_above_ema", FieldClose, FieldEMASlow, true), WithSides(signal.Long))
	reg.Register(compareScalars("price_below_ema", FieldClose, FieldEMASlow, false), WithSides(signal.Short))
	reg.Register(compareScalars("ema_fast_above_slow", FieldEMAFast, FieldEMASlow, true), WithSides(signal.Long))
	reg.Register(compareScalars("ema_fast_below_slow", FieldEMAFast, FieldEMASlow, false), WithSides(signal.Short))

	reg.Register(ichimokuCloud("ichimoku_bullish", true), WithSides(signal.Long))
	reg.Register(ichimokuCloud("ichimoku_bearish", false), WithSides(signal.Short))

	reg.Register(Rename(Increasing(FieldOBV, 3, false, 0), "obv_rising"), WithSides(signal.Long))
	reg.Register(Rename(Decreasing(FieldOBV, 3, false, 0), "obv_falling"), WithSides(signal.Short))

	reg.Register(compareScalars("price_above_vwap", FieldClose, FieldVWAP, true), WithSides(signal.Long))
	reg.Register(compareScalars("price_below_vwap", FieldClose, FieldVWAP, false), WithSides(signal.Short))
}

// DefaultRegistry returns a registry pre-populated with the builtin set.
func DefaultRegistry() *Registry {
	reg := NewRegistry()
	RegisterBuiltins(reg)
	return reg
}
