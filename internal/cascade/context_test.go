package cascade

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtfbot/internal/condition"
	"mtfbot/internal/indicator"
	"mtfbot/internal/signal"
)

func risingKlines(n int) []indicator.Kline {
	out := make([]indicator.Kline, 0, n)
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	px := 100.0
	for i := 0; i < n; i++ {
		px *= 1.004
		out = append(out, indicator.Kline{
			Timestamp: ts.Add(time.Duration(i) * time.Hour),
			Open:      px * 0.999,
			High:      px * 1.002,
			Low:       px * 0.997,
			Close:     px,
			Volume:    1000,
		})
	}
	return out
}

func TestBuildContextPopulatesSeries(t *testing.T) {
	ctx := BuildContext("BTCUSDT", "1h", risingKlines(120))

	require.Equal(t, "BTCUSDT", ctx.Symbol)
	require.Equal(t, "1h", ctx.Timeframe)
	for _, field := range []string{
		condition.FieldClose, condition.FieldRSI, condition.FieldADX,
		condition.FieldEMAFast, condition.FieldEMASlow,
		condition.FieldMACDHist, condition.FieldOBV, condition.FieldVWAP,
	} {
		assert.NotEmpty(t, ctx.Series[field], "series %s", field)
	}
	assert.Contains(t, ctx.Scalars, condition.FieldATR)
	assert.Contains(t, ctx.Scalars, condition.FieldSenkouA)

	// The unclosed tail bar is dropped before computation.
	assert.Len(t, ctx.Klines, 119)
}

func TestBuildContextShortWindowFailsClosed(t *testing.T) {
	ctx := BuildContext("BTCUSDT", "1h", risingKlines(5))
	assert.NotContains(t, ctx.Series, condition.FieldRSI)
	assert.NotContains(t, ctx.Scalars, condition.FieldATR)
	assert.Contains(t, ctx.Series, condition.FieldClose)
}

func TestRuleEvaluatorEndToEnd(t *testing.T) {
	reg := condition.DefaultRegistry()
	rules := map[string]Rules{
		"1h": {
			Long: condition.AllOf{Children: []condition.Node{
				condition.Leaf{Name: "price_above_ema"},
				condition.Leaf{Name: "macd_hist_positive"},
			}},
			Short: condition.AllOf{Children: []condition.Node{
				condition.Leaf{Name: "price_below_ema"},
			}},
		},
	}
	eval := &RuleEvaluator{Registry: reg, Rules: rules, Log: zerolog.Nop()}

	bars := risingKlines(120)
	long := eval.EvaluateSide("BTCUSDT", "1h", bars, signal.Long)
	require.True(t, long.Passed, "reason: %s", long.Reason)
	require.Len(t, long.Conditions, 2)

	short := eval.EvaluateSide("BTCUSDT", "1h", bars, signal.Short)
	assert.False(t, short.Passed)
}

func TestRuleEvaluatorMissingTimeframe(t *testing.T) {
	eval := &RuleEvaluator{Registry: condition.DefaultRegistry(), Rules: map[string]Rules{}, Log: zerolog.Nop()}
	res := eval.EvaluateSide("BTCUSDT", "3d", nil, signal.Long)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Reason, "no rules")
}
