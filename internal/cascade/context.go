package cascade

import (
	"mtfbot/internal/condition"
	"mtfbot/internal/indicator"
)

// Indicator periods used when building evaluation contexts. The rule files
// tune thresholds; the raw windows stay fixed so every condition sees the
// same series.
const (
	rsiPeriod    = 14
	adxPeriod    = 14
	atrPeriod    = 14
	emaFast      = 12
	emaSlow      = 26
	macdFast     = 12
	macdSlow     = 26
	macdSignal   = 9
)

// BuildContext computes the full indicator state for one symbol and
// timeframe from a kline window. The final, possibly unclosed bar is dropped
// before any computation. Indicators without enough data are simply absent
// from the maps; conditions report missing_data instead of failing the run.
func BuildContext(symbol, timeframe string, klines []indicator.Kline) condition.Context {
	bars := indicator.DropUnclosed(klines)
	closes := indicator.Closes(bars)

	ctx := condition.Context{
		Symbol:    symbol,
		Timeframe: timeframe,
		Series:    make(map[string][]float64),
		Scalars:   make(map[string]float64),
		Klines:    bars,
	}
	if len(closes) > 0 {
		ctx.Series[condition.FieldClose] = closes
		ctx.Scalars[condition.FieldClose] = closes[len(closes)-1]
	}

	if s := indicator.RSISeries(closes, rsiPeriod); len(s) > 0 {
		ctx.Series[condition.FieldRSI] = s
	}
	if s := indicator.ADXSeries(bars, adxPeriod); len(s) > 0 {
		ctx.Series[condition.FieldADX] = s
	}
	if s := indicator.EMASeries(closes, emaFast); len(s) > 0 {
		ctx.Series[condition.FieldEMAFast] = s
	}
	if s := indicator.EMASeries(closes, emaSlow); len(s) > 0 {
		ctx.Series[condition.FieldEMASlow] = s
	}
	if m := indicator.MACDSeries(closes, macdFast, macdSlow, macdSignal); len(m.Hist) > 0 {
		ctx.Series[condition.FieldMACDHist] = m.Hist
	}
	if s := indicator.OBVSeries(bars); len(s) > 0 {
		ctx.Series[condition.FieldOBV] = s
	}
	if s := indicator.VWAPSeries(bars); len(s) > 0 {
		ctx.Series[condition.FieldVWAP] = s
	}
	if atr, err := indicator.ATR(bars, atrPeriod, indicator.ATRWilder); err == nil {
		ctx.Scalars[condition.FieldATR] = atr
	}
	if ich, ok := indicator.ComputeIchimoku(bars, false); ok {
		ctx.Scalars[condition.FieldTenkan] = ich.Tenkan
		ctx.Scalars[condition.FieldKijun] = ich.Kijun
		ctx.Scalars[condition.FieldSenkouA] = ich.SenkouA
		ctx.Scalars[condition.FieldSenkouB] = ich.SenkouB
	}
	return ctx
}
