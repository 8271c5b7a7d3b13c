// Package indicator implements pure technical indicator math over OHLCV
// series. Functions have no side effects and do no I/O; insufficient input
// yields an empty result that callers must distinguish from a computed zero
// by checking series length.
package indicator

import "time"

// Kline is one closed bar for a symbol and timeframe. The most recent bar of
// a fetched window may still be forming; algorithms that care drop it via
// DropUnclosed.
type Kline struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Closes extracts the close column.
func Closes(klines []Kline) []float64 {
	out := make([]float64, len(klines))
	for i, k := range klines {
		out[i] = k.Close
	}
	return out
}

// Highs extracts the high column.
func Highs(klines []Kline) []float64 {
	out := make([]float64, len(klines))
	for i, k := range klines {
		out[i] = k.High
	}
	return out
}

// Lows extracts the low column.
func Lows(klines []Kline) []float64 {
	out := make([]float64, len(klines))
	for i, k := range klines {
		out[i] = k.Low
	}
	return out
}

// DropUnclosed returns the window without its final, possibly still-forming
// bar.
func DropUnclosed(klines []Kline) []Kline {
	if len(klines) == 0 {
		return klines
	}
	return klines[:len(klines)-1]
}

func last(series []float64) (float64, bool) {
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}
