package indicator

import (
	"errors"
	"fmt"
	"math"
)

// ATR smoothing methods.
const (
	ATRSimple = "simple"
	ATRWilder = "wilder"
)

// ErrInsufficientData marks indicator inputs too short for the requested
// period. Callers treat it as "condition failed", never as a fatal error.
var ErrInsufficientData = errors.New("insufficient data")

// ATR computes the Average True Range over klines. ATRSimple is a plain
// moving average of the last period true ranges; ATRWilder seeds with the
// simple mean of the first period true ranges and smooths recursively.
// Returns ErrInsufficientData when len(klines) <= period.
func ATR(klines []Kline, period int, method string) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("atr: period must be positive, got %d", period)
	}
	if len(klines) <= period {
		return 0, fmt.Errorf("atr: need more than %d bars, got %d: %w", period, len(klines), ErrInsufficientData)
	}

	trs := make([]float64, len(klines)-1)
	for i := 1; i < len(klines); i++ {
		trs[i-1] = trueRange(klines[i], klines[i-1].Close)
	}

	switch method {
	case ATRWilder:
		var atr float64
		for _, tr := range trs[:period] {
			atr += tr
		}
		atr /= float64(period)
		for _, tr := range trs[period:] {
			atr = (atr*float64(period-1) + tr) / float64(period)
		}
		return atr, nil
	case ATRSimple, "":
		var sum float64
		for _, tr := range trs[len(trs)-period:] {
			sum += tr
		}
		return sum / float64(period), nil
	default:
		return 0, fmt.Errorf("atr: unknown method %q", method)
	}
}

func trueRange(k Kline, prevClose float64) float64 {
	hl := k.High - k.Low
	hc := math.Abs(k.High - prevClose)
	lc := math.Abs(k.Low - prevClose)
	return math.Max(hl, math.Max(hc, lc))
}
