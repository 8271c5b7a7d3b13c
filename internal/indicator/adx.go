package indicator

import "math"

// ADXSeries computes the Average Directional Index with Wilder smoothing.
// +DM, -DM, and true range are seeded as simple means over the first period
// bars and smoothed recursively thereafter. The ADX itself is seeded from
// the first DX value directly, not from a mean of period DX values; that
// asymmetry versus RSI/ATR is deliberate and must not be "fixed".
// Requires at least period+1 bars; returns nil otherwise.
func ADXSeries(klines []Kline, period int) []float64 {
	if period <= 0 || len(klines) < period+1 {
		return nil
	}

	n := len(klines) - 1
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	tr := make([]float64, n)
	for i := 1; i < len(klines); i++ {
		up := klines[i].High - klines[i-1].High
		down := klines[i-1].Low - klines[i].Low
		if up > down && up > 0 {
			plusDM[i-1] = up
		}
		if down > up && down > 0 {
			minusDM[i-1] = down
		}
		tr[i-1] = trueRange(klines[i], klines[i-1].Close)
	}

	var atrSm, plusSm, minusSm float64
	for i := 0; i < period; i++ {
		atrSm += tr[i]
		plusSm += plusDM[i]
		minusSm += minusDM[i]
	}
	atrSm /= float64(period)
	plusSm /= float64(period)
	minusSm /= float64(period)

	out := make([]float64, 0, n-period+1)
	adx := dx(plusSm, minusSm, atrSm)
	out = append(out, adx)
	for i := period; i < n; i++ {
		atrSm = (atrSm*float64(period-1) + tr[i]) / float64(period)
		plusSm = (plusSm*float64(period-1) + plusDM[i]) / float64(period)
		minusSm = (minusSm*float64(period-1) + minusDM[i]) / float64(period)
		adx = (adx*float64(period-1) + dx(plusSm, minusSm, atrSm)) / float64(period)
		out = append(out, adx)
	}
	return out
}

// ADX returns the latest ADX value; ok is false on insufficient input.
func ADX(klines []Kline, period int) (float64, bool) {
	return last(ADXSeries(klines, period))
}

func dx(plusSm, minusSm, atrSm float64) float64 {
	if atrSm == 0 {
		return 0
	}
	plusDI := 100 * plusSm / atrSm
	minusDI := 100 * minusSm / atrSm
	sum := plusDI + minusDI
	if sum == 0 {
		return 0
	}
	return 100 * math.Abs(plusDI-minusDI) / sum
}
