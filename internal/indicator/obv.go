package indicator

// OBVSeries computes On-Balance Volume: cumulative signed volume seeded at
// zero, adding volume on an up close, subtracting on a down close, and
// unchanged on a flat close. Returns nil on empty input.
func OBVSeries(klines []Kline) []float64 {
	if len(klines) == 0 {
		return nil
	}
	out := make([]float64, len(klines))
	out[0] = 0
	for i := 1; i < len(klines); i++ {
		switch {
		case klines[i].Close > klines[i-1].Close:
			out[i] = out[i-1] + klines[i].Volume
		case klines[i].Close < klines[i-1].Close:
			out[i] = out[i-1] - klines[i].Volume
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

// OBV returns the latest OBV value; ok is false on empty input.
func OBV(klines []Kline) (float64, bool) {
	return last(OBVSeries(klines))
}
