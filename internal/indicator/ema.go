package indicator

// EMASeries computes an exponential moving average seeded by the simple mean
// of the first period values. The first output is aligned to input index
// period-1. Returns nil when len(values) < period.
func EMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	var sum float64
	for _, v := range values[:period] {
		sum += v
	}
	ema := sum / float64(period)
	k := 2.0 / (float64(period) + 1.0)

	out := make([]float64, 0, len(values)-period+1)
	out = append(out, ema)
	for _, v := range values[period:] {
		ema = v*k + ema*(1-k)
		out = append(out, ema)
	}
	return out
}

// EMA returns the latest EMA value; ok is false on insufficient input.
func EMA(values []float64, period int) (float64, bool) {
	return last(EMASeries(values, period))
}
