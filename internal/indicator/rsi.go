package indicator

// RSISeries computes the Relative Strength Index with Wilder smoothing. The
// seed average gain/loss is the simple mean over the first period deltas;
// every later step smooths with avg = (avg*(period-1) + delta) / period.
// Requires at least period+1 closes; returns nil otherwise.
func RSISeries(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) < period+1 {
		return nil
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	out := make([]float64, 0, len(closes)-period)
	out = append(out, rsiValue(avgGain, avgLoss))
	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		var up, down float64
		if d > 0 {
			up = d
		} else {
			down = -d
		}
		avgGain = (avgGain*float64(period-1) + up) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + down) / float64(period)
		out = append(out, rsiValue(avgGain, avgLoss))
	}
	return out
}

// RSI returns the latest RSI value; ok is false on insufficient input.
func RSI(closes []float64, period int) (float64, bool) {
	return last(RSISeries(closes, period))
}

// rsiValue saturates to 100 when no losses occurred (ratio treated as +inf).
func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
