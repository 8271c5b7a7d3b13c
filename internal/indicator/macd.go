package indicator

// MACD bundles the three aligned output series of the MACD computation.
// Hist is trimmed so all three share the signal series length.
type MACD struct {
	MACD   []float64
	Signal []float64
	Hist   []float64
}

// MACDSeries computes EMA(fast) - EMA(slow) with both EMAs seeded by the
// simple mean of their first period values, a signal line as
// EMA(MACD, signalPeriod) under the same seeding rule, and a histogram
// aligned by trimming the head of the MACD series. Returns the zero value
// when len(closes) < max(fast, slow) + signalPeriod.
func MACDSeries(closes []float64, fast, slow, signalPeriod int) MACD {
	if fast <= 0 || slow <= 0 || signalPeriod <= 0 {
		return MACD{}
	}
	longest := slow
	if fast > longest {
		longest = fast
	}
	if len(closes) < longest+signalPeriod {
		return MACD{}
	}

	fastEMA := EMASeries(closes, fast)
	slowEMA := EMASeries(closes, slow)
	n := len(fastEMA)
	if len(slowEMA) < n {
		n = len(slowEMA)
	}

	// Align both EMA tails before differencing.
	macd := make([]float64, n)
	fo := len(fastEMA) - n
	so := len(slowEMA) - n
	for i := 0; i < n; i++ {
		macd[i] = fastEMA[fo+i] - slowEMA[so+i]
	}

	sig := EMASeries(macd, signalPeriod)
	if len(sig) == 0 {
		return MACD{}
	}
	hist := make([]float64, len(sig))
	off := len(macd) - len(sig)
	for i := range sig {
		hist[i] = macd[off+i] - sig[i]
	}
	return MACD{MACD: macd, Signal: sig, Hist: hist}
}

// MACDLast returns the latest macd, signal, and histogram values; ok is
// false on insufficient input.
func MACDLast(closes []float64, fast, slow, signalPeriod int) (macd, sig, hist float64, ok bool) {
	m := MACDSeries(closes, fast, slow, signalPeriod)
	if len(m.Hist) == 0 {
		return 0, 0, 0, false
	}
	return m.MACD[len(m.MACD)-1], m.Signal[len(m.Signal)-1], m.Hist[len(m.Hist)-1], true
}
