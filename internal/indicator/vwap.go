package indicator

import "time"

// VWAPSeries computes the cumulative volume-weighted average price with no
// session reset, using typical price (h+l+c)/3. Bars with zero cumulative
// volume so far carry the typical price itself. Returns nil on empty input.
func VWAPSeries(klines []Kline) []float64 {
	if len(klines) == 0 {
		return nil
	}
	out := make([]float64, len(klines))
	var pv, vol float64
	for i, k := range klines {
		tp := (k.High + k.Low + k.Close) / 3
		pv += tp * k.Volume
		vol += k.Volume
		if vol == 0 {
			out[i] = tp
			continue
		}
		out[i] = pv / vol
	}
	return out
}

// VWAP returns the latest cumulative VWAP value; ok is false on empty input.
func VWAP(klines []Kline) (float64, bool) {
	return last(VWAPSeries(klines))
}

// SessionVWAPSeries is the session-reset variant: cumulative sums restart at
// each calendar-day boundary in loc. A nil location means UTC.
func SessionVWAPSeries(klines []Kline, loc *time.Location) []float64 {
	if len(klines) == 0 {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	out := make([]float64, len(klines))
	var pv, vol float64
	var day int
	var year int
	for i, k := range klines {
		y, d := k.Timestamp.In(loc).Year(), k.Timestamp.In(loc).YearDay()
		if i == 0 || y != year || d != day {
			pv, vol = 0, 0
			year, day = y, d
		}
		tp := (k.High + k.Low + k.Close) / 3
		pv += tp * k.Volume
		vol += k.Volume
		if vol == 0 {
			out[i] = tp
			continue
		}
		out[i] = pv / vol
	}
	return out
}
