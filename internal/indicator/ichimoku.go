package indicator

// Ichimoku window lengths.
const (
	tenkanWindow  = 9
	kijunWindow   = 26
	senkouBWindow = 52
)

// Ichimoku holds the five components computed from the tail of a window.
type Ichimoku struct {
	Tenkan  float64
	Kijun   float64
	SenkouA float64
	SenkouB float64
	Chikou  float64
}

// ComputeIchimoku derives Tenkan/Kijun/SenkouB as midpoints of the high/low
// extremes over windows 9/26/52, SenkouA as (tenkan+kijun)/2, and Chikou as
// the last close. With ignoreUnclosed set, the final (possibly still
// forming) bar is dropped before any computation. ok is false when fewer
// than 52 usable bars remain.
func ComputeIchimoku(klines []Kline, ignoreUnclosed bool) (Ichimoku, bool) {
	if ignoreUnclosed {
		klines = DropUnclosed(klines)
	}
	if len(klines) < senkouBWindow {
		return Ichimoku{}, false
	}

	tenkan := midpoint(klines, tenkanWindow)
	kijun := midpoint(klines, kijunWindow)
	return Ichimoku{
		Tenkan:  tenkan,
		Kijun:   kijun,
		SenkouA: (tenkan + kijun) / 2,
		SenkouB: midpoint(klines, senkouBWindow),
		Chikou:  klines[len(klines)-1].Close,
	}, true
}

func midpoint(klines []Kline, window int) float64 {
	tail := klines[len(klines)-window:]
	hi := tail[0].High
	lo := tail[0].Low
	for _, k := range tail[1:] {
		if k.High > hi {
			hi = k.High
		}
		if k.Low < lo {
			lo = k.Low
		}
	}
	return (hi + lo) / 2
}
