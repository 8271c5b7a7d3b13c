package risk

import "github.com/shopspring/decimal"

// FloorToStep floors a quantity down to a multiple of step. Sizes always
// floor: rounding a position up would overshoot the risk budget.
func FloorToStep(qty, step float64) float64 {
	if step <= 0 || qty <= 0 {
		if qty < 0 {
			return 0
		}
		return qty
	}
	q := decimal.NewFromFloat(qty)
	s := decimal.NewFromFloat(step)
	out, _ := q.Div(s).Floor().Mul(s).Float64()
	return out
}

// RoundToTick rounds a price to the nearest tick, half away from zero.
// Prices round rather than floor; the asymmetry with size quantization is
// inherited behavior and kept as-is.
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	p := decimal.NewFromFloat(price)
	t := decimal.NewFromFloat(tick)
	out, _ := p.Div(t).Round(0).Mul(t).Float64()
	return out
}

// TickDecimals returns the number of fractional digits a tick size implies,
// used to format price strings for the order wire.
func TickDecimals(tick float64) int32 {
	if tick <= 0 {
		return 0
	}
	d := decimal.NewFromFloat(tick)
	exp := -d.Exponent()
	if exp < 0 {
		return 0
	}
	return exp
}

// FormatPrice renders a price at the precision its tick size implies.
func FormatPrice(price, tick float64) string {
	return decimal.NewFromFloat(price).StringFixed(TickDecimals(tick))
}
