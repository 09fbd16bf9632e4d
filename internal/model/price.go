package model

import (
	"math"

	"github.com/shopspring/decimal"
)

// RoundToStep snaps a price to the nearest multiple of step without the
// float drift of a plain multiply-divide.
func RoundToStep(price, step float64) float64 {
	if step <= 0 {
		return price
	}
	k := math.Round(price / step)
	rounded, _ := decimal.NewFromFloat(step).Mul(decimal.NewFromFloat(k)).Float64()
	return rounded
}

// TickSizeAt resolves the tick size applicable to the given price from the
// instrument's tick table. Rules are matched by the highest MinPrice not
// exceeding the price.
func (d InstrumentDetail) TickSizeAt(price float64) float64 {
	var (
		best     float64
		bestMin  = math.Inf(-1)
		hasMatch bool
	)
	for _, r := range d.TickSizes {
		if r.MinPrice <= price && r.MinPrice > bestMin {
			bestMin = r.MinPrice
			best = r.TickSize
			hasMatch = true
		}
	}
	if !hasMatch {
		return 0
	}
	return best
}
