package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary holds the basic aggregates of a price series.
type Summary struct {
	Mean float64
	Max  float64
	Min  float64
}

// Swing is Max - Min.
func (s Summary) Swing() float64 { return s.Max - s.Min }

// Summarize returns mean, max and min of xs. ok is false for an empty series.
func Summarize(xs []float64) (Summary, bool) {
	if len(xs) == 0 {
		return Summary{}, false
	}
	return Summary{
		Mean: stat.Mean(xs, nil),
		Max:  floats.Max(xs),
		Min:  floats.Min(xs),
	}, true
}

// Mean returns the arithmetic mean, or 0 for an empty series.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// ChangePercent returns (price-open)/open*100, or 0 when open is 0.
func ChangePercent(price, open float64) float64 {
	if open == 0 {
		return 0
	}
	return (price - open) / open * 100
}

// Round rounds x to the given number of decimals.
func Round(x float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(x*p) / p
}

// Valid reports whether x is a usable price: finite and strictly positive.
func Valid(x float64) bool {
	return x > 0 && !math.IsInf(x, 0) && !math.IsNaN(x)
}
