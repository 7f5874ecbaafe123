package raster

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Finite returns the non-NaN, non-Inf values of vs in a new slice.
func Finite(vs []float64) []float64 {
	out := make([]float64, 0, len(vs))
	for _, v := range vs {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// NaNMean returns the mean of the finite values of vs, or NaN when there are
// none.
func NaNMean(vs []float64) float64 {
	f := Finite(vs)
	if len(f) == 0 {
		return math.NaN()
	}
	return stat.Mean(f, nil)
}

// NaNPercentile returns the p-th percentile (0..100) of the finite values of
// vs using linear interpolation between closest ranks: the value at fractional
// rank (n-1)·p/100 of the sorted sample. It returns NaN when there are no
// finite values or p is out of range.
func NaNPercentile(vs []float64, p float64) float64 {
	f := Finite(vs)
	if len(f) == 0 || math.IsNaN(p) || p < 0 || p > 100 {
		return math.NaN()
	}
	sort.Float64s(f)
	rank := float64(len(f)-1) * p / 100
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return f[lo]
	}
	frac := rank - float64(lo)
	return f[lo] + (f[hi]-f[lo])*frac
}
