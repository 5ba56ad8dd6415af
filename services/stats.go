package services

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"car-dashboard/models"
)

func sortCountsDesc(counts []models.CategoryCount) {
	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count > counts[j].Count
	})
}

// sortedCopy returns xs sorted ascending without touching the input.
func sortedCopy(xs []float64) []float64 {
	out := make([]float64, len(xs))
	copy(out, xs)
	sort.Float64s(out)
	return out
}

// quantile interpolates linearly between order statistics.
// sorted must be ascending and non-empty.
func quantile(p float64, sorted []float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// describe fills the summary statistics of a histogram.
func describe(h *models.Histogram, xs []float64) {
	if len(xs) == 0 {
		return
	}
	sorted := sortedCopy(xs)
	h.Min = sorted[0]
	h.Max = sorted[len(sorted)-1]
	h.Mean = stat.Mean(xs, nil)
	h.Median = quantile(0.5, sorted)
	if len(xs) > 1 {
		h.StdDev = stat.StdDev(xs, nil)
	}
}

// pearson computes the correlation over the indices where both series are
// present. NaN is returned when fewer than two pairs exist or a side is constant.
func pearson(x, y []float64) float64 {
	xs := make([]float64, 0, len(x))
	ys := make([]float64, 0, len(y))
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	if len(xs) < 2 || isConstant(xs) || isConstant(ys) {
		return math.NaN()
	}
	return stat.Correlation(xs, ys, nil)
}

func isConstant(xs []float64) bool {
	for _, v := range xs[1:] {
		if v != xs[0] {
			return false
		}
	}
	return true
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
