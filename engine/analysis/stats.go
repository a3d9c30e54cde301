package analysis

import (
	"math"
	"sort"
)

// deviationSentinel caps a deviation score whose spread is zero, keeping
// results finite and serializable.
const deviationSentinel = 100.0

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdDev is the population standard deviation
func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

func sortedCopy(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}

// quantileSorted returns the p-quantile of ascending data. An integral rank on
// an even-length sample averages the two neighbouring values; a fractional rank
// rounds up to the next element.
func quantileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	switch {
	case p >= 1:
		return sorted[n-1]
	case p <= 0:
		return sorted[0]
	}

	idx := float64(n) * p
	if idx != math.Trunc(idx) {
		return sorted[int(math.Ceil(idx))-1]
	}
	i := int(idx)
	if n%2 == 0 {
		return (sorted[i-1] + sorted[i]) / 2
	}
	return sorted[i]
}

func median(values []float64) float64 {
	return quantileSorted(sortedCopy(values), 0.5)
}

// linearRegression fits y = slope*x + intercept over x = 0..n-1 and reports
// the coefficient of determination. A constant series has R² of 0.
func linearRegression(values []float64) (slope, intercept, rSquared float64) {
	n := float64(len(values))
	if n == 0 {
		return 0, 0, 0
	}
	if n == 1 {
		return 0, values[0], 0
	}

	var sumX, sumY, sumXY, sumX2 float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}

	denominator := n*sumX2 - sumX*sumX
	if denominator == 0 {
		return 0, sumY / n, 0
	}
	slope = (n*sumXY - sumX*sumY) / denominator
	intercept = sumY/n - slope*sumX/n

	meanY := sumY / n
	var ssRes, ssTot float64
	for i, y := range values {
		predicted := slope*float64(i) + intercept
		ssRes += (y - predicted) * (y - predicted)
		ssTot += (y - meanY) * (y - meanY)
	}
	if ssTot > 0 {
		rSquared = 1 - ssRes/ssTot
	}
	return slope, intercept, rSquared
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
