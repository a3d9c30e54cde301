package analysis

import (
	"math"

	"github.com/retail-analytics/engine/types"
)

// AnalyzeTrend fits a least-squares line to the series and classifies its
// direction and strength. Fewer than three points yield a flat, weak trend.
func AnalyzeTrend(series []float64) types.TrendResult {
	if len(series) < 3 {
		return types.TrendResult{Direction: types.TrendFlat, Strength: types.StrengthWeak}
	}

	slope, _, rSquared := linearRegression(series)
	avg := mean(series)

	var normalizedSlope, cov float64
	if avg != 0 {
		normalizedSlope = slope / avg * 100
		cov = stdDev(series) / avg * 100
	}

	direction := types.TrendFlat
	switch {
	case math.Abs(normalizedSlope) < 1:
	case normalizedSlope > 0:
		direction = types.TrendUp
	default:
		direction = types.TrendDown
	}

	strength := types.StrengthWeak
	switch {
	case math.Abs(normalizedSlope) > 5 && cov < 20:
		strength = types.StrengthStrong
	case math.Abs(normalizedSlope) > 2:
		strength = types.StrengthModerate
	}

	third := len(series) / 3
	momentum := mean(series[len(series)-third:]) - mean(series[:third])

	return types.TrendResult{
		Direction:  direction,
		Strength:   strength,
		Slope:      normalizedSlope,
		Momentum:   momentum,
		Confidence: clamp(rSquared*100, 0, 100),
	}
}

// SMA is the simple moving average. The first window-1 points keep their raw
// values; a series shorter than the window is returned unchanged.
func SMA(data []float64, window int) []float64 {
	out := make([]float64, len(data))
	copy(out, data)
	if window <= 0 || len(data) < window {
		return out
	}
	for i := window - 1; i < len(data); i++ {
		out[i] = mean(data[i-window+1 : i+1])
	}
	return out
}

// EMA is the exponential moving average with alpha 2/(window+1), seeded with
// the first value.
func EMA(data []float64, window int) []float64 {
	if len(data) == 0 {
		return []float64{}
	}
	alpha := 2 / (float64(window) + 1)
	out := make([]float64, len(data))
	out[0] = data[0]
	for i := 1; i < len(data); i++ {
		out[i] = alpha*data[i] + (1-alpha)*out[i-1]
	}
	return out
}

// ROC is the percent rate of change against the value period points earlier.
// Points without a full period, or with a zero base, are 0.
func ROC(data []float64, period int) []float64 {
	out := make([]float64, len(data))
	for i := range data {
		if i < period || period <= 0 {
			continue
		}
		base := data[i-period]
		if base == 0 {
			continue
		}
		out[i] = (data[i] - base) / base * 100
	}
	return out
}

// DetectTrendChanges finds local peaks and troughs: points where the relative
// change flips sign and the two changes differ by more than sensitivity.
func DetectTrendChanges(data []float64, sensitivity float64) []types.TrendChange {
	changes := []types.TrendChange{}
	for i := 2; i < len(data); i++ {
		prev2, prev1, current := data[i-2], data[i-1], data[i]
		if prev2 == 0 || prev1 == 0 {
			continue
		}
		change1 := (prev1 - prev2) / prev2
		change2 := (current - prev1) / prev1
		if math.Abs(change1-change2) <= sensitivity {
			continue
		}
		switch {
		case change1 > 0 && change2 < 0:
			changes = append(changes, types.TrendChange{Index: i, Type: "peak"})
		case change1 < 0 && change2 > 0:
			changes = append(changes, types.TrendChange{Index: i, Type: "trough"})
		}
	}
	return changes
}
