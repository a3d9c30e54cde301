package analysis

import (
	"math"

	"github.com/retail-analytics/engine/types"
)

// Default forecasting parameters
const (
	DefaultAlpha           = 0.3
	DefaultBeta            = 0.1
	DefaultForecastPeriods = 30
	DefaultConfidenceLevel = 0.95
)

// ForecastOptions tunes the confidence forecast. Zero fields take the defaults.
type ForecastOptions struct {
	Alpha           float64 `json:"alpha"`
	Beta            float64 `json:"beta"`
	Periods         int     `json:"periods"`
	ConfidenceLevel float64 `json:"confidence_level"`
}

func (o ForecastOptions) withDefaults() ForecastOptions {
	if o.Alpha <= 0 {
		o.Alpha = DefaultAlpha
	}
	if o.Beta <= 0 {
		o.Beta = DefaultBeta
	}
	if o.Periods <= 0 {
		o.Periods = DefaultForecastPeriods
	}
	if o.ConfidenceLevel <= 0 {
		o.ConfidenceLevel = DefaultConfidenceLevel
	}
	return o
}

// ExponentialSmoothing smooths the history and repeats the final smoothed
// value for every future period.
func ExponentialSmoothing(history []float64, alpha float64, periods int) []float64 {
	if len(history) == 0 || periods <= 0 {
		return []float64{}
	}

	level := history[0]
	for _, v := range history[1:] {
		level = alpha*v + (1-alpha)*level
	}

	out := make([]float64, periods)
	for i := range out {
		out[i] = level
	}
	return out
}

// Holt is double exponential smoothing: level and trend are updated over the
// history and point k of the forecast is level + k·trend.
func Holt(history []float64, alpha, beta float64, periods int) []float64 {
	if periods <= 0 {
		return []float64{}
	}
	if len(history) < 2 {
		return constant(history, periods)
	}

	level := history[0]
	trend := history[1] - history[0]
	for _, v := range history[1:] {
		prevLevel := level
		level = alpha*v + (1-alpha)*(level+trend)
		trend = beta*(level-prevLevel) + (1-beta)*trend
	}

	out := make([]float64, periods)
	for k := range out {
		out[k] = level + float64(k+1)*trend
	}
	return out
}

// LinearForecast extends the least-squares line over the history indices
func LinearForecast(history []float64, periods int) []float64 {
	if periods <= 0 {
		return []float64{}
	}
	if len(history) < 2 {
		return constant(history, periods)
	}

	slope, intercept, _ := linearRegression(history)
	n := len(history)
	out := make([]float64, periods)
	for k := range out {
		out[k] = slope*float64(n+k) + intercept
	}
	return out
}

func constant(history []float64, periods int) []float64 {
	var v float64
	if len(history) > 0 {
		v = history[0]
	}
	out := make([]float64, periods)
	for i := range out {
		out[i] = v
	}
	return out
}

// DetectSeasonality computes a multiplier per weekday present in the history:
// the weekday's mean over the overall mean. Patterns are ordered Sunday first.
func DetectSeasonality(points []types.TimeSeriesPoint) ([]types.SeasonalPattern, error) {
	var byDay [7][]float64
	for _, p := range points {
		t, err := types.ParseDate(p.Date)
		if err != nil {
			return nil, err
		}
		byDay[t.Weekday()] = append(byDay[t.Weekday()], p.Value)
	}

	overall := mean(types.Values(points))
	patterns := []types.SeasonalPattern{}
	for day, values := range byDay {
		if len(values) == 0 {
			continue
		}
		avg := mean(values)
		multiplier := 1.0
		if overall != 0 {
			multiplier = avg / overall
		}
		patterns = append(patterns, types.SeasonalPattern{DayOfWeek: day, Average: avg, Multiplier: multiplier})
	}
	return patterns, nil
}

// ForecastWithConfidence projects the series with Holt's method, scales each
// point by its weekday multiplier and surrounds it with a band that widens by
// 10% per step. Requires at least seven points.
func ForecastWithConfidence(points []types.TimeSeriesPoint, opts ForecastOptions) ([]types.ForecastPoint, error) {
	opts = opts.withDefaults()
	if len(points) < 7 {
		return []types.ForecastPoint{}, nil
	}

	values := types.Values(points)
	lastDate, err := types.ParseDate(points[len(points)-1].Date)
	if err != nil {
		return nil, err
	}

	base := Holt(values, opts.Alpha, opts.Beta, opts.Periods)

	recent := values[len(values)-7:]
	recentMean := mean(recent)
	residuals := make([]float64, len(recent))
	for i, v := range recent {
		residuals[i] = v - recentMean
	}
	stdError := stdDev(residuals)

	z := 2.58
	if opts.ConfidenceLevel == 0.95 {
		z = 1.96
	}

	patterns, err := DetectSeasonality(points)
	if err != nil {
		return nil, err
	}
	var multipliers [7]float64
	for _, p := range patterns {
		multipliers[p.DayOfWeek] = p.Multiplier
	}

	method := types.ForecastExponential
	if len(patterns) > 0 {
		method = types.ForecastSeasonal
	}

	out := make([]types.ForecastPoint, len(base))
	for i, v := range base {
		date := lastDate.AddDate(0, 0, i+1)
		multiplier := multipliers[date.Weekday()]
		if multiplier == 0 || math.IsNaN(multiplier) {
			multiplier = 1
		}

		// Floored at zero, unlike the raw Holt output, so a declining
		// series never projects negative sales and lower <= forecast holds.
		adjusted := math.Max(0, v*multiplier)
		margin := z * stdError * (1 + float64(i)*0.1)

		out[i] = types.ForecastPoint{
			Date:            date.Format("2006-01-02"),
			Forecast:        adjusted,
			ConfidenceLower: math.Max(0, adjusted-margin),
			ConfidenceUpper: adjusted + margin,
			Method:          method,
		}
	}
	return out, nil
}

// ForecastAccuracy compares predictions to actuals. Mismatched or empty
// inputs return zeros; zero actuals are left out of the percentage error.
func ForecastAccuracy(actual, predicted []float64) types.ForecastAccuracy {
	if len(actual) != len(predicted) || len(actual) == 0 {
		return types.ForecastAccuracy{}
	}

	var absErr, pctErr, sqErr float64
	for i := range actual {
		e := actual[i] - predicted[i]
		absErr += math.Abs(e)
		if actual[i] != 0 {
			pctErr += math.Abs(e/actual[i]) * 100
		}
		sqErr += e * e
	}

	n := float64(len(actual))
	return types.ForecastAccuracy{
		MAE:  absErr / n,
		MAPE: pctErr / n,
		RMSE: math.Sqrt(sqErr / n),
	}
}
