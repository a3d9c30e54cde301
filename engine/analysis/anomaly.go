package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/retail-analytics/engine/types"
)

// Default anomaly detection parameters
const (
	DefaultZScoreThreshold = 2.5
	DefaultMADThreshold    = 3.5
	DefaultWindowSize      = 7
)

// AnomalyOptions tunes anomaly detection. Zero fields take the defaults; a nil
// Rolling leaves the rolling choice to the defaults.
type AnomalyOptions struct {
	Method          types.AnomalyMethod `json:"method"`
	ZScoreThreshold float64             `json:"zscore_threshold"`
	MADThreshold    float64             `json:"mad_threshold"`
	WindowSize      int                 `json:"window_size"`
	Rolling         *bool               `json:"rolling,omitempty"`
}

// UseRolling reports whether rolling window detection was requested
func (o AnomalyOptions) UseRolling() bool {
	return o.Rolling != nil && *o.Rolling
}

func (o AnomalyOptions) withDefaults() AnomalyOptions {
	if o.Method == "" {
		o.Method = types.MethodEnsemble
	}
	if o.ZScoreThreshold <= 0 {
		o.ZScoreThreshold = DefaultZScoreThreshold
	}
	if o.MADThreshold <= 0 {
		o.MADThreshold = DefaultMADThreshold
	}
	if o.WindowSize <= 0 {
		o.WindowSize = DefaultWindowSize
	}
	return o
}

// DetectZScore flags points whose distance from the mean exceeds threshold
// standard deviations. Requires at least three points.
func DetectZScore(data []float64, threshold float64) []types.Anomaly {
	anomalies := []types.Anomaly{}
	if len(data) < 3 {
		return anomalies
	}

	avg := mean(data)
	sd := stdDev(data)
	if sd == 0 {
		return anomalies
	}

	for i, v := range data {
		z := math.Abs(v-avg) / sd
		if z <= threshold {
			continue
		}
		anomalies = append(anomalies, types.Anomaly{
			Index:          i,
			Value:          v,
			Expected:       avg,
			DeviationScore: z,
			Severity:       zScoreSeverity(z),
			Method:         types.MethodZScore,
		})
	}
	return anomalies
}

func zScoreSeverity(z float64) types.Severity {
	switch {
	case z > 3.5:
		return types.SeverityCritical
	case z > 2.5:
		return types.SeverityWarning
	default:
		return types.SeverityInfo
	}
}

// DetectIQR flags points outside the Tukey fences Q1-1.5·IQR and Q3+1.5·IQR.
// Requires at least four points.
func DetectIQR(data []float64) []types.Anomaly {
	anomalies := []types.Anomaly{}
	if len(data) < 4 {
		return anomalies
	}

	sorted := sortedCopy(data)
	q1 := quantileSorted(sorted, 0.25)
	q3 := quantileSorted(sorted, 0.75)
	med := quantileSorted(sorted, 0.5)
	iqr := q3 - q1

	for i, v := range data {
		if v >= q1-1.5*iqr && v <= q3+1.5*iqr {
			continue
		}

		severity := types.SeverityInfo
		switch {
		case v < q1-3*iqr || v > q3+3*iqr:
			severity = types.SeverityCritical
		case v < q1-2*iqr || v > q3+2*iqr:
			severity = types.SeverityWarning
		}

		deviation := deviationSentinel
		if iqr != 0 {
			deviation = math.Abs(v-med) / iqr
		}

		anomalies = append(anomalies, types.Anomaly{
			Index:          i,
			Value:          v,
			Expected:       med,
			DeviationScore: deviation,
			Severity:       severity,
			Method:         types.MethodIQR,
		})
	}
	return anomalies
}

// DetectMAD flags points whose modified z-score 0.6745·(x-median)/MAD exceeds
// threshold. A zero MAD scores every point 0. Requires at least three points.
func DetectMAD(data []float64, threshold float64) []types.Anomaly {
	anomalies := []types.Anomaly{}
	if len(data) < 3 {
		return anomalies
	}

	med := median(data)
	deviations := make([]float64, len(data))
	for i, v := range data {
		deviations[i] = math.Abs(v - med)
	}
	mad := median(deviations)

	for i, v := range data {
		var score float64
		if mad != 0 {
			score = math.Abs(0.6745 * (v - med) / mad)
		}
		if score <= threshold {
			continue
		}

		severity := types.SeverityInfo
		switch {
		case score > 5:
			severity = types.SeverityCritical
		case score > 3.5:
			severity = types.SeverityWarning
		}

		anomalies = append(anomalies, types.Anomaly{
			Index:          i,
			Value:          v,
			Expected:       med,
			DeviationScore: score,
			Severity:       severity,
			Method:         types.MethodMAD,
		})
	}
	return anomalies
}

// DetectEnsemble keeps the points flagged by at least two of the three
// detectors. Each kept point is represented by its most severe detection,
// preferring z-score, then IQR, then MAD on equal severity.
func DetectEnsemble(data []float64, opts AnomalyOptions) []types.Anomaly {
	opts = opts.withDefaults()

	byIndex := make(map[int][]types.Anomaly)
	var detections []types.Anomaly
	detections = append(detections, DetectZScore(data, opts.ZScoreThreshold)...)
	detections = append(detections, DetectIQR(data)...)
	detections = append(detections, DetectMAD(data, opts.MADThreshold)...)
	for _, a := range detections {
		byIndex[a.Index] = append(byIndex[a.Index], a)
	}

	anomalies := []types.Anomaly{}
	for _, group := range byIndex {
		if len(group) < 2 {
			continue
		}
		best := group[0]
		for _, a := range group[1:] {
			if a.Severity.Rank() > best.Severity.Rank() {
				best = a
			}
		}
		anomalies = append(anomalies, best)
	}

	sort.Slice(anomalies, func(i, j int) bool { return anomalies[i].Index < anomalies[j].Index })
	return anomalies
}

// DetectAnomalies runs the configured detector and summarises the outcome
func DetectAnomalies(data []float64, opts AnomalyOptions) types.AnomalyResult {
	opts = opts.withDefaults()

	if len(data) < 3 {
		return types.AnomalyResult{
			Anomalies:   []types.Anomaly{},
			TotalPoints: len(data),
			Summary:     "Insufficient data for anomaly detection",
		}
	}

	var anomalies []types.Anomaly
	switch opts.Method {
	case types.MethodZScore:
		anomalies = DetectZScore(data, opts.ZScoreThreshold)
	case types.MethodIQR:
		anomalies = DetectIQR(data)
	case types.MethodMAD:
		anomalies = DetectMAD(data, opts.MADThreshold)
	default:
		anomalies = DetectEnsemble(data, opts)
	}

	sort.SliceStable(anomalies, func(i, j int) bool { return anomalies[i].Index < anomalies[j].Index })
	rate := float64(len(anomalies)) / float64(len(data)) * 100

	return types.AnomalyResult{
		Anomalies:   anomalies,
		TotalPoints: len(data),
		AnomalyRate: rate,
		Summary:     anomalySummary(len(anomalies), rate),
	}
}

func anomalySummary(count int, rate float64) string {
	switch {
	case count == 0:
		return "No significant anomalies detected"
	case rate < 5:
		return fmt.Sprintf("%d minor anomalies detected (%.1f%% of data)", count, rate)
	case rate < 15:
		return fmt.Sprintf("%d anomalies detected - investigate unusual patterns", count)
	default:
		return fmt.Sprintf("High anomaly rate (%.1f%%) - data quality issues or significant business changes", rate)
	}
}

// DetectRolling scores each point after the first window against the mean and
// standard deviation of the window that precedes it. Series shorter than the
// window fall back to DetectAnomalies.
func DetectRolling(points []types.TimeSeriesPoint, opts AnomalyOptions) types.AnomalyResult {
	opts = opts.withDefaults()
	values := types.Values(points)
	window := opts.WindowSize

	if len(values) < window {
		return DetectAnomalies(values, opts)
	}

	anomalies := []types.Anomaly{}
	for i := window; i < len(values); i++ {
		trailing := values[i-window : i]
		avg := mean(trailing)
		sd := stdDev(trailing)

		var z float64
		switch {
		case sd != 0:
			z = math.Abs(values[i]-avg) / sd
		case values[i] != avg:
			z = deviationSentinel
		}
		if z <= opts.ZScoreThreshold {
			continue
		}

		severity := types.SeverityInfo
		switch {
		case z > 4:
			severity = types.SeverityCritical
		case z > 3:
			severity = types.SeverityWarning
		}

		anomalies = append(anomalies, types.Anomaly{
			Index:          i,
			Value:          values[i],
			Expected:       avg,
			DeviationScore: z,
			Severity:       severity,
			Method:         types.MethodZScore,
		})
	}

	return types.AnomalyResult{
		Anomalies:   anomalies,
		TotalPoints: len(values),
		AnomalyRate: float64(len(anomalies)) / float64(len(values)) * 100,
		Summary:     fmt.Sprintf("Rolling window anomaly detection (%d-day window)", window),
	}
}
