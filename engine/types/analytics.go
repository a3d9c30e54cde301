package types

// TimeSeriesPoint is a single dated observation. Date is an ISO date string.
type TimeSeriesPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// Values extracts the numeric values of a series in order
func Values(points []TimeSeriesPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

// TrendDirection is the sign of a trend
type TrendDirection string

const (
	TrendUp   TrendDirection = "up"
	TrendDown TrendDirection = "down"
	TrendFlat TrendDirection = "flat"
)

// TrendStrength classifies how pronounced a trend is
type TrendStrength string

const (
	StrengthWeak     TrendStrength = "weak"
	StrengthModerate TrendStrength = "moderate"
	StrengthStrong   TrendStrength = "strong"
)

// TrendResult summarises a series' linear trend
type TrendResult struct {
	Direction  TrendDirection `json:"direction"`
	Strength   TrendStrength  `json:"strength"`
	Slope      float64        `json:"slope"`
	Momentum   float64        `json:"momentum"`
	Confidence float64        `json:"confidence"`
}

// TrendChange marks a local peak or trough in a series
type TrendChange struct {
	Index int    `json:"index"`
	Type  string `json:"type"`
}

// Severity ranks an anomaly
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank orders severities so that a higher rank is more severe
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

// AnomalyMethod names an outlier detector
type AnomalyMethod string

const (
	MethodZScore   AnomalyMethod = "zscore"
	MethodIQR      AnomalyMethod = "iqr"
	MethodMAD      AnomalyMethod = "mad"
	MethodEnsemble AnomalyMethod = "ensemble"
)

// Anomaly is a single flagged observation
type Anomaly struct {
	Index          int           `json:"index"`
	Value          float64       `json:"value"`
	Expected       float64       `json:"expected"`
	DeviationScore float64       `json:"deviation_score"`
	Severity       Severity      `json:"severity"`
	Method         AnomalyMethod `json:"method"`
}

// AnomalyResult wraps detections with rate and a human summary
type AnomalyResult struct {
	Anomalies   []Anomaly `json:"anomalies"`
	TotalPoints int       `json:"total_points"`
	AnomalyRate float64   `json:"anomaly_rate"`
	Summary     string    `json:"summary"`
}

// ForecastMethod tags how a forecast point was produced
type ForecastMethod string

const (
	ForecastExponential ForecastMethod = "exponential"
	ForecastSeasonal    ForecastMethod = "seasonal"
)

// ForecastPoint is one projected value with its confidence band
type ForecastPoint struct {
	Date            string         `json:"date"`
	Forecast        float64        `json:"forecast"`
	ConfidenceLower float64        `json:"confidence_lower"`
	ConfidenceUpper float64        `json:"confidence_upper"`
	Method          ForecastMethod `json:"method"`
}

// SeasonalPattern is the average level of one weekday relative to the whole series
type SeasonalPattern struct {
	DayOfWeek  int     `json:"day_of_week"`
	Average    float64 `json:"average"`
	Multiplier float64 `json:"multiplier"`
}

// ForecastAccuracy holds offline error metrics of a forecast
type ForecastAccuracy struct {
	MAE  float64 `json:"mae"`
	MAPE float64 `json:"mape"`
	RMSE float64 `json:"rmse"`
}

// PeriodValue is one side of a period comparison
type PeriodValue struct {
	Value       float64 `json:"value"`
	PeriodLabel string  `json:"period_label"`
}

// PeriodComparison compares a current window against a previous one
type PeriodComparison struct {
	MetricLabel   string         `json:"metric_label"`
	Current       PeriodValue    `json:"current"`
	Previous      PeriodValue    `json:"previous"`
	Change        float64        `json:"change"`
	ChangePercent float64        `json:"change_percent"`
	Direction     TrendDirection `json:"direction"`
	IsSignificant bool           `json:"is_significant"`
}

// PeriodComparisons bundles every calendar-window comparison
type PeriodComparisons struct {
	YoY *PeriodComparison `json:"yoy"`
	MoM *PeriodComparison `json:"mom"`
	WoW *PeriodComparison `json:"wow"`
	DoD *PeriodComparison `json:"dod"`
}

// GrowthRates are compounded growth rates in percent
type GrowthRates struct {
	Daily   float64 `json:"daily"`
	Weekly  float64 `json:"weekly"`
	Monthly float64 `json:"monthly"`
}

// AnalysisSummary is the combined output of all series analytics
type AnalysisSummary struct {
	Trend       TrendResult       `json:"trend"`
	Anomalies   AnomalyResult     `json:"anomalies"`
	Forecast    []ForecastPoint   `json:"forecast"`
	Comparisons PeriodComparisons `json:"comparisons"`
}
