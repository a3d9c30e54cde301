package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/retail-analytics/engine/config"
	"github.com/retail-analytics/engine/types"
)

// DefaultTrendChangeSensitivity is the relative change difference that marks a reversal
const DefaultTrendChangeSensitivity = 0.05

// Options holds the analyzer defaults applied when a request leaves a knob unset
type Options struct {
	Anomaly  AnomalyOptions
	Forecast ForecastOptions
}

// OptionsFromConfig converts the analytics config section into analyzer defaults
func OptionsFromConfig(cfg config.AnalyticsConfig) Options {
	rolling := cfg.Anomaly.Rolling
	return Options{
		Anomaly: AnomalyOptions{
			Method:          cfg.Anomaly.Method,
			ZScoreThreshold: cfg.Anomaly.ZScoreThreshold,
			MADThreshold:    cfg.Anomaly.MADThreshold,
			WindowSize:      cfg.Anomaly.WindowSize,
			Rolling:         &rolling,
		},
		Forecast: ForecastOptions{
			Alpha:           cfg.Forecast.Alpha,
			Beta:            cfg.Forecast.Beta,
			Periods:         cfg.Forecast.Periods,
			ConfidenceLevel: cfg.Forecast.ConfidenceLevel,
		},
	}
}

// Observer receives timings and detections from the analyzer
type Observer interface {
	ObserveAnalysis(kind string, duration time.Duration)
	ObserveAnomalies(anomalies []types.Anomaly)
}

// Analyzer runs series analytics with configured defaults
type Analyzer interface {
	Trend(points []types.TimeSeriesPoint) types.TrendResult
	Anomalies(points []types.TimeSeriesPoint, override AnomalyOptions) types.AnomalyResult
	Forecast(points []types.TimeSeriesPoint, override ForecastOptions) ([]types.ForecastPoint, error)
	Comparisons(points []types.TimeSeriesPoint) (types.PeriodComparisons, error)
	Summarize(ctx context.Context, points []types.TimeSeriesPoint) (*types.AnalysisSummary, error)
}

// analyzer implements Analyzer
type analyzer struct {
	opts       Options
	comparator *Comparator
	observer   Observer
	log        logrus.FieldLogger
}

// NewAnalyzer creates a series analyzer. observer may be nil; a nil clock uses time.Now.
func NewAnalyzer(opts Options, clock func() time.Time, observer Observer, log logrus.FieldLogger) Analyzer {
	return &analyzer{
		opts: Options{
			Anomaly:  opts.Anomaly.withDefaults(),
			Forecast: opts.Forecast.withDefaults(),
		},
		comparator: NewComparator(clock),
		observer:   observer,
		log:        log.WithField("component", "series-analyzer"),
	}
}

func (a *analyzer) observe(kind string, start time.Time) {
	if a.observer != nil {
		a.observer.ObserveAnalysis(kind, time.Since(start))
	}
}

// Trend analyzes the direction of the series values
func (a *analyzer) Trend(points []types.TimeSeriesPoint) types.TrendResult {
	defer a.observe("trend", time.Now())
	return AnalyzeTrend(types.Values(points))
}

// Anomalies detects outliers, using the analyzer defaults for unset fields
func (a *analyzer) Anomalies(points []types.TimeSeriesPoint, override AnomalyOptions) types.AnomalyResult {
	defer a.observe("anomalies", time.Now())

	opts := a.opts.Anomaly
	if override.Method != "" {
		opts.Method = override.Method
	}
	if override.ZScoreThreshold > 0 {
		opts.ZScoreThreshold = override.ZScoreThreshold
	}
	if override.MADThreshold > 0 {
		opts.MADThreshold = override.MADThreshold
	}
	if override.WindowSize > 0 {
		opts.WindowSize = override.WindowSize
	}
	if override.Rolling != nil {
		opts.Rolling = override.Rolling
	}

	var result types.AnomalyResult
	if opts.UseRolling() {
		result = DetectRolling(points, opts)
	} else {
		result = DetectAnomalies(types.Values(points), opts)
	}

	if a.observer != nil {
		a.observer.ObserveAnomalies(result.Anomalies)
	}
	if len(result.Anomalies) > 0 {
		a.log.WithFields(logrus.Fields{
			"method":       opts.Method,
			"rolling":      opts.UseRolling(),
			"anomalies":    len(result.Anomalies),
			"anomaly_rate": result.AnomalyRate,
		}).Info("Anomalies detected")
	}
	return result
}

// Forecast projects the series with confidence bands
func (a *analyzer) Forecast(points []types.TimeSeriesPoint, override ForecastOptions) ([]types.ForecastPoint, error) {
	defer a.observe("forecast", time.Now())

	opts := a.opts.Forecast
	if override.Alpha > 0 {
		opts.Alpha = override.Alpha
	}
	if override.Beta > 0 {
		opts.Beta = override.Beta
	}
	if override.Periods > 0 {
		opts.Periods = override.Periods
	}
	if override.ConfidenceLevel > 0 {
		opts.ConfidenceLevel = override.ConfidenceLevel
	}

	forecast, err := ForecastWithConfidence(points, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to forecast series: %w", err)
	}
	return forecast, nil
}

// Comparisons computes every calendar-window comparison
func (a *analyzer) Comparisons(points []types.TimeSeriesPoint) (types.PeriodComparisons, error) {
	defer a.observe("comparisons", time.Now())

	comparisons, err := a.comparator.All(points)
	if err != nil {
		return comparisons, fmt.Errorf("failed to compare periods: %w", err)
	}
	return comparisons, nil
}

// Summarize runs trend, anomaly, forecast and comparison analytics in parallel
func (a *analyzer) Summarize(ctx context.Context, points []types.TimeSeriesPoint) (*types.AnalysisSummary, error) {
	start := time.Now()
	summary := &types.AnalysisSummary{}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		summary.Trend = a.Trend(points)
		return nil
	})
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		summary.Anomalies = a.Anomalies(points, AnomalyOptions{})
		return nil
	})
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		forecast, err := a.Forecast(points, ForecastOptions{})
		summary.Forecast = forecast
		return err
	})
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		comparisons, err := a.Comparisons(points)
		summary.Comparisons = comparisons
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	a.log.WithFields(logrus.Fields{
		"points":      len(points),
		"direction":   summary.Trend.Direction,
		"anomalies":   len(summary.Anomalies.Anomalies),
		"forecast":    len(summary.Forecast),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Series summarized")

	return summary, nil
}
