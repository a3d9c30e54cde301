package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/retail-analytics/engine/config"
	"github.com/retail-analytics/engine/types"
)

// MockObserver is a mock implementation of Observer
type MockObserver struct {
	mock.Mock
}

func (m *MockObserver) ObserveAnalysis(kind string, duration time.Duration) {
	m.Called(kind, duration)
}

func (m *MockObserver) ObserveAnomalies(anomalies []types.Anomaly) {
	m.Called(anomalies)
}

type AnalyzerTestSuite struct {
	suite.Suite
	observer *MockObserver
	analyzer Analyzer
}

func (suite *AnalyzerTestSuite) SetupTest() {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	suite.observer = new(MockObserver)
	suite.observer.On("ObserveAnalysis", mock.Anything, mock.Anything).Return()
	suite.observer.On("ObserveAnomalies", mock.Anything).Return()

	suite.analyzer = NewAnalyzer(Options{}, fixedClock, suite.observer, logger)
}

func TestAnalyzerTestSuite(t *testing.T) {
	suite.Run(t, new(AnalyzerTestSuite))
}

func boolPtr(v bool) *bool {
	return &v
}

// threeWeeks ends on the analyzer's fixed date with a spike on the last day
func threeWeeks() []types.TimeSeriesPoint {
	values := make([]float64, 21)
	for i := range values {
		values[i] = 100 + float64(i%3)
	}
	values[20] = 400
	return seriesFrom("2026-02-23", values...)
}

func (suite *AnalyzerTestSuite) TestSummarize() {
	summary, err := suite.analyzer.Summarize(context.Background(), threeWeeks())
	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), summary)

	assert.Len(suite.T(), summary.Forecast, DefaultForecastPeriods)
	assert.Equal(suite.T(), "2026-03-16", summary.Forecast[0].Date)
	assert.Equal(suite.T(), 21, summary.Anomalies.TotalPoints)
	require.NotEmpty(suite.T(), summary.Anomalies.Anomalies)
	assert.Equal(suite.T(), 20, summary.Anomalies.Anomalies[0].Index)
	assert.NotNil(suite.T(), summary.Comparisons.WoW)
	assert.NotNil(suite.T(), summary.Comparisons.DoD)
	assert.Nil(suite.T(), summary.Comparisons.YoY)

	suite.observer.AssertNumberOfCalls(suite.T(), "ObserveAnalysis", 4)
	suite.observer.AssertNumberOfCalls(suite.T(), "ObserveAnomalies", 1)
	suite.observer.AssertCalled(suite.T(), "ObserveAnalysis", "forecast", mock.Anything)
}

func (suite *AnalyzerTestSuite) TestSummarizeCancelled() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := suite.analyzer.Summarize(ctx, threeWeeks())
	assert.Nil(suite.T(), summary)
	assert.ErrorIs(suite.T(), err, context.Canceled)
	suite.observer.AssertNotCalled(suite.T(), "ObserveAnomalies", mock.Anything)
}

func (suite *AnalyzerTestSuite) TestAnomalyOverrides() {
	result := suite.analyzer.Anomalies(threeWeeks(), AnomalyOptions{Method: types.MethodMAD})
	require.NotEmpty(suite.T(), result.Anomalies)
	assert.Equal(suite.T(), types.MethodMAD, result.Anomalies[0].Method)

	rolling := suite.analyzer.Anomalies(threeWeeks(), AnomalyOptions{Rolling: boolPtr(true)})
	assert.Equal(suite.T(), "Rolling window anomaly detection (7-day window)", rolling.Summary)
	require.Len(suite.T(), rolling.Anomalies, 1)
	assert.Equal(suite.T(), 20, rolling.Anomalies[0].Index)
}

func (suite *AnalyzerTestSuite) TestRollingOverrideCanDisableConfigDefault() {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	a := NewAnalyzer(Options{Anomaly: AnomalyOptions{Rolling: boolPtr(true)}}, fixedClock, suite.observer, logger)

	byDefault := a.Anomalies(threeWeeks(), AnomalyOptions{})
	assert.Equal(suite.T(), "Rolling window anomaly detection (7-day window)", byDefault.Summary)

	disabled := a.Anomalies(threeWeeks(), AnomalyOptions{Rolling: boolPtr(false)})
	assert.NotContains(suite.T(), disabled.Summary, "Rolling window")
	assert.Equal(suite.T(), 21, disabled.TotalPoints)
}

func (suite *AnalyzerTestSuite) TestForecastWrapsDateErrors() {
	points := threeWeeks()
	points[20].Date = "yesterday"

	_, err := suite.analyzer.Forecast(points, ForecastOptions{})
	require.Error(suite.T(), err)
	assert.True(suite.T(), errors.Is(err, types.ErrInvalidDate))

	_, err = suite.analyzer.Comparisons(points)
	assert.True(suite.T(), errors.Is(err, types.ErrInvalidDate))
}

func (suite *AnalyzerTestSuite) TestTrendWithoutObserver() {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	a := NewAnalyzer(Options{}, fixedClock, nil, logger)

	result := a.Trend(seriesFrom("2026-01-01", 100, 110, 120, 130, 140))
	assert.Equal(suite.T(), types.TrendUp, result.Direction)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig().Analytics
	cfg.Anomaly.Rolling = true
	cfg.Forecast.Periods = 14

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, types.MethodEnsemble, opts.Anomaly.Method)
	assert.Equal(t, 2.5, opts.Anomaly.ZScoreThreshold)
	assert.Equal(t, 7, opts.Anomaly.WindowSize)
	require.NotNil(t, opts.Anomaly.Rolling)
	assert.True(t, opts.Anomaly.UseRolling())
	assert.Equal(t, 14, opts.Forecast.Periods)
	assert.Equal(t, 0.95, opts.Forecast.ConfidenceLevel)
}
