package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retail-analytics/engine/types"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer

	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))

	err := cmd.Execute()
	return out.String(), err
}

func spikeSeries(t *testing.T) string {
	values := []float64{10, 11, 9, 10, 200, 10, 11, 9}
	points := make([]string, len(values))
	for i, v := range values {
		points[i] = fmt.Sprintf(`{"date":"2026-03-%02d","value":%g}`, i+1, v)
	}
	return writeFile(t, "series.json", "["+strings.Join(points, ",")+"]")
}

func TestReportCSV(t *testing.T) {
	facts := writeFile(t, "facts.json", `[
		{"sale_date":"2026-01-05","store_name":"Mall","total_revenue":300,"order_count":6},
		{"sale_date":"2026-01-06","store_name":"Annex","total_revenue":100.5}
	]`)

	out, err := run(t, "report", facts, "-d", "store", "-m", "revenue,orders", "-f", "csv")
	require.NoError(t, err)
	assert.Equal(t, "store,Revenue,Orders\nAnnex,$100.50,1\nMall,$300.00,6\nTotal,$400.50,7\n", out)
}

func TestReportToFile(t *testing.T) {
	facts := writeFile(t, "facts.json", `[{"sale_date":"2026-01-05","total_revenue":300}]`)
	output := filepath.Join(t.TempDir(), "out", "report.json")

	_, err := run(t, "report", facts, "-o", output)
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)

	var result types.ReportResult
	require.NoError(t, json.Unmarshal(data, &result))
	require.Equal(t, 1, result.RowCount)
	assert.Equal(t, "Jan 5, 2026", result.Rows[0].Dimensions[types.DimensionDate])
	assert.Equal(t, 300.0, result.Totals[types.MetricRevenue])
}

func TestReportUnknownMetric(t *testing.T) {
	facts := writeFile(t, "facts.json", `[]`)

	_, err := run(t, "report", facts, "-m", "ebitda")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownMetric))
}

func TestAnomalies(t *testing.T) {
	out, err := run(t, "anomalies", spikeSeries(t))
	require.NoError(t, err)

	var result types.AnomalyResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.NotEmpty(t, result.Anomalies)
	assert.Equal(t, 4, result.Anomalies[0].Index)
	assert.Equal(t, 8, result.TotalPoints)
}

func TestTrendAcceptsWrappedSeries(t *testing.T) {
	series := writeFile(t, "series.json", `{"points":[
		{"date":"2026-03-01","value":100},
		{"date":"2026-03-02","value":200},
		{"date":"2026-03-03","value":300}]}`)

	out, err := run(t, "trend", series)
	require.NoError(t, err)

	var body struct {
		Trend types.TrendResult `json:"trend"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, types.TrendUp, body.Trend.Direction)
}

func TestForecast(t *testing.T) {
	out, err := run(t, "forecast", spikeSeries(t), "--periods", "5")
	require.NoError(t, err)

	var body struct {
		Forecast    []types.ForecastPoint   `json:"forecast"`
		Seasonality []types.SeasonalPattern `json:"seasonality"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	require.Len(t, body.Forecast, 5)
	assert.Equal(t, "2026-03-09", body.Forecast[0].Date)
	assert.NotEmpty(t, body.Seasonality)
}

func TestCompareRejectsBadReferenceDate(t *testing.T) {
	_, err := run(t, "compare", spikeSeries(t), "--now", "tomorrow")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidDate))
}

func TestCompare(t *testing.T) {
	out, err := run(t, "compare", spikeSeries(t), "--now", "2026-03-08")
	require.NoError(t, err)

	var body struct {
		Comparisons types.PeriodComparisons `json:"comparisons"`
		Growth      types.GrowthRates       `json:"growth"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.NotNil(t, body.Comparisons.DoD)
}
