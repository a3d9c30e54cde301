package analysis

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retail-analytics/engine/types"
)

var fixedNow = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func TestCreateComparison(t *testing.T) {
	tests := []struct {
		name        string
		current     float64
		previous    float64
		pct         float64
		direction   types.TrendDirection
		significant bool
	}{
		{"significant growth", 105, 100, 5, types.TrendUp, true},
		{"small growth", 104, 100, 4, types.TrendUp, false},
		{"unchanged", 100, 100, 0, types.TrendFlat, false},
		{"zero baseline growth", 5, 0, 100, types.TrendUp, true},
		{"zero baseline loss", -5, 0, 0, types.TrendFlat, false},
		{"both zero", 0, 0, 0, types.TrendFlat, false},
		{"negative baseline", -50, -100, 50, types.TrendUp, true},
		{"decline", 80, 100, -20, types.TrendDown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmp := CreateComparison(tt.current, tt.previous)
			assert.InDelta(t, tt.pct, cmp.ChangePercent, 1e-9)
			assert.Equal(t, tt.current-tt.previous, cmp.Change)
			assert.Equal(t, tt.direction, cmp.Direction)
			assert.Equal(t, tt.significant, cmp.IsSignificant)
		})
	}
}

func weeklyPoints() []types.TimeSeriesPoint {
	return []types.TimeSeriesPoint{
		{Date: "2026-02-20", Value: 999},
		{Date: "2026-03-02", Value: 5},
		{Date: "2026-03-08", Value: 15},
		{Date: "2026-03-10", Value: 10},
		{Date: "2026-03-14", Value: 20},
		{Date: "2026-03-20", Value: 1000},
	}
}

func TestCompareWoW(t *testing.T) {
	cmp, err := NewComparator(fixedClock).CompareWoW(weeklyPoints())
	require.NoError(t, err)
	require.NotNil(t, cmp)

	assert.Equal(t, "Week-over-Week", cmp.MetricLabel)
	assert.Equal(t, 30.0, cmp.Current.Value)
	assert.Equal(t, 20.0, cmp.Previous.Value)
	assert.InDelta(t, 50.0, cmp.ChangePercent, 1e-9)
	assert.True(t, cmp.IsSignificant)
	assert.Equal(t, "Mar 8 - Mar 15, 2026", cmp.Current.PeriodLabel)
	assert.Equal(t, "Mar 1 - Mar 8, 2026", cmp.Previous.PeriodLabel)
}

func TestComparisonsWithoutBaseline(t *testing.T) {
	c := NewComparator(fixedClock)

	mom, err := c.CompareMoM(weeklyPoints())
	require.NoError(t, err)
	assert.Nil(t, mom)

	wow, err := c.CompareWoW([]types.TimeSeriesPoint{{Date: "2026-03-14", Value: 1}})
	require.NoError(t, err)
	assert.Nil(t, wow)

	empty, err := c.CompareYoY(nil)
	require.NoError(t, err)
	assert.Nil(t, empty)

	dod, err := c.CompareDoD([]types.TimeSeriesPoint{{Date: "2026-03-14", Value: 1}})
	require.NoError(t, err)
	assert.Nil(t, dod)
}

func TestCompareMoM(t *testing.T) {
	cmp, err := NewComparator(fixedClock).CompareMoM([]types.TimeSeriesPoint{
		{Date: "2026-02-01", Value: 100},
		{Date: "2026-03-01", Value: 120},
	})
	require.NoError(t, err)
	require.NotNil(t, cmp)

	assert.InDelta(t, 20.0, cmp.ChangePercent, 1e-9)
	assert.Equal(t, "February 2026", cmp.Current.PeriodLabel)
	assert.Equal(t, "January 2026", cmp.Previous.PeriodLabel)
}

func TestCompareYoY(t *testing.T) {
	cmp, err := NewComparator(fixedClock).CompareYoY([]types.TimeSeriesPoint{
		{Date: "2024-06-01", Value: 80},
		{Date: "2025-06-01", Value: 100},
	})
	require.NoError(t, err)
	require.NotNil(t, cmp)

	assert.InDelta(t, 25.0, cmp.ChangePercent, 1e-9)
	assert.Equal(t, types.TrendUp, cmp.Direction)
	assert.Equal(t, "Mar 2025 - Mar 2026", cmp.Current.PeriodLabel)
	assert.Equal(t, "Mar 2024 - Mar 2025", cmp.Previous.PeriodLabel)
}

func TestCompareDoD(t *testing.T) {
	cmp, err := NewComparator(fixedClock).CompareDoD([]types.TimeSeriesPoint{
		{Date: "2026-03-13", Value: 10},
		{Date: "2026-03-14", Value: 12},
		{Date: "2026-03-12", Value: 8},
	})
	require.NoError(t, err)
	require.NotNil(t, cmp)

	assert.Equal(t, 12.0, cmp.Current.Value)
	assert.Equal(t, 10.0, cmp.Previous.Value)
	assert.InDelta(t, 20.0, cmp.ChangePercent, 1e-9)
	assert.Equal(t, "Mar 14, 2026", cmp.Current.PeriodLabel)
	assert.Equal(t, "Mar 13, 2026", cmp.Previous.PeriodLabel)
}

func TestComparatorAll(t *testing.T) {
	all, err := NewComparator(fixedClock).All(weeklyPoints())
	require.NoError(t, err)

	assert.Nil(t, all.YoY)
	assert.Nil(t, all.MoM)
	assert.NotNil(t, all.WoW)
	assert.NotNil(t, all.DoD)

	_, err = NewComparator(fixedClock).All([]types.TimeSeriesPoint{{Date: "13/03/2026", Value: 1}})
	assert.True(t, errors.Is(err, types.ErrInvalidDate))
}

func TestAddMonthsClampsToMonthEnd(t *testing.T) {
	assert.Equal(t,
		time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC),
		addMonths(time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC), -1))
	assert.Equal(t,
		time.Date(2023, time.February, 28, 0, 0, 0, 0, time.UTC),
		addMonths(time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), -12))
	assert.Equal(t,
		time.Date(2026, time.January, 15, 12, 0, 0, 0, time.UTC),
		addMonths(fixedNow, -2))
}

func TestCAGR(t *testing.T) {
	assert.InDelta(t, 10.0, CAGR(100, 121, 2), 1e-9)
	assert.Equal(t, 0.0, CAGR(0, 121, 2))
	assert.Equal(t, 0.0, CAGR(100, 121, 0))
}

func TestGrowthRates(t *testing.T) {
	rates, err := GrowthRates([]types.TimeSeriesPoint{
		{Date: "2026-01-11", Value: 200},
		{Date: "2026-01-01", Value: 100},
	})
	require.NoError(t, err)

	assert.InDelta(t, 7.1773, rates.Daily, 1e-3)
	assert.InDelta(t, 62.45, rates.Weekly, 1e-2)
	assert.InDelta(t, 700.0, rates.Monthly, 1e-9)

	zero, err := GrowthRates([]types.TimeSeriesPoint{{Date: "2026-01-01", Value: 0}, {Date: "2026-01-05", Value: 10}})
	require.NoError(t, err)
	assert.Equal(t, types.GrowthRates{}, zero)
}
