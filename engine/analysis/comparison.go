package analysis

import (
	"math"
	"sort"
	"time"

	"github.com/retail-analytics/engine/types"
)

// SignificanceThreshold is the absolute percent change at which a comparison
// becomes significant
const SignificanceThreshold = 5.0

// PercentageChange is the change from previous to current relative to
// |previous|. A zero previous value yields 100 for growth and 0 otherwise.
func PercentageChange(current, previous float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return (current - previous) / math.Abs(previous) * 100
}

// CreateComparison builds an unlabeled comparison of two values
func CreateComparison(current, previous float64) types.PeriodComparison {
	pct := PercentageChange(current, previous)

	direction := types.TrendFlat
	switch {
	case math.Abs(pct) < 1:
	case pct > 0:
		direction = types.TrendUp
	default:
		direction = types.TrendDown
	}

	return types.PeriodComparison{
		Current:       types.PeriodValue{Value: current},
		Previous:      types.PeriodValue{Value: previous},
		Change:        current - previous,
		ChangePercent: pct,
		Direction:     direction,
		IsSignificant: math.Abs(pct) >= SignificanceThreshold,
	}
}

// Comparator compares fixed calendar windows ending at the current time
type Comparator struct {
	now func() time.Time
}

// NewComparator creates a comparator reading the time from now. A nil clock
// uses time.Now.
func NewComparator(now func() time.Time) *Comparator {
	if now == nil {
		now = time.Now
	}
	return &Comparator{now: now}
}

type datedValue struct {
	at    time.Time
	value float64
}

func parsePoints(points []types.TimeSeriesPoint) ([]datedValue, error) {
	out := make([]datedValue, len(points))
	for i, p := range points {
		t, err := types.ParseDate(p.Date)
		if err != nil {
			return nil, err
		}
		out[i] = datedValue{at: t, value: p.Value}
	}
	return out, nil
}

// windows sums the current window [currentFrom, now] and the previous window
// [previousFrom, currentFrom). ok is false when the previous window is empty.
func windows(points []datedValue, now, currentFrom, previousFrom time.Time) (current, previous float64, ok bool) {
	for _, p := range points {
		switch {
		case !p.at.Before(currentFrom) && !p.at.After(now):
			current += p.value
		case !p.at.Before(previousFrom) && p.at.Before(currentFrom):
			previous += p.value
			ok = true
		}
	}
	return current, previous, ok
}

func (c *Comparator) compareWindow(points []types.TimeSeriesPoint, label string, currentFrom, previousFrom, now time.Time, currentLabel, previousLabel string) (*types.PeriodComparison, error) {
	if len(points) == 0 {
		return nil, nil
	}
	parsed, err := parsePoints(points)
	if err != nil {
		return nil, err
	}
	current, previous, ok := windows(parsed, now, currentFrom, previousFrom)
	if !ok {
		return nil, nil
	}

	cmp := CreateComparison(current, previous)
	cmp.MetricLabel = label
	cmp.Current.PeriodLabel = currentLabel
	cmp.Previous.PeriodLabel = previousLabel
	return &cmp, nil
}

// CompareWoW compares the last seven days with the seven days before them
func (c *Comparator) CompareWoW(points []types.TimeSeriesPoint) (*types.PeriodComparison, error) {
	now := c.now().UTC()
	oneWeekAgo := now.AddDate(0, 0, -7)
	twoWeeksAgo := now.AddDate(0, 0, -14)

	return c.compareWindow(points, "Week-over-Week", oneWeekAgo, twoWeeksAgo, now,
		oneWeekAgo.Format("Jan 2")+" - "+now.Format("Jan 2, 2006"),
		twoWeeksAgo.Format("Jan 2")+" - "+oneWeekAgo.Format("Jan 2, 2006"),
	)
}

// CompareMoM compares the last month with the month before it
func (c *Comparator) CompareMoM(points []types.TimeSeriesPoint) (*types.PeriodComparison, error) {
	now := c.now().UTC()
	oneMonthAgo := addMonths(now, -1)
	twoMonthsAgo := addMonths(now, -2)

	return c.compareWindow(points, "Month-over-Month", oneMonthAgo, twoMonthsAgo, now,
		oneMonthAgo.Format("January 2006"),
		twoMonthsAgo.Format("January 2006"),
	)
}

// CompareYoY compares the last year with the year before it
func (c *Comparator) CompareYoY(points []types.TimeSeriesPoint) (*types.PeriodComparison, error) {
	now := c.now().UTC()
	oneYearAgo := addMonths(now, -12)
	twoYearsAgo := addMonths(now, -24)

	return c.compareWindow(points, "Year-over-Year", oneYearAgo, twoYearsAgo, now,
		oneYearAgo.Format("Jan 2006")+" - "+now.Format("Jan 2006"),
		twoYearsAgo.Format("Jan 2006")+" - "+oneYearAgo.Format("Jan 2006"),
	)
}

// CompareDoD compares the latest point with the one before it
func (c *Comparator) CompareDoD(points []types.TimeSeriesPoint) (*types.PeriodComparison, error) {
	if len(points) < 2 {
		return nil, nil
	}
	parsed, err := parsePoints(points)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(parsed, func(i, j int) bool { return parsed[i].at.After(parsed[j].at) })

	latest, prior := parsed[0], parsed[1]
	cmp := CreateComparison(latest.value, prior.value)
	cmp.MetricLabel = "Day-over-Day"
	cmp.Current.PeriodLabel = latest.at.Format("Jan 2, 2006")
	cmp.Previous.PeriodLabel = prior.at.Format("Jan 2, 2006")
	return &cmp, nil
}

// All runs every calendar comparison over the same series
func (c *Comparator) All(points []types.TimeSeriesPoint) (types.PeriodComparisons, error) {
	var out types.PeriodComparisons
	var err error
	if out.YoY, err = c.CompareYoY(points); err != nil {
		return out, err
	}
	if out.MoM, err = c.CompareMoM(points); err != nil {
		return out, err
	}
	if out.WoW, err = c.CompareWoW(points); err != nil {
		return out, err
	}
	if out.DoD, err = c.CompareDoD(points); err != nil {
		return out, err
	}
	return out, nil
}

// addMonths shifts t by n calendar months, clamping the day to the length of
// the target month.
func addMonths(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	target := first.AddDate(0, n, 0)
	lastDay := target.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(target.Year(), target.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// CAGR is the compound annual growth rate in percent
func CAGR(start, end, years float64) float64 {
	if start <= 0 || years <= 0 {
		return 0
	}
	return finiteOrZero((math.Pow(end/start, 1/years) - 1) * 100)
}

// GrowthRates compounds the growth between the earliest and latest points into
// daily, weekly and 30-day rates.
func GrowthRates(points []types.TimeSeriesPoint) (types.GrowthRates, error) {
	if len(points) < 2 {
		return types.GrowthRates{}, nil
	}
	parsed, err := parsePoints(points)
	if err != nil {
		return types.GrowthRates{}, err
	}
	sort.SliceStable(parsed, func(i, j int) bool { return parsed[i].at.Before(parsed[j].at) })

	first, last := parsed[0], parsed[len(parsed)-1]
	days := math.Trunc(last.at.Sub(first.at).Hours() / 24)
	if days == 0 || first.value == 0 {
		return types.GrowthRates{}, nil
	}

	growth := 1 + (last.value-first.value)/first.value
	rate := func(span float64) float64 {
		return finiteOrZero((math.Pow(growth, span/days) - 1) * 100)
	}
	return types.GrowthRates{Daily: rate(1), Weekly: rate(7), Monthly: rate(30)}, nil
}
