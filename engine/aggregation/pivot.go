package aggregation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/retail-analytics/engine/formulas"
	"github.com/retail-analytics/engine/types"
)

// keySeparator joins resolved dimension values into a group key. Values are
// escaped first so the separator never appears inside a part.
const keySeparator = "|"

var keyEscaper = strings.NewReplacer(`\`, `\\`, keySeparator, `\`+keySeparator)

// Request selects how fact rows are pivoted
type Request struct {
	Dimensions  []types.Dimension
	Metrics     []types.Metric
	Granularity types.Granularity
	Lookups     Lookups
}

// Aggregator pivots fact rows into report rows and time series
type Aggregator interface {
	Aggregate(rows []types.FactRow, req Request) (*types.ReportResult, error)
	TimeSeries(rows []types.FactRow, metric types.Metric, granularity types.Granularity) ([]types.TimeSeriesPoint, error)
}

// aggregator implements Aggregator on top of a metric registry
type aggregator struct {
	registry *formulas.Registry
	log      logrus.FieldLogger
}

// NewAggregator creates a new pivot engine
func NewAggregator(registry *formulas.Registry, log logrus.FieldLogger) Aggregator {
	return &aggregator{
		registry: registry,
		log:      log.WithField("component", "aggregator"),
	}
}

type group struct {
	values map[types.Dimension]string
	at     time.Time
	rows   []types.FactRow
}

// Aggregate groups rows by their resolved dimension key, evaluates every
// requested metric per group and sums the group values into totals.
func (a *aggregator) Aggregate(rows []types.FactRow, req Request) (*types.ReportResult, error) {
	start := time.Now()

	if len(rows) == 0 {
		return &types.ReportResult{
			Rows:            []types.AggregatedRow{},
			Totals:          map[types.Metric]float64{},
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	resolver := NewResolver(req.Lookups, req.Granularity)

	var order []string
	groups := make(map[string]*group)
	parts := make([]string, len(req.Dimensions))

	for i, row := range rows {
		values := make(map[types.Dimension]string, len(req.Dimensions))
		var at time.Time
		for j, dim := range req.Dimensions {
			res, err := resolver.Resolve(dim, row)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve %s on row %d: %w", dim, i, err)
			}
			if dim == types.DimensionDate && j == 0 {
				at = res.At
			}
			values[dim] = res.String()
			parts[j] = keyEscaper.Replace(res.String())
		}

		key := strings.Join(parts, keySeparator)
		g, ok := groups[key]
		if !ok {
			g = &group{values: values, at: at}
			groups[key] = g
			order = append(order, key)
		}
		g.rows = append(g.rows, row)
	}

	totals := make(map[types.Metric]float64, len(req.Metrics))
	for _, m := range req.Metrics {
		totals[m] = 0
	}

	out := make([]types.AggregatedRow, 0, len(order))
	sortKeys := make([]time.Time, 0, len(order))
	for _, key := range order {
		g := groups[key]
		values := a.registry.EvaluateAll(req.Metrics, g.rows)
		for m, v := range values {
			totals[m] += v
		}
		out = append(out, types.AggregatedRow{Dimensions: g.values, Values: values})
		sortKeys = append(sortKeys, g.at)
	}

	sortRows(out, sortKeys, req.Dimensions)

	result := &types.ReportResult{
		Rows:            out,
		Totals:          totals,
		RowCount:        len(out),
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}

	a.log.WithFields(logrus.Fields{
		"input_rows":  len(rows),
		"groups":      len(out),
		"dimensions":  len(req.Dimensions),
		"metrics":     len(req.Metrics),
		"duration_ms": result.ExecutionTimeMs,
	}).Debug("Aggregated fact rows")

	return result, nil
}

// sortRows orders rows newest first when the leading dimension is the date,
// otherwise alphabetically by the leading dimension. Ties keep first-seen order.
func sortRows(rows []types.AggregatedRow, at []time.Time, dims []types.Dimension) {
	if len(dims) == 0 || len(rows) < 2 {
		return
	}

	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}

	first := dims[0]
	if first == types.DimensionDate {
		sort.SliceStable(idx, func(i, j int) bool {
			return at[idx[i]].After(at[idx[j]])
		})
	} else {
		c := collate.New(language.English)
		sort.SliceStable(idx, func(i, j int) bool {
			return c.CompareString(rows[idx[i]].Dimensions[first], rows[idx[j]].Dimensions[first]) < 0
		})
	}

	sorted := make([]types.AggregatedRow, len(rows))
	for i, k := range idx {
		sorted[i] = rows[k]
	}
	copy(rows, sorted)
}

// TimeSeries buckets rows by date and evaluates one metric per bucket. Points
// are in ascending date order and dated by the bucket start.
func (a *aggregator) TimeSeries(rows []types.FactRow, metric types.Metric, granularity types.Granularity) ([]types.TimeSeriesPoint, error) {
	if granularity == "" {
		granularity = types.GranularityDay
	}

	buckets := make(map[time.Time][]types.FactRow)
	for i, row := range rows {
		t, err := rowDate(row)
		if err != nil {
			return nil, fmt.Errorf("failed to read date of row %d: %w", i, err)
		}
		_, start := Bucket(t, granularity)
		buckets[start] = append(buckets[start], row)
	}

	starts := make([]time.Time, 0, len(buckets))
	for start := range buckets {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	points := make([]types.TimeSeriesPoint, 0, len(starts))
	for _, start := range starts {
		points = append(points, types.TimeSeriesPoint{
			Date:  start.Format("2006-01-02"),
			Value: a.registry.Evaluate(metric, buckets[start]),
		})
	}

	a.log.WithFields(logrus.Fields{
		"metric": metric,
		"points": len(points),
	}).Debug("Built time series")

	return points, nil
}
