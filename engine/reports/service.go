package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/retail-analytics/engine/aggregation"
	"github.com/retail-analytics/engine/cache"
	"github.com/retail-analytics/engine/formulas"
	"github.com/retail-analytics/engine/metrics"
	"github.com/retail-analytics/engine/storage"
	"github.com/retail-analytics/engine/types"
)

var (
	// ErrInvalidQuery is returned when a report query cannot be executed as given
	ErrInvalidQuery = errors.New("invalid report query")
	// ErrNotFound is returned for an unknown report template
	ErrNotFound = errors.New("not found")
)

// Report outcomes passed to the Recorder
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Recorder receives report and cache telemetry
type Recorder interface {
	ObserveReport(source types.DataSource, status string, duration time.Duration, rows int)
	ObserveCacheLookup(result string)
}

// Options bounds and defaults report execution
type Options struct {
	MaxLimit           int
	DefaultSource      types.DataSource
	DefaultGranularity types.Granularity
	CacheTTL           time.Duration
}

// Service executes pivot reports over the fact views
type Service interface {
	Execute(ctx context.Context, query types.ReportQuery) (*types.ReportResult, error)
	Templates() []types.ReportTemplate
	ExecuteTemplate(ctx context.Context, id string, params TemplateParams) (*types.ReportResult, error)
	Series(ctx context.Context, query types.ReportQuery, metric types.Metric) ([]types.TimeSeriesPoint, error)
}

// service implements Service
type service struct {
	source     storage.FactSource
	aggregator aggregation.Aggregator
	registry   *formulas.Registry
	cache      cache.ReportCache
	recorder   Recorder
	opts       Options
	log        logrus.FieldLogger
}

// NewService creates a report service. cache and recorder may be nil.
func NewService(
	source storage.FactSource,
	aggregator aggregation.Aggregator,
	registry *formulas.Registry,
	reportCache cache.ReportCache,
	recorder Recorder,
	opts Options,
	log logrus.FieldLogger,
) Service {
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 10000
	}
	if opts.DefaultSource == "" {
		opts.DefaultSource = types.DataSourceSales
	}
	if opts.DefaultGranularity == "" {
		opts.DefaultGranularity = types.GranularityDay
	}
	if reportCache == nil {
		reportCache = cache.NoopCache{}
	}
	return &service{
		source:     source,
		aggregator: aggregator,
		registry:   registry,
		cache:      reportCache,
		recorder:   recorder,
		opts:       opts,
		log:        log.WithField("component", "report-service"),
	}
}

// normalize fills defaults and clamps the limit to the configured maximum
func (s *service) normalize(q types.ReportQuery) types.ReportQuery {
	if q.DataSource == "" {
		q.DataSource = s.opts.DefaultSource
	}
	if q.Granularity == "" {
		q.Granularity = s.opts.DefaultGranularity
	}
	if q.Limit <= 0 || q.Limit > s.opts.MaxLimit {
		q.Limit = s.opts.MaxLimit
	}
	return q
}

// validate checks q and builds the fact filter it describes
func (s *service) validate(q types.ReportQuery) (types.FactFilter, error) {
	filter := types.FactFilter{
		Source:     q.DataSource,
		StoreID:    q.StoreID,
		LocationID: q.LocationID,
		Limit:      q.Limit,
	}

	if len(q.Dimensions) == 0 {
		return filter, fmt.Errorf("%w: at least one dimension is required", ErrInvalidQuery)
	}
	if len(q.Metrics) == 0 {
		return filter, fmt.Errorf("%w: at least one metric is required", ErrInvalidQuery)
	}
	if !q.DataSource.Valid() {
		return filter, fmt.Errorf("%w: unknown data source %q", ErrInvalidQuery, q.DataSource)
	}
	if !q.Granularity.Valid() {
		return filter, fmt.Errorf("%w: unknown granularity %q", ErrInvalidQuery, q.Granularity)
	}
	for _, d := range q.Dimensions {
		if !lo.Contains(types.Dimensions, d) {
			return filter, fmt.Errorf("%w: unknown dimension %q", ErrInvalidQuery, d)
		}
	}
	for _, m := range q.Metrics {
		if !s.registry.Known(m) {
			return filter, fmt.Errorf("%w: unknown metric %q", ErrInvalidQuery, m)
		}
	}

	if q.DateFrom != "" {
		from, err := types.ParseDate(q.DateFrom)
		if err != nil {
			return filter, fmt.Errorf("%w: date_from: %w", ErrInvalidQuery, err)
		}
		filter.DateFrom = &from
	}
	if q.DateTo != "" {
		to, err := types.ParseDate(q.DateTo)
		if err != nil {
			return filter, fmt.Errorf("%w: date_to: %w", ErrInvalidQuery, err)
		}
		filter.DateTo = &to
	}
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateFrom.After(*filter.DateTo) {
		return filter, fmt.Errorf("%w: date_from is after date_to", ErrInvalidQuery)
	}
	return filter, nil
}

// Execute runs the query: validate, consult the cache, fetch facts, resolve
// names and aggregate. Successful results are cached under the query key.
func (s *service) Execute(ctx context.Context, query types.ReportQuery) (*types.ReportResult, error) {
	start := time.Now()
	q := s.normalize(query)

	result, err := s.execute(ctx, q, start)
	if err != nil {
		s.record(q.DataSource, StatusError, time.Since(start), 0)
		return nil, err
	}
	s.record(q.DataSource, StatusOK, time.Since(start), result.RowCount)
	return result, nil
}

func (s *service) execute(ctx context.Context, q types.ReportQuery, start time.Time) (*types.ReportResult, error) {
	filter, err := s.validate(q)
	if err != nil {
		return nil, err
	}

	key := cache.Key(q)
	cached, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		s.observeCache(metrics.CacheError)
		s.log.WithError(err).Warn("Report cache lookup failed")
	case ok:
		s.observeCache(metrics.CacheHit)
		s.log.WithField("report_id", cached.ID).Debug("Serving cached report")
		return cached, nil
	default:
		s.observeCache(metrics.CacheMiss)
	}

	rows, err := s.source.ListFactRows(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fact rows: %w", err)
	}

	result, err := s.aggregator.Aggregate(rows, aggregation.Request{
		Dimensions:  q.Dimensions,
		Metrics:     q.Metrics,
		Granularity: q.Granularity,
		Lookups:     s.lookups(ctx, q.Dimensions, rows),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate report: %w", err)
	}

	result.ID = uuid.NewString()
	result.ExecutionTimeMs = time.Since(start).Milliseconds()

	if err := s.cache.Set(ctx, key, result, s.opts.CacheTTL); err != nil {
		s.log.WithError(err).Warn("Failed to cache report")
	}

	s.log.WithFields(logrus.Fields{
		"report_id":   result.ID,
		"source":      q.DataSource,
		"fact_rows":   len(rows),
		"rows":        result.RowCount,
		"duration_ms": result.ExecutionTimeMs,
	}).Info("Report executed")

	return result, nil
}

// lookups fetches names for the store and location ids present in rows. A
// failed lookup degrades to the names carried by the rows themselves.
func (s *service) lookups(ctx context.Context, dims []types.Dimension, rows []types.FactRow) aggregation.Lookups {
	var lookups aggregation.Lookups

	if lo.Contains(dims, types.DimensionStore) {
		names, err := s.source.StoreNames(ctx, aggregation.DistinctValues(rows, "store_id"))
		if err != nil {
			s.log.WithError(err).Warn("Store lookup failed, using row names")
		}
		lookups.Stores = names
	}
	if lo.Contains(dims, types.DimensionLocation) {
		names, err := s.source.LocationNames(ctx, aggregation.DistinctValues(rows, "location_id"))
		if err != nil {
			s.log.WithError(err).Warn("Location lookup failed, using row names")
		}
		lookups.Locations = names
	}
	return lookups
}

// Series fetches the query's facts and buckets one metric into a time series
func (s *service) Series(ctx context.Context, query types.ReportQuery, metric types.Metric) ([]types.TimeSeriesPoint, error) {
	q := s.normalize(query)
	if len(q.Dimensions) == 0 {
		q.Dimensions = []types.Dimension{types.DimensionDate}
	}
	if len(q.Metrics) == 0 {
		q.Metrics = []types.Metric{metric}
	}

	filter, err := s.validate(q)
	if err != nil {
		return nil, err
	}
	if !s.registry.Known(metric) {
		return nil, fmt.Errorf("%w: unknown metric %q", ErrInvalidQuery, metric)
	}

	rows, err := s.source.ListFactRows(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fact rows: %w", err)
	}

	points, err := s.aggregator.TimeSeries(rows, metric, q.Granularity)
	if err != nil {
		return nil, fmt.Errorf("failed to build time series: %w", err)
	}
	return points, nil
}

func (s *service) observeCache(result string) {
	if s.recorder != nil {
		s.recorder.ObserveCacheLookup(result)
	}
}

func (s *service) record(source types.DataSource, status string, duration time.Duration, rows int) {
	if s.recorder != nil {
		s.recorder.ObserveReport(source, status, duration, rows)
	}
}
