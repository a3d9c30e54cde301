package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/retail-analytics/engine/types"
)

const namespace = "retail_analytics"

// Cache lookup outcomes
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Collector owns the Prometheus instruments of the engine. Each collector has
// its own registry so several can coexist in one process.
type Collector struct {
	registry *prometheus.Registry

	analysisDuration *prometheus.HistogramVec
	anomalies        *prometheus.CounterVec
	reports          *prometheus.CounterVec
	reportDuration   *prometheus.HistogramVec
	reportRows       *prometheus.HistogramVec
	cacheLookups     *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	wsClients        prometheus.Gauge
}

// NewCollector creates and registers every instrument, plus the Go runtime and
// process collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		analysisDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Time spent running series analytics.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"kind"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_detected_total",
			Help:      "Anomalies flagged by the detectors.",
		}, []string{"severity", "method"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Report executions by data source and outcome.",
		}, []string{"source", "status"}),
		reportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_duration_seconds",
			Help:      "End-to-end report execution time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		reportRows: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_rows",
			Help:      "Aggregated rows returned per report.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"source"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_cache_lookups_total",
			Help:      "Report cache lookups by outcome.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected websocket clients.",
		}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.analysisDuration,
		c.anomalies,
		c.reports,
		c.reportDuration,
		c.reportRows,
		c.cacheLookups,
		c.httpRequests,
		c.httpDuration,
		c.wsClients,
	)
	return c
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the scrape endpoint
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveAnalysis records the duration of one analytics call
func (c *Collector) ObserveAnalysis(kind string, duration time.Duration) {
	c.analysisDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveAnomalies counts detections by severity and method
func (c *Collector) ObserveAnomalies(anomalies []types.Anomaly) {
	for _, a := range anomalies {
		c.anomalies.WithLabelValues(string(a.Severity), string(a.Method)).Inc()
	}
}

// ObserveReport records one report execution
func (c *Collector) ObserveReport(source types.DataSource, status string, duration time.Duration, rows int) {
	c.reports.WithLabelValues(string(source), status).Inc()
	c.reportDuration.WithLabelValues(string(source)).Observe(duration.Seconds())
	if status == "ok" {
		c.reportRows.WithLabelValues(string(source)).Observe(float64(rows))
	}
}

// ObserveCacheLookup counts a cache hit, miss or error
func (c *Collector) ObserveCacheLookup(result string) {
	c.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveRequest records one served HTTP request
func (c *Collector) ObserveRequest(method, route string, code int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	c.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// SetWebSocketClients reports the number of connected websocket clients
func (c *Collector) SetWebSocketClients(n int) {
	c.wsClients.Set(float64(n))
}
