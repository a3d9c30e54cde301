package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/retail-analytics/engine/analysis"
	"github.com/retail-analytics/engine/exporter"
	"github.com/retail-analytics/engine/reports"
	"github.com/retail-analytics/engine/schema"
	"github.com/retail-analytics/engine/types"
)

const maxBodyBytes = 4 << 20

// seriesRequest is the body of the series analytics endpoints
type seriesRequest struct {
	Points   []types.TimeSeriesPoint  `json:"points"`
	Anomaly  analysis.AnomalyOptions  `json:"anomaly"`
	Forecast analysis.ForecastOptions `json:"forecast"`
}

// trendResponse adds the smoothing and reversal extras to a trend
type trendResponse struct {
	Trend         types.TrendResult   `json:"trend"`
	MovingAverage []float64           `json:"moving_average"`
	Exponential   []float64           `json:"exponential_average"`
	RateOfChange  []float64           `json:"rate_of_change"`
	Changes       []types.TrendChange `json:"changes"`
}

type forecastResponse struct {
	Forecast    []types.ForecastPoint   `json:"forecast"`
	Seasonality []types.SeasonalPattern `json:"seasonality"`
}

type comparisonsResponse struct {
	Comparisons types.PeriodComparisons `json:"comparisons"`
	Growth      types.GrowthRates       `json:"growth"`
}

// decodeBody reads the request body, validates it against the named schema
// and unmarshals it into dst.
func (s *server) decodeBody(w http.ResponseWriter, r *http.Request, schemaName string, dst interface{}) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return &schema.ValidationError{Schema: schemaName, Problems: []string{"unreadable body: " + err.Error()}}
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if s.deps.Validator != nil {
		if err := s.deps.Validator.Validate(schemaName, body); err != nil {
			return err
		}
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &schema.ValidationError{Schema: schemaName, Problems: []string{err.Error()}}
	}
	return nil
}

// writeServiceError maps engine errors onto HTTP status codes
func (s *server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *schema.ValidationError
	switch {
	case errors.As(err, &validationErr),
		errors.Is(err, reports.ErrInvalidQuery),
		errors.Is(err, types.ErrInvalidDate),
		errors.Is(err, exporter.ErrUnsupportedFormat):
		s.writeErrorResponse(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, reports.ErrNotFound):
		s.writeErrorResponse(w, http.StatusNotFound, err.Error())
	default:
		s.log.WithError(err).WithFields(logrus.Fields{
			"request_id": requestID(r.Context()),
			"path":       r.URL.Path,
		}).Error("Request failed")
		s.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
	}
}

// Report handlers

func (s *server) handleReportQuery(w http.ResponseWriter, r *http.Request) {
	var query types.ReportQuery
	if err := s.decodeBody(w, r, schema.ReportQuery, &query); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	result, err := s.deps.Reports.Execute(r.Context(), query)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.hub.NotifyReportGenerated(query, result)
	s.writeJSONResponse(w, http.StatusOK, result)
}

func (s *server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates := s.deps.Reports.Templates()
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"templates": templates,
		"count":     len(templates),
	})
}

func (s *server) handleExecuteTemplate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var params reports.TemplateParams
	if err := s.decodeBody(w, r, schema.TemplateRequest, &params); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	result, err := s.deps.Reports.ExecuteTemplate(r.Context(), id, params)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if query, err := reports.Template(id, params); err == nil {
		s.hub.NotifyReportGenerated(query, result)
	}
	s.writeJSONResponse(w, http.StatusOK, result)
}

func (s *server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = exporter.FormatCSV
	}
	if format != exporter.FormatCSV && format != exporter.FormatJSON {
		s.writeServiceError(w, r, fmt.Errorf("%w: %q", exporter.ErrUnsupportedFormat, format))
		return
	}

	var query types.ReportQuery
	if err := s.decodeBody(w, r, schema.ReportQuery, &query); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	result, err := s.deps.Reports.Execute(r.Context(), query)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", exporter.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "report-"+result.ID+"."+format))
	w.WriteHeader(http.StatusOK)
	if err := s.deps.Exporter.Export(w, format, query, result); err != nil {
		s.log.WithError(err).WithField("report_id", result.ID).Error("Failed to write export")
	}
}

func (s *server) handleReportSeries(w http.ResponseWriter, r *http.Request) {
	metric := types.Metric(mux.Vars(r)["metric"])

	var query types.ReportQuery
	if err := s.decodeBody(w, r, schema.TemplateRequest, &query); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	points, err := s.deps.Reports.Series(r.Context(), query, metric)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"metric": metric,
		"points": points,
	})
}

// Series analytics handlers

func (s *server) decodeSeries(w http.ResponseWriter, r *http.Request) (*seriesRequest, bool) {
	var req seriesRequest
	if err := s.decodeBody(w, r, schema.SeriesRequest, &req); err != nil {
		s.writeServiceError(w, r, err)
		return nil, false
	}
	return &req, true
}

func (s *server) handleTrend(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSeries(w, r)
	if !ok {
		return
	}

	values := types.Values(req.Points)
	s.writeJSONResponse(w, http.StatusOK, trendResponse{
		Trend:         s.deps.Analyzer.Trend(req.Points),
		MovingAverage: analysis.SMA(values, analysis.DefaultWindowSize),
		Exponential:   analysis.EMA(values, analysis.DefaultWindowSize),
		RateOfChange:  analysis.ROC(values, analysis.DefaultWindowSize),
		Changes:       analysis.DetectTrendChanges(values, analysis.DefaultTrendChangeSensitivity),
	})
}

func (s *server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSeries(w, r)
	if !ok {
		return
	}

	result := s.deps.Analyzer.Anomalies(req.Points, req.Anomaly)
	s.hub.NotifyAnomalies(result)
	s.writeJSONResponse(w, http.StatusOK, result)
}

func (s *server) handleForecast(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSeries(w, r)
	if !ok {
		return
	}

	forecast, err := s.deps.Analyzer.Forecast(req.Points, req.Forecast)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	seasonality, err := analysis.DetectSeasonality(req.Points)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, forecastResponse{Forecast: forecast, Seasonality: seasonality})
}

func (s *server) handleComparisons(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSeries(w, r)
	if !ok {
		return
	}

	comparisons, err := s.deps.Analyzer.Comparisons(req.Points)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	growth, err := analysis.GrowthRates(req.Points)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, comparisonsResponse{Comparisons: comparisons, Growth: growth})
}

func (s *server) handleSummary(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSeries(w, r)
	if !ok {
		return
	}

	summary, err := s.deps.Analyzer.Summarize(r.Context(), req.Points)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.hub.NotifyAnomalies(summary.Anomalies)
	s.writeJSONResponse(w, http.StatusOK, summary)
}
