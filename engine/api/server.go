package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/retail-analytics/engine/analysis"
	"github.com/retail-analytics/engine/config"
	"github.com/retail-analytics/engine/exporter"
	"github.com/retail-analytics/engine/metrics"
	"github.com/retail-analytics/engine/reports"
	"github.com/retail-analytics/engine/schema"
)

// RequestIDHeader carries the per-request id on requests and responses
const RequestIDHeader = "X-Request-ID"

type contextKey string

const requestIDKey contextKey = "request_id"

// Server provides the HTTP API of the analytics engine
type Server interface {
	Start(ctx context.Context) error
	Stop() error
	Handler() http.Handler
}

// Pinger reports whether the fact database is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the components served by the API. Database and Probe may be nil.
type Dependencies struct {
	Reports   reports.Service
	Analyzer  analysis.Analyzer
	Validator *schema.Validator
	Exporter  *exporter.ReportExporter
	Collector *metrics.Collector
	Probe     *metrics.SystemProbe
	Database  Pinger
	CacheTTL  time.Duration
}

// server implements the API server
type server struct {
	cfg        config.ServerConfig
	deps       Dependencies
	hub        *WSHub
	upgrader   websocket.Upgrader
	router     *mux.Router
	httpServer *http.Server
	log        logrus.FieldLogger
}

// NewServer creates a new API server instance
func NewServer(cfg config.ServerConfig, deps Dependencies, log logrus.FieldLogger) Server {
	s := &server{
		cfg:  cfg,
		deps: deps,
		log:  log.WithField("component", "api-server"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	var onClients func(int)
	if deps.Collector != nil {
		onClients = deps.Collector.SetWebSocketClients
	}
	s.hub = NewWSHub(onClients, log)
	s.router = s.setupRoutes()
	return s
}

// Handler returns the routed handler with every middleware applied
func (s *server) Handler() http.Handler {
	return s.router
}

// Start initializes and starts the HTTP API server
func (s *server) Start(ctx context.Context) error {
	s.log.Info("Starting API server")

	if err := s.hub.Run(ctx); err != nil {
		return fmt.Errorf("failed to start websocket hub: %w", err)
	}

	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	go func() {
		s.log.WithField("addr", s.httpServer.Addr).Info("API server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("API server failed")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP API server
func (s *server) Stop() error {
	s.log.Info("Stopping API server")

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.hub.Stop()

	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.WithError(err).Error("Failed to shutdown API server gracefully")
		return err
	}

	s.log.Info("API server stopped")
	return nil
}

// setupRoutes configures all HTTP routes and middleware
func (s *server) setupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.Use(s.requestIDMiddleware)
	router.Use(s.enableCORS)
	router.Use(s.loggingMiddleware)
	router.Use(s.errorHandlingMiddleware)

	api := router.PathPrefix("/api").Subrouter()

	// Report endpoints
	reportRoutes := api.PathPrefix("/reports").Subrouter()
	reportRoutes.Use(s.cacheControl)
	reportRoutes.HandleFunc("/query", s.handleReportQuery).Methods("POST", "OPTIONS")
	reportRoutes.HandleFunc("/templates", s.handleListTemplates).Methods("GET", "OPTIONS")
	reportRoutes.HandleFunc("/templates/{id}", s.handleExecuteTemplate).Methods("POST", "OPTIONS")
	reportRoutes.HandleFunc("/export", s.handleExport).Methods("POST", "OPTIONS")
	reportRoutes.HandleFunc("/series/{metric}", s.handleReportSeries).Methods("POST", "OPTIONS")

	// Series analytics endpoints
	api.HandleFunc("/analytics/trend", s.handleTrend).Methods("POST", "OPTIONS")
	api.HandleFunc("/analytics/anomalies", s.handleAnomalies).Methods("POST", "OPTIONS")
	api.HandleFunc("/analytics/forecast", s.handleForecast).Methods("POST", "OPTIONS")
	api.HandleFunc("/analytics/comparisons", s.handleComparisons).Methods("POST", "OPTIONS")
	api.HandleFunc("/analytics/summary", s.handleSummary).Methods("POST", "OPTIONS")

	// WebSocket endpoint for real-time updates
	api.HandleFunc("/ws", s.hub.HandleWebSocketConnection(&s.upgrader))

	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.deps.Collector != nil {
		router.Handle("/metrics", s.deps.Collector.Handler()).Methods("GET")
	}

	return router
}

// requestIDMiddleware propagates or assigns X-Request-ID
func (s *server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// enableCORS adds CORS headers to responses
func (s *server) enableCORS(next http.Handler) http.Handler {
	origin := s.cfg.CORSOrigin
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, X-Request-ID")
		w.Header().Set("Access-Control-Expose-Headers", RequestIDHeader)
		w.Header().Set("Access-Control-Max-Age", "86400")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests and records their metrics
func (s *server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)
		route := routeTemplate(r)
		if s.deps.Collector != nil {
			s.deps.Collector.ObserveRequest(r.Method, route, wrapper.statusCode, duration)
		}

		s.log.WithFields(logrus.Fields{
			"request_id":  requestID(r.Context()),
			"method":      r.Method,
			"path":        r.URL.Path,
			"route":       route,
			"status":      wrapper.statusCode,
			"duration_ms": duration.Milliseconds(),
			"remote_addr": r.RemoteAddr,
		}).Info("HTTP request processed")
	})
}

// errorHandlingMiddleware recovers handler panics
func (s *server) errorHandlingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.WithFields(logrus.Fields{
					"error":      err,
					"request_id": requestID(r.Context()),
				}).Error("Panic in HTTP handler")
				s.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// cacheControl marks report responses as privately cacheable for the report cache TTL
func (s *server) cacheControl(next http.Handler) http.Handler {
	value := "private, max-age=" + strconv.Itoa(int(s.deps.CacheTTL.Seconds()))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", value)
		next.ServeHTTP(w, r)
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status codes
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Hijack lets the websocket upgrader take over the connection
func (w *responseWriterWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// handleHealth reports database reachability and process resources
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	services := map[string]string{"database": "not_configured"}
	status := map[string]interface{}{
		"status":            "healthy",
		"timestamp":         time.Now().UTC(),
		"services":          services,
		"websocket_clients": s.hub.ClientCount(),
	}
	if s.deps.Probe != nil {
		status["system"] = s.deps.Probe.Snapshot()
	}

	if s.deps.Database != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := s.deps.Database.Ping(ctx); err != nil {
			s.log.WithError(err).Warn("Health check database ping failed")
			status["status"] = "unhealthy"
			services["database"] = "disconnected"
			s.writeJSONResponse(w, http.StatusServiceUnavailable, status)
			return
		}
		services["database"] = "connected"
	}

	s.writeJSONResponse(w, http.StatusOK, status)
}

// writeJSONResponse writes a JSON response with the given status code
func (s *server) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response with the given status code and message
func (s *server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	errorResponse := map[string]interface{}{
		"error":   true,
		"message": message,
		"status":  statusCode,
	}

	s.writeJSONResponse(w, statusCode, errorResponse)
}
