package api

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/retail-analytics/engine/aggregation"
	"github.com/retail-analytics/engine/analysis"
	"github.com/retail-analytics/engine/cache"
	"github.com/retail-analytics/engine/config"
	"github.com/retail-analytics/engine/exporter"
	"github.com/retail-analytics/engine/formulas"
	"github.com/retail-analytics/engine/metrics"
	"github.com/retail-analytics/engine/reports"
	"github.com/retail-analytics/engine/schema"
	"github.com/retail-analytics/engine/storage"
)

// RunServer connects the fact database, runs migrations, wires the engine
// and serves the API until SIGINT or SIGTERM.
func RunServer(cfg *config.Config, logger *logrus.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL database
	db := storage.NewDatabase(&cfg.PostgreSQL, logger)
	connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
	defer connectCancel()
	if err := db.Connect(connectCtx); err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer db.Close()

	if err := storage.RunMigrations(connectCtx, db.DB(), logger); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	reportCache, err := cache.New(ctx, cfg.Cache, logger)
	if err != nil {
		return fmt.Errorf("failed to create report cache: %w", err)
	}
	if closer, ok := reportCache.(io.Closer); ok {
		defer closer.Close()
	}

	collector := metrics.NewCollector()
	registry := formulas.NewRegistry()

	validator, err := schema.NewValidator(registry)
	if err != nil {
		return fmt.Errorf("failed to compile request schemas: %w", err)
	}

	probe, err := metrics.NewSystemProbe()
	if err != nil {
		logger.WithError(err).Warn("System probe unavailable, health output will omit resource usage")
		probe = nil
	}

	reportService := reports.NewService(
		db,
		aggregation.NewAggregator(registry, logger),
		registry,
		reportCache,
		collector,
		reports.Options{
			MaxLimit:           cfg.Reports.MaxLimit,
			DefaultSource:      cfg.Reports.DefaultSource,
			DefaultGranularity: cfg.Analytics.Granularity,
			CacheTTL:           cfg.Cache.TTL,
		},
		logger,
	)

	apiServer := NewServer(cfg.Server, Dependencies{
		Reports:   reportService,
		Analyzer:  analysis.NewAnalyzer(analysis.OptionsFromConfig(cfg.Analytics), nil, collector, logger),
		Validator: validator,
		Exporter:  exporter.NewReportExporter(registry),
		Collector: collector,
		Probe:     probe,
		Database:  db,
		CacheTTL:  cfg.Cache.TTL,
	}, logger)

	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	logger.WithField("addr", cfg.Server.Addr).Info("Analytics engine started, press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("Received shutdown signal, shutting down API server...")
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down API server...")
	}
	return apiServer.Stop()
}
