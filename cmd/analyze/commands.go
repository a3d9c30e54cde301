package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/retail-analytics/engine/aggregation"
	"github.com/retail-analytics/engine/analysis"
	"github.com/retail-analytics/engine/config"
	"github.com/retail-analytics/engine/exporter"
	"github.com/retail-analytics/engine/formulas"
	"github.com/retail-analytics/engine/types"
)

// ErrUnknownMetric is returned when a flag names a metric the registry does not define
var ErrUnknownMetric = errors.New("unknown metric")

// globals holds the persistent flags shared by every subcommand
type globals struct {
	configPath string
	envFile    string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Offline retail analytics over JSON files",
		Long: `analyze runs the analytics engine over exported data.

Commands:
  report     pivot fact rows by dimensions and metrics
  trend      classify the trend of a time series
  anomalies  flag outliers in a time series
  forecast   project a time series with confidence bands
  compare    compare calendar windows of a time series`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", "", "YAML configuration providing analytics defaults")
	rootCmd.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "optional dotenv file loaded before the configuration")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "log level written to stderr")

	rootCmd.AddCommand(
		newReportCommand(g),
		newTrendCommand(g),
		newAnomaliesCommand(g),
		newForecastCommand(g),
		newCompareCommand(g),
	)
	return rootCmd
}

// setup loads the env file and configuration and builds the stderr logger
func (g *globals) setup(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())

	if err := godotenv.Load(g.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg, err := config.Load(g.configPath, logger)
	if err != nil {
		return nil, nil, err
	}
	cfg.Log.Level = g.logLevel
	if err := cfg.Log.Apply(logger); err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func (g *globals) analyzer(cmd *cobra.Command, clock func() time.Time) (analysis.Analyzer, error) {
	cfg, logger, err := g.setup(cmd)
	if err != nil {
		return nil, err
	}
	return analysis.NewAnalyzer(analysis.OptionsFromConfig(cfg.Analytics), clock, nil, logger), nil
}

func newReportCommand(g *globals) *cobra.Command {
	var (
		dimensions  []string
		metrics     []string
		granularity string
		format      string
		output      string
	)

	cmd := &cobra.Command{
		Use:   "report <facts.json>",
		Short: "Aggregate fact rows into a pivot report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := g.setup(cmd)
			if err != nil {
				return err
			}

			registry := formulas.NewRegistry()
			query := types.ReportQuery{
				Dimensions:  lo.Map(dimensions, func(d string, _ int) types.Dimension { return types.Dimension(d) }),
				Metrics:     lo.Map(metrics, func(m string, _ int) types.Metric { return types.Metric(m) }),
				Granularity: types.Granularity(granularity),
			}
			for _, m := range query.Metrics {
				if !registry.Known(m) {
					return fmt.Errorf("%w: %s", ErrUnknownMetric, m)
				}
			}

			rows, err := readFacts(args[0])
			if err != nil {
				return err
			}

			result, err := aggregation.NewAggregator(registry, logger).Aggregate(rows, aggregation.Request{
				Dimensions:  query.Dimensions,
				Metrics:     query.Metrics,
				Granularity: query.Granularity,
			})
			if err != nil {
				return err
			}

			export := exporter.NewReportExporter(registry)
			if output != "" {
				return export.ExportFile(output, format, query, result)
			}
			return export.Export(cmd.OutOrStdout(), format, query, result)
		},
	}

	cmd.Flags().StringSliceVarP(&dimensions, "dimensions", "d", []string{string(types.DimensionDate)}, "grouping dimensions")
	cmd.Flags().StringSliceVarP(&metrics, "metrics", "m", []string{string(types.MetricRevenue)}, "metrics to compute")
	cmd.Flags().StringVarP(&granularity, "granularity", "g", string(types.GranularityDay), "date bucket: day, week, month, quarter or year")
	cmd.Flags().StringVarP(&format, "format", "f", exporter.FormatJSON, "output format: json or csv")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")

	return cmd
}

func newTrendCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "trend <series.json>",
		Short: "Classify the linear trend of a series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.analyzer(cmd, nil)
			if err != nil {
				return err
			}
			points, err := readSeries(args[0])
			if err != nil {
				return err
			}

			values := types.Values(points)
			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
				"trend":               a.Trend(points),
				"moving_average":      analysis.SMA(values, analysis.DefaultWindowSize),
				"exponential_average": analysis.EMA(values, analysis.DefaultWindowSize),
				"rate_of_change":      analysis.ROC(values, analysis.DefaultWindowSize),
				"changes":             analysis.DetectTrendChanges(values, analysis.DefaultTrendChangeSensitivity),
			})
		},
	}
}

func newAnomaliesCommand(g *globals) *cobra.Command {
	var opts analysis.AnomalyOptions
	var method string
	var rolling bool

	cmd := &cobra.Command{
		Use:   "anomalies <series.json>",
		Short: "Flag outliers in a series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.analyzer(cmd, nil)
			if err != nil {
				return err
			}
			points, err := readSeries(args[0])
			if err != nil {
				return err
			}

			opts.Method = types.AnomalyMethod(method)
			if cmd.Flags().Changed("rolling") {
				opts.Rolling = &rolling
			}
			return writeJSON(cmd.OutOrStdout(), a.Anomalies(points, opts))
		},
	}

	cmd.Flags().StringVar(&method, "method", "", "zscore, iqr, mad or ensemble")
	cmd.Flags().Float64Var(&opts.ZScoreThreshold, "zscore-threshold", 0, "z-score threshold")
	cmd.Flags().Float64Var(&opts.MADThreshold, "mad-threshold", 0, "modified z-score threshold")
	cmd.Flags().IntVar(&opts.WindowSize, "window", 0, "rolling window size")
	cmd.Flags().BoolVar(&rolling, "rolling", false, "score each point against its trailing window")

	return cmd
}

func newForecastCommand(g *globals) *cobra.Command {
	var opts analysis.ForecastOptions

	cmd := &cobra.Command{
		Use:   "forecast <series.json>",
		Short: "Project a series with confidence bands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.analyzer(cmd, nil)
			if err != nil {
				return err
			}
			points, err := readSeries(args[0])
			if err != nil {
				return err
			}

			forecast, err := a.Forecast(points, opts)
			if err != nil {
				return err
			}
			seasonality, err := analysis.DetectSeasonality(points)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
				"forecast":    forecast,
				"seasonality": seasonality,
			})
		},
	}

	cmd.Flags().IntVar(&opts.Periods, "periods", 0, "days to forecast")
	cmd.Flags().Float64Var(&opts.Alpha, "alpha", 0, "level smoothing factor")
	cmd.Flags().Float64Var(&opts.Beta, "beta", 0, "trend smoothing factor")
	cmd.Flags().Float64Var(&opts.ConfidenceLevel, "confidence", 0, "confidence level of the band")

	return cmd
}

func newCompareCommand(g *globals) *cobra.Command {
	var now string

	cmd := &cobra.Command{
		Use:   "compare <series.json>",
		Short: "Compare day, week, month and year windows of a series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var clock func() time.Time
			if now != "" {
				at, err := types.ParseDate(now)
				if err != nil {
					return fmt.Errorf("invalid --now: %w", err)
				}
				clock = func() time.Time { return at }
			}

			a, err := g.analyzer(cmd, clock)
			if err != nil {
				return err
			}
			points, err := readSeries(args[0])
			if err != nil {
				return err
			}

			comparisons, err := a.Comparisons(points)
			if err != nil {
				return err
			}
			growth, err := analysis.GrowthRates(points)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
				"comparisons": comparisons,
				"growth":      growth,
			})
		},
	}

	cmd.Flags().StringVar(&now, "now", "", "reference date of the comparison windows (default: current time)")

	return cmd
}

// readFacts decodes a JSON array of fact rows. Numbers are kept as json.Number.
func readFacts(path string) ([]types.FactRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open facts file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	decoder.UseNumber()

	var rows []types.FactRow
	if err := decoder.Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode facts file %s: %w", path, err)
	}
	return rows, nil
}

// readSeries decodes either a JSON array of points or an object with a points array
func readSeries(path string) ([]types.TimeSeriesPoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read series file: %w", err)
	}

	var points []types.TimeSeriesPoint
	if err := json.Unmarshal(data, &points); err == nil {
		return points, nil
	}

	var wrapped struct {
		Points []types.TimeSeriesPoint `json:"points"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode series file %s: %w", path, err)
	}
	return wrapped.Points, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
