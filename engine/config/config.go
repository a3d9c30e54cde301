package config

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/retail-analytics/engine/types"
)

// Config is the root configuration of the analytics engine
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Analytics  AnalyticsConfig  `yaml:"analytics"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
	Cache      CacheConfig      `yaml:"cache"`
	Reports    ReportsConfig    `yaml:"reports"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigin      string        `yaml:"cors_origin"`
}

// LogConfig configures the process logger
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AnalyticsConfig holds the defaults applied to series analytics
type AnalyticsConfig struct {
	Granularity types.Granularity `yaml:"granularity"`
	Anomaly     AnomalyConfig     `yaml:"anomaly"`
	Forecast    ForecastConfig    `yaml:"forecast"`
}

// AnomalyConfig holds anomaly detection defaults
type AnomalyConfig struct {
	Method          types.AnomalyMethod `yaml:"method"`
	ZScoreThreshold float64             `yaml:"zscore_threshold"`
	MADThreshold    float64             `yaml:"mad_threshold"`
	WindowSize      int                 `yaml:"window_size"`
	Rolling         bool                `yaml:"rolling"`
}

// ForecastConfig holds forecasting defaults
type ForecastConfig struct {
	Alpha           float64 `yaml:"alpha"`
	Beta            float64 `yaml:"beta"`
	Periods         int     `yaml:"periods"`
	ConfidenceLevel float64 `yaml:"confidence_level"`
}

// PostgreSQLConfig contains the fact database connection settings
type PostgreSQLConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Database     string `yaml:"database"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// Cache backends
const (
	CacheNoop   = "noop"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// CacheConfig selects and configures the report cache
type CacheConfig struct {
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
	Redis   RedisConfig   `yaml:"redis"`
}

// RedisConfig configures the Redis cache backend
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ReportsConfig bounds report execution
type ReportsConfig struct {
	MaxLimit      int              `yaml:"max_limit"`
	DefaultSource types.DataSource `yaml:"default_source"`
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORSOrigin:      "*",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Analytics: AnalyticsConfig{
			Granularity: types.GranularityDay,
			Anomaly: AnomalyConfig{
				Method:          types.MethodEnsemble,
				ZScoreThreshold: 2.5,
				MADThreshold:    3.5,
				WindowSize:      7,
			},
			Forecast: ForecastConfig{
				Alpha:           0.3,
				Beta:            0.1,
				Periods:         30,
				ConfidenceLevel: 0.95,
			},
		},
		PostgreSQL: PostgreSQLConfig{
			Host:         "localhost",
			Port:         5432,
			Database:     "retail",
			User:         "postgres",
			SSLMode:      "disable",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Cache: CacheConfig{
			Backend: CacheMemory,
			TTL:     5 * time.Minute,
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
		Reports: ReportsConfig{
			MaxLimit:      10000,
			DefaultSource: types.DataSourceSales,
		},
	}
}

// Load reads a YAML configuration file, substituting environment variables
// before parsing. Keys absent from the file keep their defaults; an empty
// path or a missing file yields DefaultConfig.
func Load(path string, log logrus.FieldLogger) (*Config, error) {
	log = log.WithField("component", "config")
	cfg := DefaultConfig()

	if path == "" {
		log.Info("No config path provided, using defaults")
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.WithField("path", path).Info("Config file not found, using defaults")
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	content, err := SubstituteEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to substitute environment variables: %w", err)
	}

	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.fillZeroValues()

	log.WithFields(logrus.Fields{
		"path":          path,
		"addr":          cfg.Server.Addr,
		"cache_backend": cfg.Cache.Backend,
		"pg_host":       cfg.PostgreSQL.Host,
		"pg_database":   cfg.PostgreSQL.Database,
	}).Info("Loaded configuration")

	return cfg, nil
}

// fillZeroValues restores defaults for keys present in the file but left empty
func (c *Config) fillZeroValues() {
	d := DefaultConfig()

	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = d.Server.ReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = d.Server.WriteTimeout
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = d.Server.IdleTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Analytics.Granularity == "" {
		c.Analytics.Granularity = d.Analytics.Granularity
	}
	if c.Analytics.Anomaly.Method == "" {
		c.Analytics.Anomaly.Method = d.Analytics.Anomaly.Method
	}
	if c.PostgreSQL.SSLMode == "" {
		c.PostgreSQL.SSLMode = d.PostgreSQL.SSLMode
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = d.Cache.Backend
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = d.Cache.TTL
	}
	if c.Reports.MaxLimit == 0 {
		c.Reports.MaxLimit = d.Reports.MaxLimit
	}
	if c.Reports.DefaultSource == "" {
		c.Reports.DefaultSource = d.Reports.DefaultSource
	}
}

// Validate validates every section of the configuration
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server addr is required")
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("invalid log configuration: %w", err)
	}
	if err := c.Analytics.Validate(); err != nil {
		return fmt.Errorf("invalid analytics configuration: %w", err)
	}
	if err := c.PostgreSQL.Validate(); err != nil {
		return fmt.Errorf("invalid PostgreSQL configuration: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("invalid cache configuration: %w", err)
	}
	if c.Reports.MaxLimit <= 0 {
		return fmt.Errorf("reports max_limit must be greater than 0")
	}
	if !c.Reports.DefaultSource.Valid() {
		return fmt.Errorf("unknown reports default_source %q", c.Reports.DefaultSource)
	}
	return nil
}

// Validate validates the log configuration
func (c *LogConfig) Validate() error {
	if _, err := logrus.ParseLevel(c.Level); err != nil {
		return err
	}
	if c.Format != "text" && c.Format != "json" {
		return fmt.Errorf("format must be text or json, got %q", c.Format)
	}
	return nil
}

// Apply sets the level and formatter of logger
func (c *LogConfig) Apply(logger *logrus.Logger) error {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}
	logger.SetLevel(level)

	if c.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// Validate validates the analytics defaults
func (c *AnalyticsConfig) Validate() error {
	if !c.Granularity.Valid() {
		return fmt.Errorf("unknown granularity %q", c.Granularity)
	}

	switch c.Anomaly.Method {
	case types.MethodZScore, types.MethodIQR, types.MethodMAD, types.MethodEnsemble:
	default:
		return fmt.Errorf("unknown anomaly method %q", c.Anomaly.Method)
	}
	if c.Anomaly.ZScoreThreshold <= 0 {
		return fmt.Errorf("anomaly zscore_threshold must be greater than 0")
	}
	if c.Anomaly.MADThreshold <= 0 {
		return fmt.Errorf("anomaly mad_threshold must be greater than 0")
	}
	if c.Anomaly.WindowSize <= 0 {
		return fmt.Errorf("anomaly window_size must be greater than 0")
	}

	if c.Forecast.Alpha <= 0 || c.Forecast.Alpha > 1 {
		return fmt.Errorf("forecast alpha must be in (0, 1]")
	}
	if c.Forecast.Beta <= 0 || c.Forecast.Beta > 1 {
		return fmt.Errorf("forecast beta must be in (0, 1]")
	}
	if c.Forecast.Periods <= 0 {
		return fmt.Errorf("forecast periods must be greater than 0")
	}
	if c.Forecast.ConfidenceLevel <= 0 || c.Forecast.ConfidenceLevel >= 1 {
		return fmt.Errorf("forecast confidence_level must be in (0, 1)")
	}
	return nil
}

// Validate validates the PostgreSQL configuration
func (c *PostgreSQLConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.MaxOpenConns <= 0 {
		return fmt.Errorf("max_open_conns must be greater than 0")
	}
	if c.MaxIdleConns <= 0 {
		return fmt.Errorf("max_idle_conns must be greater than 0")
	}
	return nil
}

// ConnectionString returns the lib/pq connection string
func (c *PostgreSQLConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Validate validates the cache configuration
func (c *CacheConfig) Validate() error {
	switch c.Backend {
	case CacheNoop, CacheMemory:
	case CacheRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Backend)
	}
	if c.TTL < 0 {
		return fmt.Errorf("ttl must not be negative")
	}
	return nil
}
