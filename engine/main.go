package main

import (
	"errors"
	"flag"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/retail-analytics/engine/api"
	"github.com/retail-analytics/engine/config"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before the configuration")
	logLevel := flag.String("log-level", "", "Override the configured log level")
	flag.Parse()

	logger := logrus.New()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.WithError(err).Fatalf("Failed to load env file %s", *envFile)
	}

	cfg, err := config.Load(*configPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Log.Apply(logger); err != nil {
		logger.WithError(err).Fatal("Invalid log configuration")
	}

	if err := api.RunServer(cfg, logger); err != nil {
		logger.WithError(err).Error("Analytics engine stopped with error")
		os.Exit(1)
	}
}
