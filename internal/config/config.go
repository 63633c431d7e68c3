package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DataDir       string
	OutputDir     string
	CountriesFile string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	AnalysisInterval   time.Duration
	Workers            int
	GridToleranceCells float64
	ThresholdCacheSize int

	// Alert publishing configuration.
	KafkaEnabled    bool
	KafkaBrokers    []string
	KafkaAlertTopic string
	BreakerFailures int
}

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is read first; it never
// overrides variables already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	interval, err := parseDuration("ANALYSIS_INTERVAL", "1h")
	if err != nil {
		return nil, err
	}
	workers, err := parsePositiveInt("WORKERS", 4)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parsePositiveInt("THRESHOLD_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	breakerFailures, err := parsePositiveInt("BREAKER_FAILURES", 5)
	if err != nil {
		return nil, err
	}
	tolerance, err := parseTolerance()
	if err != nil {
		return nil, err
	}

	dataDir := sharedcfg.EnvOrDefault("DATA_DIR", "data")
	cfg := &Config{
		DataDir:       dataDir,
		OutputDir:     sharedcfg.EnvOrDefault("OUTPUT_DIR", dataDir),
		CountriesFile: sharedcfg.EnvOrDefault("COUNTRIES_FILE", "config/countries.yaml"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		AnalysisInterval:   interval,
		Workers:            workers,
		GridToleranceCells: tolerance,
		ThresholdCacheSize: cacheSize,

		KafkaEnabled:    os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaAlertTopic: sharedcfg.EnvOrDefault("KAFKA_ALERT_TOPIC", "flood-trigger-alerts"),
		BreakerFailures: breakerFailures,
	}

	if cfg.DataDir == "" {
		return nil, errors.New("DATA_DIR is required")
	}
	if cfg.CountriesFile == "" {
		return nil, errors.New("COUNTRIES_FILE is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if cfg.KafkaEnabled && cfg.KafkaAlertTopic == "" {
		return nil, errors.New("KAFKA_ALERT_TOPIC is required when KAFKA_ENABLED is true")
	}

	return cfg, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func parseTolerance() (float64, error) {
	s := os.Getenv("GRID_TOLERANCE_CELLS")
	if s == "" {
		return 1.0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, errors.New("invalid GRID_TOLERANCE_CELLS: must be a non-negative number")
	}
	return v, nil
}
