// Command trigger runs the flood trigger analysis engine. By default it serves
// health, metrics and report endpoints and analyzes every configured country
// on a fixed interval. With -once it performs a single run and exits non-zero
// if any basin was skipped or the run failed.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/flood-trigger-service/internal/adapter/gridfile"
	"github.com/couchcryptid/flood-trigger-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/flood-trigger-service/internal/adapter/kafka"
	"github.com/couchcryptid/flood-trigger-service/internal/adapter/recordfile"
	"github.com/couchcryptid/flood-trigger-service/internal/adapter/threshold"
	"github.com/couchcryptid/flood-trigger-service/internal/config"
	"github.com/couchcryptid/flood-trigger-service/internal/observability"
	"github.com/couchcryptid/flood-trigger-service/internal/pipeline"
)

func main() {
	once := flag.Bool("once", false, "run a single analysis and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	countries, err := config.LoadCountries(cfg.CountriesFile)
	if err != nil {
		logger.Error("failed to load countries", "path", cfg.CountriesFile, "error", err)
		os.Exit(1)
	}

	store := threshold.NewCachedStore(
		threshold.NewStore(cfg.DataDir, cfg.GridToleranceCells, logger),
		cfg.ThresholdCacheSize,
		metrics,
	)

	// Alert delivery is feature-flagged via KAFKA_ENABLED.
	var publisher pipeline.AlertPublisher
	var kafkaPublisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		kafkaPublisher = kafkaadapter.NewPublisher(cfg, logger)
		publisher = kafkaPublisher
		logger.Info("kafka alerts enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaAlertTopic)
	} else {
		logger.Info("kafka alerts disabled")
	}

	analyzer := pipeline.NewAnalyzer(
		gridfile.CubeSource{DataDir: cfg.DataDir},
		store,
		recordfile.NewWriter(cfg.OutputDir),
		publisher,
		logger,
		metrics,
		cfg.Workers,
		cfg.GridToleranceCells,
	)
	p := pipeline.New(analyzer, countries, cfg.AnalysisInterval, nil, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		code := runOnce(ctx, p, logger)
		closePublisher(kafkaPublisher, logger)
		os.Exit(code)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start analysis loop.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	closePublisher(kafkaPublisher, logger)

	logger.Info("shutdown complete")
}

func runOnce(ctx context.Context, p *pipeline.Pipeline, logger *slog.Logger) int {
	report, err := p.RunOnce(ctx)
	if err != nil {
		return 1
	}
	if skipped := report.Skipped(); len(skipped) > 0 {
		logger.Warn("run completed with skipped basins", "skipped", len(skipped))
		return 2
	}
	return 0
}

func closePublisher(p *kafkaadapter.Publisher, logger *slog.Logger) {
	if p == nil {
		return
	}
	if err := p.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
}
