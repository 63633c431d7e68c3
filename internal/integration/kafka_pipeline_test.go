//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/flood-trigger-service/internal/adapter/gridfile"
	"github.com/couchcryptid/flood-trigger-service/internal/adapter/kafka"
	"github.com/couchcryptid/flood-trigger-service/internal/adapter/recordfile"
	"github.com/couchcryptid/flood-trigger-service/internal/adapter/threshold"
	"github.com/couchcryptid/flood-trigger-service/internal/config"
	"github.com/couchcryptid/flood-trigger-service/internal/domain"
	"github.com/couchcryptid/flood-trigger-service/internal/observability"
	"github.com/couchcryptid/flood-trigger-service/internal/pipeline"
)

const testAlertTopic = "test-flood-alerts"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("flood-trigger-test"))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// writeFixtures stores a one-basin country whose station floods on both
// forecast dates of October 2025.
func writeFixtures(t *testing.T, dir string) domain.CountryConfig {
	t.Helper()
	grid := domain.GridCoordinates{Lats: []float64{14.25, 14.2}, Lons: []float64{-90.4, -90.35}}
	require.NoError(t, gridfile.WriteThreshold(gridfile.ThresholdPath(dir, "gt", 5), &domain.ThresholdGrid{
		Grid: grid, ReturnPeriod: 5, Values: []float32{100, 100, 100, 100},
	}))

	cube := &domain.ForecastCube{
		Grid:     grid,
		Dates:    []time.Time{time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 10, 2, 0, 0, 0, 0, time.UTC)},
		Members:  51,
		LeadDays: []int{3},
	}
	cube.Values = make([]float32, cube.Len())
	for i := range cube.Values {
		cube.Values[i] = 150
	}
	require.NoError(t, gridfile.WriteCube(gridfile.CubePath(dir, "gt", cube.Dates[0]), cube))

	return domain.CountryConfig{
		Code: "gt",
		Name: "Guatemala",
		Rule: domain.ActivationAnyBasin,
		Basins: []domain.BasinConfig{{
			ID:      "achiguate",
			Name:    "Achiguate",
			Station: domain.Station{ID: "GT-ACH-01", Coordinate: domain.Coordinate{Lat: 14.211, Lon: -90.341}},
			Policy:  domain.TriggerPolicy{ReturnPeriod: 5, ProbabilityThreshold: 0.7, LeadTimeDays: 3},
		}},
	}
}

// TestAnalysisPublishesLatestAlert runs a full analysis against a real broker
// and reads the published alert back from the alert topic.
func TestAnalysisPublishesLatestAlert(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testAlertTopic)

	cfg := &config.Config{
		KafkaBrokers:    []string{broker},
		KafkaAlertTopic: testAlertTopic,
		BreakerFailures: 5,
	}
	publisher := kafka.NewPublisher(cfg, discardLogger())
	t.Cleanup(func() { _ = publisher.Close() })

	dir := t.TempDir()
	country := writeFixtures(t, dir)
	metrics := observability.NewMetricsForTesting()

	analyzer := pipeline.NewAnalyzer(
		gridfile.CubeSource{DataDir: dir},
		threshold.NewCachedStore(threshold.NewStore(dir, domain.DefaultToleranceCells, discardLogger()), 10, metrics),
		recordfile.NewWriter(dir),
		publisher,
		discardLogger(),
		metrics,
		2,
		domain.DefaultToleranceCells,
	)

	report, err := analyzer.Analyze(ctx, []domain.CountryConfig{country})
	require.NoError(t, err)
	require.Len(t, report.Alerts(), 1)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     testAlertTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  1 << 20,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()
	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from alert topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "gt", string(msg.Key))
	assert.Equal(t, report.RunID, headers["run_id"])
	assert.Equal(t, "2025-10-02", headers["forecast_date"])
	assert.Equal(t, "ANY_BASIN", headers["activation_rule"])

	var alert kafka.AlertMessage
	require.NoError(t, json.Unmarshal(msg.Value, &alert))
	assert.NotEmpty(t, alert.AlertID)
	assert.Equal(t, report.RunID, alert.RunID)
	assert.Equal(t, domain.DecisionTriggered, alert.Decision.State)
	assert.Equal(t, []string{"achiguate"}, alert.Decision.TriggeringBasins)
}
