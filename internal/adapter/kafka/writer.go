package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"

	"github.com/couchcryptid/flood-trigger-service/internal/config"
	"github.com/couchcryptid/flood-trigger-service/internal/domain"
)

// ErrUnavailable is returned while the circuit breaker rejects publishes.
var ErrUnavailable = errors.New("alert topic unavailable")

// alertNamespace scopes the name-based alert IDs.
var alertNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:flood-trigger:alert"))

// AlertID returns a stable ID for a decision, so a consumer can drop
// redeliveries of the same activation.
func AlertID(d domain.ActivationDecision) string {
	return uuid.NewSHA1(alertNamespace, []byte(d.AlertKey())).String()
}

// AlertMessage is the payload published for an eligible activation decision.
type AlertMessage struct {
	AlertID  string                    `json:"alert_id"`
	RunID    string                    `json:"run_id"`
	IssuedAt time.Time                 `json:"issued_at"`
	Decision domain.ActivationDecision `json:"decision"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces activation alerts to a Kafka topic behind a circuit breaker.
// It implements pipeline.AlertPublisher.
type Publisher struct {
	writer  messageWriter
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured alert topic.
// Messages are keyed by country so a country's alerts stay ordered.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaAlertTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return newPublisher(w, cfg.BreakerFailures, logger)
}

func newPublisher(w messageWriter, failures int, logger *slog.Logger) *Publisher {
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "kafka-alerts",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &Publisher{writer: w, breaker: cb, logger: logger}
}

// PublishAlerts serializes and publishes decisions in a single WriteMessages call.
func (p *Publisher) PublishAlerts(ctx context.Context, runID string, decisions []domain.ActivationDecision) error {
	if len(decisions) == 0 {
		return nil
	}
	issuedAt := domain.Now()
	msgs := make([]kafkago.Message, len(decisions))
	for i := range decisions {
		msg, err := serializeToMessage(runID, issuedAt, decisions[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}

	_, err := p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.writer.WriteMessages(ctx, msgs...)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err != nil {
		return fmt.Errorf("publish %d alerts: %w", len(msgs), err)
	}
	p.logger.Info("alerts published", "run_id", runID, "count", len(msgs))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a decision into a Kafka message.
func serializeToMessage(runID string, issuedAt time.Time, d domain.ActivationDecision) (kafkago.Message, error) {
	alert := AlertMessage{
		AlertID:  AlertID(d),
		RunID:    runID,
		IssuedAt: issuedAt,
		Decision: d,
	}
	data, err := json.Marshal(alert)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize activation alert: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(d.Country),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(runID)},
			{Key: "country", Value: []byte(d.Country)},
			{Key: "forecast_date", Value: []byte(d.ForecastDate.Format("2006-01-02"))},
			{Key: "activation_rule", Value: []byte(d.Rule)},
		},
	}, nil
}
