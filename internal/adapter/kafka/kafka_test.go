package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-trigger-service/internal/domain"
)

type fakeWriter struct {
	batches [][]kafkago.Message
	err     error
	closed  bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, msgs)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDecision() domain.ActivationDecision {
	return domain.ActivationDecision{
		Country:          "ph",
		ForecastDate:     time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
		Rule:             domain.ActivationAnyBasin,
		State:            domain.DecisionTriggered,
		Triggered:        true,
		TriggeringBasins: []string{"cagayan"},
		MissingBasins:    []domain.BasinGap{{BasinID: "bicol", Reason: domain.SkipMissingThreshold}},
	}
}

func TestSerializeToMessage(t *testing.T) {
	issued := time.Date(2025, 10, 1, 6, 0, 0, 0, time.UTC)
	msg, err := serializeToMessage("run-1", issued, testDecision())
	require.NoError(t, err)

	assert.Equal(t, []byte("ph"), msg.Key)
	require.Len(t, msg.Headers, 4)
	assert.Equal(t, "run_id", msg.Headers[0].Key)
	assert.Equal(t, []byte("run-1"), msg.Headers[0].Value)
	assert.Equal(t, []byte("2025-10-01"), msg.Headers[2].Value)
	assert.Equal(t, []byte("ANY_BASIN"), msg.Headers[3].Value)

	var alert AlertMessage
	require.NoError(t, json.Unmarshal(msg.Value, &alert))
	assert.Equal(t, AlertID(testDecision()), alert.AlertID)
	assert.Equal(t, "run-1", alert.RunID)
	assert.Equal(t, issued, alert.IssuedAt)
	assert.Equal(t, testDecision(), alert.Decision)
	assert.Contains(t, string(msg.Value), `"state":"triggered"`)
	assert.Contains(t, string(msg.Value), `"reason":"missing_threshold"`)
}

func TestAlertID_StableAcrossRuns(t *testing.T) {
	first, err := serializeToMessage("run-1", time.Now(), testDecision())
	require.NoError(t, err)
	second, err := serializeToMessage("run-2", time.Now().Add(time.Hour), testDecision())
	require.NoError(t, err)

	var a, b AlertMessage
	require.NoError(t, json.Unmarshal(first.Value, &a))
	require.NoError(t, json.Unmarshal(second.Value, &b))
	assert.Equal(t, a.AlertID, b.AlertID)

	reordered := testDecision()
	reordered.TriggeringBasins = []string{"pampanga", "cagayan"}
	sorted := testDecision()
	sorted.TriggeringBasins = []string{"cagayan", "pampanga"}
	assert.Equal(t, AlertID(sorted), AlertID(reordered))
	assert.NotEqual(t, AlertID(testDecision()), AlertID(sorted))

	nextDay := testDecision()
	nextDay.ForecastDate = nextDay.ForecastDate.AddDate(0, 0, 1)
	assert.NotEqual(t, AlertID(testDecision()), AlertID(nextDay))
}

func TestPublishAlerts(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 10, 1, 6, 0, 0, 0, time.UTC))
	domain.SetClock(clock)
	t.Cleanup(func() { domain.SetClock(nil) })

	w := &fakeWriter{}
	p := newPublisher(w, 3, testLogger())

	require.NoError(t, p.PublishAlerts(context.Background(), "run-1", []domain.ActivationDecision{testDecision(), testDecision()}))
	require.Len(t, w.batches, 1)
	assert.Len(t, w.batches[0], 2)

	var alert AlertMessage
	require.NoError(t, json.Unmarshal(w.batches[0][0].Value, &alert))
	assert.Equal(t, clock.Now(), alert.IssuedAt)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishAlerts_Empty(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, newPublisher(w, 3, testLogger()).PublishAlerts(context.Background(), "run-1", nil))
	assert.Empty(t, w.batches)
}

func TestPublishAlerts_BreakerOpens(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := newPublisher(w, 2, testLogger())
	decisions := []domain.ActivationDecision{testDecision()}

	for range 2 {
		err := p.PublishAlerts(context.Background(), "run-1", decisions)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}

	err := p.PublishAlerts(context.Background(), "run-1", decisions)
	assert.ErrorIs(t, err, ErrUnavailable)
}
