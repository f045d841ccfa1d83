//go:build integration

package audit_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"attest/internal/audit"
	"attest/internal/platform/kafka/producer"
	"attest/pkg/testutil/containers"
)

// TestKafkaSinkDelivery publishes an audit event through the Kafka sink and
// verifies it arrives keyed by session id with the action header set.
func TestKafkaSinkDelivery(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	kc := containers.GetManager().GetKafka(t)

	topic := "audit-events-" + uuid.NewString()
	require.NoError(t, kc.CreateTopic(ctx, topic))

	logger := slog.New(slog.DiscardHandler)
	p, err := producer.New(producer.Config{
		Brokers:         kc.Brokers,
		Acks:            "all",
		Retries:         3,
		DeliveryTimeout: 10 * time.Second,
	}, logger)
	require.NoError(t, err)
	defer p.Close()

	sink := audit.NewKafkaSink(p, topic)

	event := audit.Event{
		SessionID: uuid.NewString(),
		UserID:    "user-1",
		Action:    audit.ActionSessionIssued,
		Status:    "ISSUED",
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, sink.Append(ctx, event))
	require.Zero(t, p.Flush(10*time.Second))

	consumer, err := kc.NewConsumer(ctx, "audit-test-"+uuid.NewString(), topic)
	require.NoError(t, err)
	defer consumer.Close()

	record := kc.WaitForMessage(ctx, consumer, 30*time.Second, func(r *kgo.Record) bool {
		return string(r.Key) == event.SessionID
	})
	require.NotNil(t, record, "expected audit event on topic %s", topic)

	var got audit.Event
	require.NoError(t, json.Unmarshal(record.Value, &got))
	require.Equal(t, event.SessionID, got.SessionID)
	require.Equal(t, audit.ActionSessionIssued, got.Action)
	require.Equal(t, "ISSUED", got.Status)

	var action string
	for _, h := range record.Headers {
		if h.Key == "action" {
			action = string(h.Value)
		}
	}
	require.Equal(t, string(audit.ActionSessionIssued), action)
}
