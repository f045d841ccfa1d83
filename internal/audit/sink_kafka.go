package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"attest/internal/platform/kafka/producer"
)

// KafkaProducer is the subset of the Kafka producer the sink needs.
type KafkaProducer interface {
	ProduceAsync(msg *producer.Message) error
}

// KafkaSink publishes audit events to a Kafka topic, keyed by session id so
// one session's events stay ordered within a partition.
type KafkaSink struct {
	producer KafkaProducer
	topic    string
}

func NewKafkaSink(p KafkaProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: p, topic: topic}
}

func (s *KafkaSink) Append(_ context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	return s.producer.ProduceAsync(&producer.Message{
		Topic: s.topic,
		Key:   []byte(event.SessionID),
		Value: value,
		Headers: map[string]string{
			"action": string(event.Action),
		},
	})
}
