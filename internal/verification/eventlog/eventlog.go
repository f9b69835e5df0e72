// Package eventlog appends credential lifecycle events to an ordered,
// append-only log.
package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"

	"attest/internal/verification/models"
)

const eventTypeHeader = "event_type"

// KafkaLog writes events to a Kafka topic keyed by subject id, so all events
// of one subject stay ordered within a partition.
type KafkaLog struct {
	client *kgo.Client
	topic  string
}

func NewKafka(client *kgo.Client, topic string) *KafkaLog {
	return &KafkaLog{client: client, topic: topic}
}

// Append blocks until the broker acknowledges the record.
func (l *KafkaLog) Append(ctx context.Context, event models.CredentialEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode credential event: %w", err)
	}
	rec := &kgo.Record{
		Topic: l.topic,
		Key:   []byte(event.SubjectID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: eventTypeHeader, Value: []byte(event.Type)},
		},
	}
	if err := l.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce credential event: %w", err)
	}
	return nil
}

// Decode parses a record produced by KafkaLog.
func Decode(rec *kgo.Record) (models.CredentialEvent, error) {
	var event models.CredentialEvent
	if err := json.Unmarshal(rec.Value, &event); err != nil {
		return models.CredentialEvent{}, fmt.Errorf("decode credential event: %w", err)
	}
	return event, nil
}

// Memory keeps events in process.
type Memory struct {
	mu     sync.Mutex
	events []models.CredentialEvent
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Append(_ context.Context, event models.CredentialEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of the appended events in order.
func (m *Memory) Events() []models.CredentialEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}
