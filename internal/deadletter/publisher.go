package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/tweet-triage/backend/internal/elasticsearch"
)

// Publisher records bulk items the store did not apply.
type Publisher interface {
	Publish(ctx context.Context, runID, stage string, failures []elasticsearch.ItemFailure) error
	Close() error
}

// Record is the message value written for each failed item.
type Record struct {
	RunID     string    `json:"run_id"`
	Stage     string    `json:"stage"`
	ID        string    `json:"id"`
	Op        string    `json:"op"`
	Status    int       `json:"status"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes failures to a Kafka topic, one message per item.
type KafkaPublisher struct {
	writer messageWriter
	now    func() time.Time
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     brokers,
		Topic:       topic,
		MaxAttempts: 3,
	})
	return &KafkaPublisher{writer: w, now: time.Now}
}

// Publish sends one message per failure keyed by document ID.
func (p *KafkaPublisher) Publish(ctx context.Context, runID, stage string, failures []elasticsearch.ItemFailure) error {
	if len(failures) == 0 {
		return nil
	}

	msgs, err := buildMessages(runID, stage, failures, p.now().UTC())
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write dead letters: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func buildMessages(runID, stage string, failures []elasticsearch.ItemFailure, ts time.Time) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(failures))
	for _, f := range failures {
		value, err := json.Marshal(Record{
			RunID:     runID,
			Stage:     stage,
			ID:        f.ID,
			Op:        f.Op,
			Status:    f.Status,
			Reason:    f.Reason,
			Timestamp: ts,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal dead letter: %w", err)
		}

		msgs = append(msgs, kafka.Message{
			Key:   []byte(f.ID),
			Value: value,
			Headers: []kafka.Header{
				{Key: "run_id", Value: []byte(runID)},
				{Key: "stage", Value: []byte(stage)},
				{Key: "timestamp", Value: []byte(ts.Format(time.RFC3339))},
			},
		})
	}
	return msgs, nil
}

// Nop drops every failure.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, string, string, []elasticsearch.ItemFailure) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }
