package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/tweet-triage/backend/internal/elasticsearch"
)

type stubWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (s *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, msgs...)
	return nil
}

func (s *stubWriter) Close() error {
	s.closed = true
	return nil
}

func TestPublishWritesOneMessagePerFailure(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	w := &stubWriter{}
	p := &KafkaPublisher{writer: w, now: func() time.Time { return ts }}

	failures := []elasticsearch.ItemFailure{
		{ID: "a", Op: "index", Status: 400, Reason: "mapper_parsing_exception: bad date"},
		{ID: "b", Op: "index", Status: 429, Reason: "es_rejected_execution_exception: queue full"},
	}
	require.NoError(t, p.Publish(context.Background(), "run-1", "INDEXED", failures))
	require.Len(t, w.msgs, 2)

	msg := w.msgs[0]
	require.Equal(t, "a", string(msg.Key))

	var rec Record
	require.NoError(t, json.Unmarshal(msg.Value, &rec))
	require.Equal(t, Record{
		RunID:     "run-1",
		Stage:     "INDEXED",
		ID:        "a",
		Op:        "index",
		Status:    400,
		Reason:    "mapper_parsing_exception: bad date",
		Timestamp: ts,
	}, rec)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, "run-1", headers["run_id"])
	require.Equal(t, "INDEXED", headers["stage"])
	require.Equal(t, "2024-05-06T07:08:09Z", headers["timestamp"])

	require.NoError(t, p.Close())
	require.True(t, w.closed)
}

func TestPublishSkipsEmpty(t *testing.T) {
	w := &stubWriter{err: errors.New("must not be called")}
	p := &KafkaPublisher{writer: w, now: time.Now}
	require.NoError(t, p.Publish(context.Background(), "run", "stage", nil))
}

func TestPublishWrapsWriteError(t *testing.T) {
	w := &stubWriter{err: errors.New("broker down")}
	p := &KafkaPublisher{writer: w, now: time.Now}
	err := p.Publish(context.Background(), "run", "stage", []elasticsearch.ItemFailure{{ID: "x"}})
	require.ErrorContains(t, err, "broker down")
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	require.NoError(t, p.Publish(context.Background(), "run", "stage", []elasticsearch.ItemFailure{{ID: "x"}}))
	require.NoError(t, p.Close())
}
