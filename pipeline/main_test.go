package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/tweet-triage/backend/internal/config"
	"github.com/DeafMist/tweet-triage/backend/internal/deadletter"
	"github.com/DeafMist/tweet-triage/backend/internal/logger"
)

type flakyPinger struct {
	failures int
	calls    int
}

func (f *flakyPinger) Ping(context.Context) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestWaitForClusterStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	p := &flakyPinger{failures: 100}
	err := waitForCluster(ctx, p, logger.Discard())
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, p.calls)
}

func TestWaitForClusterFirstPing(t *testing.T) {
	p := &flakyPinger{}
	require.NoError(t, waitForCluster(context.Background(), p, logger.Discard()))
	require.Equal(t, 1, p.calls)
}

func TestNewPublisherWithoutBrokers(t *testing.T) {
	pub := newPublisher(&config.Pipeline{KafkaDLQTopic: "tweets_dlq"}, logger.Discard())
	require.IsType(t, deadletter.Nop{}, pub)
}

func TestNewPublisherWithBrokers(t *testing.T) {
	pub := newPublisher(&config.Pipeline{
		KafkaBrokers:  []string{"localhost:9092"},
		KafkaDLQTopic: "tweets_dlq",
	}, logger.Discard())
	defer pub.Close()
	require.IsType(t, &deadletter.KafkaPublisher{}, pub)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Pipeline{
		Common:        config.Common{ElasticsearchIndex: "tweets"},
		SettleMode:    config.SettleSleep,
		SettleDelay:   3 * time.Second,
		RetryAttempts: 5,
		RetryDelay:    time.Second,
		SampleSize:    7,
	}

	opts := optionsFrom(cfg)
	require.Equal(t, "tweets", opts.Alias)
	require.Equal(t, config.SettleSleep, opts.SettleMode)
	require.Equal(t, 3*time.Second, opts.SettleDelay)
	require.Equal(t, 5, opts.Retry.MaxAttempts)
	require.Equal(t, time.Second, opts.Retry.InitialDelay)
	require.Equal(t, 7, opts.SampleSize)
}
