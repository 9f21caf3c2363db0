package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/tweet-triage/backend/internal/config"
	"github.com/DeafMist/tweet-triage/backend/internal/deadletter"
	"github.com/DeafMist/tweet-triage/backend/internal/elasticsearch"
	"github.com/DeafMist/tweet-triage/backend/internal/loader"
	"github.com/DeafMist/tweet-triage/backend/internal/logger"
	"github.com/DeafMist/tweet-triage/backend/internal/pipeline"
	"github.com/DeafMist/tweet-triage/backend/internal/retry"
	"github.com/DeafMist/tweet-triage/backend/internal/sentiment"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	log := logger.New("pipeline")
	if err := config.LoadEnvFile(); err != nil {
		log.Error("load env file", slog.Any("err", err))
		os.Exit(1)
	}
	cfg, err := config.LoadPipeline()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	rows, err := loader.LoadRowsFile(cfg.InputPath)
	if err != nil {
		log.Error("load input", slog.String("path", cfg.InputPath), slog.Any("err", err))
		os.Exit(1)
	}
	vocabulary, err := loader.LoadVocabularyFile(cfg.VocabularyPath)
	if err != nil {
		log.Error("load vocabulary", slog.String("path", cfg.VocabularyPath), slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("input loaded", slog.Int("rows", len(rows)), slog.Int("vocabulary", len(vocabulary)))

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, cfg.MaxResults, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}
	if err := waitForCluster(ctx, esClient, log); err != nil {
		log.Error("failed to connect to elasticsearch after retries", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("connected to elasticsearch")

	dlq := newPublisher(cfg, log)
	defer dlq.Close()

	p := pipeline.New(
		esClient,
		sentiment.NewEnricher(sentiment.NewVaderScorer(), log),
		dlq,
		optionsFrom(cfg),
		log,
	)

	report, err := p.Run(ctx, rows, vocabulary)
	report.Log(log)
	if err != nil {
		log.Error("pipeline run failed", slog.Any("err", err))
		dlq.Close()
		os.Exit(1)
	}
}

// waitForCluster pings Elasticsearch with exponential backoff until it answers.
func waitForCluster(ctx context.Context, es pinger, log *slog.Logger) error {
	cfg := retry.Config{
		MaxAttempts:  10,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		Logger:       log,
	}
	return retry.Do(ctx, cfg, "ping elasticsearch", func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return es.Ping(pingCtx)
	})
}

func newPublisher(cfg *config.Pipeline, log *slog.Logger) deadletter.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		log.Info("dead letter publishing disabled")
		return deadletter.Nop{}
	}
	log.Info("dead letter publishing enabled",
		slog.Any("brokers", cfg.KafkaBrokers),
		slog.String("topic", cfg.KafkaDLQTopic),
	)
	return deadletter.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaDLQTopic)
}

func optionsFrom(cfg *config.Pipeline) pipeline.Options {
	rc := retry.DefaultConfig()
	rc.MaxAttempts = cfg.RetryAttempts
	rc.InitialDelay = cfg.RetryDelay

	return pipeline.Options{
		Alias:       cfg.ElasticsearchIndex,
		SettleMode:  cfg.SettleMode,
		SettleDelay: cfg.SettleDelay,
		Retry:       rc,
		SampleSize:  cfg.SampleSize,
	}
}
