package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/subosito/gotenv"
)

// Settle modes for the visibility barrier.
const (
	SettleRefresh = "refresh"
	SettleSleep   = "sleep"
)

// Common contains Elasticsearch parameters shared by every service.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Pipeline holds configuration for the batch enrichment run.
type Pipeline struct {
	Common
	InputPath      string
	VocabularyPath string
	MaxResults     int
	SettleMode     string
	SettleDelay    time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
	SampleSize     int
	Timeout        time.Duration
	KafkaBrokers   []string
	KafkaDLQTopic  string
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	BindAddr    string
	DefaultPage int
	MaxPage     int
}

// LoadEnvFile loads variables from a dotenv file named by ENV_FILE (default ".env").
// Variables already set in the environment are kept. A missing file is not an error.
func LoadEnvFile() error {
	path := getEnv("ENV_FILE", ".env")
	if err := gotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// LoadPipeline builds a Pipeline config from environment variables.
func LoadPipeline() (*Pipeline, error) {
	c := &Pipeline{
		Common:         loadCommon(),
		InputPath:      getEnv("PIPELINE_INPUT_PATH", "data/tweets_injected.csv"),
		VocabularyPath: getEnv("PIPELINE_VOCAB_PATH", "data/weapon_list.txt"),
		MaxResults:     getInt("PIPELINE_MAX_RESULTS", 10000),
		SettleMode:     strings.ToLower(getEnv("PIPELINE_SETTLE_MODE", SettleRefresh)),
		SettleDelay:    getDuration("PIPELINE_SETTLE_DELAY", "2s"),
		RetryAttempts:  getInt("PIPELINE_RETRY_ATTEMPTS", 3),
		RetryDelay:     getDuration("PIPELINE_RETRY_DELAY", "500ms"),
		SampleSize:     getInt("PIPELINE_SAMPLE_SIZE", 10),
		Timeout:        getDuration("PIPELINE_TIMEOUT", "10m"),
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "")),
		KafkaDLQTopic:  getEnv("KAFKA_DLQ_TOPIC", "tweets_dlq"),
	}

	if c.MaxResults <= 0 {
		return nil, fmt.Errorf("PIPELINE_MAX_RESULTS must be positive")
	}
	if c.SettleMode != SettleRefresh && c.SettleMode != SettleSleep {
		return nil, fmt.Errorf("PIPELINE_SETTLE_MODE must be %q or %q", SettleRefresh, SettleSleep)
	}
	if c.SettleMode == SettleSleep && c.SettleDelay <= 0 {
		return nil, fmt.Errorf("PIPELINE_SETTLE_DELAY must be positive in sleep mode")
	}
	if c.RetryAttempts <= 0 {
		return nil, fmt.Errorf("PIPELINE_RETRY_ATTEMPTS must be positive")
	}
	if c.SampleSize < 0 {
		return nil, fmt.Errorf("PIPELINE_SAMPLE_SIZE cannot be negative")
	}
	if c.Timeout <= 0 {
		return nil, fmt.Errorf("PIPELINE_TIMEOUT must be positive")
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	c := &API{
		Common:      loadCommon(),
		BindAddr:    getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultPage: getInt("API_PAGE_SIZE", 20),
		MaxPage:     getInt("API_MAX_PAGE_SIZE", 100),
	}

	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}

	return c, nil
}

func loadCommon() Common {
	return Common{
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "tweets"),
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
