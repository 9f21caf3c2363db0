package pipeline

import (
	"log/slog"

	"github.com/DeafMist/tweet-triage/backend/internal/elasticsearch"
	"github.com/DeafMist/tweet-triage/backend/internal/sentiment"
)

// Report summarises one pipeline run.
type Report struct {
	RunID string
	Index string
	State State
	// FailedAfter is the last state reached before a fatal error.
	FailedAfter State

	Rows       int
	Documents  int
	Duplicates int
	BadDates   int

	Indexed       int
	IndexFailures int
	StoreCount    int64

	Fetched           int
	Sentiment         sentiment.Tally
	SentimentUpdated  int
	SentimentFailures int

	WeaponKeywords   int
	WeaponMatches    int
	WeaponDocuments  int
	WeaponsApplied   int
	WeaponsUnchanged int
	WeaponFailures   int

	Irrelevant     int
	Deleted        int
	DeleteFailures int

	Total            int
	WithSentiment    int
	WithoutSentiment int
	MissingSample    []string

	PrunedGenerations []string
	FailureSample     []elasticsearch.ItemFailure
}

// Log writes the verification report.
func (r *Report) Log(log *slog.Logger) {
	attrs := []any{
		slog.String("run_id", r.RunID),
		slog.String("index", r.Index),
		slog.String("state", r.State.String()),
		slog.Int("rows", r.Rows),
		slog.Int("documents", r.Documents),
		slog.Int("duplicates", r.Duplicates),
		slog.Int("bad_dates", r.BadDates),
		slog.Int("indexed", r.Indexed),
		slog.Int("index_failures", r.IndexFailures),
		slog.Int("sentiment_updated", r.SentimentUpdated),
		slog.Int("sentiment_errors", r.Sentiment.Errors),
		slog.Int("weapon_keywords", r.WeaponKeywords),
		slog.Int("weapon_documents", r.WeaponDocuments),
		slog.Int("weapons_applied", r.WeaponsApplied),
		slog.Int("deleted", r.Deleted),
		slog.Int("total", r.Total),
		slog.Int("with_sentiment", r.WithSentiment),
		slog.Int("without_sentiment", r.WithoutSentiment),
	}
	if r.State == StateFailed {
		attrs = append(attrs, slog.String("failed_after", r.FailedAfter.String()))
	}
	if len(r.MissingSample) > 0 {
		attrs = append(attrs, slog.Any("missing_sentiment_sample", r.MissingSample))
	}
	if len(r.FailureSample) > 0 {
		attrs = append(attrs, slog.Any("failure_sample", r.FailureSample))
	}

	if r.State == StateFailed || r.WithoutSentiment > 0 {
		log.Warn("verification report", attrs...)
		return
	}
	log.Info("verification report", attrs...)
}
