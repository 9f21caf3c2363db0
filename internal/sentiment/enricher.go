package sentiment

import (
	"io"
	"log/slog"
	"strings"

	"github.com/DeafMist/tweet-triage/backend/internal/models"
)

// Thresholds on the compound score. Both bounds are inclusive toward their label.
const (
	NegativeThreshold = -0.5
	PositiveThreshold = 0.5
)

// Tally counts the outcome of a batch classification.
type Tally struct {
	Processed int
	Empty     int
	Errors    int
	Positive  int
	Negative  int
	Neutral   int
}

// Enricher assigns sentiment labels to documents.
type Enricher struct {
	scorer Scorer
	log    *slog.Logger
}

// NewEnricher builds an Enricher around scorer.
func NewEnricher(scorer Scorer, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Enricher{scorer: scorer, log: logger}
}

// Label maps a compound score to a sentiment label.
func Label(compound float64) string {
	switch {
	case compound <= NegativeThreshold:
		return models.SentimentNegative
	case compound >= PositiveThreshold:
		return models.SentimentPositive
	default:
		return models.SentimentNeutral
	}
}

// Classify returns the label for text. Blank text is neutral and never scored.
// Scorer failures are reported as neutral.
func (e *Enricher) Classify(text string) string {
	label, _ := e.classify(text)
	return label
}

func (e *Enricher) classify(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return models.SentimentNeutral, nil
	}

	score, err := e.scorer.Compound(text)
	if err != nil {
		return models.SentimentNeutral, err
	}
	return Label(score), nil
}

// ClassifyBatch sets the Sentiment field of every document in place.
func (e *Enricher) ClassifyBatch(docs []models.Tweet) Tally {
	var t Tally
	for i := range docs {
		t.Processed++
		if strings.TrimSpace(docs[i].Text) == "" {
			t.Empty++
		}

		label, err := e.classify(docs[i].Text)
		if err != nil {
			t.Errors++
			e.log.Warn("sentiment scoring failed, using neutral",
				slog.String("id", docs[i].ID),
				slog.Any("err", err),
			)
		}
		docs[i].Sentiment = label

		switch label {
		case models.SentimentPositive:
			t.Positive++
		case models.SentimentNegative:
			t.Negative++
		default:
			t.Neutral++
		}
	}
	return t
}
