package weapons

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/DeafMist/tweet-triage/backend/internal/dedupe"
	"github.com/DeafMist/tweet-triage/backend/internal/models"
)

// Matcher finds the documents of index whose text contains term.
type Matcher interface {
	MatchText(ctx context.Context, index, term string) ([]string, error)
}

// Tagger builds the keyword → document IDs index for a vocabulary.
type Tagger struct {
	matcher Matcher
	log     *slog.Logger
}

// NewTagger builds a Tagger that delegates text matching to matcher.
func NewTagger(matcher Matcher, logger *slog.Logger) *Tagger {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Tagger{matcher: matcher, log: logger}
}

// FindOccurrences looks up every vocabulary term in index.
// Terms without matches are left out of the result. A lookup error aborts the scan.
func (t *Tagger) FindOccurrences(ctx context.Context, index string, vocabulary []string) (models.WeaponIndex, error) {
	result := make(models.WeaponIndex)
	for _, term := range dedupe.Unique(vocabulary) {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}

		ids, err := t.matcher.MatchText(ctx, index, term)
		if err != nil {
			return nil, fmt.Errorf("match %q: %w", term, err)
		}
		ids = dedupe.Unique(ids)
		if len(ids) == 0 {
			continue
		}

		t.log.Debug("weapon matched", slog.String("weapon", term), slog.Int("documents", len(ids)))
		result[term] = ids
	}
	return result, nil
}

// ByDocument inverts an occurrence index into document ID → keywords, keeping vocabulary order.
func ByDocument(occurrences models.WeaponIndex, vocabulary []string) map[string][]string {
	out := make(map[string][]string)
	for _, term := range dedupe.Unique(vocabulary) {
		for _, id := range occurrences[term] {
			out[id] = append(out[id], term)
		}
	}
	return out
}
