package prepare

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/DeafMist/tweet-triage/backend/internal/dedupe"
	"github.com/DeafMist/tweet-triage/backend/internal/loader"
	"github.com/DeafMist/tweet-triage/backend/internal/models"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"Mon Jan 02 15:04:05 -0700 2006",
	time.RFC1123Z,
	time.RFC1123,
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
	"2006-01-02",
}

// Stats summarises one preparation pass.
type Stats struct {
	Rows       int
	Documents  int
	Duplicates int
	BadDates   int
}

// Prepare converts raw rows into documents ready for indexing.
// Every document gets a deterministic ID, an empty sentiment and an empty weapons list.
// Rows that produce an already seen ID are dropped.
func Prepare(rows []loader.Row) ([]models.Tweet, Stats) {
	stats := Stats{Rows: len(rows)}
	seen := dedupe.NewSet(len(rows))
	docs := make([]models.Tweet, 0, len(rows))

	for _, row := range rows {
		text := strings.TrimSpace(row.Text)

		date, ok := NormalizeDate(row.CreateDate)
		if !ok && strings.TrimSpace(row.CreateDate) != "" {
			stats.BadDates++
		}

		id := BuildDocumentID(text, date, row.Antisemitic)
		if !seen.Add(id) {
			stats.Duplicates++
			continue
		}

		docs = append(docs, models.Tweet{
			ID:          id,
			Text:        text,
			CreateDate:  date,
			Antisemitic: row.Antisemitic,
			Sentiment:   "",
			Weapons:     []string{},
		})
	}

	stats.Documents = len(docs)
	return docs, stats
}

// NormalizeDate parses raw with the supported layouts and returns it as RFC3339 in UTC.
func NormalizeDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC().Format(time.RFC3339), true
		}
	}

	return "", false
}

// BuildDocumentID hashes the immutable fields to form deterministic IDs.
func BuildDocumentID(text, createDate string, antisemitic bool) string {
	s := sha1.Sum([]byte(text + "|" + createDate + "|" + strconv.FormatBool(antisemitic)))
	return hex.EncodeToString(s[:])
}
