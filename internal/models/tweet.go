package models

// Sentiment labels written to the sentiment field.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// Tweet represents the canonical structure stored in Elasticsearch.
// ID is the store document ID and never part of the stored source.
type Tweet struct {
	ID          string   `json:"-"`
	Text        string   `json:"text"`
	CreateDate  string   `json:"CreateDate,omitempty"`
	Antisemitic bool     `json:"Antisemitic"`
	Sentiment   string   `json:"sentiment"`
	Weapons     []string `json:"weapons"`
}

// WeaponIndex maps a vocabulary keyword to the IDs of documents whose text matches it.
type WeaponIndex map[string][]string

// Matches returns the total number of keyword/document pairs.
func (w WeaponIndex) Matches() int {
	n := 0
	for _, ids := range w {
		n += len(ids)
	}
	return n
}
