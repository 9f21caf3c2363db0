package sentiment

import (
	"fmt"

	"github.com/jonreiter/govader"
)

// Scorer returns a compound polarity score in [-1, 1] for text.
type Scorer interface {
	Compound(text string) (float64, error)
}

// VaderScorer scores text with the VADER lexicon.
type VaderScorer struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

// NewVaderScorer loads the VADER lexicon.
func NewVaderScorer() *VaderScorer {
	return &VaderScorer{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

// Compound returns the VADER compound score. A panic inside the analyzer is returned as an error.
func (v *VaderScorer) Compound(text string) (score float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("vader panic: %v", r)
		}
	}()

	return v.analyzer.PolarityScores(text).Compound, nil
}
