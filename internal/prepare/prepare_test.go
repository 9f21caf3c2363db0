package prepare_test

import (
	"testing"

	"github.com/DeafMist/tweet-triage/backend/internal/loader"
	"github.com/DeafMist/tweet-triage/backend/internal/prepare"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{name: "rfc3339", in: "2024-02-03T04:05:06Z", want: "2024-02-03T04:05:06Z", ok: true},
		{name: "offset converted to utc", in: "2024-02-03T04:05:06+02:00", want: "2024-02-03T02:05:06Z", ok: true},
		{name: "space separated", in: "2024-02-03 04:05:06", want: "2024-02-03T04:05:06Z", ok: true},
		{name: "twitter", in: "Sat Feb 03 04:05:06 +0000 2024", want: "2024-02-03T04:05:06Z", ok: true},
		{name: "us short", in: "02/03/2024 04:05", want: "2024-02-03T04:05:00Z", ok: true},
		{name: "date only", in: "2024-02-03", want: "2024-02-03T00:00:00Z", ok: true},
		{name: "empty", in: "  ", want: "", ok: false},
		{name: "garbage", in: "yesterday-ish", want: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := prepare.NormalizeDate(tt.in)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestBuildDocumentID(t *testing.T) {
	id1 := prepare.BuildDocumentID("text", "2024-02-03T04:05:06Z", false)
	id2 := prepare.BuildDocumentID("text", "2024-02-03T04:05:06Z", false)
	require.NotEmpty(t, id1)
	require.Equal(t, id1, id2)
	require.NotEqual(t, id1, prepare.BuildDocumentID("text", "2024-02-03T04:05:06Z", true))
}

func TestPrepareAddsEmptyEnrichmentFields(t *testing.T) {
	rows := []loader.Row{
		{Text: "  I love my dog ", CreateDate: "2024-02-03 04:05:06", Antisemitic: false},
		{Text: "neutral statement", CreateDate: "not a date", Antisemitic: true},
	}

	docs, stats := prepare.Prepare(rows)
	require.Len(t, docs, 2)
	require.Equal(t, prepare.Stats{Rows: 2, Documents: 2, BadDates: 1}, stats)

	require.Equal(t, "I love my dog", docs[0].Text)
	require.Equal(t, "2024-02-03T04:05:06Z", docs[0].CreateDate)
	require.Empty(t, docs[0].Sentiment)
	require.NotNil(t, docs[0].Weapons)
	require.Empty(t, docs[0].Weapons)
	require.NotEmpty(t, docs[0].ID)

	require.Empty(t, docs[1].CreateDate)
	require.True(t, docs[1].Antisemitic)
}

func TestPrepareCollapsesDuplicateRows(t *testing.T) {
	row := loader.Row{Text: "same", CreateDate: "2024-01-01", Antisemitic: true}
	docs, stats := prepare.Prepare([]loader.Row{row, row, {Text: "other"}})

	require.Len(t, docs, 2)
	require.Equal(t, 1, stats.Duplicates)
	require.Equal(t, 3, stats.Rows)
	require.Equal(t, "same", docs[0].Text)
	require.Equal(t, "other", docs[1].Text)
}
