package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/DeafMist/tweet-triage/backend/internal/models"
)

// SearchParams narrow the tweet search query.
type SearchParams struct {
	Query       string
	Weapons     []string
	Sentiment   string
	Antisemitic *bool
	MinWeapons  int
	From        int
	Size        int
	Sort        string
	Start       *time.Time
	End         *time.Time
}

// Hit is a stored tweet together with its document ID.
type Hit struct {
	ID string `json:"id"`
	models.Tweet
}

// SearchResult bundles hits and total count.
type SearchResult struct {
	Total int64 `json:"total"`
	Items []Hit `json:"items"`
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value    int64  `json:"value"`
			Relation string `json:"relation"`
		} `json:"total"`
		Hits []struct {
			ID     string          `json:"_id"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// GetAll returns every document in index with its ID set, in a single fetch of at most maxResults.
func (c *Client) GetAll(ctx context.Context, index string) ([]models.Tweet, error) {
	body := map[string]any{
		"size":             c.maxResults,
		"track_total_hits": true,
		"sort":             []string{"_doc"},
		"query":            map[string]any{"match_all": map[string]any{}},
	}

	parsed, err := c.search(ctx, index, body)
	if err != nil {
		return nil, err
	}

	if total := parsed.Hits.Total.Value; total > int64(len(parsed.Hits.Hits)) {
		c.log.Warn("index holds more documents than a single fetch returns",
			slog.String("index", index),
			slog.Int64("total", total),
			slog.Int("fetched", len(parsed.Hits.Hits)),
		)
	}

	docs := make([]models.Tweet, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		var doc models.Tweet
		if len(hit.Source) > 0 {
			if err := json.Unmarshal(hit.Source, &doc); err != nil {
				return nil, fmt.Errorf("decode document %s: %w", hit.ID, err)
			}
		}
		doc.ID = hit.ID
		docs = append(docs, doc)
	}
	return docs, nil
}

// MatchText returns the IDs of documents whose text contains term as a phrase, analysed by the store.
func (c *Client) MatchText(ctx context.Context, index, term string) ([]string, error) {
	body := map[string]any{
		"size":    c.maxResults,
		"_source": false,
		"query": map[string]any{
			"match_phrase": map[string]any{"text": term},
		},
	}
	return c.searchIDs(ctx, index, body)
}

// QueryIrrelevant returns the IDs of documents that are not antisemitic and carry none of the vocabulary terms.
func (c *Client) QueryIrrelevant(ctx context.Context, index string, vocabulary []string) ([]string, error) {
	boolQuery := map[string]any{
		"filter": []map[string]any{
			{"term": map[string]any{"Antisemitic": false}},
		},
	}
	if len(vocabulary) > 0 {
		boolQuery["must_not"] = []map[string]any{
			{"terms": map[string]any{"weapons": vocabulary}},
		}
	}

	body := map[string]any{
		"size":    c.maxResults,
		"_source": false,
		"query":   map[string]any{"bool": boolQuery},
	}
	return c.searchIDs(ctx, index, body)
}

// SearchTweets executes a bool query with optional filters against the read alias.
func (c *Client) SearchTweets(ctx context.Context, params SearchParams) (*SearchResult, error) {
	if params.Size <= 0 {
		params.Size = 20
	}
	if params.Size > 200 {
		params.Size = 200
	}
	if params.From < 0 {
		params.From = 0
	}

	must := make([]map[string]any, 0, 1)
	filters := make([]map[string]any, 0, 5)

	if params.Query != "" {
		must = append(must, map[string]any{
			"match": map[string]any{"text": params.Query},
		})
	}

	if len(params.Weapons) > 0 {
		filters = append(filters, map[string]any{
			"terms": map[string]any{"weapons": params.Weapons},
		})
	}

	if params.Sentiment != "" {
		filters = append(filters, map[string]any{
			"term": map[string]any{"sentiment": params.Sentiment},
		})
	}

	if params.Antisemitic != nil {
		filters = append(filters, map[string]any{
			"term": map[string]any{"Antisemitic": *params.Antisemitic},
		})
	}

	if params.MinWeapons > 0 {
		filters = append(filters, map[string]any{
			"script": map[string]any{
				"script": map[string]any{
					"source": "doc['weapons'].size() >= params.min",
					"params": map[string]any{"min": params.MinWeapons},
				},
			},
		})
	}

	if params.Start != nil || params.End != nil {
		rangeQuery := map[string]any{}
		if params.Start != nil {
			rangeQuery["gte"] = params.Start.UTC().Format(time.RFC3339)
		}
		if params.End != nil {
			rangeQuery["lte"] = params.End.UTC().Format(time.RFC3339)
		}
		filters = append(filters, map[string]any{
			"range": map[string]any{"CreateDate": rangeQuery},
		})
	}

	boolQuery := map[string]any{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	if len(must) == 0 && len(filters) == 0 {
		boolQuery["must"] = []map[string]any{
			{"match_all": map[string]any{}},
		}
	}

	body := map[string]any{
		"from":             params.From,
		"size":             params.Size,
		"track_total_hits": true,
		"query": map[string]any{
			"bool": boolQuery,
		},
	}

	sortField := params.Sort
	if sortField == "" {
		sortField = "CreateDate:desc"
	}

	parts := strings.Split(sortField, ":")
	order := "desc"
	field := parts[0]
	if field == "" {
		field = "CreateDate"
	}
	if len(parts) > 1 && parts[1] != "" {
		order = parts[1]
	}
	body["sort"] = []map[string]any{
		{field: map[string]any{"order": order, "unmapped_type": "keyword"}},
	}

	parsed, err := c.search(ctx, c.index, body)
	if err != nil {
		return nil, err
	}

	items := make([]Hit, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		item := Hit{ID: hit.ID}
		if err := json.Unmarshal(hit.Source, &item.Tweet); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", hit.ID, err)
		}
		items = append(items, item)
	}

	return &SearchResult{
		Total: parsed.Hits.Total.Value,
		Items: items,
	}, nil
}

func (c *Client) searchIDs(ctx context.Context, index string, body map[string]any) ([]string, error) {
	parsed, err := c.search(ctx, index, body)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

func (c *Client) search(ctx context.Context, index string, body map[string]any) (*searchResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, responseError("search "+index, res)
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &parsed, nil
}
