package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ErrRejected marks a request the cluster refused as a whole (4xx other than 429).
// Retrying it unchanged cannot succeed.
var ErrRejected = errors.New("request rejected by elasticsearch")

// DefaultMaxResults caps single-request fetches and matches.
const DefaultMaxResults = 10000

const generationInfix = "-gen-"

// tweetMapping fixes the field types of the tweets index.
var tweetMapping = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"CreateDate":  map[string]any{"type": "date"},
			"Antisemitic": map[string]any{"type": "boolean"},
			"text": map[string]any{
				"type": "text",
				"fields": map[string]any{
					"raw": map[string]any{"type": "keyword", "ignore_above": 8191},
				},
			},
			"sentiment": map[string]any{"type": "keyword"},
			"weapons":   map[string]any{"type": "keyword"},
		},
	},
}

// Client wraps go-elasticsearch with helpers tailored to this project.
// index is the read alias; pipeline operations take the generation index explicitly.
type Client struct {
	es         *elasticsearch.Client
	index      string
	maxResults int
	log        *slog.Logger
}

// New instantiates the Elasticsearch client. maxResults <= 0 selects DefaultMaxResults.
func New(addr, index string, maxResults int, logger *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	return &Client{es: es, index: index, maxResults: maxResults, log: logger}, nil
}

// Alias returns the read alias the client searches by default.
func (c *Client) Alias() string {
	return c.index
}

// GenerationName returns the concrete index name for one pipeline run.
func GenerationName(alias, runID string) string {
	return alias + generationInfix + strings.ToLower(runID)
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// Health reports whether the cluster health endpoint answers successfully.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}

// CreateIndex drops index if it exists and creates it again with the tweet mapping.
// A missing index is not an error; every other delete or create failure is.
func (c *Client) CreateIndex(ctx context.Context, index string) error {
	if err := c.deleteIndices(ctx, index); err != nil {
		return err
	}

	payload, err := json.Marshal(tweetMapping)
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}

	res, err := c.es.Indices.Create(
		index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError("create index "+index, res)
	}

	c.log.Debug("index created", slog.String("index", index))
	return nil
}

// Refresh makes every write to index visible to search. It is the visibility barrier.
func (c *Client) Refresh(ctx context.Context, index string) error {
	res, err := c.es.Indices.Refresh(
		c.es.Indices.Refresh.WithContext(ctx),
		c.es.Indices.Refresh.WithIndex(index),
	)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError("refresh "+index, res)
	}
	return nil
}

// Count returns the number of searchable documents in index.
func (c *Client) Count(ctx context.Context, index string) (int64, error) {
	res, err := c.es.Count(
		c.es.Count.WithContext(ctx),
		c.es.Count.WithIndex(index),
	)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, responseError("count "+index, res)
	}

	var parsed struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	return parsed.Count, nil
}

// SwapAlias points alias at index in one atomic request, detaching it from every other index.
// A concrete index that still carries the alias name is removed in the same request.
func (c *Client) SwapAlias(ctx context.Context, alias, index string) error {
	current, err := c.aliasTargets(ctx, alias)
	if err != nil {
		return err
	}

	actions := make([]map[string]any, 0, len(current)+2)
	if len(current) == 0 {
		legacy, err := c.indexExists(ctx, alias)
		if err != nil {
			return err
		}
		if legacy {
			actions = append(actions, map[string]any{
				"remove_index": map[string]any{"index": alias},
			})
		}
	}
	for _, old := range current {
		if old == index {
			continue
		}
		actions = append(actions, map[string]any{
			"remove": map[string]any{"index": old, "alias": alias},
		})
	}
	actions = append(actions, map[string]any{
		"add": map[string]any{"index": index, "alias": alias},
	})

	payload, err := json.Marshal(map[string]any{"actions": actions})
	if err != nil {
		return fmt.Errorf("marshal alias actions: %w", err)
	}

	res, err := c.es.Indices.UpdateAliases(
		bytes.NewReader(payload),
		c.es.Indices.UpdateAliases.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("update aliases: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError("update aliases", res)
	}

	c.log.Info("alias swapped", slog.String("alias", alias), slog.String("index", index))
	return nil
}

// PruneGenerations deletes every generation index of alias except keep and returns their names.
func (c *Client) PruneGenerations(ctx context.Context, alias, keep string) ([]string, error) {
	res, err := c.es.Cat.Indices(
		c.es.Cat.Indices.WithContext(ctx),
		c.es.Cat.Indices.WithIndex(alias+generationInfix+"*"),
		c.es.Cat.Indices.WithFormat("json"),
		c.es.Cat.Indices.WithH("index"),
	)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, responseError("list generations", res)
	}

	var rows []struct {
		Index string `json:"index"`
	}
	if err := json.NewDecoder(res.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode generations: %w", err)
	}

	stale := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.Index != "" && row.Index != keep {
			stale = append(stale, row.Index)
		}
	}
	if len(stale) == 0 {
		return nil, nil
	}

	if err := c.deleteIndices(ctx, stale...); err != nil {
		return nil, err
	}
	return stale, nil
}

func (c *Client) deleteIndices(ctx context.Context, indices ...string) error {
	res, err := c.es.Indices.Delete(indices, c.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("delete index %s: %w", strings.Join(indices, ","), err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		return responseError("delete index "+strings.Join(indices, ","), res)
	}
	return nil
}

func (c *Client) aliasTargets(ctx context.Context, alias string) ([]string, error) {
	res, err := c.es.Indices.GetAlias(
		c.es.Indices.GetAlias.WithContext(ctx),
		c.es.Indices.GetAlias.WithName(alias),
	)
	if err != nil {
		return nil, fmt.Errorf("get alias %s: %w", alias, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, responseError("get alias "+alias, res)
	}

	var parsed map[string]json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode alias response: %w", err)
	}

	indices := make([]string, 0, len(parsed))
	for name := range parsed {
		indices = append(indices, name)
	}
	return indices, nil
}

func (c *Client) indexExists(ctx context.Context, index string) (bool, error) {
	res, err := c.es.Indices.Exists([]string{index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("check index %s: %w", index, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusOK:
		return true, nil
	case res.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, responseError("check index "+index, res)
	}
}

func responseError(op string, res *esapi.Response) error {
	data, _ := io.ReadAll(res.Body)
	msg := strings.TrimSpace(string(data))
	if res.StatusCode >= http.StatusBadRequest && res.StatusCode < http.StatusInternalServerError &&
		res.StatusCode != http.StatusTooManyRequests {
		return fmt.Errorf("%s failed: %w: %s", op, ErrRejected, msg)
	}
	return fmt.Errorf("%s failed: %s: %s", op, res.Status(), msg)
}
