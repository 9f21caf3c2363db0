package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/DeafMist/tweet-triage/backend/internal/models"
)

// appendWeaponScript adds params.weapon to weapons unless it is already present.
const appendWeaponScript = `if (ctx._source.weapons == null) { ctx._source.weapons = new ArrayList(); } ` +
	`else if (!(ctx._source.weapons instanceof List)) { ctx._source.weapons = [ctx._source.weapons]; } ` +
	`if (ctx._source.weapons.contains(params.weapon)) { ctx.op = 'noop'; } ` +
	`else { ctx._source.weapons.add(params.weapon); }`

// Bulk operation names as they appear in request and response lines.
const (
	OpIndex  = "index"
	OpUpdate = "update"
	OpDelete = "delete"
)

// ItemFailure describes one bulk item the cluster did not apply.
type ItemFailure struct {
	ID     string `json:"id"`
	Op     string `json:"op"`
	Status int    `json:"status"`
	Reason string `json:"reason"`
}

// BulkResult aggregates per-item outcomes of bulk requests.
type BulkResult struct {
	Succeeded int
	Noops     int
	Failed    []ItemFailure
}

// Total returns the number of items reported.
func (r BulkResult) Total() int {
	return r.Succeeded + r.Noops + len(r.Failed)
}

// Sample returns at most n failures.
func (r BulkResult) Sample(n int) []ItemFailure {
	if n < 0 || n >= len(r.Failed) {
		return r.Failed
	}
	return r.Failed[:n]
}

type bulkAction struct {
	op   string
	id   string
	body any
}

type bulkItem struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Result string `json:"result"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// BulkIndex writes docs into index under their IDs; documents without an ID get one from the store.
// Per-document failures are reported in the result; the error is reserved for request failures.
func (c *Client) BulkIndex(ctx context.Context, index string, docs []models.Tweet) (BulkResult, error) {
	actions := make([]bulkAction, 0, len(docs))
	for _, doc := range docs {
		actions = append(actions, bulkAction{op: OpIndex, id: doc.ID, body: doc})
	}
	return c.bulk(ctx, index, actions)
}

// UpdateSentiment replaces the sentiment field of each document and leaves other fields untouched.
// Documents without an ID are reported as failures without being sent.
func (c *Client) UpdateSentiment(ctx context.Context, index string, docs []models.Tweet) (BulkResult, error) {
	var local BulkResult
	actions := make([]bulkAction, 0, len(docs))
	for _, doc := range docs {
		if doc.ID == "" {
			local.Failed = append(local.Failed, ItemFailure{Op: OpUpdate, Reason: "missing document id"})
			continue
		}
		actions = append(actions, bulkAction{
			op:   OpUpdate,
			id:   doc.ID,
			body: map[string]any{"doc": map[string]any{"sentiment": doc.Sentiment}},
		})
	}

	res, err := c.bulk(ctx, index, actions)
	res.Failed = append(local.Failed, res.Failed...)
	return res, err
}

// AppendWeapons merges every keyword into the weapons list of its matching documents.
// The merge runs server side and skips keywords already present, so repeated runs do not duplicate.
func (c *Client) AppendWeapons(ctx context.Context, index string, occurrences models.WeaponIndex) (BulkResult, error) {
	keywords := make([]string, 0, len(occurrences))
	for kw := range occurrences {
		keywords = append(keywords, kw)
	}
	sort.Strings(keywords)

	actions := make([]bulkAction, 0, occurrences.Matches())
	for _, kw := range keywords {
		for _, id := range occurrences[kw] {
			actions = append(actions, bulkAction{
				op: OpUpdate,
				id: id,
				body: map[string]any{
					"script": map[string]any{
						"lang":   "painless",
						"source": appendWeaponScript,
						"params": map[string]any{"weapon": kw},
					},
				},
			})
		}
	}
	return c.bulk(ctx, index, actions)
}

// BulkDelete removes ids from index. Documents that are already gone count as no-ops.
func (c *Client) BulkDelete(ctx context.Context, index string, ids []string) (BulkResult, error) {
	actions := make([]bulkAction, 0, len(ids))
	for _, id := range ids {
		actions = append(actions, bulkAction{op: OpDelete, id: id})
	}
	return c.bulk(ctx, index, actions)
}

func (c *Client) bulk(ctx context.Context, index string, actions []bulkAction) (BulkResult, error) {
	var result BulkResult
	if len(actions) == 0 {
		return result, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, a := range actions {
		meta := map[string]any{}
		if a.id != "" {
			meta["_id"] = a.id
		}
		if err := enc.Encode(map[string]any{a.op: meta}); err != nil {
			return result, fmt.Errorf("encode bulk meta: %w", err)
		}
		if a.body == nil {
			continue
		}
		if err := enc.Encode(a.body); err != nil {
			return result, fmt.Errorf("encode bulk body: %w", err)
		}
	}

	res, err := c.es.Bulk(
		bytes.NewReader(buf.Bytes()),
		c.es.Bulk.WithContext(ctx),
		c.es.Bulk.WithIndex(index),
	)
	if err != nil {
		return result, fmt.Errorf("bulk %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return result, responseError("bulk "+index, res)
	}

	var parsed struct {
		Errors bool                  `json:"errors"`
		Items  []map[string]bulkItem `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return result, fmt.Errorf("decode bulk response: %w", err)
	}

	for _, entry := range parsed.Items {
		for op, item := range entry {
			switch {
			case item.Status >= http.StatusOK && item.Status < http.StatusMultipleChoices && item.Result == "noop":
				result.Noops++
			case item.Status >= http.StatusOK && item.Status < http.StatusMultipleChoices:
				result.Succeeded++
			case op == OpDelete && item.Status == http.StatusNotFound:
				result.Noops++
			default:
				f := ItemFailure{ID: item.ID, Op: op, Status: item.Status}
				if item.Error != nil {
					f.Reason = item.Error.Type + ": " + item.Error.Reason
				}
				result.Failed = append(result.Failed, f)
			}
		}
	}

	if len(result.Failed) > 0 {
		c.log.Warn("bulk request partially failed",
			slog.String("index", index),
			slog.Int("failed", len(result.Failed)),
			slog.Int("succeeded", result.Succeeded),
		)
	}

	return result, nil
}
