package pipeline_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/DeafMist/tweet-triage/backend/internal/elasticsearch"
	"github.com/DeafMist/tweet-triage/backend/internal/models"
)

// memIndex keeps the latest writes apart from what search can see until Refresh.
type memIndex struct {
	latest  map[string]models.Tweet
	visible map[string]models.Tweet
}

// memStore emulates the store with near-real-time visibility.
type memStore struct {
	mu          sync.Mutex
	indices     map[string]*memIndex
	aliases     map[string]string
	autoRefresh bool

	refreshes  int
	calls      map[string]int
	failOnce   map[string]error
	failAlways map[string]error
	indexFail  map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		indices:    map[string]*memIndex{},
		aliases:    map[string]string{},
		calls:      map[string]int{},
		failOnce:   map[string]error{},
		failAlways: map[string]error{},
		indexFail:  map[string]string{},
	}
}

func (m *memStore) hit(op string) error {
	m.calls[op]++
	if err, ok := m.failAlways[op]; ok {
		return err
	}
	if err, ok := m.failOnce[op]; ok {
		delete(m.failOnce, op)
		return err
	}
	return nil
}

func (m *memStore) get(index string) (*memIndex, error) {
	idx, ok := m.indices[index]
	if !ok {
		return nil, errors.New("index_not_found_exception: " + index)
	}
	return idx, nil
}

func (m *memStore) written(idx *memIndex) {
	if m.autoRefresh {
		idx.visible = cloneDocs(idx.latest)
	}
}

func (m *memStore) CreateIndex(_ context.Context, index string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit("create"); err != nil {
		return err
	}
	m.indices[index] = &memIndex{latest: map[string]models.Tweet{}, visible: map[string]models.Tweet{}}
	return nil
}

func (m *memStore) BulkIndex(_ context.Context, index string, docs []models.Tweet) (elasticsearch.BulkResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res elasticsearch.BulkResult
	if err := m.hit("bulk_index"); err != nil {
		return res, err
	}
	idx, err := m.get(index)
	if err != nil {
		return res, err
	}
	for _, doc := range docs {
		if reason, bad := m.indexFail[doc.Text]; bad {
			res.Failed = append(res.Failed, elasticsearch.ItemFailure{ID: doc.ID, Op: elasticsearch.OpIndex, Status: 400, Reason: reason})
			continue
		}
		doc.Weapons = append([]string{}, doc.Weapons...)
		idx.latest[doc.ID] = doc
		res.Succeeded++
	}
	m.written(idx)
	return res, nil
}

func (m *memStore) Refresh(_ context.Context, index string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit("refresh"); err != nil {
		return err
	}
	idx, err := m.get(index)
	if err != nil {
		return err
	}
	m.refreshes++
	idx.visible = cloneDocs(idx.latest)
	return nil
}

func (m *memStore) Count(_ context.Context, index string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit("count"); err != nil {
		return 0, err
	}
	idx, err := m.get(index)
	if err != nil {
		return 0, err
	}
	return int64(len(idx.visible)), nil
}

func (m *memStore) GetAll(_ context.Context, index string) ([]models.Tweet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit("get_all"); err != nil {
		return nil, err
	}
	idx, err := m.get(index)
	if err != nil {
		return nil, err
	}
	out := make([]models.Tweet, 0, len(idx.visible))
	for _, id := range sortedIDs(idx.visible) {
		out = append(out, idx.visible[id])
	}
	return out, nil
}

func (m *memStore) UpdateSentiment(_ context.Context, index string, docs []models.Tweet) (elasticsearch.BulkResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res elasticsearch.BulkResult
	if err := m.hit("update_sentiment"); err != nil {
		return res, err
	}
	idx, err := m.get(index)
	if err != nil {
		return res, err
	}
	for _, doc := range docs {
		cur, ok := idx.latest[doc.ID]
		if !ok {
			res.Failed = append(res.Failed, elasticsearch.ItemFailure{ID: doc.ID, Op: elasticsearch.OpUpdate, Status: 404, Reason: "document_missing_exception"})
			continue
		}
		cur.Sentiment = doc.Sentiment
		idx.latest[doc.ID] = cur
		res.Succeeded++
	}
	m.written(idx)
	return res, nil
}

func (m *memStore) MatchText(_ context.Context, index, term string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit("match"); err != nil {
		return nil, err
	}
	idx, err := m.get(index)
	if err != nil {
		return nil, err
	}
	phrase := tokens(term)
	var ids []string
	for _, id := range sortedIDs(idx.visible) {
		if containsPhrase(tokens(idx.visible[id].Text), phrase) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memStore) AppendWeapons(_ context.Context, index string, occurrences models.WeaponIndex) (elasticsearch.BulkResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res elasticsearch.BulkResult
	if err := m.hit("append_weapons"); err != nil {
		return res, err
	}
	idx, err := m.get(index)
	if err != nil {
		return res, err
	}
	for kw, ids := range occurrences {
		for _, id := range ids {
			cur, ok := idx.latest[id]
			if !ok {
				res.Failed = append(res.Failed, elasticsearch.ItemFailure{ID: id, Op: elasticsearch.OpUpdate, Status: 404})
				continue
			}
			if contains(cur.Weapons, kw) {
				res.Noops++
				continue
			}
			cur.Weapons = append(append([]string{}, cur.Weapons...), kw)
			idx.latest[id] = cur
			res.Succeeded++
		}
	}
	m.written(idx)
	return res, nil
}

func (m *memStore) QueryIrrelevant(_ context.Context, index string, vocabulary []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit("query_irrelevant"); err != nil {
		return nil, err
	}
	idx, err := m.get(index)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, id := range sortedIDs(idx.visible) {
		doc := idx.visible[id]
		if doc.Antisemitic {
			continue
		}
		relevant := false
		for _, w := range doc.Weapons {
			if contains(vocabulary, w) {
				relevant = true
				break
			}
		}
		if !relevant {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memStore) BulkDelete(_ context.Context, index string, ids []string) (elasticsearch.BulkResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res elasticsearch.BulkResult
	if err := m.hit("bulk_delete"); err != nil {
		return res, err
	}
	idx, err := m.get(index)
	if err != nil {
		return res, err
	}
	for _, id := range ids {
		if _, ok := idx.latest[id]; !ok {
			res.Noops++
			continue
		}
		delete(idx.latest, id)
		res.Succeeded++
	}
	m.written(idx)
	return res, nil
}

func (m *memStore) SwapAlias(_ context.Context, alias, index string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit("swap_alias"); err != nil {
		return err
	}
	if _, err := m.get(index); err != nil {
		return err
	}
	m.aliases[alias] = index
	return nil
}

func (m *memStore) PruneGenerations(_ context.Context, alias, keep string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit("prune"); err != nil {
		return nil, err
	}
	var removed []string
	for name := range m.indices {
		if name != keep && strings.HasPrefix(name, alias+"-gen-") {
			removed = append(removed, name)
			delete(m.indices, name)
		}
	}
	sort.Strings(removed)
	return removed, nil
}

// aliased returns the latest state of the index alias points at.
func (m *memStore) aliased(alias string) map[string]models.Tweet {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.indices[m.aliases[alias]]
	if !ok {
		return nil
	}
	return cloneDocs(idx.latest)
}

func cloneDocs(in map[string]models.Tweet) map[string]models.Tweet {
	out := make(map[string]models.Tweet, len(in))
	for id, doc := range in {
		doc.Weapons = append([]string{}, doc.Weapons...)
		out[id] = doc
	}
	return out
}

func sortedIDs(docs map[string]models.Tweet) []string {
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func containsPhrase(text, phrase []string) bool {
	if len(phrase) == 0 {
		return false
	}
	for i := 0; i+len(phrase) <= len(text); i++ {
		match := true
		for j := range phrase {
			if text[i+j] != phrase[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
