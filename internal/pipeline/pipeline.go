package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DeafMist/tweet-triage/backend/internal/config"
	"github.com/DeafMist/tweet-triage/backend/internal/deadletter"
	"github.com/DeafMist/tweet-triage/backend/internal/elasticsearch"
	"github.com/DeafMist/tweet-triage/backend/internal/loader"
	"github.com/DeafMist/tweet-triage/backend/internal/models"
	"github.com/DeafMist/tweet-triage/backend/internal/prepare"
	"github.com/DeafMist/tweet-triage/backend/internal/retry"
	"github.com/DeafMist/tweet-triage/backend/internal/sentiment"
	"github.com/DeafMist/tweet-triage/backend/internal/weapons"
)

// Store is the document store surface the pipeline drives.
type Store interface {
	CreateIndex(ctx context.Context, index string) error
	BulkIndex(ctx context.Context, index string, docs []models.Tweet) (elasticsearch.BulkResult, error)
	Refresh(ctx context.Context, index string) error
	Count(ctx context.Context, index string) (int64, error)
	GetAll(ctx context.Context, index string) ([]models.Tweet, error)
	UpdateSentiment(ctx context.Context, index string, docs []models.Tweet) (elasticsearch.BulkResult, error)
	MatchText(ctx context.Context, index, term string) ([]string, error)
	AppendWeapons(ctx context.Context, index string, occurrences models.WeaponIndex) (elasticsearch.BulkResult, error)
	QueryIrrelevant(ctx context.Context, index string, vocabulary []string) ([]string, error)
	BulkDelete(ctx context.Context, index string, ids []string) (elasticsearch.BulkResult, error)
	SwapAlias(ctx context.Context, alias, index string) error
	PruneGenerations(ctx context.Context, alias, keep string) ([]string, error)
}

// Options tune a Pipeline.
type Options struct {
	// Alias is the read alias; each run writes a fresh generation index behind it.
	Alias       string
	SettleMode  string
	SettleDelay time.Duration
	Retry       retry.Config
	SampleSize  int
	NewRunID    func() string
}

// Pipeline sequences preparation, indexing, enrichment and cleanup for one batch.
// A Pipeline runs one batch at a time; concurrent runs against the same alias must be serialised by the caller.
type Pipeline struct {
	store    Store
	enricher *sentiment.Enricher
	tagger   *weapons.Tagger
	dlq      deadletter.Publisher
	opts     Options
	log      *slog.Logger

	state  State
	report *Report
	batch  pending
}

// New builds a Pipeline. A nil dlq discards per-item failures after logging them.
func New(store Store, enricher *sentiment.Enricher, dlq deadletter.Publisher, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if dlq == nil {
		dlq = deadletter.Nop{}
	}
	if opts.Alias == "" {
		opts.Alias = "tweets"
	}
	if opts.SettleMode == "" {
		opts.SettleMode = config.SettleRefresh
	}
	if opts.SampleSize < 0 {
		opts.SampleSize = 0
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.DefaultConfig()
	}
	opts.Retry.Retryable = retryable
	if opts.Retry.Logger == nil {
		opts.Retry.Logger = logger
	}

	return &Pipeline{
		store:    store,
		enricher: enricher,
		tagger:   weapons.NewTagger(store, logger),
		dlq:      dlq,
		opts:     opts,
		log:      logger,
		state:    StateInit,
	}
}

// State returns the state the last run reached.
func (p *Pipeline) State() State {
	return p.state
}

// Run executes the whole lifecycle for rows and vocabulary.
// On a fatal error the store is left as the last completed bulk operation made it,
// the alias keeps pointing at the previous generation and the partial report is returned with the error.
func (p *Pipeline) Run(ctx context.Context, rows []loader.Row, vocabulary []string) (*Report, error) {
	runID := p.opts.NewRunID()
	index := elasticsearch.GenerationName(p.opts.Alias, runID)
	p.report = &Report{RunID: runID, Index: index}
	p.state = StateInit

	log := p.log.With(slog.String("run_id", runID), slog.String("index", index))
	log.Info("pipeline started", slog.Int("rows", len(rows)), slog.Int("vocabulary", len(vocabulary)))

	steps := []struct {
		next State
		run  func(ctx context.Context, index string, log *slog.Logger) error
	}{
		{StatePrepared, func(ctx context.Context, _ string, log *slog.Logger) error { return p.prepare(rows, log) }},
		{StateIndexed, p.index},
		{StateSentimentFetched, p.fetchForSentiment},
		{StateSentimentApplied, p.applySentiment},
		{StateWeaponsComputed, func(ctx context.Context, index string, log *slog.Logger) error {
			return p.computeWeapons(ctx, index, vocabulary, log)
		}},
		{StateWeaponsApplied, p.applyWeapons},
		{StateCleaned, func(ctx context.Context, index string, log *slog.Logger) error {
			return p.cleanup(ctx, index, vocabulary, log)
		}},
		{StateDone, p.verify},
	}

	for _, step := range steps {
		if err := step.run(ctx, index, log); err != nil {
			failedAfter := p.state
			p.state = StateFailed
			p.report.State = StateFailed
			p.report.FailedAfter = failedAfter
			log.Error("pipeline failed",
				slog.String("after", failedAfter.String()),
				slog.String("target", step.next.String()),
				slog.Any("err", err),
			)
			return p.report, fmt.Errorf("%s -> %s: %w", failedAfter, step.next, err)
		}
		p.transition(step.next, log)
	}

	return p.report, nil
}

func (p *Pipeline) transition(next State, log *slog.Logger) {
	log.Info("state transition", slog.String("from", p.state.String()), slog.String("to", next.String()))
	p.state = next
	p.report.State = next
}

// pending carries documents between the fetch and apply steps of sentiment and weapons.
type pending struct {
	docs        []models.Tweet
	occurrences models.WeaponIndex
}

func (p *Pipeline) prepare(rows []loader.Row, log *slog.Logger) error {
	docs, stats := prepare.Prepare(rows)
	p.report.Rows = stats.Rows
	p.report.Documents = stats.Documents
	p.report.Duplicates = stats.Duplicates
	p.report.BadDates = stats.BadDates
	p.batch = pending{docs: docs}

	if stats.Duplicates > 0 || stats.BadDates > 0 {
		log.Warn("input rows normalised",
			slog.Int("duplicates", stats.Duplicates),
			slog.Int("bad_dates", stats.BadDates),
		)
	}
	return nil
}

func (p *Pipeline) index(ctx context.Context, index string, log *slog.Logger) error {
	if err := retry.Do(ctx, p.opts.Retry, "create index", func() error {
		return p.store.CreateIndex(ctx, index)
	}); err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	res, err := retry.DoWithResult(ctx, p.opts.Retry, "bulk index", func() (elasticsearch.BulkResult, error) {
		return p.store.BulkIndex(ctx, index, p.batch.docs)
	})
	if err != nil {
		return fmt.Errorf("bulk index: %w", err)
	}
	p.report.Indexed = res.Succeeded + res.Noops
	p.report.IndexFailures = len(res.Failed)
	p.recordFailures(ctx, StateIndexed, res, log)

	if err := p.settle(ctx, index); err != nil {
		return err
	}

	count, err := retry.DoWithResult(ctx, p.opts.Retry, "count", func() (int64, error) {
		return p.store.Count(ctx, index)
	})
	if err != nil {
		return fmt.Errorf("count: %w", err)
	}
	p.report.StoreCount = count
	if count != int64(len(p.batch.docs)) {
		log.Warn("indexed document count differs from input",
			slog.Int64("store_count", count),
			slog.Int("documents", len(p.batch.docs)),
		)
	}

	p.batch = pending{}
	return nil
}

func (p *Pipeline) fetchForSentiment(ctx context.Context, index string, _ *slog.Logger) error {
	docs, err := p.fetchAll(ctx, index)
	if err != nil {
		return err
	}
	p.report.Fetched = len(docs)
	p.batch = pending{docs: docs}
	return nil
}

func (p *Pipeline) applySentiment(ctx context.Context, index string, log *slog.Logger) error {
	tally := p.enricher.ClassifyBatch(p.batch.docs)
	p.report.Sentiment = tally
	log.Info("sentiment classified",
		slog.Int("processed", tally.Processed),
		slog.Int("errors", tally.Errors),
		slog.Int("positive", tally.Positive),
		slog.Int("negative", tally.Negative),
		slog.Int("neutral", tally.Neutral),
	)

	res, err := retry.DoWithResult(ctx, p.opts.Retry, "update sentiment", func() (elasticsearch.BulkResult, error) {
		return p.store.UpdateSentiment(ctx, index, p.batch.docs)
	})
	if err != nil {
		return fmt.Errorf("update sentiment: %w", err)
	}
	p.report.SentimentUpdated = res.Succeeded + res.Noops
	p.report.SentimentFailures = len(res.Failed)
	p.recordFailures(ctx, StateSentimentApplied, res, log)

	p.batch = pending{}
	return p.settle(ctx, index)
}

func (p *Pipeline) computeWeapons(ctx context.Context, index string, vocabulary []string, log *slog.Logger) error {
	occ, err := retry.DoWithResult(ctx, p.opts.Retry, "find weapons", func() (models.WeaponIndex, error) {
		return p.tagger.FindOccurrences(ctx, index, vocabulary)
	})
	if err != nil {
		return fmt.Errorf("find weapons: %w", err)
	}

	p.report.WeaponKeywords = len(occ)
	p.report.WeaponMatches = occ.Matches()
	p.report.WeaponDocuments = len(weapons.ByDocument(occ, vocabulary))
	p.batch = pending{occurrences: occ}

	log.Info("weapons matched",
		slog.Int("keywords", p.report.WeaponKeywords),
		slog.Int("matches", p.report.WeaponMatches),
		slog.Int("documents", p.report.WeaponDocuments),
	)
	return nil
}

func (p *Pipeline) applyWeapons(ctx context.Context, index string, log *slog.Logger) error {
	res, err := retry.DoWithResult(ctx, p.opts.Retry, "append weapons", func() (elasticsearch.BulkResult, error) {
		return p.store.AppendWeapons(ctx, index, p.batch.occurrences)
	})
	if err != nil {
		return fmt.Errorf("append weapons: %w", err)
	}
	p.report.WeaponsApplied = res.Succeeded
	p.report.WeaponsUnchanged = res.Noops
	p.report.WeaponFailures = len(res.Failed)
	p.recordFailures(ctx, StateWeaponsApplied, res, log)

	p.batch = pending{}
	return p.settle(ctx, index)
}

func (p *Pipeline) cleanup(ctx context.Context, index string, vocabulary []string, log *slog.Logger) error {
	ids, err := retry.DoWithResult(ctx, p.opts.Retry, "query irrelevant", func() ([]string, error) {
		return p.store.QueryIrrelevant(ctx, index, vocabulary)
	})
	if err != nil {
		return fmt.Errorf("query irrelevant: %w", err)
	}
	p.report.Irrelevant = len(ids)

	res, err := retry.DoWithResult(ctx, p.opts.Retry, "bulk delete", func() (elasticsearch.BulkResult, error) {
		return p.store.BulkDelete(ctx, index, ids)
	})
	if err != nil {
		return fmt.Errorf("bulk delete: %w", err)
	}
	p.report.Deleted = res.Succeeded + res.Noops
	p.report.DeleteFailures = len(res.Failed)
	p.recordFailures(ctx, StateCleaned, res, log)

	log.Info("irrelevant documents removed", slog.Int("matched", len(ids)), slog.Int("deleted", p.report.Deleted))
	return p.settle(ctx, index)
}

func (p *Pipeline) verify(ctx context.Context, index string, log *slog.Logger) error {
	docs, err := p.fetchAll(ctx, index)
	if err != nil {
		return err
	}

	p.report.Total = len(docs)
	for _, doc := range docs {
		if doc.Sentiment != "" {
			p.report.WithSentiment++
			continue
		}
		p.report.WithoutSentiment++
		if len(p.report.MissingSample) < p.opts.SampleSize {
			p.report.MissingSample = append(p.report.MissingSample, doc.ID)
		}
	}
	if p.report.WithoutSentiment > 0 {
		log.Warn("documents without sentiment after enrichment",
			slog.Int("count", p.report.WithoutSentiment),
			slog.Any("sample", p.report.MissingSample),
		)
	}

	if err := retry.Do(ctx, p.opts.Retry, "swap alias", func() error {
		return p.store.SwapAlias(ctx, p.opts.Alias, index)
	}); err != nil {
		return fmt.Errorf("swap alias: %w", err)
	}

	pruned, err := p.store.PruneGenerations(ctx, p.opts.Alias, index)
	if err != nil {
		log.Warn("prune old generations failed", slog.Any("err", err))
	}
	p.report.PrunedGenerations = pruned
	return nil
}

func (p *Pipeline) fetchAll(ctx context.Context, index string) ([]models.Tweet, error) {
	docs, err := retry.DoWithResult(ctx, p.opts.Retry, "get all", func() ([]models.Tweet, error) {
		return p.store.GetAll(ctx, index)
	})
	if err != nil {
		return nil, fmt.Errorf("get all: %w", err)
	}
	return docs, nil
}

// settle blocks until writes to index are visible to search.
func (p *Pipeline) settle(ctx context.Context, index string) error {
	if p.opts.SettleMode == config.SettleSleep {
		// A fixed delay cannot confirm visibility; refresh mode can.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.opts.SettleDelay):
			return nil
		}
	}

	if err := retry.Do(ctx, p.opts.Retry, "refresh", func() error {
		return p.store.Refresh(ctx, index)
	}); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	return nil
}

func (p *Pipeline) recordFailures(ctx context.Context, stage State, res elasticsearch.BulkResult, log *slog.Logger) {
	if len(res.Failed) == 0 {
		return
	}

	room := p.opts.SampleSize - len(p.report.FailureSample)
	if room > 0 {
		p.report.FailureSample = append(p.report.FailureSample, res.Sample(room)...)
	}

	log.Warn("bulk items failed",
		slog.String("stage", stage.String()),
		slog.Int("failed", len(res.Failed)),
		slog.Any("sample", res.Sample(p.opts.SampleSize)),
	)

	if err := p.dlq.Publish(ctx, p.report.RunID, stage.String(), res.Failed); err != nil {
		log.Warn("publish dead letters failed", slog.String("stage", stage.String()), slog.Any("err", err))
	}
}

func retryable(err error) bool {
	return !errors.Is(err, elasticsearch.ErrRejected) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
