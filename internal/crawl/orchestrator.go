// Package crawl implements the page-crawl orchestrator: fetch the ranking
// listing, fan out bounded-concurrency book-detail fetches, and persist the
// normalized results.
package crawl

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lien-Gu/jjcrawler/internal/crawler"
	"github.com/lien-Gu/jjcrawler/internal/metrics"
	"github.com/lien-Gu/jjcrawler/internal/parse"
)

// Config controls orchestrator behavior.
type Config struct {
	// Concurrency bounds simultaneous in-flight book-detail fetches per
	// page crawl. Keep it low; unbounded fan-out is the fastest way to
	// trip the source's rate limiting.
	Concurrency int
}

// Orchestrator coordinates one page-crawl unit of work.
type Orchestrator struct {
	fetcher     crawler.Fetcher
	store       crawler.Store
	urls        URLs
	clock       crawler.Clock
	concurrency int
	logger      *zap.Logger
}

// New constructs an Orchestrator.
func New(
	fetcher crawler.Fetcher,
	store crawler.Store,
	urls URLs,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Orchestrator{
		fetcher:     fetcher,
		store:       store,
		urls:        urls,
		clock:       clock,
		concurrency: concurrency,
		logger:      logger,
	}
}

type bookOutcome struct {
	novelID int64
	detail  crawler.BookDetail
	err     error
}

// CrawlPage executes one full page crawl. Per-book failures are collected
// into the result instead of aborting the page; only a failure to fetch
// the listing itself returns an error. A page with no parseable rankings
// completes as a no-op success.
func (o *Orchestrator) CrawlPage(ctx context.Context, task crawler.PageTask) (crawler.PageResult, error) {
	result := crawler.PageResult{
		PageID:    task.PageID,
		StartedAt: o.clock.Now(),
	}

	payload, err := o.fetcher.FetchJSON(ctx, o.urls.PageListing(task.Channel))
	if err != nil {
		metrics.ObservePage(task.PageID, string(crawler.CrawlStatusFailed), o.clock.Now().Sub(result.StartedAt))
		return result, fmt.Errorf("fetch page %s: %w", task.PageID, err)
	}

	rankings := parse.Rankings(payload)
	if len(rankings) == 0 {
		result.FinishedAt = o.clock.Now()
		o.logger.Info("page yielded no rankings", zap.String("page", task.PageID))
		metrics.ObservePage(task.PageID, string(result.Status()), result.FinishedAt.Sub(result.StartedAt))
		return result, nil
	}

	outcomes := o.fetchBooks(ctx, distinctNovelIDs(rankings))
	o.persist(ctx, task, rankings, outcomes, &result)

	result.FinishedAt = o.clock.Now()
	metrics.ObservePage(task.PageID, string(result.Status()), result.FinishedAt.Sub(result.StartedAt))
	o.logger.Info("page crawl finished",
		zap.String("page", task.PageID),
		zap.Int("rankings", result.Rankings),
		zap.Int("added", result.BooksAdded),
		zap.Int("updated", result.BooksUpdated),
		zap.Int("failed", len(result.Failures)),
	)
	return result, nil
}

// fetchBooks fans out detail fetches under a channel semaphore. Each fetch
// is an independent unit of work; errors are joined here as tagged
// outcomes, never raised past this point.
func (o *Orchestrator) fetchBooks(ctx context.Context, ids []int64) []bookOutcome {
	outcomes := make([]bookOutcome, len(ids))
	sem := make(chan struct{}, o.concurrency)
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i] = o.fetchBook(ctx, id)
		}(i, id)
	}
	wg.Wait()
	return outcomes
}

func (o *Orchestrator) fetchBook(ctx context.Context, novelID int64) bookOutcome {
	payload, err := o.fetcher.FetchJSON(ctx, o.urls.BookDetail(novelID))
	if err != nil {
		return bookOutcome{novelID: novelID, err: err}
	}
	detail, err := parse.Book(payload)
	if err != nil {
		return bookOutcome{novelID: novelID, err: err}
	}
	return bookOutcome{novelID: novelID, detail: detail}
}

// persist writes books, snapshots, rankings, and ranking snapshots. One
// record's failure is recorded and the batch continues; a single bad row
// must never reject the rows after it.
func (o *Orchestrator) persist(
	ctx context.Context,
	task crawler.PageTask,
	rankings []crawler.RankingEntry,
	outcomes []bookOutcome,
	result *crawler.PageResult,
) {
	now := o.clock.Now()
	persisted := make(map[int64]bool, len(outcomes))

	for _, oc := range outcomes {
		if oc.err != nil {
			o.logger.Warn("book fetch failed",
				zap.Int64("novel_id", oc.novelID),
				zap.Error(oc.err),
			)
			metrics.ObserveBook("failed")
			result.Failures = append(result.Failures, crawler.BookFailure{
				NovelID: oc.novelID,
				Reason:  oc.err.Error(),
			})
			continue
		}

		created, err := o.store.UpsertBook(ctx, oc.detail, now)
		if err != nil {
			o.logger.Warn("book upsert failed",
				zap.Int64("novel_id", oc.novelID),
				zap.Error(err),
			)
			metrics.ObserveBook("failed")
			result.Failures = append(result.Failures, crawler.BookFailure{
				NovelID: oc.novelID,
				Reason:  err.Error(),
			})
			continue
		}
		if created {
			result.BooksAdded++
			metrics.ObserveBook("added")
		} else {
			result.BooksUpdated++
			metrics.ObserveBook("updated")
		}
		persisted[oc.novelID] = true

		if err := o.store.AppendBookSnapshot(ctx, oc.detail.NovelID, oc.detail.Metrics, now); err != nil {
			o.logger.Warn("book snapshot failed",
				zap.Int64("novel_id", oc.novelID),
				zap.Error(err),
			)
		}
	}

	for _, entry := range rankings {
		rankingID, err := o.store.UpsertRanking(ctx, entry, task.PageID, now)
		if err != nil {
			o.logger.Warn("ranking upsert failed",
				zap.String("rank_id", entry.RankID),
				zap.String("name", entry.Name),
				zap.Error(err),
			)
			continue
		}
		positions := make([]crawler.RankedBook, 0, len(entry.Books))
		for _, rb := range entry.Books {
			if persisted[rb.NovelID] {
				positions = append(positions, rb)
			}
		}
		if err := o.store.AppendRankingSnapshot(ctx, rankingID, positions, now); err != nil {
			o.logger.Warn("ranking snapshot failed",
				zap.Int64("ranking_id", rankingID),
				zap.Error(err),
			)
			continue
		}
		result.Rankings++
	}
}

// distinctNovelIDs flattens the page's rankings into the unique set of
// referenced books, preserving first-seen order.
func distinctNovelIDs(rankings []crawler.RankingEntry) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, entry := range rankings {
		for _, rb := range entry.Books {
			if rb.NovelID > 0 && !seen[rb.NovelID] {
				seen[rb.NovelID] = true
				ids = append(ids, rb.NovelID)
			}
		}
	}
	return ids
}
