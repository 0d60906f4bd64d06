package crawler

import (
	"context"
	"time"
)

// Fetcher retrieves one URL and returns its decoded JSON payload. The
// implementation owns breaker consultation, rate limiting, and retries;
// callers see either a payload or a classified error.
type Fetcher interface {
	FetchJSON(ctx context.Context, url string) (map[string]any, error)
}

// Store persists books, rankings, and their snapshots.
type Store interface {
	// UpsertBook inserts or updates by NovelID and reports whether a new
	// row was created. Concurrent-writer unique violations are absorbed.
	UpsertBook(ctx context.Context, detail BookDetail, now time.Time) (created bool, err error)
	AppendBookSnapshot(ctx context.Context, novelID int64, metrics BookMetrics, capturedAt time.Time) error
	// UpsertRanking matches by RankID when present; an empty RankID always
	// creates a fresh row. Returns the ranking's storage ID.
	UpsertRanking(ctx context.Context, entry RankingEntry, pageID string, now time.Time) (int64, error)
	AppendRankingSnapshot(ctx context.Context, rankingID int64, positions []RankedBook, capturedAt time.Time) error
}

// RunStore records page-crawl invocations for the API surface.
type RunStore interface {
	StartCrawlRun(ctx context.Context, run CrawlRun) error
	FinishCrawlRun(ctx context.Context, run CrawlRun) error
}

// Queue provides enqueue/dequeue semantics for page tasks.
type Queue interface {
	Enqueue(ctx context.Context, task PageTask) error
	Dequeue(ctx context.Context) (PageTask, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces task IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
