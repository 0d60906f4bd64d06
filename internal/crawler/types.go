package crawler

import "time"

// CrawlStatus represents the lifecycle state of a page-crawl run.
type CrawlStatus string

// Crawl run status values persisted in the store.
const (
	CrawlStatusRunning   CrawlStatus = "running"
	CrawlStatusSucceeded CrawlStatus = "succeeded"
	CrawlStatusPartial   CrawlStatus = "partial"
	CrawlStatusFailed    CrawlStatus = "failed"
)

// PageTask identifies one ranking page to crawl. Pages come from
// configuration; the scheduler and the API both enqueue them.
type PageTask struct {
	TaskID  string `json:"task_id"`
	PageID  string `json:"page_id"`
	Channel string `json:"channel"`
}

// BookMetrics holds the point-in-time counters reported by the source for
// one book. The source segments some counters by time window; segments it
// omits stay zero.
type BookMetrics struct {
	Favorites         int64 `json:"favorites"`
	Clicks            int64 `json:"clicks"`
	ClicksMonthly     int64 `json:"clicks_monthly"`
	ClicksWeekly      int64 `json:"clicks_weekly"`
	ClicksDaily       int64 `json:"clicks_daily"`
	Comments          int64 `json:"comments"`
	Nominations       int64 `json:"nominations"`
	NominationsWeekly int64 `json:"nominations_weekly"`
}

// BookDetail is the normalized output of the book parser.
type BookDetail struct {
	NovelID    int64  `json:"novel_id"`
	Title      string `json:"title"`
	AuthorID   int64  `json:"author_id"`
	AuthorName string `json:"author_name"`
	Metrics    BookMetrics
}

// Book is the persisted form of a title on the source site. NovelID is the
// external identifier and is unique at the storage layer.
type Book struct {
	ID         int64     `json:"id"`
	NovelID    int64     `json:"novel_id"`
	Title      string    `json:"title"`
	AuthorID   int64     `json:"author_id"`
	AuthorName string    `json:"author_name"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// BookSnapshot is one append-only observation of a book's counters.
type BookSnapshot struct {
	ID         int64       `json:"id"`
	NovelID    int64       `json:"novel_id"`
	Metrics    BookMetrics `json:"metrics"`
	CapturedAt time.Time   `json:"captured_at"`
}

// RankedBook is one position within a ranking listing.
type RankedBook struct {
	Position int   `json:"position"`
	NovelID  int64 `json:"novel_id"`
}

// RankingEntry is the normalized output of the page parser for one
// leaderboard on a page. RankID may legitimately be empty for some page
// shapes; an empty RankID must never be used as a matching key.
type RankingEntry struct {
	RankID  string       `json:"rank_id"`
	Name    string       `json:"name"`
	Channel string       `json:"channel"`
	Books   []RankedBook `json:"books"`
}

// Ranking is the persisted form of a leaderboard configuration.
type Ranking struct {
	ID        int64     `json:"id"`
	RankID    string    `json:"rank_id"`
	Name      string    `json:"name"`
	Channel   string    `json:"channel"`
	PageID    string    `json:"page_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RankingSnapshot is the position-ordered book list of a ranking at crawl
// time. Positions reference only books fetched successfully in that run.
type RankingSnapshot struct {
	ID         int64        `json:"id"`
	RankingID  int64        `json:"ranking_id"`
	Positions  []RankedBook `json:"positions"`
	CapturedAt time.Time    `json:"captured_at"`
}

// BookFailure names one book that could not be fetched or parsed during a
// page crawl, with the reason kept as text for diagnosis.
type BookFailure struct {
	NovelID int64  `json:"novel_id"`
	Reason  string `json:"reason"`
}

// PageResult summarizes one page-crawl invocation. Per-book failures are
// reported here rather than raised; only a page-level failure surfaces as
// an error to the caller.
type PageResult struct {
	PageID       string        `json:"page_id"`
	Rankings     int           `json:"rankings"`
	BooksAdded   int           `json:"books_added"`
	BooksUpdated int           `json:"books_updated"`
	Failures     []BookFailure `json:"failures,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
}

// Status derives the coarse run status from the result counts.
func (r PageResult) Status() CrawlStatus {
	switch {
	case len(r.Failures) == 0:
		return CrawlStatusSucceeded
	case r.BooksAdded+r.BooksUpdated > 0:
		return CrawlStatusPartial
	default:
		return CrawlStatusFailed
	}
}

// CrawlRun is the persisted record of one page-crawl invocation.
type CrawlRun struct {
	TaskID       string      `json:"task_id"`
	PageID       string      `json:"page_id"`
	Status       CrawlStatus `json:"status"`
	BooksAdded   int         `json:"books_added"`
	BooksUpdated int         `json:"books_updated"`
	BooksFailed  int         `json:"books_failed"`
	ErrorText    string      `json:"error_text,omitempty"`
	StartedAt    time.Time   `json:"started_at"`
	FinishedAt   *time.Time  `json:"finished_at,omitempty"`
}
