package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lien-Gu/jjcrawler/internal/crawler"
)

// Read-side queries backing the REST surface. These are simple
// parameterized selects; trend analysis happens downstream.

const selectBook = `
SELECT id, novel_id, title, author_id, author_name, created_at, updated_at
FROM books WHERE novel_id = $1`

// GetBook fetches one book by its external identifier.
func (s *Store) GetBook(ctx context.Context, novelID int64) (crawler.Book, error) {
	var b crawler.Book
	err := s.db.QueryRow(ctx, selectBook, novelID).Scan(
		&b.ID, &b.NovelID, &b.Title, &b.AuthorID, &b.AuthorName, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return crawler.Book{}, fmt.Errorf("select book %d: %w", novelID, err)
	}
	return b, nil
}

const selectBookSnapshots = `
SELECT id, novel_id, favorites, clicks, clicks_monthly, clicks_weekly, clicks_daily,
	comments, nominations, nominations_weekly, captured_at
FROM book_snapshots
WHERE novel_id = $1
ORDER BY captured_at DESC
LIMIT $2`

// ListBookSnapshots returns a book's most recent observations, newest first.
func (s *Store) ListBookSnapshots(ctx context.Context, novelID int64, limit int) ([]crawler.BookSnapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, selectBookSnapshots, novelID, limit)
	if err != nil {
		return nil, fmt.Errorf("select book snapshots %d: %w", novelID, err)
	}
	defer rows.Close()

	var snaps []crawler.BookSnapshot
	for rows.Next() {
		var sn crawler.BookSnapshot
		if err := rows.Scan(
			&sn.ID, &sn.NovelID,
			&sn.Metrics.Favorites, &sn.Metrics.Clicks,
			&sn.Metrics.ClicksMonthly, &sn.Metrics.ClicksWeekly, &sn.Metrics.ClicksDaily,
			&sn.Metrics.Comments, &sn.Metrics.Nominations, &sn.Metrics.NominationsWeekly,
			&sn.CapturedAt,
		); err != nil {
			return nil, fmt.Errorf("scan book snapshot: %w", err)
		}
		snaps = append(snaps, sn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate book snapshots: %w", err)
	}
	return snaps, nil
}

const selectRankingsByPage = `
SELECT id, rank_id, name, channel, page_id, updated_at
FROM rankings
WHERE page_id = $1
ORDER BY id`

// ListRankings returns the leaderboards recorded for one page.
func (s *Store) ListRankings(ctx context.Context, pageID string) ([]crawler.Ranking, error) {
	rows, err := s.db.Query(ctx, selectRankingsByPage, pageID)
	if err != nil {
		return nil, fmt.Errorf("select rankings for page %s: %w", pageID, err)
	}
	defer rows.Close()

	var rankings []crawler.Ranking
	for rows.Next() {
		var r crawler.Ranking
		if err := rows.Scan(&r.ID, &r.RankID, &r.Name, &r.Channel, &r.PageID, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan ranking: %w", err)
		}
		rankings = append(rankings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rankings: %w", err)
	}
	return rankings, nil
}

const selectLatestRankingSnapshot = `
SELECT id, ranking_id, positions, captured_at
FROM ranking_snapshots
WHERE ranking_id = $1
ORDER BY captured_at DESC
LIMIT 1`

// LatestRankingSnapshot returns the most recent position list for a ranking.
func (s *Store) LatestRankingSnapshot(ctx context.Context, rankingID int64) (crawler.RankingSnapshot, error) {
	var (
		snap crawler.RankingSnapshot
		raw  []byte
	)
	err := s.db.QueryRow(ctx, selectLatestRankingSnapshot, rankingID).Scan(
		&snap.ID, &snap.RankingID, &raw, &snap.CapturedAt,
	)
	if err != nil {
		return crawler.RankingSnapshot{}, fmt.Errorf("select ranking snapshot %d: %w", rankingID, err)
	}
	if err := json.Unmarshal(raw, &snap.Positions); err != nil {
		return crawler.RankingSnapshot{}, fmt.Errorf("decode positions: %w", err)
	}
	return snap, nil
}

const selectCrawlRuns = `
SELECT task_id, page_id, status, books_added, books_updated, books_failed,
	error_text, started_at, finished_at
FROM crawl_runs
ORDER BY started_at DESC
LIMIT $1`

// ListCrawlRuns returns recent page-crawl invocations, newest first.
func (s *Store) ListCrawlRuns(ctx context.Context, limit int) ([]crawler.CrawlRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, selectCrawlRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("select crawl runs: %w", err)
	}
	defer rows.Close()

	var runs []crawler.CrawlRun
	for rows.Next() {
		var r crawler.CrawlRun
		if err := rows.Scan(
			&r.TaskID, &r.PageID, &r.Status,
			&r.BooksAdded, &r.BooksUpdated, &r.BooksFailed,
			&r.ErrorText, &r.StartedAt, &r.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan crawl run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate crawl runs: %w", err)
	}
	return runs, nil
}
