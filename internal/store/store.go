// Package store provides Postgres-backed persistence for books, rankings,
// and their snapshots.
//
// Expected schema:
//
//	CREATE TABLE books (
//		id BIGSERIAL PRIMARY KEY,
//		novel_id BIGINT NOT NULL UNIQUE,
//		title TEXT NOT NULL DEFAULT '',
//		author_id BIGINT NOT NULL DEFAULT 0,
//		author_name TEXT NOT NULL DEFAULT '',
//		created_at TIMESTAMPTZ NOT NULL,
//		updated_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE TABLE book_snapshots (
//		id BIGSERIAL PRIMARY KEY,
//		novel_id BIGINT NOT NULL,
//		favorites BIGINT NOT NULL DEFAULT 0,
//		clicks BIGINT NOT NULL DEFAULT 0,
//		clicks_monthly BIGINT NOT NULL DEFAULT 0,
//		clicks_weekly BIGINT NOT NULL DEFAULT 0,
//		clicks_daily BIGINT NOT NULL DEFAULT 0,
//		comments BIGINT NOT NULL DEFAULT 0,
//		nominations BIGINT NOT NULL DEFAULT 0,
//		nominations_weekly BIGINT NOT NULL DEFAULT 0,
//		captured_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE TABLE rankings (
//		id BIGSERIAL PRIMARY KEY,
//		rank_id TEXT NOT NULL DEFAULT '',
//		name TEXT NOT NULL DEFAULT '',
//		channel TEXT NOT NULL DEFAULT '',
//		page_id TEXT NOT NULL,
//		updated_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE TABLE ranking_snapshots (
//		id BIGSERIAL PRIMARY KEY,
//		ranking_id BIGINT NOT NULL,
//		positions JSONB NOT NULL,
//		captured_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE TABLE crawl_runs (
//		task_id UUID PRIMARY KEY,
//		page_id TEXT NOT NULL,
//		status TEXT NOT NULL,
//		books_added INT NOT NULL DEFAULT 0,
//		books_updated INT NOT NULL DEFAULT 0,
//		books_failed INT NOT NULL DEFAULT 0,
//		error_text TEXT NOT NULL DEFAULT '',
//		started_at TIMESTAMPTZ NOT NULL,
//		finished_at TIMESTAMPTZ
//	);
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/lien-Gu/jjcrawler/internal/crawler"
)

// uniqueViolation is the Postgres SQLSTATE for unique-constraint errors.
const uniqueViolation = "23505"

// DB is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Store persists crawl output. Each call is one statement in its own
// implicit transaction, so a failed record cannot poison the writes that
// follow it on the same pool.
type Store struct {
	db     DB
	logger *zap.Logger
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{db: pool, logger: logger}, nil
}

// NewWithDB constructs a store from an existing pool (primarily for testing).
func NewWithDB(db DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

const (
	selectBookID = `SELECT id FROM books WHERE novel_id = $1`

	insertBook = `
INSERT INTO books (novel_id, title, author_id, author_name, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)`

	updateBook = `
UPDATE books SET title = $2, author_id = $3, author_name = $4, updated_at = $5
WHERE novel_id = $1`
)

// UpsertBook inserts the book on first encounter and updates its mutable
// fields on every subsequent one. Lookup-then-insert is not atomic against
// concurrent crawl tasks targeting the same novel, so an insert that loses
// the race by unique violation falls back to an update: the row exists
// now, written by the concurrent task.
func (s *Store) UpsertBook(ctx context.Context, d crawler.BookDetail, now time.Time) (bool, error) {
	if d.NovelID <= 0 {
		return false, &crawler.BusinessError{Reason: "upsert book: empty novel id"}
	}

	var id int64
	err := s.db.QueryRow(ctx, selectBookID, d.NovelID).Scan(&id)
	switch {
	case err == nil:
		if _, err := s.db.Exec(ctx, updateBook, d.NovelID, d.Title, d.AuthorID, d.AuthorName, now); err != nil {
			return false, fmt.Errorf("update book %d: %w", d.NovelID, err)
		}
		return false, nil
	case errors.Is(err, pgx.ErrNoRows):
		// fall through to insert
	default:
		return false, fmt.Errorf("lookup book %d: %w", d.NovelID, err)
	}

	if _, err := s.db.Exec(ctx, insertBook, d.NovelID, d.Title, d.AuthorID, d.AuthorName, now); err != nil {
		if isUniqueViolation(err) {
			s.logger.Debug("insert race on book, retrying as update", zap.Int64("novel_id", d.NovelID))
			if _, uerr := s.db.Exec(ctx, updateBook, d.NovelID, d.Title, d.AuthorID, d.AuthorName, now); uerr != nil {
				return false, fmt.Errorf("update book %d after insert race: %w", d.NovelID, uerr)
			}
			return false, nil
		}
		return false, fmt.Errorf("insert book %d: %w", d.NovelID, err)
	}
	return true, nil
}

const insertBookSnapshot = `
INSERT INTO book_snapshots (
	novel_id, favorites, clicks, clicks_monthly, clicks_weekly, clicks_daily,
	comments, nominations, nominations_weekly, captured_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// AppendBookSnapshot records one observation of a book's counters.
// Snapshots are append-only trend data and are never updated.
func (s *Store) AppendBookSnapshot(ctx context.Context, novelID int64, m crawler.BookMetrics, capturedAt time.Time) error {
	if novelID <= 0 {
		return &crawler.BusinessError{Reason: "append snapshot: empty novel id"}
	}
	_, err := s.db.Exec(ctx, insertBookSnapshot,
		novelID,
		m.Favorites,
		m.Clicks,
		m.ClicksMonthly,
		m.ClicksWeekly,
		m.ClicksDaily,
		m.Comments,
		m.Nominations,
		m.NominationsWeekly,
		capturedAt,
	)
	if err != nil {
		return fmt.Errorf("insert book snapshot %d: %w", novelID, err)
	}
	return nil
}

const (
	selectRankingID = `SELECT id FROM rankings WHERE rank_id = $1 AND page_id = $2`

	insertRanking = `
INSERT INTO rankings (rank_id, name, channel, page_id, updated_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`

	updateRanking = `
UPDATE rankings SET name = $2, channel = $3, updated_at = $4
WHERE id = $1`
)

// UpsertRanking creates or refreshes a leaderboard row and returns its
// storage ID. Some page shapes legitimately omit the external rank
// identifier; an empty RankID is never used as a matching key and simply
// creates a fresh row.
func (s *Store) UpsertRanking(ctx context.Context, entry crawler.RankingEntry, pageID string, now time.Time) (int64, error) {
	if entry.RankID == "" {
		var id int64
		if err := s.db.QueryRow(ctx, insertRanking, "", entry.Name, entry.Channel, pageID, now).Scan(&id); err != nil {
			return 0, fmt.Errorf("insert ranking %q: %w", entry.Name, err)
		}
		return id, nil
	}

	var id int64
	err := s.db.QueryRow(ctx, selectRankingID, entry.RankID, pageID).Scan(&id)
	switch {
	case err == nil:
		if _, err := s.db.Exec(ctx, updateRanking, id, entry.Name, entry.Channel, now); err != nil {
			return 0, fmt.Errorf("update ranking %s: %w", entry.RankID, err)
		}
		return id, nil
	case errors.Is(err, pgx.ErrNoRows):
		// fall through to insert
	default:
		return 0, fmt.Errorf("lookup ranking %s: %w", entry.RankID, err)
	}

	if err := s.db.QueryRow(ctx, insertRanking, entry.RankID, entry.Name, entry.Channel, pageID, now).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert ranking %s: %w", entry.RankID, err)
	}
	return id, nil
}

const insertRankingSnapshot = `
INSERT INTO ranking_snapshots (ranking_id, positions, captured_at)
VALUES ($1, $2, $3)`

// AppendRankingSnapshot records the position-ordered book list of a
// ranking at crawl time.
func (s *Store) AppendRankingSnapshot(ctx context.Context, rankingID int64, positions []crawler.RankedBook, capturedAt time.Time) error {
	if rankingID <= 0 {
		return &crawler.BusinessError{Reason: "append ranking snapshot: empty ranking id"}
	}
	if positions == nil {
		positions = []crawler.RankedBook{}
	}
	payload, err := json.Marshal(positions)
	if err != nil {
		return fmt.Errorf("marshal positions: %w", err)
	}
	if _, err := s.db.Exec(ctx, insertRankingSnapshot, rankingID, payload, capturedAt); err != nil {
		return fmt.Errorf("insert ranking snapshot %d: %w", rankingID, err)
	}
	return nil
}

const (
	insertCrawlRun = `
INSERT INTO crawl_runs (task_id, page_id, status, started_at)
VALUES ($1, $2, $3, $4)`

	updateCrawlRun = `
UPDATE crawl_runs
SET status = $2, books_added = $3, books_updated = $4, books_failed = $5,
	error_text = $6, finished_at = $7
WHERE task_id = $1`
)

// StartCrawlRun records the beginning of a page-crawl invocation.
func (s *Store) StartCrawlRun(ctx context.Context, run crawler.CrawlRun) error {
	if _, err := s.db.Exec(ctx, insertCrawlRun, run.TaskID, run.PageID, run.Status, run.StartedAt); err != nil {
		return fmt.Errorf("insert crawl run %s: %w", run.TaskID, err)
	}
	return nil
}

// FinishCrawlRun records the outcome of a page-crawl invocation.
func (s *Store) FinishCrawlRun(ctx context.Context, run crawler.CrawlRun) error {
	_, err := s.db.Exec(ctx, updateCrawlRun,
		run.TaskID,
		run.Status,
		run.BooksAdded,
		run.BooksUpdated,
		run.BooksFailed,
		run.ErrorText,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update crawl run %s: %w", run.TaskID, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
