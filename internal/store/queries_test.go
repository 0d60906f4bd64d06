package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/lien-Gu/jjcrawler/internal/crawler"
)

func TestGetBook(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, novel_id, title").
		WithArgs(int64(111)).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "novel_id", "title", "author_id", "author_name", "created_at", "updated_at",
		}).AddRow(int64(1), int64(111), "某本书", int64(9), "作者", now, now))

	book, err := s.GetBook(context.Background(), 111)
	require.NoError(t, err)
	require.Equal(t, int64(111), book.NovelID)
	require.Equal(t, "某本书", book.Title)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBookNotFound(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, novel_id, title").
		WithArgs(int64(111)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetBook(context.Background(), 111)
	require.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestListBookSnapshotsDefaultsLimit(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, novel_id, favorites").
		WithArgs(int64(111), 50).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "novel_id", "favorites", "clicks", "clicks_monthly", "clicks_weekly",
			"clicks_daily", "comments", "nominations", "nominations_weekly", "captured_at",
		}).
			AddRow(int64(2), int64(111), int64(20), int64(0), int64(0), int64(0), int64(0), int64(0), int64(0), int64(0), now).
			AddRow(int64(1), int64(111), int64(10), int64(0), int64(0), int64(0), int64(0), int64(0), int64(0), int64(0), now.Add(-time.Hour)))

	snaps, err := s.ListBookSnapshots(context.Background(), 111, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	require.Equal(t, int64(20), snaps[0].Metrics.Favorites)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRankings(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, rank_id, name").
		WithArgs("index").
		WillReturnRows(pgxmock.NewRows([]string{"id", "rank_id", "name", "channel", "page_id", "updated_at"}).
			AddRow(int64(5), "jiazi", "夹子", "index", "index", now))

	rankings, err := s.ListRankings(context.Background(), "index")
	require.NoError(t, err)
	require.Len(t, rankings, 1)
	require.Equal(t, "jiazi", rankings[0].RankID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestRankingSnapshotDecodesPositions(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, ranking_id, positions").
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "ranking_id", "positions", "captured_at"}).
			AddRow(int64(3), int64(5), []byte(`[{"position":1,"novel_id":111}]`), now))

	snap, err := s.LatestRankingSnapshot(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, []crawler.RankedBook{{Position: 1, NovelID: 111}}, snap.Positions)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListCrawlRuns(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)
	started := time.Now().UTC()
	finished := started.Add(3 * time.Second)

	mock.ExpectQuery("SELECT task_id, page_id, status").
		WithArgs(20).
		WillReturnRows(pgxmock.NewRows([]string{
			"task_id", "page_id", "status", "books_added", "books_updated", "books_failed",
			"error_text", "started_at", "finished_at",
		}).AddRow("t1", "index", crawler.CrawlStatusSucceeded, 5, 2, 0, "", started, &finished))

	runs, err := s.ListCrawlRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, crawler.CrawlStatusSucceeded, runs[0].Status)
	require.Equal(t, 5, runs[0].BooksAdded)
	require.NoError(t, mock.ExpectationsWereMet())
}
