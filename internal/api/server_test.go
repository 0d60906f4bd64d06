package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lien-Gu/jjcrawler/internal/clock/system"
	"github.com/lien-Gu/jjcrawler/internal/config"
	"github.com/lien-Gu/jjcrawler/internal/crawler"
	"github.com/lien-Gu/jjcrawler/internal/dispatcher"
	"github.com/lien-Gu/jjcrawler/internal/queue/memory"
)

type fakeDataStore struct {
	pingErr   error
	book      crawler.Book
	bookErr   error
	snapshots []crawler.BookSnapshot
	rankings  []crawler.Ranking
	snapshot  crawler.RankingSnapshot
	snapErr   error
	runs      []crawler.CrawlRun
}

func (f *fakeDataStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeDataStore) GetBook(context.Context, int64) (crawler.Book, error) {
	return f.book, f.bookErr
}

func (f *fakeDataStore) ListBookSnapshots(context.Context, int64, int) ([]crawler.BookSnapshot, error) {
	return f.snapshots, nil
}

func (f *fakeDataStore) ListRankings(context.Context, string) ([]crawler.Ranking, error) {
	return f.rankings, nil
}

func (f *fakeDataStore) LatestRankingSnapshot(context.Context, int64) (crawler.RankingSnapshot, error) {
	return f.snapshot, f.snapErr
}

func (f *fakeDataStore) ListCrawlRuns(context.Context, int) ([]crawler.CrawlRun, error) {
	return f.runs, nil
}

type staticIDGen struct{ id string }

func (g staticIDGen) NewID() (string, error) { return g.id, nil }

func newTestServer(store DataStore, q *memory.Queue) *Server {
	cfg := config.Config{
		Crawler: config.CrawlerConfig{
			Pages: []config.PageConfig{
				{ID: "index", Channel: "index"},
				{ID: "yq", Channel: "yq"},
			},
		},
	}
	return NewServer(store, dispatcher.New(q, nil), staticIDGen{id: "task-1"}, system.New(), cfg, zap.NewNop())
}

func doRequest(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := doRequest(t, newTestServer(&fakeDataStore{}, memory.NewQueue(1)), http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decodeBody(t, rec)["status"])
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyzReportsDatabaseState(t *testing.T) {
	t.Parallel()

	rec := doRequest(t, newTestServer(&fakeDataStore{}, memory.NewQueue(1)), http.MethodGet, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)

	down := &fakeDataStore{pingErr: errors.New("connection refused")}
	rec = doRequest(t, newTestServer(down, memory.NewQueue(1)), http.MethodGet, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTriggerCrawlEnqueuesTask(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(4)
	rec := doRequest(t, newTestServer(&fakeDataStore{}, q), http.MethodPost, "/v1/crawl/index")
	require.Equal(t, http.StatusAccepted, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, "task-1", body["task_id"])
	require.Equal(t, "index", body["page_id"])

	task, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, crawler.PageTask{TaskID: "task-1", PageID: "index", Channel: "index"}, task)
}

func TestTriggerCrawlUnknownPage(t *testing.T) {
	t.Parallel()

	rec := doRequest(t, newTestServer(&fakeDataStore{}, memory.NewQueue(1)), http.MethodPost, "/v1/crawl/nope")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "unknown page", decodeBody(t, rec)["error"])
}

func TestGetBook(t *testing.T) {
	t.Parallel()

	store := &fakeDataStore{book: crawler.Book{ID: 1, NovelID: 111, Title: "某本书"}}
	rec := doRequest(t, newTestServer(store, memory.NewQueue(1)), http.MethodGet, "/v1/books/111")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, float64(111), body["novel_id"])
	require.Equal(t, "某本书", body["title"])
}

func TestGetBookNotFound(t *testing.T) {
	t.Parallel()

	store := &fakeDataStore{bookErr: errors.New("no rows")}
	rec := doRequest(t, newTestServer(store, memory.NewQueue(1)), http.MethodGet, "/v1/books/111")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetBookInvalidID(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeDataStore{}, memory.NewQueue(1))
	for _, target := range []string{"/v1/books/abc", "/v1/books/0", "/v1/books/-4"} {
		rec := doRequest(t, s, http.MethodGet, target)
		require.Equal(t, http.StatusBadRequest, rec.Code, "target %s", target)
	}
}

func TestListBookSnapshots(t *testing.T) {
	t.Parallel()

	store := &fakeDataStore{snapshots: []crawler.BookSnapshot{
		{ID: 2, NovelID: 111, Metrics: crawler.BookMetrics{Favorites: 20}},
		{ID: 1, NovelID: 111, Metrics: crawler.BookMetrics{Favorites: 10}},
	}}
	rec := doRequest(t, newTestServer(store, memory.NewQueue(1)), http.MethodGet, "/v1/books/111/snapshots?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, float64(111), body["novel_id"])
	require.Len(t, body["snapshots"], 2)
}

func TestListRankingsRequiresPage(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeDataStore{rankings: []crawler.Ranking{{ID: 5, RankID: "jiazi", PageID: "index"}}}, memory.NewQueue(1))

	rec := doRequest(t, s, http.MethodGet, "/v1/rankings")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/v1/rankings?page=index")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody(t, rec)["rankings"], 1)
}

func TestLatestRankingSnapshot(t *testing.T) {
	t.Parallel()

	store := &fakeDataStore{snapshot: crawler.RankingSnapshot{
		ID:         3,
		RankingID:  5,
		Positions:  []crawler.RankedBook{{Position: 1, NovelID: 111}},
		CapturedAt: time.Now().UTC(),
	}}
	rec := doRequest(t, newTestServer(store, memory.NewQueue(1)), http.MethodGet, "/v1/rankings/5/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(5), decodeBody(t, rec)["ranking_id"])

	store.snapErr = errors.New("no rows")
	rec = doRequest(t, newTestServer(store, memory.NewQueue(1)), http.MethodGet, "/v1/rankings/5/latest")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListCrawlRuns(t *testing.T) {
	t.Parallel()

	store := &fakeDataStore{runs: []crawler.CrawlRun{
		{TaskID: "t1", PageID: "index", Status: crawler.CrawlStatusSucceeded},
	}}
	rec := doRequest(t, newTestServer(store, memory.NewQueue(1)), http.MethodGet, "/v1/crawls")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody(t, rec)["runs"], 1)
}
