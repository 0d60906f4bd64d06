// Package api exposes the HTTP interface for the crawl service: crawl
// triggers plus read access to stored books, rankings, and runs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lien-Gu/jjcrawler/internal/config"
	"github.com/lien-Gu/jjcrawler/internal/crawler"
	"github.com/lien-Gu/jjcrawler/internal/dispatcher"
	"github.com/lien-Gu/jjcrawler/internal/metrics"
)

// DataStore is the read-side persistence surface the API serves from.
type DataStore interface {
	Ping(ctx context.Context) error
	GetBook(ctx context.Context, novelID int64) (crawler.Book, error)
	ListBookSnapshots(ctx context.Context, novelID int64, limit int) ([]crawler.BookSnapshot, error)
	ListRankings(ctx context.Context, pageID string) ([]crawler.Ranking, error)
	LatestRankingSnapshot(ctx context.Context, rankingID int64) (crawler.RankingSnapshot, error)
	ListCrawlRuns(ctx context.Context, limit int) ([]crawler.CrawlRun, error)
}

// Server wires HTTP handlers to the dispatcher and store.
type Server struct {
	router     chi.Router
	store      DataStore
	dispatcher *dispatcher.Dispatcher
	idGen      crawler.IDGenerator
	clock      crawler.Clock
	pages      map[string]config.PageConfig
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	store DataStore,
	disp *dispatcher.Dispatcher,
	idGen crawler.IDGenerator,
	clock crawler.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	pages := make(map[string]config.PageConfig, len(cfg.Crawler.Pages))
	for _, page := range cfg.Crawler.Pages {
		pages[page.ID] = page
	}
	s := &Server{
		store:      store,
		dispatcher: disp,
		idGen:      idGen,
		clock:      clock,
		pages:      pages,
		logger:     logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/crawl/{page_id}", s.triggerCrawl)
		r.Get("/crawls", s.listCrawlRuns)
		r.Route("/books/{novel_id}", func(r chi.Router) {
			r.Get("/", s.getBook)
			r.Get("/snapshots", s.listBookSnapshots)
		})
		r.Get("/rankings", s.listRankings)
		r.Get("/rankings/{ranking_id}/latest", s.latestRankingSnapshot)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) triggerCrawl(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "page_id")
	page, ok := s.pages[pageID]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown page")
		return
	}
	taskID, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generate task id")
		return
	}
	task := crawler.PageTask{
		TaskID:  taskID,
		PageID:  page.ID,
		Channel: page.Channel,
	}
	queueCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.dispatcher.Enqueue(queueCtx, task); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID, "page_id": page.ID})
}

func (s *Server) getBook(w http.ResponseWriter, r *http.Request) {
	novelID, ok := parseID(w, r, "novel_id")
	if !ok {
		return
	}
	book, err := s.store.GetBook(r.Context(), novelID)
	if err != nil {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) listBookSnapshots(w http.ResponseWriter, r *http.Request) {
	novelID, ok := parseID(w, r, "novel_id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	snaps, err := s.store.ListBookSnapshots(r.Context(), novelID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch snapshots")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"novel_id": novelID, "snapshots": snaps})
}

func (s *Server) listRankings(w http.ResponseWriter, r *http.Request) {
	pageID := r.URL.Query().Get("page")
	if pageID == "" {
		writeError(w, http.StatusBadRequest, "page query parameter required")
		return
	}
	rankings, err := s.store.ListRankings(r.Context(), pageID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch rankings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"page_id": pageID, "rankings": rankings})
}

func (s *Server) latestRankingSnapshot(w http.ResponseWriter, r *http.Request) {
	rankingID, ok := parseID(w, r, "ranking_id")
	if !ok {
		return
	}
	snap, err := s.store.LatestRankingSnapshot(r.Context(), rankingID)
	if err != nil {
		writeError(w, http.StatusNotFound, "no snapshot for ranking")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) listCrawlRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.store.ListCrawlRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch crawl runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+param)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			duration := time.Since(start)
			metrics.ObserveHTTPRequest(r.Method, r.URL.Path, ww.status, duration)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", duration.Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
