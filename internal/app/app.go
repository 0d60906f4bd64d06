// Package app initializes and holds long-lived application services,
// acting as the dependency injection container. The circuit breaker is
// constructed here and passed into the transport: it is explicit wiring,
// not a package-level global, so the transport never has to reach into
// the orchestrator layer to find it.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lien-Gu/jjcrawler/internal/api"
	"github.com/lien-Gu/jjcrawler/internal/breaker"
	"github.com/lien-Gu/jjcrawler/internal/client"
	"github.com/lien-Gu/jjcrawler/internal/clock/system"
	"github.com/lien-Gu/jjcrawler/internal/config"
	"github.com/lien-Gu/jjcrawler/internal/crawl"
	"github.com/lien-Gu/jjcrawler/internal/dispatcher"
	"github.com/lien-Gu/jjcrawler/internal/id/uuid"
	"github.com/lien-Gu/jjcrawler/internal/logging"
	"github.com/lien-Gu/jjcrawler/internal/metrics"
	"github.com/lien-Gu/jjcrawler/internal/queue/memory"
	"github.com/lien-Gu/jjcrawler/internal/scheduler"
	"github.com/lien-Gu/jjcrawler/internal/store"
	"github.com/lien-Gu/jjcrawler/internal/worker"
)

// App holds the shared, long-lived services for the crawl process.
type App struct {
	Config       config.Config
	Logger       *zap.Logger
	Store        *store.Store
	Breaker      *breaker.Breaker
	Client       *client.Client
	Orchestrator *crawl.Orchestrator
	Queue        *memory.Queue
	Dispatcher   *dispatcher.Dispatcher
	Scheduler    *scheduler.Scheduler
	Server       *api.Server
	IDGen        *uuid.Generator
}

// New builds the full service graph from configuration. It fails fast if
// any critical dependency cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	metrics.Init()

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	clock := system.New()
	brk := breaker.New(cfg.BreakerCooldown(), clock, logger.Named("breaker"))

	httpClient := client.New(client.Config{
		UserAgent:      cfg.Source.UserAgent,
		Referer:        cfg.Source.Referer,
		Timeout:        cfg.SourceTimeout(),
		MaxAttempts:    cfg.Retry.MaxAttempts,
		BackoffInitial: cfg.RetryBackoffInitial(),
		BackoffMax:     cfg.RetryBackoffMax(),
		RPS:            cfg.RateLimit.RPS,
		Burst:          cfg.RateLimit.Burst,
	}, brk, logger.Named("client"))

	st, err := store.New(ctx, store.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxConns),
		MinConns: int32(cfg.DB.MinConns),
	}, logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	orch := crawl.New(
		httpClient,
		st,
		crawl.URLs{Base: cfg.Source.BaseURL},
		clock,
		crawl.Config{Concurrency: cfg.Crawler.Concurrency},
		logger.Named("crawl"),
	)

	q := memory.NewQueue(cfg.Crawler.QueueDepth)
	workers := make([]*worker.Worker, 0, cfg.Crawler.Workers)
	for i := 0; i < cfg.Crawler.Workers; i++ {
		workers = append(workers, worker.New(q, orch, st, clock, logger.Named("worker")))
	}
	disp := dispatcher.New(q, workers)

	idGen := uuid.NewUUIDGenerator()
	pages := make([]scheduler.Page, 0, len(cfg.Crawler.Pages))
	for _, page := range cfg.Crawler.Pages {
		pages = append(pages, scheduler.Page{ID: page.ID, Channel: page.Channel})
	}
	sched := scheduler.New(q, pages, cfg.CrawlInterval(), idGen, logger.Named("scheduler"))

	srv := api.NewServer(st, disp, idGen, clock, cfg, logger.Named("api"))

	return &App{
		Config:       cfg,
		Logger:       logger,
		Store:        st,
		Breaker:      brk,
		Client:       httpClient,
		Orchestrator: orch,
		Queue:        q,
		Dispatcher:   disp,
		Scheduler:    sched,
		Server:       srv,
		IDGen:        idGen,
	}, nil
}

// Serve runs the dispatcher, scheduler, and HTTP server until the context
// finishes, then shuts down gracefully.
func (a *App) Serve(ctx context.Context) error {
	go a.Dispatcher.Run(ctx)
	go a.Scheduler.Run(ctx)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:           a.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", zap.Int("port", a.Config.Server.Port))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

// Close releases held resources.
func (a *App) Close() {
	a.Queue.Close()
	a.Store.Close()
	_ = a.Logger.Sync() //nolint:errcheck
}
