// Package scheduler enqueues the configured pages on a fixed interval.
// It is the only cron-like trigger in the process; the crawl core never
// schedules itself.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/lien-Gu/jjcrawler/internal/crawler"
	"github.com/lien-Gu/jjcrawler/internal/queue/memory"
)

// Page is one configured crawl target.
type Page struct {
	ID      string
	Channel string
}

// Scheduler ticks and enqueues every configured page.
type Scheduler struct {
	queue    *memory.Queue
	pages    []Page
	interval time.Duration
	idGen    crawler.IDGenerator
	logger   *zap.Logger
}

// New constructs a Scheduler.
func New(
	queue *memory.Queue,
	pages []Page,
	interval time.Duration,
	idGen crawler.IDGenerator,
	logger *zap.Logger,
) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		queue:    queue,
		pages:    pages,
		interval: interval,
		idGen:    idGen,
		logger:   logger,
	}
}

// Run enqueues one full cycle immediately, then one per interval, until
// the context finishes.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.enqueueCycle()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.enqueueCycle()
		}
	}
}

// enqueueCycle pushes every configured page without blocking. When a
// previous cycle is still draining, the tick is dropped for the pages
// that no longer fit; the next tick will pick them up again.
func (s *Scheduler) enqueueCycle() {
	for _, page := range s.pages {
		taskID, err := s.idGen.NewID()
		if err != nil {
			s.logger.Error("generate task id failed", zap.Error(err))
			continue
		}
		task := crawler.PageTask{
			TaskID:  taskID,
			PageID:  page.ID,
			Channel: page.Channel,
		}
		if err := s.queue.TryEnqueue(task); err != nil {
			if errors.Is(err, memory.ErrFull) {
				s.logger.Warn("queue full, skipping page this cycle",
					zap.String("page", page.ID),
				)
				continue
			}
			s.logger.Error("enqueue page failed",
				zap.String("page", page.ID),
				zap.Error(err),
			)
			continue
		}
		s.logger.Debug("scheduled page crawl",
			zap.String("task_id", taskID),
			zap.String("page", page.ID),
		)
	}
}
