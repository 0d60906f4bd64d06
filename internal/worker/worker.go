// Package worker implements the crawl execution loop: it consumes page
// tasks from the queue, runs the orchestrator, and records the outcome.
package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/lien-Gu/jjcrawler/internal/crawler"
)

// Orchestrator runs one page-crawl unit of work.
type Orchestrator interface {
	CrawlPage(ctx context.Context, task crawler.PageTask) (crawler.PageResult, error)
}

// Worker consumes queue items and executes the crawl pipeline.
type Worker struct {
	queue  crawler.Queue
	orch   Orchestrator
	runs   crawler.RunStore
	clock  crawler.Clock
	logger *zap.Logger
}

// New constructs a Worker.
func New(
	queue crawler.Queue,
	orch Orchestrator,
	runs crawler.RunStore,
	clock crawler.Clock,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		queue:  queue,
		orch:   orch,
		runs:   runs,
		clock:  clock,
		logger: logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued page task",
			zap.String("task_id", task.TaskID),
			zap.String("page", task.PageID),
		)
		w.processTask(ctx, task)
	}
}

func (w *Worker) processTask(ctx context.Context, task crawler.PageTask) {
	run := crawler.CrawlRun{
		TaskID:    task.TaskID,
		PageID:    task.PageID,
		Status:    crawler.CrawlStatusRunning,
		StartedAt: w.clock.Now(),
	}
	if err := w.runs.StartCrawlRun(ctx, run); err != nil {
		w.logger.Error("record crawl start failed",
			zap.String("task_id", task.TaskID),
			zap.Error(err),
		)
	}

	result, err := w.orch.CrawlPage(ctx, task)
	finished := w.clock.Now()
	run.FinishedAt = &finished
	if err != nil {
		run.Status = crawler.CrawlStatusFailed
		run.ErrorText = err.Error()
		w.logger.Error("page crawl failed",
			zap.String("task_id", task.TaskID),
			zap.String("page", task.PageID),
			zap.Error(err),
		)
	} else {
		run.Status = result.Status()
		run.BooksAdded = result.BooksAdded
		run.BooksUpdated = result.BooksUpdated
		run.BooksFailed = len(result.Failures)
	}

	if err := w.runs.FinishCrawlRun(ctx, run); err != nil {
		w.logger.Error("record crawl finish failed",
			zap.String("task_id", task.TaskID),
			zap.Error(err),
		)
	}
}
