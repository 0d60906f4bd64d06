// Package memory provides the in-process page-task queue.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lien-Gu/jjcrawler/internal/crawler"
)

// ErrFull is returned by TryEnqueue when the queue has no capacity.
var ErrFull = errors.New("queue full")

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan crawler.PageTask
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 16
	}
	return &Queue{
		ch: make(chan crawler.PageTask, capacity),
	}
}

// Enqueue pushes a task into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, task crawler.PageTask) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- task:
		return nil
	}
}

// TryEnqueue pushes a task without blocking. The scheduler uses this so a
// slow crawl cycle drops ticks instead of piling them up.
func (q *Queue) TryEnqueue(task crawler.PageTask) error {
	select {
	case q.ch <- task:
		return nil
	default:
		return ErrFull
	}
}

// Dequeue pops the next task, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (crawler.PageTask, error) {
	select {
	case <-ctx.Done():
		return crawler.PageTask{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task, ok := <-q.ch:
		if !ok {
			return crawler.PageTask{}, errors.New("queue closed")
		}
		return task, nil
	}
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
