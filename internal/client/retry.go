package client

import (
	"context"
	"errors"
	"time"

	"github.com/lien-Gu/jjcrawler/internal/breaker"
	"github.com/lien-Gu/jjcrawler/internal/crawler"
)

// RetryPolicy wraps one logical fetch with classification-based retry.
// Only network-class errors are retried; a 503 already tripped the breaker
// and retrying it would hammer an overloaded source, a breaker-open
// rejection means "come back later", and business errors are fatal to the
// item. Errors always propagate out of the wrapped call; nothing here
// converts a failure into a return value.
type RetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewRetryPolicy builds a policy. Zero values fall back to 3 attempts
// with a 1s base delay capped at 10s.
func NewRetryPolicy(maxAttempts int, baseDelay, maxDelay time.Duration) *RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}
	return &RetryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
	}
}

// ShouldRetry decides whether the error from the given zero-based attempt
// warrants another try.
func (p *RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt+1 >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var open *breaker.OpenError
	if errors.As(err, &open) {
		return false
	}
	if crawler.IsOverload(err) || crawler.IsBusiness(err) {
		return false
	}
	return crawler.IsRetryable(err)
}

// Backoff returns the wait duration before the next attempt: the base
// delay doubled per attempt, capped at the configured maximum.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.baseDelay << uint(attempt)
	if delay > p.maxDelay || delay <= 0 {
		delay = p.maxDelay
	}
	return delay
}
