// Package client implements the HTTP transport for the crawl pipeline:
// a pooled client that every outbound request passes through, guarded by
// the circuit breaker and a token-bucket rate limit.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lien-Gu/jjcrawler/internal/breaker"
	"github.com/lien-Gu/jjcrawler/internal/crawler"
	"github.com/lien-Gu/jjcrawler/internal/metrics"
)

// maxBodyBytes bounds response reads; ranking and book payloads are small.
const maxBodyBytes = 4 << 20

// Config controls transport behavior.
type Config struct {
	UserAgent      string
	Referer        string
	Timeout        time.Duration
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	RPS            float64
	Burst          int
}

// Client is the single entry point for outbound requests. It consults the
// breaker before every attempt, mimics a browser's request headers (the
// source applies bot-detection heuristics sensitive to header
// completeness), retries network-class failures with backoff, and decodes
// response bodies as JSON.
type Client struct {
	http    *http.Client
	breaker *breaker.Breaker
	limiter *rate.Limiter
	retry   *RetryPolicy
	cfg     Config
	logger  *zap.Logger
}

// New builds a Client with a pooled transport.
func New(cfg Config, brk *breaker.Breaker, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	limit := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	transport := &http.Transport{
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		breaker: brk,
		limiter: rate.NewLimiter(limit, burst),
		retry:   NewRetryPolicy(cfg.MaxAttempts, cfg.BackoffInitial, cfg.BackoffMax),
		cfg:     cfg,
		logger:  logger,
	}
}

// HTTPClient exposes the underlying client so tests can bind a mock
// transport to it.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// FetchJSON retrieves url and returns its decoded JSON payload, retrying
// network-class failures per the retry policy. Overload (503), breaker
// rejection, and business errors propagate immediately.
func (c *Client) FetchJSON(ctx context.Context, url string) (map[string]any, error) {
	for attempt := 0; ; attempt++ {
		payload, err := c.fetchOnce(ctx, url)
		if err == nil {
			return payload, nil
		}
		if !c.retry.ShouldRetry(err, attempt) {
			return nil, err
		}
		backoff := c.retry.Backoff(attempt)
		metrics.IncRetry()
		c.logger.Debug("retrying fetch",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("fetch canceled during backoff: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}
}

func (c *Client) fetchOnce(ctx context.Context, url string) (map[string]any, error) {
	if err := c.breaker.Allow(); err != nil {
		metrics.ObserveFetch("breaker_open")
		return nil, err
	}
	if err := c.waitTurn(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &crawler.BusinessError{Reason: fmt.Sprintf("build request for %s: %v", url, err)}
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveFetch("network_error")
		c.logger.Debug("fetch transport error", zap.String("url", url), zap.Error(err))
		return nil, &crawler.NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusServiceUnavailable {
		// The breaker owns the response to overload; this request fails
		// without local retry.
		c.breaker.ReportOverload()
		metrics.ObserveFetch("overload")
		return nil, &crawler.OverloadError{URL: url}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.ObserveFetch("http_error")
		c.logger.Debug("fetch unexpected status",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &crawler.NetworkError{URL: url, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.ObserveFetch("network_error")
		return nil, &crawler.NetworkError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		// The source intermittently serves truncated or HTML error bodies;
		// treat a decode failure like any other transient transport fault.
		metrics.ObserveFetch("decode_error")
		return nil, &crawler.NetworkError{URL: url, Err: fmt.Errorf("decode json: %w", err)}
	}

	c.breaker.ReportSuccess()
	metrics.ObserveFetch("success")
	c.logger.Debug("fetched",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("duration", time.Since(start)),
	)
	return payload, nil
}

func (c *Client) waitTurn(ctx context.Context) error {
	start := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(waited)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	if c.cfg.Referer != "" {
		req.Header.Set("Referer", c.cfg.Referer)
	}
}
