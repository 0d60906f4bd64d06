package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lien-Gu/jjcrawler/internal/breaker"
	"github.com/lien-Gu/jjcrawler/internal/crawler"
)

func TestRetryPolicyClassification(t *testing.T) {
	t.Parallel()

	policy := NewRetryPolicy(3, time.Second, 10*time.Second)

	tests := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{name: "nil error", err: nil, attempt: 0, want: false},
		{name: "network error first attempt", err: &crawler.NetworkError{URL: "u", Err: errors.New("reset")}, attempt: 0, want: true},
		{name: "network error second attempt", err: &crawler.NetworkError{URL: "u", Err: errors.New("reset")}, attempt: 1, want: true},
		{name: "network error attempts exhausted", err: &crawler.NetworkError{URL: "u", Err: errors.New("reset")}, attempt: 2, want: false},
		{name: "overload never retried", err: &crawler.OverloadError{URL: "u"}, attempt: 0, want: false},
		{name: "breaker open never retried", err: &breaker.OpenError{RetryAfter: time.Second}, attempt: 0, want: false},
		{name: "business error never retried", err: &crawler.BusinessError{Reason: "no id"}, attempt: 0, want: false},
		{name: "context canceled never retried", err: context.Canceled, attempt: 0, want: false},
		{name: "context deadline never retried", err: context.DeadlineExceeded, attempt: 0, want: false},
		{name: "unclassified error never retried", err: errors.New("boom"), attempt: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, policy.ShouldRetry(tt.err, tt.attempt))
		})
	}
}

func TestRetryPolicyBackoffDoublesToCap(t *testing.T) {
	t.Parallel()

	policy := NewRetryPolicy(6, time.Second, 10*time.Second)

	require.Equal(t, time.Second, policy.Backoff(0))
	require.Equal(t, 2*time.Second, policy.Backoff(1))
	require.Equal(t, 4*time.Second, policy.Backoff(2))
	require.Equal(t, 8*time.Second, policy.Backoff(3))
	require.Equal(t, 10*time.Second, policy.Backoff(4))
	require.Equal(t, 10*time.Second, policy.Backoff(20))
}

func TestRetryPolicyDefaults(t *testing.T) {
	t.Parallel()

	policy := NewRetryPolicy(0, 0, 0)
	require.Equal(t, 3, policy.maxAttempts)
	require.Equal(t, time.Second, policy.baseDelay)
	require.Equal(t, 10*time.Second, policy.maxDelay)
}
