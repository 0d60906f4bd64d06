package crawler

import (
	"errors"
	"fmt"
)

// NetworkError marks a transient transport failure: timeouts, connection
// resets, non-503 HTTP error statuses, and response bodies that fail to
// decode as JSON. Network errors are the only retryable class.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network: fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// OverloadError marks an HTTP 503 from the source. It is never retried at
// the request level; the circuit breaker owns the response to overload.
type OverloadError struct {
	URL string
}

func (e *OverloadError) Error() string {
	return fmt.Sprintf("overload: %s returned 503", e.URL)
}

// BusinessError marks a data-integrity or invalid-argument failure, such
// as a book payload missing its external identifier. Business errors are
// fatal to the single item and never retried.
type BusinessError struct {
	Reason string
}

func (e *BusinessError) Error() string {
	return "business: " + e.Reason
}

// IsRetryable reports whether err belongs to the retryable network class.
func IsRetryable(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// IsOverload reports whether err carries a 503 overload signal.
func IsOverload(err error) bool {
	var ovl *OverloadError
	return errors.As(err, &ovl)
}

// IsBusiness reports whether err is a non-retryable business failure.
func IsBusiness(err error) bool {
	var biz *BusinessError
	return errors.As(err, &biz)
}
