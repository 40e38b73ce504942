package modelgateway

import (
	"errors"
	"fmt"
	"net/http"
)

// classifiedErr marks whether the gateway's retry loop should retry this
// backend again or fall through to the next one in the chain.
type classifiedErr struct {
	err       error
	retryable bool
}

func (e *classifiedErr) Error() string { return e.err.Error() }
func (e *classifiedErr) Unwrap() error { return e.err }
func (e *classifiedErr) ShouldRetry() bool { return e.retryable }

func newRetryable(err error) error    { return &classifiedErr{err: err, retryable: true} }
func newNonRetryable(err error) error { return &classifiedErr{err: err, retryable: false} }

// isRetryable defaults unknown errors to retryable (network errors are
// usually transient), matching the resilience package's convention.
func isRetryable(err error) bool {
	var c *classifiedErr
	if errors.As(err, &c) {
		return c.retryable
	}
	return true
}

// classifyHTTPError maps an HTTP status + body to a retryable/non-retryable
// classification per spec.md §4.6: 5xx, 408, 429 retry; other 4xx, malformed
// response, auth error fall through immediately.
func classifyHTTPError(status int, body []byte) error {
	err := fmt.Errorf("backend returned %d: %s", status, truncate(body, 300))
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return newRetryable(err)
	case status >= 500:
		return newRetryable(err)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return newNonRetryable(err)
	case status >= 400:
		return newNonRetryable(err)
	default:
		return newRetryable(err)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
