package httpclient

import (
	"net/http"
	"strconv"
	"time"
)

// RetryDecider reports whether an attempt should be retried.
type RetryDecider func(resp *http.Response, err error) bool

// BackoffFunc returns the pause before retry number attempt.
type BackoffFunc func(attempt int) time.Duration

// maxRetryAfter caps how long a server may ask us to wait.
const maxRetryAfter = 10 * time.Second

// network errors, 429 and 5xx are retried
func defaultRetryDecider(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp == nil {
		return false
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
}

// 100ms, 200ms, 400ms ... capped at 2s
func defaultBackoff(attempt int) time.Duration {
	d := 100 * time.Millisecond << attempt
	if d <= 0 || d > 2*time.Second {
		d = 2 * time.Second
	}
	return d
}

// retryAfter reads a delay-seconds Retry-After header. HTTP dates are not
// honoured; the collector only sends seconds.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	if resp == nil {
		return 0, false
	}
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter), true
}
