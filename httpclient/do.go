package httpclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/imattdu/xtrace/jsonx"
)

// Do sends the request with retry and stats. A Retry-After header on a
// retried response replaces the backoff pause.
// respBody:
//   - nil       : the caller owns resp.Body and must close it
//   - io.Writer : the body is copied into it
//   - *[]byte   : filled with the raw body
//   - otherwise : the body is decoded as JSON
func (c *Client) Do(ctx context.Context, reqCfg *Request, respBody any) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	timeout := reqCfg.Timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	u, err := c.buildURL(reqCfg.Path, reqCfg.Query)
	if err != nil {
		return nil, err
	}

	// ---------- body, buffered so it can be replayed ----------
	var bodyBytes []byte
	var bodyReader io.Reader
	var bodyIsReader bool

	headers := cloneHeader(reqCfg.Headers)

	switch v := reqCfg.Body.(type) {
	case nil:
	case string:
		bodyBytes = []byte(v)
	case []byte:
		bodyBytes = cloneBytes(v)
	case io.Reader:
		bodyIsReader = true
		bodyReader = v
	default:
		data, err := jsonx.Marshal(v)
		if err != nil {
			return nil, err
		}
		bodyBytes = data
		if headers == nil {
			headers = make(http.Header)
		}
		if headers.Get("Content-Type") == "" {
			headers.Set("Content-Type", "application/json")
		}
	}

	attempts := c.retryMaxAttempts
	if bodyIsReader {
		// a reader cannot be replayed
		attempts = 1
	}
	if attempts < 1 {
		attempts = 1
	}

	stats := &CallStats{
		ctx:         ctx,
		Method:      reqCfg.Method,
		URL:         u,
		Query:       reqCfg.Query.Encode(),
		MaxAttempts: attempts,
	}
	if bodyBytes != nil {
		stats.BodySize = len(bodyBytes)
		if len(bodyBytes) <= 1024 {
			stats.Body = string(bodyBytes)
		}
	}

	var lastReq *http.Request
	var lastResp *http.Response
	var lastErr error
	begin := time.Now()

attemptLoop:
	for attempt := 0; attempt < attempts; attempt++ {
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}

		httpReq, err := http.NewRequestWithContext(ctx, reqCfg.Method, u, bodyReader)
		if err != nil {
			return nil, err
		}
		if c.userAgent != "" && headers.Get("User-Agent") == "" {
			httpReq.Header.Set("User-Agent", c.userAgent)
		}
		for k, vs := range headers {
			for _, v := range vs {
				httpReq.Header.Add(k, v)
			}
		}

		if stats.Path == "" && httpReq.URL != nil {
			stats.Path = httpReq.URL.Path
		}

		for _, h := range c.before {
			h(ctx, httpReq)
		}

		attemptStart := time.Now()
		resp, err := c.hc.Do(httpReq)
		elapsed := time.Since(attemptStart)

		lastReq, lastResp, lastErr = httpReq, resp, err

		statusCode := 0
		if resp != nil {
			statusCode = resp.StatusCode
		}

		willRetry := attempt < attempts-1 && c.retryDecider(resp, err)

		stats.AttemptsLog = append(stats.AttemptsLog, CallAttempt{
			Attempt:   attempt + 1,
			Status:    statusCode,
			Err:       errString(err),
			Cost:      elapsed,
			WillRetry: willRetry,
			ctx:       ctx,
		})

		if !willRetry {
			break
		}

		sleep := c.backoff(attempt)
		if d, ok := retryAfter(resp); ok {
			sleep = d
		}

		// drain so the connection can be reused
		if resp != nil && resp.Body != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
		lastResp = nil

		if sleep > 0 {
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				lastErr = ctx.Err()
				break attemptLoop
			}
		}
	}

	stats.Cost = time.Since(begin)
	stats.Attempts = len(stats.AttemptsLog)
	if lastResp != nil {
		stats.Status = lastResp.StatusCode
	}
	stats.Err = errString(lastErr)

	if lastReq != nil {
		for _, h := range c.done {
			h(ctx, lastReq, lastResp, lastErr)
		}
	}

	if c.statsHook != nil {
		c.statsHook(ctx, stats)
	}

	resp := lastResp
	if resp == nil {
		return nil, lastErr
	}

	if respBody == nil {
		return resp, nil
	}
	defer resp.Body.Close()

	if w, ok := respBody.(io.Writer); ok {
		_, err := io.Copy(w, resp.Body)
		return resp, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, err
	}

	if c.statusErrors && resp.StatusCode >= http.StatusMultipleChoices {
		return resp, statusError(resp.StatusCode, data)
	}

	if p, ok := respBody.(*[]byte); ok {
		*p = data
		return resp, nil
	}

	if err := jsonx.Unmarshal(data, respBody); err != nil {
		return resp, err
	}
	return resp, nil
}

// -------- shortcuts --------

func (c *Client) GetJSON(ctx context.Context, path string, out any, opts ...RequestOption) (*http.Response, error) {
	req := &Request{Method: http.MethodGet, Path: path}
	for _, opt := range opts {
		opt(req)
	}
	return c.Do(ctx, req, out)
}

func (c *Client) PostJSON(ctx context.Context, path string, in any, out any, opts ...RequestOption) (*http.Response, error) {
	req := &Request{Method: http.MethodPost, Path: path}
	opts = append(opts, WithJSONBody(in))
	for _, opt := range opts {
		opt(req)
	}
	return c.Do(ctx, req, out)
}

// PostText posts a text/plain body and discards the response body.
func (c *Client) PostText(ctx context.Context, path, body string, opts ...RequestOption) (*http.Response, error) {
	req := &Request{Method: http.MethodPost, Path: path}
	opts = append(opts, WithTextBody(body))
	for _, opt := range opts {
		opt(req)
	}
	var sink []byte
	return c.Do(ctx, req, &sink)
}
