package httpclient

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Request describes one call.
type Request struct {
	Method  string
	Path    string // relative to BaseURL, or absolute
	Query   url.Values
	Headers http.Header
	Body    any // nil, io.Reader, string, []byte or a value encoded as JSON

	Timeout time.Duration // overrides Config.DefaultTimeout
}

type RequestOption func(*Request)

func WithQuery(q url.Values) RequestOption {
	return func(r *Request) { r.Query = q }
}

func WithHeader(k, v string) RequestOption {
	return func(r *Request) {
		if r.Headers == nil {
			r.Headers = make(http.Header)
		}
		r.Headers.Add(k, v)
	}
}

func WithJSONBody(body any) RequestOption {
	return func(r *Request) { r.Body = body }
}

// WithTextBody sends s as text/plain. Unlike an io.Reader body it can be
// replayed on retry.
func WithTextBody(s string) RequestOption {
	return func(r *Request) {
		r.Body = s
		if r.Headers == nil {
			r.Headers = make(http.Header)
		}
		r.Headers.Set("Content-Type", "text/plain; charset=utf-8")
	}
}

func WithTimeout(t time.Duration) RequestOption {
	return func(r *Request) { r.Timeout = t }
}

func WithPathTemplate(format string, args ...any) RequestOption {
	return func(r *Request) { r.Path = fmt.Sprintf(format, args...) }
}

func (c *Client) buildURL(path string, q url.Values) (string, error) {
	// absolute URL
	if u, err := url.Parse(path); err == nil && u.Scheme != "" && u.Host != "" {
		qs := u.Query()
		for k, vs := range q {
			for _, v := range vs {
				qs.Add(k, v)
			}
		}
		u.RawQuery = qs.Encode()
		return u.String(), nil
	}

	pu, err := url.Parse(path)
	if err != nil {
		return "", err
	}

	if c.baseURL == nil {
		qs := pu.Query()
		for k, vs := range q {
			for _, v := range vs {
				qs.Add(k, v)
			}
		}
		pu.RawQuery = qs.Encode()
		return pu.String(), nil
	}

	u := *c.baseURL
	u.Path = joinPath(c.baseURL.Path, pu.Path)

	qs := pu.Query()
	for k, vs := range q {
		for _, v := range vs {
			qs.Add(k, v)
		}
	}
	u.RawQuery = qs.Encode()
	return u.String(), nil
}

func joinPath(a, b string) string {
	switch {
	case a == "" || a == "/":
		return b
	case b == "":
		return a
	default:
		if a[len(a)-1] == '/' && b[0] == '/' {
			return a + b[1:]
		}
		if a[len(a)-1] != '/' && b[0] != '/' {
			return a + "/" + b
		}
		return a + b
	}
}
