package httpclient

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/imattdu/xtrace/errorx"
)

// DefaultUserAgent is sent unless a request sets its own.
const DefaultUserAgent = "xtrace-httpclient/1"

// BeforeFunc runs before every attempt. DoneFunc runs once per call with
// the final attempt's outcome.
type BeforeFunc func(ctx context.Context, req *http.Request)
type DoneFunc func(ctx context.Context, req *http.Request, resp *http.Response, err error)

// Config configures a Client.
type Config struct {
	BaseURL   string
	UserAgent string

	// used when a Request sets no Timeout
	DefaultTimeout time.Duration

	DialTimeout         time.Duration
	DialKeepAlive       time.Duration
	TLSHandshakeTimeout time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	ReadWriteTimeout    time.Duration // deadline applied to every Read/Write

	RetryMaxAttempts int
	RetryDecider     RetryDecider
	RetryBackoff     BackoffFunc

	// turn final non-2xx answers into *errorx.Error
	StatusErrors bool

	Before []BeforeFunc
	Done   []DoneFunc

	StatsHook StatsHook
}

func defaultConfig() Config {
	return Config{
		UserAgent:           DefaultUserAgent,
		DefaultTimeout:      5 * time.Second,
		DialTimeout:         3 * time.Second,
		DialKeepAlive:       60 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
		ReadWriteTimeout:    5 * time.Second,
		RetryMaxAttempts:    1,
	}
}

type Option func(*Config)

func WithBaseURL(s string) Option {
	return func(c *Config) { c.BaseURL = s }
}

func WithUserAgent(ua string) Option {
	return func(c *Config) { c.UserAgent = ua }
}

func WithDefaultTimeout(t time.Duration) Option {
	return func(c *Config) { c.DefaultTimeout = t }
}

// WithRetry allows max attempts per call. Nil decider or backoff keep the
// defaults: retry network errors, 429 and 5xx with exponential pauses.
func WithRetry(max int, decider RetryDecider, backoff BackoffFunc) Option {
	return func(c *Config) {
		c.RetryMaxAttempts = max
		c.RetryDecider = decider
		c.RetryBackoff = backoff
	}
}

// WithStatusErrors makes Do fail with errorx.ErrHTTPStatus when the last
// attempt is answered with a status of 300 or above.
func WithStatusErrors() Option {
	return func(c *Config) { c.StatusErrors = true }
}

func WithDoneHooks(h ...DoneFunc) Option {
	return func(c *Config) { c.Done = append(c.Done, h...) }
}

func WithStatsHook(h StatsHook) Option {
	return func(c *Config) { c.StatsHook = h }
}

// Client is safe for concurrent use.
type Client struct {
	hc        *http.Client
	baseURL   *url.URL
	userAgent string

	before []BeforeFunc
	done   []DoneFunc

	defaultTimeout   time.Duration
	retryMaxAttempts int
	retryDecider     RetryDecider
	backoff          BackoffFunc
	statusErrors     bool
	statsHook        StatsHook
}

// New builds a Client. The config is frozen afterwards.
func New(opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	var base *url.URL
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, errorx.Wrap(err, errorx.ErrConfig, errorx.WithField("base_url", cfg.BaseURL))
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, errorx.New(errorx.ErrConfig, errorx.WithField("base_url", cfg.BaseURL),
				errorx.WithMessage("base url needs an http or https scheme"))
		}
		base = u
	}

	c := &Client{
		hc:        &http.Client{Transport: buildTransport(&cfg)},
		baseURL:   base,
		userAgent: cfg.UserAgent,

		before: append([]BeforeFunc(nil), cfg.Before...),
		done:   append([]DoneFunc(nil), cfg.Done...),

		defaultTimeout:   cfg.DefaultTimeout,
		retryMaxAttempts: max(cfg.RetryMaxAttempts, 1),
		retryDecider:     cfg.RetryDecider,
		backoff:          cfg.RetryBackoff,
		statusErrors:     cfg.StatusErrors,
		statsHook:        cfg.StatsHook,
	}
	if c.retryDecider == nil {
		c.retryDecider = defaultRetryDecider
	}
	if c.backoff == nil {
		c.backoff = defaultBackoff
	}
	return c, nil
}
