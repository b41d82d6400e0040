package reporter

import (
	"context"
	"time"

	"github.com/imattdu/xtrace/errorx"
	"github.com/imattdu/xtrace/httpclient"
	"github.com/imattdu/xtrace/logx"
)

// ReportsPath is where the collector accepts reports over HTTP.
const ReportsPath = "/reports"

// HTTPReporter posts each report to the collector's ingest endpoint.
type HTTPReporter struct {
	*queue
	client *httpclient.Client
}

func NewHTTP(cfg Config) (*HTTPReporter, error) {
	logger := logx.OrDefault(cfg.Logger)
	client, err := httpclient.New(
		httpclient.WithBaseURL(cfg.HTTPURL),
		httpclient.WithUserAgent("xtrace-reporter/1"),
		httpclient.WithRetry(3, nil, nil),
		httpclient.WithStatusErrors(),
		httpclient.WithDefaultTimeout(5*time.Second),
		httpclient.WithStatsHook(func(ctx context.Context, s *httpclient.CallStats) {
			if s.Err == "" && s.Status < 300 {
				return
			}
			logger.Warn(ctx, logx.TagHttpFailure, "report post failed",
				logx.URL, s.URL, logx.Status, s.Status, logx.Attempts, s.Attempts, logx.Err, s.Err)
		}),
	)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.ErrConfig, errorx.WithService(errorx.ServiceReporter))
	}
	r := &HTTPReporter{client: client}
	r.queue = newQueue("http", cfg.queueSize(), cfg.Logger, func(ctx context.Context, report string) error {
		if _, err := client.PostText(ctx, ReportsPath, report); err != nil {
			return errorx.Wrap(err, errorx.ErrSink, errorx.WithService(errorx.ServiceReporter))
		}
		return nil
	})
	return r, nil
}

func (r *HTTPReporter) Close() error {
	r.queue.close()
	return nil
}
