// Package collector receives reports over UDP, TCP, HTTP and pub/sub,
// stores them and serves task queries and reconstructed indexes.
package collector

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/imattdu/xtrace/errorx"
	"github.com/imattdu/xtrace/logx"
	"github.com/imattdu/xtrace/reportx"
	"github.com/imattdu/xtrace/store"
)

// source names, used as metric labels and log fields
const (
	SourceUDP    = "udp"
	SourceTCP    = "tcp"
	SourceHTTP   = "http"
	SourcePubSub = "pubsub"
)

// rejection reasons
const (
	reasonMalformed   = "malformed"
	reasonRateLimited = "rate_limited"
	reasonStore       = "store"
)

// Store is what the collector needs from the report store.
type Store interface {
	Add(ctx context.Context, r *reportx.Report) error
	Reports(ctx context.Context, taskID string) (map[string]*reportx.Report, error)
	ReportsByTask(ctx context.Context, taskID string) ([]*reportx.Report, error)
	Task(ctx context.Context, taskID string) (*store.Task, error)
	Tasks(ctx context.Context, f store.TaskFilter, offset, limit int) ([]*store.Task, error)
	CountTasks(ctx context.Context, f store.TaskFilter) (int, error)
}

var _ Store = (*store.SQLiteStore)(nil)

// Pipeline is the single path from a source to the store.
type Pipeline struct {
	store   Store
	metrics *Metrics
	logger  logx.Logger
	limiter *rate.Limiter
}

// NewPipeline builds a pipeline admitting rps reports per second with the
// given burst. rps <= 0 admits everything.
func NewPipeline(s Store, m *Metrics, logger logx.Logger, rps float64, burst int) *Pipeline {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Pipeline{
		store:   s,
		metrics: m,
		logger:  logx.OrDefault(logger),
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Ingest parses and stores one report, rejecting it when over the rate.
func (p *Pipeline) Ingest(ctx context.Context, source, raw string) error {
	p.metrics.ReportsReceived.WithLabelValues(source).Inc()
	if !p.limiter.Allow() {
		p.metrics.ReportsRejected.WithLabelValues(source, reasonRateLimited).Inc()
		return errorx.NewBiz(errorx.ErrRateLimited, errorx.WithService(errorx.ServiceCollector))
	}
	r, err := reportx.Parse(raw)
	if err != nil {
		p.reject(ctx, source, reasonMalformed, err)
		return err
	}
	return p.save(ctx, source, r)
}

// IngestWait is Ingest for stream sources: it waits for limiter tokens instead
// of rejecting, which backs pressure up to the sender.
func (p *Pipeline) IngestWait(ctx context.Context, source, raw string) error {
	p.metrics.ReportsReceived.WithLabelValues(source).Inc()
	if err := p.limiter.Wait(ctx); err != nil {
		p.metrics.ReportsRejected.WithLabelValues(source, reasonRateLimited).Inc()
		return errorx.Wrap(err, errorx.ErrRateLimited, errorx.WithService(errorx.ServiceCollector))
	}
	r, err := reportx.Parse(raw)
	if err != nil {
		p.reject(ctx, source, reasonMalformed, err)
		return err
	}
	return p.save(ctx, source, r)
}

// Add stores an already parsed report, subject to the rate limit.
func (p *Pipeline) Add(ctx context.Context, source string, r *reportx.Report) error {
	p.metrics.ReportsReceived.WithLabelValues(source).Inc()
	if !p.limiter.Allow() {
		p.metrics.ReportsRejected.WithLabelValues(source, reasonRateLimited).Inc()
		return errorx.NewBiz(errorx.ErrRateLimited, errorx.WithService(errorx.ServiceCollector))
	}
	return p.save(ctx, source, r)
}

// Malformed counts a record a source could not frame or parse.
func (p *Pipeline) Malformed(ctx context.Context, source string, err error) {
	p.metrics.ReportsReceived.WithLabelValues(source).Inc()
	p.reject(ctx, source, reasonMalformed, err)
}

func (p *Pipeline) save(ctx context.Context, source string, r *reportx.Report) error {
	start := time.Now()
	err := p.store.Add(ctx, r)
	p.metrics.StoreDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		reason := reasonStore
		if errorx.IsCode(err, errorx.ErrMalformedReport) {
			reason = reasonMalformed
		}
		p.reject(ctx, source, reason, err)
		return err
	}
	p.metrics.ReportsStored.WithLabelValues(source).Inc()
	p.logger.Debug(ctx, logx.TagStoreSuccess, "report stored",
		logx.Source, source, logx.TaskID, r.TaskID(), logx.OpID, r.OpID())
	return nil
}

func (p *Pipeline) reject(ctx context.Context, source, reason string, err error) {
	p.metrics.ReportsRejected.WithLabelValues(source, reason).Inc()
	tag := logx.TagReportDrop
	if reason == reasonStore {
		tag = logx.TagStoreFailure
	}
	p.logger.Warn(ctx, tag, err, logx.Source, source, "reason", reason)
}
