package reporter

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/imattdu/xtrace/errorx"
	"github.com/imattdu/xtrace/logx"
)

// FileReporter appends reports to a file as a blank-line separated stream,
// the same form the collector's HTTP ingest and the index command read.
type FileReporter struct {
	*queue

	mu sync.Mutex
	f  *os.File
}

func NewFile(cfg Config) (*FileReporter, error) {
	if dir := filepath.Dir(cfg.FilePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errorx.Wrap(err, errorx.ErrSink, errorx.WithService(errorx.ServiceReporter))
		}
	}
	f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.ErrSink,
			errorx.WithService(errorx.ServiceReporter), errorx.WithField(logx.Path, cfg.FilePath))
	}
	r := &FileReporter{f: f}
	r.queue = newQueue("file", cfg.queueSize(), cfg.Logger, func(_ context.Context, report string) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, err := r.f.WriteString(report + "\n"); err != nil {
			return errorx.Wrap(err, errorx.ErrSink, errorx.WithService(errorx.ServiceReporter))
		}
		return nil
	})
	return r, nil
}

func (r *FileReporter) Close() error {
	r.queue.close()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}
