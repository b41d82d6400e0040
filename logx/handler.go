package logx

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/imattdu/xtrace/jsonx"
)

const defaultQueueSize = 10000

// fileHandler queues records and writes them as JSON lines from a single
// goroutine, which also owns the open file and its rotation.
type fileHandler struct {
	cfg     Config
	console io.Writer

	mu     sync.RWMutex // closed vs in-flight Handle
	closed bool
	queue  chan slog.Record

	once     sync.Once
	drained  chan struct{}
	closeErr error

	// write goroutine only
	out     *os.File
	written int64
	period  time.Time
}

func newHandler(cfg Config) (*fileHandler, error) {
	if cfg.AppName == "" {
		cfg.AppName = "app"
	}
	if cfg.LogDir == "" {
		cfg.LogDir = "."
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return nil, err
	}

	h := &fileHandler{
		cfg:     cfg,
		console: os.Stdout,
		queue:   make(chan slog.Record, cfg.QueueSize),
		drained: make(chan struct{}),
	}
	if err := h.reopen(time.Now()); err != nil {
		return nil, err
	}
	go h.run()
	return h, nil
}

func (h *fileHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.Level
}

// Handle never blocks the caller: a full queue or a closed handler drops r.
func (h *fileHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil
	}
	select {
	case h.queue <- r.Clone():
	default:
		log.Println("logx: queue full, record dropped")
	}
	return nil
}

// Attrs and groups are folded in by encodeLog before Handle.
func (h *fileHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *fileHandler) WithGroup(string) slog.Handler      { return h }

// Close stops intake, waits until every queued record is on disk and
// closes the file. Later calls return the first result.
func (h *fileHandler) Close() error {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.queue)
		h.mu.Unlock()
	})
	<-h.drained
	return h.closeErr
}

func (h *fileHandler) run() {
	defer close(h.drained)
	for r := range h.queue {
		if err := h.write(r); err != nil {
			log.Println("logx: write failed:", err)
		}
	}
	if h.out == nil {
		return
	}
	if err := h.out.Sync(); err != nil {
		h.closeErr = err
	}
	if err := h.out.Close(); err != nil && h.closeErr == nil {
		h.closeErr = err
	}
	h.out = nil
}

func (h *fileHandler) write(r slog.Record) error {
	if h.due(r.Time) {
		if err := h.reopen(r.Time); err != nil {
			return err
		}
	}

	fields := make(map[string]any, r.NumAttrs()+2)
	fields["ts"] = r.Time.Format(time.RFC3339Nano)
	fields["level"] = r.Level.String()
	r.Attrs(func(a slog.Attr) bool {
		fields[a.Key] = a.Value.Any()
		return true
	})
	b, err := jsonx.Marshal(fields)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	n, err := h.out.Write(b)
	h.written += int64(n)
	if err != nil {
		return err
	}
	if h.cfg.ConsoleEnabled {
		if h.cfg.ConsoleColored {
			_, _ = io.WriteString(h.console, levelPrefix(r.Level))
		}
		_, _ = h.console.Write(b)
	}
	return nil
}

// due reports whether the next record at t belongs in a new file.
func (h *fileHandler) due(t time.Time) bool {
	if h.out == nil {
		return true
	}
	if h.cfg.Rotate == RotateSize {
		return h.cfg.MaxFileSizeMB > 0 && h.written >= int64(h.cfg.MaxFileSizeMB)<<20
	}
	return !t.Truncate(time.Hour).Equal(h.period)
}

func (h *fileHandler) reopen(t time.Time) error {
	stamp := t.Format("2006010215")
	if h.cfg.Rotate == RotateSize {
		stamp = t.Format("20060102150405")
	}
	name := fmt.Sprintf("%s-%s.log", h.cfg.AppName, stamp)

	f, err := os.OpenFile(filepath.Join(h.cfg.LogDir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if h.out != nil {
		_ = h.out.Close()
	}
	h.out = f
	h.written = 0
	if info, err := f.Stat(); err == nil {
		h.written = info.Size()
	}
	h.period = t.Truncate(time.Hour)

	// {AppName}.log follows the live file
	link := filepath.Join(h.cfg.LogDir, h.cfg.AppName+".log")
	_ = os.Remove(link)
	_ = os.Symlink(name, link)

	if h.cfg.MaxBackups > 0 {
		h.prune()
	}
	return nil
}

// prune removes all but the newest MaxBackups rotated files.
func (h *fileHandler) prune() {
	entries, err := os.ReadDir(h.cfg.LogDir)
	if err != nil {
		log.Println("logx: prune:", err)
		return
	}
	type rotated struct {
		path string
		mod  time.Time
	}
	var files []rotated
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, h.cfg.AppName+"-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, rotated{path: filepath.Join(h.cfg.LogDir, name), mod: info.ModTime()})
	}
	if len(files) <= h.cfg.MaxBackups {
		return
	}
	slices.SortFunc(files, func(a, b rotated) int { return b.mod.Compare(a.mod) })
	for _, f := range files[h.cfg.MaxBackups:] {
		_ = os.Remove(f.path)
	}
}

func levelPrefix(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "\033[31m[ERROR]\033[0m "
	case l >= slog.LevelWarn:
		return "\033[33m[WARN ]\033[0m "
	case l >= slog.LevelInfo:
		return "\033[32m[INFO ]\033[0m "
	default:
		return "\033[36m[DEBUG]\033[0m "
	}
}
