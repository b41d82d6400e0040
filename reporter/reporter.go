// Package reporter delivers serialized X-Trace reports to a collector.
// Every reporter is a tracex.Sink: Send never blocks for long and never
// returns an error; failures and overflow are logged and counted.
package reporter

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/imattdu/xtrace/logx"
	"github.com/imattdu/xtrace/tracex"
)

const (
	DefaultQueueSize = 10000
	DefaultTopic     = "xtrace.reports"
)

// Reporter is a Sink that owns a connection or a file.
type Reporter interface {
	tracex.Sink
	io.Closer
}

// Config carries the settings of every reporter kind; each reads its own
// fields.
type Config struct {
	Name string

	UDPAddr  string
	TCPAddr  string
	HTTPURL  string
	FilePath string

	// pubsub reporter
	Publisher message.Publisher
	Topic     string

	QueueSize int
	Logger    logx.Logger
}

func (c Config) queueSize() int {
	if c.QueueSize <= 0 {
		return DefaultQueueSize
	}
	return c.QueueSize
}

func (c Config) topic() string {
	if c.Topic == "" {
		return DefaultTopic
	}
	return c.Topic
}

// Stats counts what happened to reports handed to a reporter.
type Stats struct {
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}

type counters struct {
	sent, dropped, failed atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{Sent: c.sent.Load(), Dropped: c.dropped.Load(), Failed: c.failed.Load()}
}

// -------------------- async delivery --------------------

// writeFunc delivers one report; it runs on the queue goroutine only.
type writeFunc func(ctx context.Context, report string) error

// queue decouples Send from a slow transport. A full queue drops the
// report rather than block the traced program.
type queue struct {
	name    string
	logger  logx.Logger
	write   writeFunc
	entries chan string
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
	counters
}

func newQueue(name string, size int, logger logx.Logger, write writeFunc) *queue {
	q := &queue{
		name:    name,
		logger:  logx.OrDefault(logger),
		write:   write,
		entries: make(chan string, size),
		done:    make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *queue) Send(ctx context.Context, report string) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.dropped.Add(1)
		return
	}
	select {
	case q.entries <- report:
	default:
		q.dropped.Add(1)
		q.logger.Warn(ctx, logx.TagReportDrop, "report queue full", logx.Reporter, q.name)
	}
}

func (q *queue) loop() {
	defer close(q.done)
	ctx := context.Background()
	for r := range q.entries {
		if err := q.write(ctx, r); err != nil {
			q.failed.Add(1)
			q.logger.Warn(ctx, logx.TagSinkFailure, err, logx.Reporter, q.name)
			continue
		}
		q.sent.Add(1)
	}
}

// close stops intake and waits for queued reports to be written.
func (q *queue) close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.entries)
	}
	q.mu.Unlock()
	<-q.done
}

func (q *queue) Stats() Stats { return q.snapshot() }
