package reporter

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/oklog/ulid/v2"

	"github.com/imattdu/xtrace/errorx"
	"github.com/imattdu/xtrace/metax"
	"github.com/imattdu/xtrace/reportx"
)

// Message metadata keys set on every published report.
const (
	MetaTaskID = "xtrace_task_id"
	MetaOpID   = "xtrace_op_id"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// newMessageID returns a time-sortable ULID.
func newMessageID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// PubSubReporter publishes each report as a watermill message on one topic.
type PubSubReporter struct {
	*queue
	pub   message.Publisher
	topic string
}

func NewPubSub(cfg Config) (*PubSubReporter, error) {
	if cfg.Publisher == nil {
		return nil, errorx.New(errorx.ErrConfig, errorx.WithMessage("pubsub reporter needs a publisher"))
	}
	r := &PubSubReporter{pub: cfg.Publisher, topic: cfg.topic()}
	r.queue = newQueue("pubsub", cfg.queueSize(), cfg.Logger, func(_ context.Context, report string) error {
		return r.pub.Publish(r.topic, NewMessage(report))
	})
	return r, nil
}

// NewMessage wraps a report in a message, tagging it with the task and op
// id when the report carries metadata.
func NewMessage(report string) *message.Message {
	msg := message.NewMessage(newMessageID(), []byte(report))
	if r, err := reportx.Parse(report); err == nil {
		if s, ok := r.First(reportx.KeyXTrace); ok {
			if md := metax.Parse(s); md.Valid() {
				msg.Metadata.Set(MetaTaskID, md.TaskID().String())
				msg.Metadata.Set(MetaOpID, md.OpIDString())
			}
		}
	}
	return msg
}

// Close flushes the queue. The publisher belongs to the caller.
func (r *PubSubReporter) Close() error {
	r.queue.close()
	return nil
}
