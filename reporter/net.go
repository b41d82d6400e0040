package reporter

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/imattdu/xtrace/errorx"
	"github.com/imattdu/xtrace/logx"
)

const dialTimeout = 3 * time.Second

// -------------------- UDP --------------------

// UDPReporter sends one report per datagram.
type UDPReporter struct {
	*queue
	conn net.Conn
}

func NewUDP(cfg Config) (*UDPReporter, error) {
	conn, err := net.DialTimeout("udp", cfg.UDPAddr, dialTimeout)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.ErrSink,
			errorx.WithService(errorx.ServiceReporter), errorx.WithField(logx.Addr, cfg.UDPAddr))
	}
	r := &UDPReporter{conn: conn}
	r.queue = newQueue("udp", cfg.queueSize(), cfg.Logger, func(_ context.Context, report string) error {
		if _, err := conn.Write([]byte(report)); err != nil {
			return errorx.Wrap(err, errorx.ErrSink, errorx.WithService(errorx.ServiceReporter))
		}
		return nil
	})
	return r, nil
}

func (r *UDPReporter) Close() error {
	r.queue.close()
	return r.conn.Close()
}

// -------------------- TCP --------------------

// TCPReporter writes length-prefixed frames over one connection, redialing
// after a write failure.
type TCPReporter struct {
	*queue
	addr string

	mu   sync.Mutex
	conn net.Conn
}

func NewTCP(cfg Config) (*TCPReporter, error) {
	if cfg.TCPAddr == "" {
		return nil, errorx.New(errorx.ErrConfig, errorx.WithMessage("tcp reporter needs an address"))
	}
	r := &TCPReporter{addr: cfg.TCPAddr}
	r.queue = newQueue("tcp", cfg.queueSize(), cfg.Logger, r.write)
	return r, nil
}

func (r *TCPReporter) write(ctx context.Context, report string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		d := net.Dialer{Timeout: dialTimeout}
		conn, err := d.DialContext(ctx, "tcp", r.addr)
		if err != nil {
			return errorx.Wrap(err, errorx.ErrSink,
				errorx.WithService(errorx.ServiceReporter), errorx.WithField(logx.Addr, r.addr))
		}
		r.conn = conn
	}
	if err := WriteFrame(r.conn, report); err != nil {
		_ = r.conn.Close()
		r.conn = nil
		return err
	}
	return nil
}

func (r *TCPReporter) Close() error {
	r.queue.close()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}
