package collector

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/imattdu/xtrace/errorx"
	"github.com/imattdu/xtrace/logx"
	"github.com/imattdu/xtrace/reporter"
)

// maxDatagram is the largest UDP payload accepted.
const maxDatagram = 64 << 10

// ServeUDP reads one report per datagram until ctx is done or conn fails.
// Reports over the rate are dropped.
func (p *Pipeline) ServeUDP(ctx context.Context, conn net.PacketConn) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	p.logger.Info(ctx, logx.TagServer, "udp source listening", logx.Addr, conn.LocalAddr().String())
	buf := make([]byte, maxDatagram)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errorx.Wrap(err, errorx.ErrSource, errorx.WithService(errorx.ServiceCollector))
		}
		_ = p.Ingest(ctx, SourceUDP, string(buf[:n]))
	}
}

// ServeTCP accepts connections carrying length-prefixed reports until ctx
// is done or ln fails. Every connection is served on its own goroutine.
func (p *Pipeline) ServeTCP(ctx context.Context, ln net.Listener) error {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		conns = make(map[net.Conn]struct{})
	)
	stop := context.AfterFunc(ctx, func() {
		ln.Close()
		mu.Lock()
		for c := range conns {
			c.Close()
		}
		mu.Unlock()
	})
	defer func() {
		stop()
		wg.Wait()
	}()

	p.logger.Info(ctx, logx.TagServer, "tcp source listening", logx.Addr, ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errorx.Wrap(err, errorx.ErrSource, errorx.WithService(errorx.ServiceCollector))
		}
		mu.Lock()
		conns[conn] = struct{}{}
		mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				mu.Lock()
				delete(conns, conn)
				mu.Unlock()
				conn.Close()
			}()
			p.serveConn(ctx, conn)
		}()
	}
}

func (p *Pipeline) serveConn(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	for {
		report, err := reporter.ReadFrame(conn)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			// framing is lost after a bad length
			p.Malformed(ctx, SourceTCP, errorx.Wrap(err, errorx.ErrSource, errorx.WithField(logx.Remote, remote)))
			return
		}
		if err := p.IngestWait(ctx, SourceTCP, report); err != nil && ctx.Err() != nil {
			return
		}
	}
}

// ServePubSub consumes reports published on topic until ctx is done or the
// subscription closes. Stored and malformed messages are acked; a store
// failure nacks for redelivery.
func (p *Pipeline) ServePubSub(ctx context.Context, sub message.Subscriber, topic string) error {
	if topic == "" {
		topic = reporter.DefaultTopic
	}
	msgs, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return errorx.Wrap(err, errorx.ErrSource,
			errorx.WithService(errorx.ServiceCollector), errorx.WithField("topic", topic))
	}
	p.logger.Info(ctx, logx.TagServer, "pubsub source subscribed", "topic", topic)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			err := p.IngestWait(ctx, SourcePubSub, string(msg.Payload))
			if err != nil && !errorx.IsCode(err, errorx.ErrMalformedReport) {
				msg.Nack()
				continue
			}
			msg.Ack()
		}
	}
}
