package collector

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/imattdu/xtrace/errorx"
	"github.com/imattdu/xtrace/logx"
	"github.com/imattdu/xtrace/middleware"
)

const shutdownTimeout = 5 * time.Second

// Options configures the listeners of a Server. Empty addresses and a nil
// subscriber disable the matching source.
type Options struct {
	HTTPAddr string
	UDPAddr  string
	TCPAddr  string

	Subscriber message.Subscriber
	Topic      string

	IngestRPS   float64
	IngestBurst int
	// MaxIngestBytes caps one POST /reports body; 0 means DefaultMaxIngestBytes.
	MaxIngestBytes int64

	// Agent names the collector in its own X-Trace events.
	Agent  string
	Logger logx.Logger
}

// Server ties the sources, the store and the query API together.
type Server struct {
	opts     Options
	store    Store
	pipeline *Pipeline
	metrics  *Metrics
	logger   logx.Logger
	router   *gin.Engine
}

// DefaultMaxIngestBytes is the POST /reports body cap unless set.
const DefaultMaxIngestBytes = 32 << 20

func New(s Store, opts Options) *Server {
	if opts.Agent == "" {
		opts.Agent = "xtrace-collector"
	}
	if opts.MaxIngestBytes <= 0 {
		opts.MaxIngestBytes = DefaultMaxIngestBytes
	}
	logger := logx.OrDefault(opts.Logger)
	metrics := NewMetrics()
	srv := &Server{
		opts:     opts,
		store:    s,
		pipeline: NewPipeline(s, metrics, logger, opts.IngestRPS, opts.IngestBurst),
		metrics:  metrics,
		logger:   logger,
	}
	srv.router = srv.routes()
	return srv
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Trace(s.opts.Agent))
	router.Use(middleware.Access(s.logger))

	router.GET("/healthz", s.health)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	router.POST("/reports", s.postReports)
	router.GET("/tasks", s.listTasks)
	router.GET("/tasks/:id", s.getTask)
	router.GET("/tasks/:id/reports", s.getReports)
	router.GET("/tasks/:id/index", s.getIndex)
	return router
}

// Handler is the HTTP API, for embedding and tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Pipeline() *Pipeline { return s.pipeline }

func (s *Server) Metrics() *Metrics { return s.metrics }

// Run serves every configured source until ctx is done or one of them
// fails.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	abort := func(err error) error {
		cancel()
		_ = g.Wait()
		return err
	}

	if s.opts.UDPAddr != "" {
		conn, err := net.ListenPacket("udp", s.opts.UDPAddr)
		if err != nil {
			return abort(listenErr(err, s.opts.UDPAddr))
		}
		g.Go(func() error { return s.pipeline.ServeUDP(ctx, conn) })
	}
	if s.opts.TCPAddr != "" {
		ln, err := net.Listen("tcp", s.opts.TCPAddr)
		if err != nil {
			return abort(listenErr(err, s.opts.TCPAddr))
		}
		g.Go(func() error { return s.pipeline.ServeTCP(ctx, ln) })
	}
	if s.opts.Subscriber != nil {
		g.Go(func() error { return s.pipeline.ServePubSub(ctx, s.opts.Subscriber, s.opts.Topic) })
	}
	if s.opts.HTTPAddr != "" {
		ln, err := net.Listen("tcp", s.opts.HTTPAddr)
		if err != nil {
			return abort(listenErr(err, s.opts.HTTPAddr))
		}
		hs := &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			s.logger.Info(ctx, logx.TagServer, "http api listening", logx.Addr, ln.Addr().String())
			if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errorx.Wrap(err, errorx.ErrSource, errorx.WithService(errorx.ServiceCollector))
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return hs.Shutdown(sctx)
		})
	}

	err := g.Wait()
	s.logger.Info(context.Background(), logx.TagServer, "collector stopped")
	return err
}

func listenErr(err error, addr string) error {
	return errorx.Wrap(err, errorx.ErrSource,
		errorx.WithService(errorx.ServiceCollector), errorx.WithField(logx.Addr, addr))
}
