// Command demo runs a traced client/server exchange in one process and
// prints the reconstructed index of the task. Reports also go to the
// configured reporter, so a running collector stores them too.
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imattdu/xtrace/config"
	"github.com/imattdu/xtrace/errorx"
	"github.com/imattdu/xtrace/graphx"
	"github.com/imattdu/xtrace/httpclient"
	"github.com/imattdu/xtrace/logx"
	"github.com/imattdu/xtrace/middleware"
	"github.com/imattdu/xtrace/reporter"
	"github.com/imattdu/xtrace/tracex"
)

var errOutOfStock = errorx.CodeEntry{Code: 2001, Message: "out of stock"}

var shelf = map[string]int{"apple": 3, "pear": 5}

type stock struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

func main() {
	if err := demo(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func demo() error {
	cfg := config.LoadOrDefault()
	if err := logx.Init(cfg.LogOptions()); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	defer logx.Close()

	rep, err := reporter.Build(cfg.ReporterOptions(logx.L()))
	if err != nil {
		// nothing listening is fine, the local index still prints
		fmt.Fprintln(os.Stderr, err)
		rep = reporter.NullReporter{}
	}
	defer rep.Close()

	return run(context.Background(), os.Stdout, rep, cfg.TracerOptions(nil)...)
}

// run traces one checkout against an in-process inventory service and
// writes the task id and its index to w.
func run(ctx context.Context, w io.Writer, forward tracex.Sink, opts ...tracex.Option) error {
	local := reporter.NewMemory()
	sink := tracex.SinkFunc(func(ctx context.Context, report string) {
		local.Send(ctx, report)
		forward.Send(ctx, report)
	})
	tracex.SetDefault(tracex.New(append(opts, tracex.WithSink(sink))...))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: inventory(), ReadHeaderTimeout: time.Second}
	go srv.Serve(ln)
	defer srv.Close()

	cli, err := httpclient.New(
		httpclient.WithBaseURL("http://"+ln.Addr().String()),
		httpclient.WithDefaultTimeout(2*time.Second),
		httpclient.WithTracing("demo-client"),
	)
	if err != nil {
		return err
	}

	ctx = tracex.StartTrace(ctx, "demo-client", "demo checkout", "demo")
	checkout := tracex.StartProcess(ctx, "demo-client", "checkout")
	for _, item := range []string{"apple", "pear"} {
		var s stock
		resp, err := cli.GetJSON(ctx, "/stock/"+item, &s)
		if err != nil {
			tracex.FailProcess(ctx, checkout, err)
			return err
		}
		tracex.LogEvent(ctx, "demo-client", "got stock", "Item", s.Item, "Status", resp.StatusCode)
	}
	tracex.EndProcess(ctx, checkout)

	fmt.Fprintf(w, "task %s\n", tracex.TaskIDFromContext(ctx))
	for _, line := range graphx.FromReports(local.Reports()).Index().Lines() {
		fmt.Fprintln(w, line)
	}
	return nil
}

func inventory() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Trace("inventory"), middleware.Access(logx.L()))
	r.GET("/stock/:item", func(c *gin.Context) {
		ctx := c.Request.Context()
		p := tracex.StartProcess(ctx, "inventory", "lookup")
		time.Sleep(5 * time.Millisecond)
		item := c.Param("item")
		count, ok := shelf[item]
		if !ok {
			err := errorx.NewBiz(errOutOfStock, errorx.WithField("item", item))
			tracex.FailProcess(ctx, p, err)
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		tracex.EndProcess(ctx, p)
		c.JSON(http.StatusOK, stock{Item: item, Count: count})
	})
	return r
}
