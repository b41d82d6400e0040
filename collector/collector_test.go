package collector

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imattdu/xtrace/jsonx"
	"github.com/imattdu/xtrace/logx"
	"github.com/imattdu/xtrace/metax"
	"github.com/imattdu/xtrace/reporter"
	"github.com/imattdu/xtrace/reportx"
	"github.com/imattdu/xtrace/store"
	"github.com/imattdu/xtrace/tracex"
)

func newTestServer(t *testing.T, opts Options) (*Server, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	opts.Logger = logx.Nop()
	return New(s, opts), s
}

// traceTask runs a traced request with one timed section and returns the
// wire form of every report plus the task id.
func traceTask(t *testing.T) ([]string, string) {
	t.Helper()
	sink := reporter.NewMemory()
	tr := tracex.New(tracex.WithSink(sink), tracex.WithHost("test"))
	ctx := tr.StartTrace(context.Background(), "client", "GET /cart", "web")
	p := tr.StartProcess(ctx, "client", "render")
	tr.LogEvent(ctx, "client", "working")
	tr.EndProcess(ctx, p)
	md, ok := tracex.GetContext(ctx)
	require.True(t, ok)
	return sink.Texts(), md.TaskID().String()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHTTPIngestAndQueries(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Handler()
	texts, taskID := traceTask(t)
	require.Len(t, texts, 4)

	body := strings.Join(texts, "\n") + "\nnot a report\n"
	w := do(t, h, http.MethodPost, "/reports", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res IngestResult
	require.NoError(t, jsonx.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, IngestResult{Accepted: 4, Skipped: 1}, res)
	assert.Equal(t, 4.0, testutil.ToFloat64(srv.Metrics().ReportsStored.WithLabelValues(SourceHTTP)))

	w = do(t, h, http.MethodGet, "/tasks", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list TaskList
	require.NoError(t, jsonx.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Tasks, 1)
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, taskID, list.Tasks[0].ID)
	assert.Equal(t, "GET /cart", list.Tasks[0].Title)
	assert.Equal(t, []string{"web"}, list.Tasks[0].Tags)

	w = do(t, h, http.MethodGet, "/tasks?tag=web", "")
	require.NoError(t, jsonx.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Tasks, 1)
	w = do(t, h, http.MethodGet, "/tasks?q=cart", "")
	require.NoError(t, jsonx.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Tasks, 1)
	w = do(t, h, http.MethodGet, "/tasks?tag=batch", "")
	require.NoError(t, jsonx.Unmarshal(w.Body.Bytes(), &list))
	assert.Empty(t, list.Tasks)
	assert.Equal(t, 0, list.Total)

	w = do(t, h, http.MethodGet, "/tasks/"+strings.ToLower(taskID), "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/tasks/"+taskID+"/reports", "")
	require.Equal(t, http.StatusOK, w.Code)
	got, err := reportx.ParseStream(w.Body)
	require.NoError(t, err)
	assert.Len(t, got, 4)

	w = do(t, h, http.MethodGet, "/tasks/"+taskID+"/reports?order=causal", "")
	require.Equal(t, http.StatusOK, w.Code)
	causal, err := reportx.ParseStream(w.Body)
	require.NoError(t, err)
	require.Len(t, causal, 4)
	stored := map[string]bool{}
	for _, r := range causal {
		stored[r.OpID()] = true
	}
	seen := map[string]bool{}
	for _, r := range causal {
		for _, edge := range r.Get(reportx.KeyEdge) {
			if stored[edge] {
				assert.True(t, seen[edge], "%s printed before its parent %s", r.OpID(), edge)
			}
		}
		seen[r.OpID()] = true
	}
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/tasks/"+taskID+"/reports?order=random", "").Code)

	w = do(t, h, http.MethodGet, "/tasks/"+taskID+"/index", "")
	require.Equal(t, http.StatusOK, w.Code)
	var ix TaskIndex
	require.NoError(t, jsonx.Unmarshal(w.Body.Bytes(), &ix))
	assert.Equal(t, 4, ix.Reports)
	require.Contains(t, ix.Index, "render")
	assert.Len(t, ix.Index["render"], 1)
	require.Len(t, ix.Lines, 1)
	assert.True(t, strings.HasPrefix(ix.Lines[0], "render "))
}

func TestQueryErrors(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Handler()

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/tasks/0102030405060708", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/tasks/0102030405060708/index", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/tasks/0102030405060708/reports", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/tasks?since=yesterday", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/tasks?since=2020-01-01T00:00:00Z", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
}

func TestIngestLargeBodyStreams(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	texts, taskID := traceTask(t)

	// well past what the access log keeps of a body
	var b strings.Builder
	for b.Len() < 5*4096 {
		b.WriteString(strings.Join(texts, "\n"))
		b.WriteString("\n")
	}
	n := strings.Count(b.String(), "X-Trace Report")

	w := do(t, srv.Handler(), http.MethodPost, "/reports", b.String())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res IngestResult
	require.NoError(t, jsonx.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, n, res.Accepted)

	w = do(t, srv.Handler(), http.MethodGet, "/tasks/"+taskID, "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestIngestBodyOverCap(t *testing.T) {
	texts, _ := traceTask(t)
	first := texts[0] + "\n"
	srv, _ := newTestServer(t, Options{MaxIngestBytes: int64(len(first) + 8)})

	w := do(t, srv.Handler(), http.MethodPost, "/reports", strings.Join(texts, "\n"))
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())
	var res IngestResult
	require.NoError(t, jsonx.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Accepted)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	texts, _ := traceTask(t)
	require.Equal(t, http.StatusOK, do(t, srv.Handler(), http.MethodPost, "/reports", texts[0]).Code)

	w := do(t, srv.Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `xtrace_reports_stored_total{source="http"} 1`)
}

func TestRateLimitedIngest(t *testing.T) {
	srv, _ := newTestServer(t, Options{IngestRPS: 0.001, IngestBurst: 2})
	texts, _ := traceTask(t)

	w := do(t, srv.Handler(), http.MethodPost, "/reports", strings.Join(texts, "\n"))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	var res IngestResult
	require.NoError(t, jsonx.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 2, res.Accepted)
	assert.Equal(t, 1, res.Rejected)
	assert.Equal(t, 1.0, testutil.ToFloat64(
		srv.Metrics().ReportsRejected.WithLabelValues(SourceHTTP, reasonRateLimited)))
}

func TestTracedQueryGetsResponseHeader(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	tid, err := metax.NewTaskID(8)
	require.NoError(t, err)
	md := metax.New(tid, []byte{0, 0, 0, 0, 0, 0, 0, 1})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(tracex.HeaderXTrace, md.String())
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	back := metax.Parse(w.Header().Get(tracex.HeaderXTrace))
	require.True(t, back.Valid())
	assert.True(t, back.TaskID().Equal(tid))
	assert.NotEqual(t, md.OpIDString(), back.OpIDString())
}

func waitForReports(t *testing.T, s *store.SQLiteStore, taskID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		got, err := s.NumReports(context.Background(), taskID)
		return err == nil && got == n
	}, 3*time.Second, 10*time.Millisecond)
}

func TestUDPSource(t *testing.T) {
	srv, s := newTestServer(t, Options{})
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Pipeline().ServeUDP(ctx, conn) }()

	rep, err := reporter.NewUDP(reporter.Config{UDPAddr: conn.LocalAddr().String(), Logger: logx.Nop()})
	require.NoError(t, err)
	texts, taskID := traceTask(t)
	for _, txt := range texts {
		rep.Send(context.Background(), txt)
	}
	require.NoError(t, rep.Close())

	waitForReports(t, s, taskID, len(texts))
	cancel()
	assert.NoError(t, <-done)
}

func TestTCPSource(t *testing.T) {
	srv, s := newTestServer(t, Options{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Pipeline().ServeTCP(ctx, ln) }()

	rep, err := reporter.NewTCP(reporter.Config{TCPAddr: ln.Addr().String(), Logger: logx.Nop()})
	require.NoError(t, err)
	texts, taskID := traceTask(t)
	for _, txt := range texts {
		rep.Send(context.Background(), txt)
	}
	require.NoError(t, rep.Close())

	waitForReports(t, s, taskID, len(texts))
	cancel()
	assert.NoError(t, <-done)
}

func TestTCPSourceDropsBadFrame(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Pipeline().ServeTCP(ctx, ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte{0xff, 0xff, 0xff, 0xff})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(srv.Metrics().ReportsRejected.WithLabelValues(SourceTCP, reasonMalformed)) == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestPubSubSource(t *testing.T) {
	srv, s := newTestServer(t, Options{})
	ps := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer ps.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Pipeline().ServePubSub(ctx, ps, "") }()

	// gochannel drops messages published before a subscriber exists
	time.Sleep(100 * time.Millisecond)

	rep, err := reporter.NewPubSub(reporter.Config{Publisher: ps, Logger: logx.Nop()})
	require.NoError(t, err)
	texts, taskID := traceTask(t)
	for _, txt := range texts {
		rep.Send(context.Background(), txt)
	}
	rep.Send(context.Background(), "garbage")
	require.NoError(t, rep.Close())

	waitForReports(t, s, taskID, len(texts))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(srv.Metrics().ReportsRejected.WithLabelValues(SourcePubSub, reasonMalformed)) == 1
	}, 3*time.Second, 10*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestRunStopsOnCancel(t *testing.T) {
	srv, _ := newTestServer(t, Options{
		HTTPAddr: "127.0.0.1:0",
		UDPAddr:  "127.0.0.1:0",
		TCPAddr:  "127.0.0.1:0",
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("collector did not stop")
	}
}
