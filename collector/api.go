package collector

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imattdu/xtrace/errorx"
	"github.com/imattdu/xtrace/graphx"
	"github.com/imattdu/xtrace/logx"
	"github.com/imattdu/xtrace/reportx"
	"github.com/imattdu/xtrace/store"
)

// IngestResult is the answer to POST /reports.
type IngestResult struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
	Skipped  int `json:"skipped"`
}

// TaskList is the answer to GET /tasks.
type TaskList struct {
	Tasks []*store.Task `json:"tasks"`
	Total int           `json:"total"`
}

// TaskIndex is the answer to GET /tasks/:id/index.
type TaskIndex struct {
	TaskID  string             `json:"task_id"`
	Reports int                `json:"reports"`
	Index   map[string][]int64 `json:"index"`
	Lines   []string           `json:"lines"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// postReports stores a blank-line separated stream of reports. Ingest stops
// at the first report over the rate limit, and at the body size cap with
// the reports before it kept.
func (s *Server) postReports(c *gin.Context) {
	ctx := c.Request.Context()
	var res IngestResult

	body := http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxIngestBytes)
	sc := reportx.NewScanner(body)
	for sc.Scan() {
		err := s.pipeline.Add(ctx, SourceHTTP, sc.Report())
		if err == nil {
			res.Accepted++
			continue
		}
		res.Rejected++
		if errorx.IsCode(err, errorx.ErrRateLimited) {
			res.Skipped = sc.Skipped()
			c.Header("Retry-After", "1")
			c.JSON(http.StatusTooManyRequests, res)
			return
		}
	}
	res.Skipped = sc.Skipped()
	for range res.Skipped {
		s.pipeline.Malformed(ctx, SourceHTTP, errorx.New(errorx.ErrMalformedReport))
	}
	if err := sc.Err(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.logger.Warn(ctx, logx.TagReportIn, "report body over the size cap",
				"limit", tooLarge.Limit, logx.Count, res.Accepted)
			c.JSON(http.StatusRequestEntityTooLarge, res)
			return
		}
		s.fail(c, err)
		return
	}
	s.logger.Info(ctx, logx.TagReportIn, "reports posted",
		logx.Count, res.Accepted, "rejected", res.Rejected, "skipped", res.Skipped)
	c.JSON(http.StatusOK, res)
}

// listTasks filters by tag, exact title, title substring (q) or update
// time (since), in that precedence, and defaults to the latest tasks.
// Total counts every task matching the filter, not just this page.
func (s *Server) listTasks(c *gin.Context) {
	ctx := c.Request.Context()
	offset, _ := strconv.Atoi(c.Query("offset"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	f := store.TaskFilter{Tag: c.Query("tag"), Title: c.Query("title"), Query: c.Query("q")}
	if v := c.Query("since"); v != "" {
		since, err := parseSince(v)
		if err != nil {
			s.fail(c, err)
			return
		}
		f.Since = since
	}

	tasks, err := s.store.Tasks(ctx, f, offset, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	total, err := s.store.CountTasks(ctx, f)
	if err != nil {
		s.fail(c, err)
		return
	}
	if tasks == nil {
		tasks = []*store.Task{}
	}
	c.JSON(http.StatusOK, TaskList{Tasks: tasks, Total: total})
}

func (s *Server) getTask(c *gin.Context) {
	task, err := s.store.Task(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// getReports writes the task's reports in their wire form, in timestamp
// order or, with order=causal, parents before children.
func (s *Server) getReports(c *gin.Context) {
	ctx := c.Request.Context()
	order := c.DefaultQuery("order", "time")
	if order != "time" && order != "causal" {
		s.fail(c, errorx.NewBiz(errorx.ErrBadQuery, errorx.WithService(errorx.ServiceCollector),
			errorx.WithMessage("order must be time or causal")))
		return
	}
	reports, err := s.store.ReportsByTask(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if len(reports) == 0 {
		s.fail(c, taskNotFound(c.Param("id")))
		return
	}
	if order == "causal" {
		reports = graphx.FromReports(reports).Causal()
	}
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Status(http.StatusOK)
	if err := reportx.WriteStream(c.Writer, reports...); err != nil {
		s.logger.Warn(ctx, logx.TagHttpFailure, err)
	}
}

func (s *Server) getIndex(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	reports, err := s.store.Reports(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if len(reports) == 0 {
		s.fail(c, taskNotFound(id))
		return
	}
	ix := graphx.Build(reports).Index()
	s.metrics.IndexRequests.Inc()
	s.logger.Info(ctx, logx.TagIndex, "task indexed", logx.TaskID, id, logx.Count, len(reports))
	c.JSON(http.StatusOK, TaskIndex{
		TaskID:  strings.ToUpper(id),
		Reports: len(reports),
		Index:   ix,
		Lines:   ix.Lines(),
	})
}

// fail maps an error to a status: unknown task 404, bad input 400, the
// rest 500.
func (s *Server) fail(c *gin.Context, err error) {
	status := errorx.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(c.Request.Context(), logx.TagHttpFailure, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func taskNotFound(id string) error {
	return errorx.NewBiz(errorx.ErrTaskNotFound,
		errorx.WithService(errorx.ServiceCollector), errorx.WithField(logx.TaskID, id))
}

// parseSince accepts RFC 3339 or unix seconds.
func parseSince(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	secs, err := reportx.ParseTimestamp(v)
	if err != nil {
		return time.Time{}, errorx.NewBiz(errorx.ErrBadQuery,
			errorx.WithService(errorx.ServiceCollector), errorx.WithMessage("since must be RFC 3339 or unix seconds"))
	}
	return time.UnixMilli(int64(secs * 1000)), nil
}
