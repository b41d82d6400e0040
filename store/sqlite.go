// Package store keeps collected reports and a per-task summary in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/imattdu/xtrace/errorx"
	"github.com/imattdu/xtrace/metax"
	"github.com/imattdu/xtrace/reportx"
)

// DefaultLimit caps task listings when the caller passes no limit.
const DefaultLimit = 100

// Task summarizes every report seen for one task id.
type Task struct {
	ID          string    `json:"task_id"`
	Title       string    `json:"title"`
	Tags        []string  `json:"tags"`
	NumReports  int       `json:"num_reports"`
	FirstSeen   time.Time `json:"first_seen"`
	LastUpdated time.Time `json:"last_updated"`
}

// SQLiteStore implements the report store on SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens dsn and applies the schema.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, wrap(err, "open database")
	}
	// every connection to :memory: is its own database
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, wrap(err, "enable foreign keys")
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, wrap(err, "migrate database")
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			task_id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			num_reports INTEGER NOT NULL DEFAULT 0,
			first_seen INTEGER NOT NULL,
			last_updated INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_last_updated ON tasks(last_updated)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_title ON tasks(title)`,
		`CREATE TABLE IF NOT EXISTS task_tags (
			task_id TEXT NOT NULL REFERENCES tasks(task_id) ON DELETE CASCADE,
			tag TEXT NOT NULL,
			PRIMARY KEY (task_id, tag)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_tags_tag ON task_tags(tag)`,
		`CREATE TABLE IF NOT EXISTS reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT NOT NULL REFERENCES tasks(task_id) ON DELETE CASCADE,
			op_id TEXT NOT NULL,
			ts REAL,
			body TEXT NOT NULL,
			received_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_task ON reports(task_id, ts)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Add stores r and folds it into its task summary. Reports without valid
// X-Trace metadata are rejected.
func (s *SQLiteStore) Add(ctx context.Context, r *reportx.Report) error {
	md, ok := r.Metadata()
	if !ok {
		return errorx.New(errorx.ErrMalformedReport,
			errorx.WithService(errorx.ServiceStore), errorx.WithMessage("report has no valid X-Trace metadata"))
	}
	taskID := md.TaskID().String()
	now := s.now().UnixMilli()
	title, _ := r.First(reportx.KeyTitle)

	var ts sql.NullFloat64
	if v, ok := r.Timestamp(); ok {
		ts = sql.NullFloat64{Float64: v, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap(err, "begin")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tasks (task_id, title, num_reports, first_seen, last_updated)
		 VALUES (?, ?, 1, ?, ?)
		 ON CONFLICT(task_id) DO UPDATE SET
			num_reports = num_reports + 1,
			last_updated = MAX(last_updated, excluded.last_updated),
			title = CASE WHEN excluded.title != '' THEN excluded.title ELSE title END`,
		taskID, title, now, now); err != nil {
		return wrap(err, "upsert task")
	}

	for _, tag := range r.Get(reportx.KeyTag) {
		if tag == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO task_tags (task_id, tag) VALUES (?, ?)`, taskID, tag); err != nil {
			return wrap(err, "insert tag")
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO reports (task_id, op_id, ts, body, received_at) VALUES (?, ?, ?, ?, ?)`,
		taskID, md.OpIDString(), ts, r.String(), now); err != nil {
		return wrap(err, "insert report")
	}

	if err := tx.Commit(); err != nil {
		return wrap(err, "commit")
	}
	return nil
}

// Reports returns the reports of a task in timestamp order, keyed by op id
// hex the way the graph reconstructor expects them. When an op id repeats
// the latest stored report wins.
func (s *SQLiteStore) Reports(ctx context.Context, taskID string) (map[string]*reportx.Report, error) {
	list, err := s.ReportsByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*reportx.Report, len(list))
	for _, r := range list {
		out[r.OpID()] = r
	}
	return out, nil
}

// ReportsByTask returns the reports of a task ordered by timestamp then
// arrival.
func (s *SQLiteStore) ReportsByTask(ctx context.Context, taskID string) ([]*reportx.Report, error) {
	taskID = normalizeTaskID(taskID)
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM reports WHERE task_id = ? ORDER BY ts IS NULL, ts, id`, taskID)
	if err != nil {
		return nil, wrap(err, "query reports")
	}
	defer rows.Close()

	var out []*reportx.Report
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, wrap(err, "scan report")
		}
		r, err := reportx.Parse(body)
		if err != nil {
			return nil, errorx.Wrap(err, errorx.ErrStore, errorx.WithService(errorx.ServiceStore))
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(err, "iterate reports")
	}
	return out, nil
}

// Task returns the summary of one task.
func (s *SQLiteStore) Task(ctx context.Context, taskID string) (*Task, error) {
	taskID = normalizeTaskID(taskID)
	tasks, err := s.queryTasks(ctx,
		`SELECT task_id, title, num_reports, first_seen, last_updated FROM tasks WHERE task_id = ?`, taskID)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, errorx.NewBiz(errorx.ErrTaskNotFound,
			errorx.WithService(errorx.ServiceStore), errorx.WithField("task_id", taskID))
	}
	return tasks[0], nil
}

// TaskFilter selects tasks. The first set field applies, in the order Tag,
// Title, Query, Since. The zero filter selects every task.
type TaskFilter struct {
	Tag   string
	Title string
	Query string // title substring
	Since time.Time
}

func (f TaskFilter) where() (string, []any) {
	switch {
	case f.Tag != "":
		return ` JOIN task_tags g ON g.task_id = t.task_id WHERE g.tag = ?`, []any{f.Tag}
	case f.Title != "":
		return ` WHERE t.title = ?`, []any{f.Title}
	case f.Query != "":
		return ` WHERE t.title LIKE ? ESCAPE '\'`, []any{"%" + escapeLike(f.Query) + "%"}
	case !f.Since.IsZero():
		return ` WHERE t.last_updated >= ?`, []any{f.Since.UnixMilli()}
	}
	return "", nil
}

// Tasks returns the tasks matching f, most recently updated first.
func (s *SQLiteStore) Tasks(ctx context.Context, f TaskFilter, offset, limit int) ([]*Task, error) {
	where, args := f.where()
	args = append(args, clampLimit(limit), max(offset, 0))
	return s.queryTasks(ctx,
		`SELECT t.task_id, t.title, t.num_reports, t.first_seen, t.last_updated FROM tasks t`+where+
			` ORDER BY t.last_updated DESC, t.task_id LIMIT ? OFFSET ?`, args...)
}

// CountTasks counts the tasks matching f, ignoring paging.
func (s *SQLiteStore) CountTasks(ctx context.Context, f TaskFilter) (int, error) {
	where, args := f.where()
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks t`+where, args...).Scan(&n); err != nil {
		return 0, wrap(err, "count tasks")
	}
	return n, nil
}

// LatestTasks returns the most recently updated tasks first.
func (s *SQLiteStore) LatestTasks(ctx context.Context, offset, limit int) ([]*Task, error) {
	return s.Tasks(ctx, TaskFilter{}, offset, limit)
}

// TasksSince returns tasks updated at or after since.
func (s *SQLiteStore) TasksSince(ctx context.Context, since time.Time, offset, limit int) ([]*Task, error) {
	return s.Tasks(ctx, TaskFilter{Since: since}, offset, limit)
}

// TasksByTag returns tasks carrying tag.
func (s *SQLiteStore) TasksByTag(ctx context.Context, tag string, offset, limit int) ([]*Task, error) {
	return s.Tasks(ctx, TaskFilter{Tag: tag}, offset, limit)
}

// TasksByTitle returns tasks whose title equals title.
func (s *SQLiteStore) TasksByTitle(ctx context.Context, title string, offset, limit int) ([]*Task, error) {
	return s.Tasks(ctx, TaskFilter{Title: title}, offset, limit)
}

// TasksByTitleSubstring returns tasks whose title contains sub.
func (s *SQLiteStore) TasksByTitleSubstring(ctx context.Context, sub string, offset, limit int) ([]*Task, error) {
	return s.Tasks(ctx, TaskFilter{Query: sub}, offset, limit)
}

// NumTasks counts stored tasks.
func (s *SQLiteStore) NumTasks(ctx context.Context) (int, error) {
	return s.CountTasks(ctx, TaskFilter{})
}

// NumReports counts the reports of one task.
func (s *SQLiteStore) NumReports(ctx context.Context, taskID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT num_reports FROM tasks WHERE task_id = ?`, normalizeTaskID(taskID)).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, wrap(err, "count reports")
	}
	return n, nil
}

func (s *SQLiteStore) queryTasks(ctx context.Context, query string, args ...any) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap(err, "query tasks")
	}
	var tasks []*Task
	for rows.Next() {
		var (
			t                  Task
			first, lastUpdated int64
		)
		if err := rows.Scan(&t.ID, &t.Title, &t.NumReports, &first, &lastUpdated); err != nil {
			rows.Close()
			return nil, wrap(err, "scan task")
		}
		t.FirstSeen = time.UnixMilli(first)
		t.LastUpdated = time.UnixMilli(lastUpdated)
		tasks = append(tasks, &t)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, wrap(err, "iterate tasks")
	}

	// tags are read after the cursor is closed; :memory: has one connection
	for _, t := range tasks {
		if t.Tags, err = s.tags(ctx, t.ID); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

func (s *SQLiteStore) tags(ctx context.Context, taskID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tag FROM task_tags WHERE task_id = ? ORDER BY tag`, taskID)
	if err != nil {
		return nil, wrap(err, "query tags")
	}
	defer rows.Close()
	tags := []string{}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, wrap(err, "scan tag")
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func wrap(err error, op string) error {
	return errorx.Wrap(err, errorx.ErrStore,
		errorx.WithService(errorx.ServiceStore), errorx.WithField("op", op))
}

// normalizeTaskID accepts either case of hex.
func normalizeTaskID(id string) string {
	if tid := metax.ParseTaskID(id); tid.Len() > 0 {
		return tid.String()
	}
	return strings.ToUpper(id)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
