// Package tasks runs duplication and partition publishing requests: it
// checks the request is approved, clones inside one transaction, queues the
// follow-up work and records the outcome on the request.
package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"morphocore/internal/infra/persistence/sqldb"
	"morphocore/internal/schema"
)

// Request states.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Follow-up task handlers queued after a successful clone.
const (
	TaskOverviewRegenerate = "overview.regenerate"
	TaskDuplicationEmail   = "email.duplication_complete"
)

// Kind selects the request table.
type Kind string

const (
	KindDuplication      Kind = "project_duplication_requests"
	KindPartitionPublish Kind = "partition_publish_requests"
)

// TableTaskQueue holds queued follow-up work.
const TableTaskQueue = "task_queue"

// Tables describes the request and queue tables.
func Tables() []*schema.Table {
	return []*schema.Table{
		{Name: string(KindDuplication), PrimaryKey: "request_id", Columns: []schema.Column{
			schema.PK("request_id"), schema.Int("project_id"), schema.Int("user_id"), schema.Text("status"),
			schema.Int("new_project_id"), schema.Text("message"), schema.Int("created_on"), schema.Int("completed_on"),
		}},
		{Name: string(KindPartitionPublish), PrimaryKey: "request_id", Columns: []schema.Column{
			schema.PK("request_id"), schema.Int("project_id"), schema.Int("partition_id"), schema.Int("user_id"),
			schema.Text("status"), schema.Int("new_project_id"), schema.Text("message"),
			schema.Int("created_on"), schema.Int("completed_on"),
		}},
		{Name: TableTaskQueue, PrimaryKey: "task_id", Columns: []schema.Column{
			schema.PK("task_id"), schema.Text("handler"), schema.JSON("parameters"), schema.Text("status"),
			schema.Int("priority"), schema.Int("created_on"),
		}},
	}
}

// Request is one duplication or partition publishing request.
type Request struct {
	ID           int64
	Kind         Kind
	ProjectID    int64
	PartitionID  int64
	UserID       int64
	Status       string
	NewProjectID int64
	Message      string
}

// Task is a queued follow-up job.
type Task struct {
	ID         int64
	Handler    string
	Parameters map[string]any
	Status     string
}

// NotFoundError reports a missing request.
type NotFoundError struct {
	Kind Kind
	ID   int64
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s request %d not found", e.Kind, e.ID)
}

// ErrNotApproved is returned for requests that are not in the approved state.
var ErrNotApproved = errors.New("request not approved")

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store persists requests and queued tasks.
type Store struct {
	db      *sql.DB
	dialect sqldb.Dialect
	now     func() time.Time
}

// NewStore wraps db.
func NewStore(db *sql.DB, dialect sqldb.Dialect) *Store {
	return &Store{db: db, dialect: dialect, now: time.Now}
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the SQL dialect of the store.
func (s *Store) Dialect() sqldb.Dialect { return s.dialect }

// Migrate creates the request and queue tables if needed.
func (s *Store) Migrate(ctx context.Context) error {
	reg, err := schema.NewRegistry(Tables()...)
	if err != nil {
		return err
	}
	return sqldb.ApplyCatalog(ctx, s.db, s.dialect, reg)
}

// Create inserts a request and returns its id. An empty status means pending.
func (s *Store) Create(ctx context.Context, r Request) (int64, error) {
	if r.Status == "" {
		r.Status = StatusPending
	}
	var (
		query string
		args  []any
	)
	switch r.Kind {
	case KindDuplication:
		query = `INSERT INTO project_duplication_requests (project_id, user_id, status, created_on) VALUES (?, ?, ?, ?) RETURNING request_id`
		args = []any{r.ProjectID, r.UserID, r.Status, s.now().Unix()}
	case KindPartitionPublish:
		query = `INSERT INTO partition_publish_requests (project_id, partition_id, user_id, status, created_on) VALUES (?, ?, ?, ?, ?) RETURNING request_id`
		args = []any{r.ProjectID, r.PartitionID, r.UserID, r.Status, s.now().Unix()}
	default:
		return 0, fmt.Errorf("unknown request kind %q", r.Kind)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, s.dialect.Rebind(query), args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("create %s request: %w", r.Kind, err)
	}
	return id, nil
}

// Get loads a request.
func (s *Store) Get(ctx context.Context, kind Kind, id int64) (Request, error) {
	partition := "0"
	if kind == KindPartitionPublish {
		partition = "partition_id"
	} else if kind != KindDuplication {
		return Request{}, fmt.Errorf("unknown request kind %q", kind)
	}
	query := fmt.Sprintf(`SELECT project_id, %s, user_id, status, new_project_id, message FROM %s WHERE request_id = ?`,
		partition, sqldb.QuoteIdent(string(kind)))
	r := Request{ID: id, Kind: kind}
	var (
		status, message sql.NullString
		newProject      sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(query), id).
		Scan(&r.ProjectID, &r.PartitionID, &r.UserID, &status, &newProject, &message)
	if errors.Is(err, sql.ErrNoRows) {
		return Request{}, NotFoundError{Kind: kind, ID: id}
	}
	if err != nil {
		return Request{}, fmt.Errorf("load %s request %d: %w", kind, id, err)
	}
	r.Status, r.Message, r.NewProjectID = status.String, message.String, newProject.Int64
	return r, nil
}

// SetStatus moves a request to status. Terminal states stamp completed_on.
func (s *Store) SetStatus(ctx context.Context, q execer, kind Kind, id int64, status string, newProjectID int64, message string) error {
	if q == nil {
		q = s.db
	}
	var newProject any
	if newProjectID > 0 {
		newProject = newProjectID
	}
	var completed any
	if status == StatusCompleted || status == StatusFailed {
		completed = s.now().Unix()
	}
	query := fmt.Sprintf(`UPDATE %s SET status = ?, new_project_id = ?, message = ?, completed_on = ? WHERE request_id = ?`,
		sqldb.QuoteIdent(string(kind)))
	res, err := q.ExecContext(ctx, s.dialect.Rebind(query), status, newProject, message, completed, id)
	if err != nil {
		return fmt.Errorf("update %s request %d: %w", kind, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

// Approved lists approved requests of kind, oldest first.
func (s *Store) Approved(ctx context.Context, kind Kind) ([]int64, error) {
	query := fmt.Sprintf(`SELECT request_id FROM %s WHERE status = ? ORDER BY request_id`, sqldb.QuoteIdent(string(kind)))
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), StatusApproved)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer func() { _ = rows.Close() }()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Enqueue adds a pending task through q.
func (s *Store) Enqueue(ctx context.Context, q execer, handler string, params map[string]any) (int64, error) {
	if q == nil {
		q = s.db
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return 0, fmt.Errorf("encode %s parameters: %w", handler, err)
	}
	var id int64
	err = q.QueryRowContext(ctx, s.dialect.Rebind(
		`INSERT INTO task_queue (handler, parameters, status, priority, created_on) VALUES (?, ?, ?, ?, ?) RETURNING task_id`),
		handler, string(raw), StatusPending, 0, s.now().Unix()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("enqueue %s: %w", handler, err)
	}
	return id, nil
}

// Tasks lists queued tasks in insertion order.
func (s *Store) Tasks(ctx context.Context) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT task_id, handler, parameters, status FROM task_queue ORDER BY task_id`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Task
	for rows.Next() {
		var (
			t   Task
			raw sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Handler, &raw, &t.Status); err != nil {
			return nil, err
		}
		if raw.Valid {
			if err := json.Unmarshal([]byte(raw.String), &t.Parameters); err != nil {
				return nil, fmt.Errorf("decode task %d parameters: %w", t.ID, err)
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
