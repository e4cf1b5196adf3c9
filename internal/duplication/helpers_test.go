package duplication

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"morphocore/internal/blob"
	"morphocore/internal/infra/persistence/sqldb"
	"morphocore/internal/observability"
	"morphocore/internal/schema"
)

func openDB(t *testing.T, reg *schema.Registry) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := sqldb.Open(ctx, sqldb.SQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqldb.ApplyCatalog(ctx, db, sqldb.SQLite, reg))
	return db
}

func catalog(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.NewCatalogRegistry()
	require.NoError(t, err)
	return reg
}

func exec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	_, err := db.Exec(query, args...)
	require.NoError(t, err, query)
}

func count(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(query, args...).Scan(&n), query)
	return n
}

func text(t *testing.T, db *sql.DB, query string, args ...any) string {
	t.Helper()
	var s sql.NullString
	require.NoError(t, db.QueryRow(query, args...).Scan(&s), query)
	return s.String
}

func seedObjects(t *testing.T, store blob.Store, keys ...string) {
	t.Helper()
	for _, k := range keys {
		_, err := store.Put(context.Background(), k, strings.NewReader("object:"+k), blob.PutOptions{ContentType: "image/jpeg"})
		require.NoError(t, err)
	}
}

// parentChild is a two table registry: children are owned by their parent.
func parentChild(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.NewRegistry(
		&schema.Table{Name: "parents", PrimaryKey: "id", Number: 1, Columns: []schema.Column{
			schema.PK("id"), schema.Text("name"), schema.Int("owner_id"),
		}},
		&schema.Table{Name: "children", PrimaryKey: "id", Number: 2, Owner: "parent_id", Columns: []schema.Column{
			schema.PK("id"), schema.FK("parent_id", "parents"), schema.Text("label"),
			schema.Ancestor("ancestor_id"), schema.JSON("attrs"), schema.Int("owner_id"),
		}},
	)
	require.NoError(t, err)
	return reg
}

func parentChildConfig(reg *schema.Registry, root int64) Config {
	return Config{
		Registry:      reg,
		RootTable:     "parents",
		RootID:        root,
		Participating: []string{"children", "parents"},
	}
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	entries []logEntry
}

func (c *captureLogger) Debug(msg string, args ...any) { c.add("debug", msg, args) }
func (c *captureLogger) Info(msg string, args ...any)  { c.add("info", msg, args) }
func (c *captureLogger) Warn(msg string, args ...any)  { c.add("warn", msg, args) }
func (c *captureLogger) Error(msg string, args ...any) { c.add("error", msg, args) }

func (c *captureLogger) add(level, msg string, args []any) {
	c.entries = append(c.entries, logEntry{level: level, msg: msg, args: args})
}

func (c *captureLogger) count(level string) int {
	n := 0
	for _, e := range c.entries {
		if e.level == level {
			n++
		}
	}
	return n
}

type captureMetrics struct {
	ops     []string
	success []bool
}

func (c *captureMetrics) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.ops = append(c.ops, op)
	c.success = append(c.success, success)
}

type captureTracer struct {
	started []string
	errs    []error
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, observability.TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c}
}

type captureSpan struct {
	tracer *captureTracer
}

func (s *captureSpan) End(err error) {
	s.tracer.errs = append(s.tracer.errs, err)
}
