package sqldb

import (
	"context"
	"strings"
	"testing"

	"morphocore/internal/schema"
)

func TestRebind(t *testing.T) {
	q := `SELECT * FROM t WHERE a = ? AND b = '?' AND c IN (?, ?)`
	if got := SQLite.Rebind(q); got != q {
		t.Fatalf("sqlite should keep placeholders, got %s", got)
	}
	want := `SELECT * FROM t WHERE a = $1 AND b = '?' AND c IN ($2, $3)`
	if got := Postgres.Rebind(q); got != want {
		t.Fatalf("unexpected rebind:\nwant %s\ngot  %s", want, got)
	}
}

func TestParseDialect(t *testing.T) {
	cases := map[string]Dialect{"": SQLite, "sqlite": SQLite, "postgres": Postgres, "PGX": Postgres}
	for in, want := range cases {
		got, err := ParseDialect(in)
		if err != nil || got != want {
			t.Fatalf("ParseDialect(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseDialect("oracle"); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestCreateStatementsPerDialect(t *testing.T) {
	reg, err := schema.NewCatalogRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	pg, err := CreateStatements(Postgres, reg)
	if err != nil {
		t.Fatalf("postgres ddl: %v", err)
	}
	if len(pg) != len(reg.Tables()) {
		t.Fatalf("expected one statement per table, got %d", len(pg))
	}
	joined := strings.Join(pg, "\n")
	for _, want := range []string{"BIGSERIAL PRIMARY KEY", "JSONB", `REFERENCES "projects" ("project_id")`} {
		if !strings.Contains(joined, want) {
			t.Fatalf("postgres ddl missing %q", want)
		}
	}
	// referenced tables are created first
	if strings.Index(joined, `"projects" (`) > strings.Index(joined, `"matrices" (`) {
		t.Fatalf("projects must be created before matrices")
	}

	lite, err := CreateStatements(SQLite, reg)
	if err != nil {
		t.Fatalf("sqlite ddl: %v", err)
	}
	if !strings.Contains(strings.Join(lite, "\n"), "INTEGER PRIMARY KEY AUTOINCREMENT") {
		t.Fatalf("sqlite ddl missing autoincrement key")
	}
}

func TestApplyCatalogOnSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, SQLite, ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	reg, err := schema.NewCatalogRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if err := ApplyCatalog(ctx, db, SQLite, reg); err != nil {
		t.Fatalf("apply: %v", err)
	}
	// idempotent
	if err := ApplyCatalog(ctx, db, SQLite, reg); err != nil {
		t.Fatalf("re-apply: %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'annotations'`).Scan(&n); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected annotations table")
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Dialect("mystery"), ""); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestOpenSQLiteFile(t *testing.T) {
	db, err := Open(context.Background(), SQLite, t.TempDir()+"/file.db")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.PingContext(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
