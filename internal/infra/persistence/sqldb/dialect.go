// Package sqldb selects a SQL backend (PostgreSQL or SQLite), rewrites
// placeholders for it and renders catalog DDL.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"morphocore/internal/infra/persistence/postgres"
	"morphocore/internal/infra/persistence/sqlite"
)

// Dialect identifies a concrete SQL backend.
type Dialect string

const (
	SQLite   Dialect = "sqlite"   // embedded sqlite file (dev / tests)
	Postgres Dialect = "postgres" // PostgreSQL server
)

// ParseDialect validates a configured driver name.
func ParseDialect(s string) (Dialect, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(s))) {
	case SQLite, "":
		return SQLite, nil
	case Postgres, "pgx", "postgresql":
		return Postgres, nil
	default:
		return "", fmt.Errorf("unknown storage driver %s", s)
	}
}

// Rebind rewrites '?' placeholders into the dialect's bind syntax. Question
// marks inside single-quoted literals are left alone.
func (d Dialect) Rebind(query string) string {
	if d != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	quoted := false
	for _, r := range query {
		switch {
		case r == '\'':
			quoted = !quoted
			b.WriteRune(r)
		case r == '?' && !quoted:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// QuoteIdent quotes a table or column identifier. Both supported dialects
// accept ANSI double quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Open connects to the dialect's backend. For SQLite dsn is a file path.
func Open(ctx context.Context, d Dialect, dsn string) (*sql.DB, error) {
	switch d {
	case SQLite:
		return sqlite.Open(ctx, dsn)
	case Postgres:
		return postgres.Open(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", d)
	}
}
