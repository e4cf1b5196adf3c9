package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"morphocore/internal/schema"
)

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CreateStatements renders CREATE TABLE statements for every registered table
// in dependency order, so referenced tables exist before their referrers.
// It is a development and test convenience; production schemas are owned by
// the platform's migrations.
func CreateStatements(d Dialect, reg *schema.Registry) ([]string, error) {
	var names []string
	for _, t := range reg.Tables() {
		names = append(names, t.Name)
	}
	ordered, err := reg.Order(names, nil)
	if err != nil {
		return nil, err
	}
	stmts := make([]string, 0, len(ordered))
	for _, t := range ordered {
		stmt, err := createTable(d, reg, t)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

func createTable(d Dialect, reg *schema.Registry, t *schema.Table) (string, error) {
	var defs []string
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, t.PrimaryKey) {
			defs = append(defs, QuoteIdent(c.Name)+" "+d.primaryKeyType())
			continue
		}
		def := QuoteIdent(c.Name) + " " + d.columnType(c.Type)
		if !c.Nullable {
			def += " NOT NULL"
		}
		if c.Kind == schema.KindForeignKey {
			pk, err := reg.PrimaryKey(c.References)
			if err != nil {
				return "", fmt.Errorf("table %s column %s: %w", t.Name, c.Name, err)
			}
			def += fmt.Sprintf(" REFERENCES %s (%s)", QuoteIdent(c.References), QuoteIdent(pk))
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n);", QuoteIdent(t.Name), strings.Join(defs, ",\n\t")), nil
}

func (d Dialect) primaryKeyType() string {
	if d == Postgres {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (d Dialect) columnType(t schema.Type) string {
	switch t {
	case schema.TypeInteger:
		if d == Postgres {
			return "BIGINT"
		}
		return "INTEGER"
	case schema.TypeFloat:
		if d == Postgres {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	case schema.TypeJSON:
		if d == Postgres {
			return "JSONB"
		}
		return "TEXT"
	default:
		return "TEXT"
	}
}

// Apply executes the statements in order, stopping at the first failure.
func Apply(ctx context.Context, db Execer, stmts []string) error {
	for _, stmt := range stmts {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// ApplyCatalog creates every catalog table that does not exist yet.
func ApplyCatalog(ctx context.Context, db Execer, d Dialect, reg *schema.Registry) error {
	stmts, err := CreateStatements(d, reg)
	if err != nil {
		return err
	}
	return Apply(ctx, db, stmts)
}
