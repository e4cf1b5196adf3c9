package duplication

import (
	"context"
	"database/sql"
	"fmt"

	"morphocore/internal/blob"
	"morphocore/internal/infra/persistence/sqldb"
	"morphocore/internal/media"
	"morphocore/internal/schema"
)

// Querier is the transaction handle a run writes through. *sql.Tx satisfies
// it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Config binds an orchestrator to one root entity.
type Config struct {
	Registry *schema.Registry
	// RootTable and RootID name the entity being duplicated. RootTable must
	// participate.
	RootTable string
	RootID    int64
	// Participating tables are cloned; Ignored tables are referenced as-is.
	Participating []string
	Ignored       []string
	// NumberedColumns maps a column name to its discriminator column for
	// columns not already declared numbered in the registry.
	NumberedColumns map[string]string
	// Overrides force column values on every cloned row. Keys are "column"
	// or "table.column"; the qualified key wins.
	Overrides map[string]any
	// Tx is the active transaction. Run supplies it when nil.
	Tx      Querier
	Dialect sqldb.Dialect
	// Source selects the rows of each table; nil means ProjectSource.
	Source RowSource
	// Local enables the hashed-directory duplicator; nil leaves local assets
	// unset on the clones.
	Local *media.LocalConfig
	// Remote is the object store for remote assets.
	Remote blob.Store
}

func (c Config) validate() error {
	if c.Registry == nil {
		return fmt.Errorf("registry required")
	}
	if c.RootTable == "" {
		return fmt.Errorf("root table required")
	}
	if c.RootID <= 0 {
		return fmt.Errorf("root id must be positive, got %d", c.RootID)
	}
	if len(c.Participating) == 0 {
		return fmt.Errorf("no participating tables")
	}
	for _, name := range c.Participating {
		if name == c.RootTable {
			return nil
		}
	}
	return fmt.Errorf("root table %s does not participate", c.RootTable)
}

// override returns the forced value for table.column, if any.
func (c Config) override(table, column string) (any, bool) {
	if v, ok := c.Overrides[table+"."+column]; ok {
		return v, true
	}
	v, ok := c.Overrides[column]
	return v, ok
}
