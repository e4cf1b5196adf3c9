package duplication

import (
	"context"
	"fmt"
	"strings"

	"morphocore/internal/infra/persistence/sqldb"
	"morphocore/internal/schema"
)

// Query is a row filter over the table aliased "t", with '?' placeholders.
type Query struct {
	Where string
	Args  []any
}

// RowSource decides which rows of a table belong to the duplicated entity.
type RowSource interface {
	Resolve(ctx context.Context, run *Run, table *schema.Table) (Query, error)
}

// Strategy selects the rows of one table. src is the source being resolved,
// so strategies can scope through parent tables with the same rules.
type Strategy func(ctx context.Context, run *Run, src RowSource, table *schema.Table) (Query, error)

// Strategies maps table names to their row-selection strategy.
type Strategies map[string]Strategy

// resolveWith applies the first strategy found in sets, falling back to the
// owner filter.
func resolveWith(ctx context.Context, run *Run, src RowSource, table *schema.Table, sets ...Strategies) (Query, error) {
	for _, set := range sets {
		if s, ok := set[table.Name]; ok {
			return s(ctx, run, src, table)
		}
	}
	return ownerStrategy(ctx, run, src, table)
}

// ownerStrategy selects the root row itself, or rows whose owning column
// equals the root id.
func ownerStrategy(_ context.Context, run *Run, _ RowSource, table *schema.Table) (Query, error) {
	if table.Name == run.RootTable() {
		return Query{Where: "t." + sqldb.QuoteIdent(table.PrimaryKey) + " = ?", Args: []any{run.RootID()}}, nil
	}
	if table.Owner == "" {
		return Query{}, &schema.ConfigError{Reason: "no row source strategy and no owning column", Tables: []string{table.Name}}
	}
	return Query{Where: "t." + sqldb.QuoteIdent(table.Owner) + " = ?", Args: []any{run.RootID()}}, nil
}

// Subquery renders "SELECT t.<pk> FROM <table> t WHERE ..." for the rows src
// selects from the named table.
func Subquery(ctx context.Context, run *Run, src RowSource, name string) (string, []any, error) {
	t, ok := run.Registry().Table(name)
	if !ok {
		return "", nil, &schema.ConfigError{Reason: "unknown table", Tables: []string{name}}
	}
	q, err := src.Resolve(ctx, run, t)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT t.%s FROM %s t WHERE %s", sqldb.QuoteIdent(t.PrimaryKey), sqldb.QuoteIdent(t.Name), q.Where), q.Args, nil
}

// Link pairs a foreign-key column with the table whose selected rows it must
// reference.
type Link struct {
	Column string
	Parent string
	// Nullable admits rows whose column is NULL.
	Nullable bool
}

// Via selects rows whose link columns all point at rows selected from their
// parents.
func Via(links ...Link) Strategy {
	return func(ctx context.Context, run *Run, src RowSource, _ *schema.Table) (Query, error) {
		var parts []string
		var args []any
		for _, l := range links {
			sub, subArgs, err := Subquery(ctx, run, src, l.Parent)
			if err != nil {
				return Query{}, err
			}
			col := "t." + sqldb.QuoteIdent(l.Column)
			cond := fmt.Sprintf("%s IN (%s)", col, sub)
			if l.Nullable {
				cond = fmt.Sprintf("(%s IS NULL OR %s)", col, cond)
			}
			parts = append(parts, cond)
			args = append(args, subArgs...)
		}
		return Query{Where: strings.Join(parts, " AND "), Args: args}, nil
	}
}

// Numbered selects rows of a table with a polymorphic column whose target,
// named by the discriminator, is one of the selected rows of a participating
// candidate table.
func Numbered(column string) Strategy {
	return func(ctx context.Context, run *Run, src RowSource, table *schema.Table) (Query, error) {
		c, _, ok := table.Column(column)
		if !ok || c.Polymorphic == nil {
			return Query{}, &schema.ConfigError{Reason: "column " + column + " is not numbered", Tables: []string{table.Name}}
		}
		var parts []string
		var args []any
		for _, name := range c.Polymorphic.Targets {
			target, ok := run.Registry().Table(name)
			if !ok || !run.Participates(name) {
				continue
			}
			sub, subArgs, err := Subquery(ctx, run, src, name)
			if err != nil {
				return Query{}, err
			}
			parts = append(parts, fmt.Sprintf("(t.%s = ? AND t.%s IN (%s))",
				sqldb.QuoteIdent(c.Polymorphic.Discriminator), sqldb.QuoteIdent(c.Name), sub))
			args = append(append(args, target.Number), subArgs...)
		}
		if len(parts) == 0 {
			return Query{Where: "1 = 0"}, nil
		}
		return Query{Where: "(" + strings.Join(parts, " OR ") + ")", Args: args}, nil
	}
}

// InIDs filters column by a fixed id list. An empty list selects nothing.
func InIDs(column string, ids []int64) Query {
	if len(ids) == 0 {
		return Query{Where: "1 = 0"}
	}
	marks, args := placeholders(ids)
	return Query{Where: fmt.Sprintf("t.%s IN (%s)", sqldb.QuoteIdent(column), marks), Args: args}
}

func placeholders(ids []int64) (string, []any) {
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	return strings.Join(marks, ", "), args
}

// projectStrategies scope the catalog's link tables to one project.
var projectStrategies = Strategies{
	schema.TableTaxaSpecimens:        Via(Link{Column: "taxon_id", Parent: schema.TableTaxa}),
	schema.TableTaxaMedia:            Via(Link{Column: "taxon_id", Parent: schema.TableTaxa}),
	schema.TableCharacterStates:      Via(Link{Column: "character_id", Parent: schema.TableCharacters}),
	schema.TableCharactersMedia:      Via(Link{Column: "character_id", Parent: schema.TableCharacters}),
	schema.TableMatrixTaxaOrder:      Via(Link{Column: "matrix_id", Parent: schema.TableMatrices}),
	schema.TableMatrixCharacterOrder: Via(Link{Column: "matrix_id", Parent: schema.TableMatrices}),
	schema.TableCells:                Via(Link{Column: "matrix_id", Parent: schema.TableMatrices}),
	schema.TableCellsMedia:           Via(Link{Column: "matrix_id", Parent: schema.TableMatrices}),
	schema.TableMediaReferences:      Via(Link{Column: "reference_id", Parent: schema.TableReferences}),
	schema.TableMediaDocuments:       Via(Link{Column: "document_id", Parent: schema.TableDocuments}),
	schema.TableFoliosMedia:          Via(Link{Column: "folio_id", Parent: schema.TableFolios}),
	schema.TableCharactersPartitions: Via(Link{Column: "partition_id", Parent: schema.TablePartitions}),
	schema.TableTaxaPartitions:       Via(Link{Column: "partition_id", Parent: schema.TablePartitions}),
	schema.TableAnnotations:          Numbered("row_id"),
}

// ProjectSource selects every row owned by the root project. Custom entries
// take precedence over the catalog strategies.
type ProjectSource struct {
	Custom Strategies
}

// Resolve implements RowSource.
func (s ProjectSource) Resolve(ctx context.Context, run *Run, table *schema.Table) (Query, error) {
	return resolveWith(ctx, run, s, table, s.Custom, projectStrategies)
}
