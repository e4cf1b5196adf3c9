package duplication

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"morphocore/internal/infra/persistence/sqldb"
	"morphocore/internal/schema"
)

func resolve(t *testing.T, cfg Config, table string) (Query, error) {
	t.Helper()
	tbl, ok := cfg.Registry.Table(table)
	require.True(t, ok, table)
	src := cfg.Source
	if src == nil {
		src = ProjectSource{}
	}
	return src.Resolve(context.Background(), newRun(&cfg), tbl)
}

func TestProjectSourceRootAndOwner(t *testing.T) {
	cfg := ProjectConfig(catalog(t), 4)

	q, err := resolve(t, cfg, schema.TableProjects)
	require.NoError(t, err)
	require.Equal(t, `t."project_id" = ?`, q.Where)
	require.Equal(t, []any{int64(4)}, q.Args)

	q, err = resolve(t, cfg, schema.TableTaxa)
	require.NoError(t, err)
	require.Equal(t, `t."project_id" = ?`, q.Where)
}

func TestProjectSourceJoinTables(t *testing.T) {
	cfg := ProjectConfig(catalog(t), 4)

	q, err := resolve(t, cfg, schema.TableTaxaSpecimens)
	require.NoError(t, err)
	require.Equal(t, `t."taxon_id" IN (SELECT t."taxon_id" FROM "taxa" t WHERE t."project_id" = ?)`, q.Where)
	require.Equal(t, []any{int64(4)}, q.Args)

	q, err = resolve(t, cfg, schema.TableCharactersMedia)
	require.NoError(t, err)
	require.Contains(t, q.Where, `FROM "characters" t`)

	// postgres placeholders are numbered across nested subqueries
	q, err = resolve(t, cfg, schema.TableAnnotations)
	require.NoError(t, err)
	require.Len(t, q.Args, 12)
	require.Equal(t, []any{int64(15), int64(4)}, q.Args[:2])
	rebound := sqldb.Postgres.Rebind(q.Where)
	require.Contains(t, rebound, "$12")
	require.NotContains(t, rebound, "?")
}

func TestNumberedWithoutParticipatingTargets(t *testing.T) {
	reg := catalog(t)
	cfg := Config{Registry: reg, RootTable: schema.TableProjects, RootID: 1,
		Participating: []string{schema.TableProjects, schema.TableAnnotations}}
	q, err := resolve(t, cfg, schema.TableAnnotations)
	require.NoError(t, err)
	require.Equal(t, "1 = 0", q.Where)
	require.Empty(t, q.Args)

	run := newRun(&cfg)
	projects, _ := reg.Table(schema.TableProjects)
	_, err = Numbered("name")(context.Background(), run, ProjectSource{}, projects)
	var ce *schema.ConfigError
	require.ErrorAs(t, err, &ce)
}

func TestOwnerlessTableNeedsStrategy(t *testing.T) {
	reg := parentChild(t)
	cfg := parentChildConfig(reg, 1)
	// parents is not the root here and has no owning column
	cfg.RootTable = "children"
	_, err := resolve(t, cfg, "parents")
	var ce *schema.ConfigError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, []string{"parents"}, ce.Tables)
}

func TestCustomStrategyWins(t *testing.T) {
	cfg := ProjectConfig(catalog(t), 4)
	cfg.Source = ProjectSource{Custom: Strategies{
		schema.TableTaxa: func(_ context.Context, run *Run, _ RowSource, _ *schema.Table) (Query, error) {
			return Query{Where: `t."genus" = ?`, Args: []any{"Homo"}}, nil
		},
	}}
	q, err := resolve(t, cfg, schema.TableTaxa)
	require.NoError(t, err)
	require.Equal(t, `t."genus" = ?`, q.Where)

	// dependents scope through the custom strategy
	q, err = resolve(t, cfg, schema.TableTaxaMedia)
	require.NoError(t, err)
	require.Contains(t, q.Where, `t."genus" = ?`)
	require.Equal(t, []any{"Homo"}, q.Args)
}

func TestLinksAndInIDs(t *testing.T) {
	cfg := PartitionConfig(catalog(t), 1, 1)
	run := newRun(&cfg)
	cells, _ := cfg.Registry.Table(schema.TableCells)
	run.SetDerivedIDs(schema.TableMatrices, []int64{3, 1, 3})

	q, err := Links(context.Background(), run, cfg.Source, cells)
	require.NoError(t, err)
	require.Contains(t, q.Where, `t."matrix_id" IN (SELECT t."matrix_id" FROM "matrices" t WHERE t."matrix_id" IN (?, ?))`)
	require.Contains(t, q.Where, `(t."state_id" IS NULL OR t."state_id" IN (`)
	require.NotContains(t, q.Where, `"user_id"`)
	require.Equal(t, []any{int64(1), int64(3)}, q.Args[:2])

	require.Equal(t, Query{Where: "1 = 0"}, InIDs("id", nil))

	users, _ := cfg.Registry.Table(schema.TableUsers)
	_, err = Links(context.Background(), run, cfg.Source, users)
	var ce *schema.ConfigError
	require.ErrorAs(t, err, &ce)
}
