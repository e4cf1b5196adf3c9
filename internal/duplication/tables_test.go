package duplication

import (
	"testing"

	"github.com/stretchr/testify/require"

	"morphocore/internal/schema"
)

func TestCatalogTableLists(t *testing.T) {
	project := ProjectTables()
	require.NotContains(t, project, schema.TableUsers)
	require.NotContains(t, project, schema.TableInstitutions)
	require.Contains(t, project, schema.TableAnnotations)
	require.Contains(t, project, schema.TablePartitions)

	partition := PartitionTables()
	require.Len(t, partition, len(project)-3)
	require.NotContains(t, partition, schema.TableTaxaPartitions)
	require.Contains(t, partition, schema.TableMatrices)

	require.Equal(t, map[string]string{"row_id": "table_num"}, NumberedColumns())
}

func TestCloneOverrides(t *testing.T) {
	require.Equal(t, map[string]any{"user_id": int64(4), "projects.published": 0}, CloneOverrides(4))
	require.Equal(t, map[string]any{"projects.published": 0}, CloneOverrides(0))

	cfg := ProjectConfig(catalog(t), 1)
	cfg.Overrides = CloneOverrides(4)
	v, ok := cfg.override(schema.TableProjects, "published")
	require.True(t, ok)
	require.Equal(t, 0, v)
	_, ok = cfg.override(schema.TableTaxa, "published")
	require.False(t, ok)
}

func TestCatalogOrderRespectsReferences(t *testing.T) {
	reg := catalog(t)
	for _, cfg := range []Config{ProjectConfig(reg, 1), PartitionConfig(reg, 1, 1)} {
		o, err := New(cfg)
		require.NoError(t, err)
		order := o.Order()
		require.Equal(t, schema.TableProjects, order[0].Name)
		pos := make(map[string]int, len(order))
		for i, tbl := range order {
			pos[tbl.Name] = i
		}
		for _, tbl := range order {
			for _, dep := range tbl.Dependencies() {
				if p, ok := pos[dep]; ok {
					require.Less(t, p, pos[tbl.Name], "%s before %s", dep, tbl.Name)
				}
			}
		}
	}
}
