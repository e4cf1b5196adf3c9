package duplication

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"morphocore/internal/schema"
)

// seedPartition builds partition 1 of project 1 holding taxon 1 and
// character 1. Matrix 1 uses taxa {1,2} and character 1; matrix 2 uses taxon
// 3 and character 2.
func seedPartition(t *testing.T, db *sql.DB) {
	t.Helper()
	stmts := []string{
		`INSERT INTO ca_users (user_id) VALUES (1)`,
		`INSERT INTO projects (project_id, user_id, name) VALUES (1, 1, 'Alpha')`,
		`INSERT INTO taxa (taxon_id, project_id, user_id, genus) VALUES (1, 1, 1, 'T1'), (2, 1, 1, 'T2'), (3, 1, 1, 'T3')`,
		`INSERT INTO characters (character_id, project_id, user_id, name) VALUES (1, 1, 1, 'C1'), (2, 1, 1, 'C2')`,
		`INSERT INTO partitions (partition_id, project_id, user_id, name) VALUES (1, 1, 1, 'P')`,
		`INSERT INTO taxa_x_partitions (link_id, taxon_id, partition_id, user_id) VALUES (1, 1, 1, 1)`,
		`INSERT INTO characters_x_partitions (link_id, character_id, partition_id, user_id) VALUES (1, 1, 1, 1)`,
		`INSERT INTO matrices (matrix_id, project_id, user_id, title) VALUES (1, 1, 1, 'M1'), (2, 1, 1, 'M2')`,
		`INSERT INTO matrix_taxa_order (order_id, matrix_id, taxon_id, user_id, position) VALUES (1, 1, 1, 1, 1), (2, 1, 2, 1, 2), (3, 2, 3, 1, 1)`,
		`INSERT INTO matrix_character_order (order_id, matrix_id, character_id, user_id, position) VALUES (1, 1, 1, 1, 1), (2, 2, 2, 1, 1)`,
		`INSERT INTO cells (cell_id, matrix_id, taxon_id, character_id, user_id) VALUES (1, 1, 1, 1, 1), (2, 1, 2, 1, 1)`,
		`INSERT INTO specimens (specimen_id, project_id, user_id) VALUES (1, 1, 1), (2, 1, 1), (3, 1, 1)`,
		`INSERT INTO taxa_x_specimens (link_id, taxon_id, specimen_id, user_id) VALUES (1, 1, 1, 1), (2, 3, 2, 1)`,
		`INSERT INTO media_files (media_id, project_id, user_id, specimen_id) VALUES (1, 1, 1, 1), (2, 1, 1, 2), (3, 1, 1, 3)`,
		`INSERT INTO taxa_x_media (link_id, taxon_id, media_id, user_id) VALUES (1, 1, 3, 1)`,
	}
	for _, s := range stmts {
		exec(t, db, s)
	}
}

func TestPartitionDerivedSets(t *testing.T) {
	reg := catalog(t)
	db := openDB(t, reg)
	seedPartition(t, db)

	tx, err := db.Begin()
	require.NoError(t, err)
	cfg := PartitionConfig(reg, 1, 1)
	cfg.Tx = tx
	run := newRun(&cfg)
	src := cfg.Source.(PartitionSource)
	ctx := context.Background()

	matrices, err := src.DerivedSet(ctx, run, schema.TableMatrices)
	require.NoError(t, err)
	require.Equal(t, []int64{1}, matrices)

	specimens, err := src.DerivedSet(ctx, run, schema.TableSpecimens)
	require.NoError(t, err)
	// specimen 1 through taxon 1, specimen 3 through media 3
	require.Equal(t, []int64{1, 3}, specimens)

	mediaIDs, err := src.DerivedSet(ctx, run, schema.TableMediaFiles)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 3}, mediaIDs)
	require.NoError(t, tx.Rollback())

	// cached: no further queries against the finished transaction
	again, err := src.DerivedSet(ctx, run, schema.TableMatrices)
	require.NoError(t, err)
	require.Equal(t, matrices, again)

	_, err = src.DerivedSet(ctx, run, schema.TableTaxa)
	var ce *schema.ConfigError
	require.ErrorAs(t, err, &ce)
}

func TestPartitionDerivedSetLazy(t *testing.T) {
	reg := catalog(t)
	db := openDB(t, reg)
	seedPartition(t, db)

	tx, err := db.Begin()
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()
	cfg := PartitionConfig(reg, 1, 1)
	cfg.Tx = tx
	run := newRun(&cfg)
	src := cfg.Source.(PartitionSource)

	taxa, _ := reg.Table(schema.TableTaxa)
	_, err = src.Resolve(context.Background(), run, taxa)
	require.NoError(t, err)
	_, cached := run.DerivedIDs(schema.TableMatrices)
	require.False(t, cached)
}

func TestPublishPartition(t *testing.T) {
	reg := catalog(t)
	db := openDB(t, reg)
	seedPartition(t, db)

	o, err := New(PartitionConfig(reg, 1, 1))
	require.NoError(t, err)
	newProject, err := o.Run(context.Background(), db)
	require.NoError(t, err)
	require.Equal(t, int64(2), newProject)

	scoped := []struct {
		query string
		want  int
	}{
		{`SELECT COUNT(*) FROM taxa WHERE project_id = ?`, 1},
		{`SELECT COUNT(*) FROM characters WHERE project_id = ?`, 1},
		{`SELECT COUNT(*) FROM matrices WHERE project_id = ?`, 1},
		{`SELECT COUNT(*) FROM specimens WHERE project_id = ?`, 2},
		{`SELECT COUNT(*) FROM media_files WHERE project_id = ?`, 2},
		{`SELECT COUNT(*) FROM matrix_taxa_order o JOIN matrices m ON m.matrix_id = o.matrix_id WHERE m.project_id = ?`, 1},
		{`SELECT COUNT(*) FROM matrix_character_order o JOIN matrices m ON m.matrix_id = o.matrix_id WHERE m.project_id = ?`, 1},
		{`SELECT COUNT(*) FROM cells c JOIN matrices m ON m.matrix_id = c.matrix_id WHERE m.project_id = ?`, 1},
		{`SELECT COUNT(*) FROM taxa_x_specimens l JOIN taxa x ON x.taxon_id = l.taxon_id WHERE x.project_id = ?`, 1},
		{`SELECT COUNT(*) FROM taxa_x_media l JOIN taxa x ON x.taxon_id = l.taxon_id WHERE x.project_id = ?`, 1},
		{`SELECT COUNT(*) FROM partitions WHERE project_id = ?`, 0},
	}
	for _, tc := range scoped {
		require.Equal(t, tc.want, count(t, db, tc.query, newProject), tc.query)
	}

	m1, err := o.IDs().Lookup(schema.TableMatrices, 1)
	require.NoError(t, err)
	t1, err := o.IDs().Lookup(schema.TableTaxa, 1)
	require.NoError(t, err)
	require.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM cells WHERE matrix_id = ? AND taxon_id = ?`, m1, t1))
	_, err = o.IDs().Lookup(schema.TableMatrices, 2)
	require.ErrorIs(t, err, ErrMissingMapping)
}

func TestPartitionSourceRejectsForeignProject(t *testing.T) {
	reg := catalog(t)
	cfg := PartitionConfig(reg, 1, 1)
	cfg.Source = PartitionSource{ProjectID: 9, PartitionID: 1}
	run := newRun(&cfg)
	taxa, _ := reg.Table(schema.TableTaxa)
	_, err := cfg.Source.Resolve(context.Background(), run, taxa)
	var ce *schema.ConfigError
	require.ErrorAs(t, err, &ce)
}
