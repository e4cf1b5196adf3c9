package duplication

import (
	"context"
	"fmt"

	"morphocore/internal/infra/persistence/sqldb"
	"morphocore/internal/schema"
)

// PartitionSource selects the subset of a project covered by one partition:
// its taxa and characters, the matrices, specimens and media derived from
// them, and every project-wide table (documents, references, folios, views).
type PartitionSource struct {
	ProjectID   int64
	PartitionID int64
	// Custom entries take precedence over the partition rules.
	Custom Strategies
}

// Resolve implements RowSource.
func (s PartitionSource) Resolve(ctx context.Context, run *Run, table *schema.Table) (Query, error) {
	if s.ProjectID != run.RootID() {
		return Query{}, &schema.ConfigError{
			Reason: fmt.Sprintf("partition source project %d does not match root %d", s.ProjectID, run.RootID()),
			Tables: []string{table.Name},
		}
	}
	if st, ok := s.Custom[table.Name]; ok {
		return st(ctx, run, s, table)
	}
	switch table.Name {
	case schema.TableTaxa:
		return s.member(table, schema.TableTaxaPartitions, "taxon_id"), nil
	case schema.TableCharacters:
		return s.member(table, schema.TableCharactersPartitions, "character_id"), nil
	case schema.TableMatrices, schema.TableSpecimens, schema.TableMediaFiles:
		ids, err := s.DerivedSet(ctx, run, table.Name)
		if err != nil {
			return Query{}, err
		}
		return InIDs(table.PrimaryKey, ids), nil
	case schema.TableAnnotations:
		return Numbered("row_id")(ctx, run, s, table)
	}
	if table.Owner == "" && table.Name != run.RootTable() {
		return Links(ctx, run, s, table)
	}
	return ownerStrategy(ctx, run, s, table)
}

// member restricts an owned table to the rows listed in a partition link table.
func (s PartitionSource) member(table *schema.Table, link, column string) Query {
	return Query{
		Where: fmt.Sprintf("t.%s = ? AND t.%s IN (SELECT p.%s FROM %s p WHERE p.partition_id = ?)",
			sqldb.QuoteIdent(table.Owner), sqldb.QuoteIdent(table.PrimaryKey), sqldb.QuoteIdent(column), sqldb.QuoteIdent(link)),
		Args: []any{s.ProjectID, s.PartitionID},
	}
}

// Links selects rows of a join table whose every foreign key into a
// participating table points at a selected row of that table.
func Links(ctx context.Context, run *Run, src RowSource, table *schema.Table) (Query, error) {
	var links []Link
	for _, c := range table.Columns {
		if c.Kind != schema.KindForeignKey || !run.Participates(c.References) {
			continue
		}
		links = append(links, Link{Column: c.Name, Parent: c.References, Nullable: c.Nullable})
	}
	if len(links) == 0 {
		return Query{}, &schema.ConfigError{Reason: "no owning column and no participating parent", Tables: []string{table.Name}}
	}
	return Via(links...)(ctx, run, src, table)
}

const (
	partitionTaxa       = `SELECT tp.taxon_id FROM taxa_x_partitions tp WHERE tp.partition_id = ?`
	partitionCharacters = `SELECT cp.character_id FROM characters_x_partitions cp WHERE cp.partition_id = ?`

	derivedMatrices = `SELECT m.matrix_id FROM matrices m WHERE m.project_id = ? AND (
	m.matrix_id IN (SELECT mco.matrix_id FROM matrix_character_order mco WHERE mco.character_id IN (` + partitionCharacters + `))
	OR m.matrix_id IN (SELECT mto.matrix_id FROM matrix_taxa_order mto WHERE mto.taxon_id IN (` + partitionTaxa + `)))`

	linkedSpecimens = `SELECT ts.specimen_id FROM taxa_x_specimens ts
	JOIN specimens s ON s.specimen_id = ts.specimen_id
	WHERE s.project_id = ? AND ts.taxon_id IN (` + partitionTaxa + `)`

	derivedMedia = `SELECT m.media_id FROM media_files m WHERE m.project_id = ? AND (
	m.specimen_id IN (` + linkedSpecimens + `)
	OR m.media_id IN (SELECT tm.media_id FROM taxa_x_media tm WHERE tm.taxon_id IN (` + partitionTaxa + `))
	OR m.media_id IN (SELECT cm.media_id FROM characters_x_media cm WHERE cm.character_id IN (` + partitionCharacters + `))
	OR m.media_id IN (SELECT mr.media_id FROM media_files_x_bibliographic_references mr
		JOIN bibliographic_references r ON r.reference_id = mr.reference_id WHERE r.project_id = ?)
	OR m.media_id IN (SELECT md.media_id FROM media_files_x_documents md
		JOIN project_documents d ON d.document_id = md.document_id WHERE d.project_id = ?))`

	mediaSpecimens = `SELECT m.specimen_id FROM media_files m WHERE m.specimen_id IS NOT NULL AND m.media_id IN (%s)`
)

// DerivedSet returns the ids of matrices, specimens or media_files covered by
// the partition. Sets are computed once per run and cached on it.
func (s PartitionSource) DerivedSet(ctx context.Context, run *Run, table string) ([]int64, error) {
	if ids, ok := run.DerivedIDs(table); ok {
		return ids, nil
	}
	var (
		ids []int64
		err error
	)
	switch table {
	case schema.TableMatrices:
		ids, err = run.QueryIDs(ctx, derivedMatrices, s.ProjectID, s.PartitionID, s.PartitionID)
	case schema.TableMediaFiles:
		ids, err = run.QueryIDs(ctx, derivedMedia,
			s.ProjectID, s.ProjectID, s.PartitionID, s.PartitionID, s.PartitionID, s.ProjectID, s.ProjectID)
	case schema.TableSpecimens:
		ids, err = s.derivedSpecimens(ctx, run)
	default:
		return nil, &schema.ConfigError{Reason: "no derived set", Tables: []string{table}}
	}
	if err != nil {
		return nil, fmt.Errorf("derive %s: %w", table, err)
	}
	return run.SetDerivedIDs(table, ids), nil
}

// derivedSpecimens is the specimens of partitioned taxa plus the specimens of
// derived media, so every cloned media row can remap its specimen.
func (s PartitionSource) derivedSpecimens(ctx context.Context, run *Run) ([]int64, error) {
	ids, err := run.QueryIDs(ctx, linkedSpecimens, s.ProjectID, s.PartitionID)
	if err != nil {
		return nil, err
	}
	media, err := s.DerivedSet(ctx, run, schema.TableMediaFiles)
	if err != nil {
		return nil, err
	}
	if len(media) == 0 {
		return ids, nil
	}
	marks, args := placeholders(media)
	extra, err := run.QueryIDs(ctx, fmt.Sprintf(mediaSpecimens, marks), args...)
	if err != nil {
		return nil, err
	}
	return append(ids, extra...), nil
}
