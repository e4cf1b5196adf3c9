package duplication

import "morphocore/internal/schema"

// ProjectTables lists every catalog table cloned with a project.
func ProjectTables() []string {
	global := make(map[string]bool)
	for _, name := range schema.GlobalTables() {
		global[name] = true
	}
	var out []string
	for _, t := range schema.Catalog() {
		if !global[t.Name] {
			out = append(out, t.Name)
		}
	}
	return out
}

// PartitionTables lists the tables cloned when publishing a partition. The
// partition definitions themselves stay behind.
func PartitionTables() []string {
	skip := map[string]bool{
		schema.TablePartitions:           true,
		schema.TableCharactersPartitions: true,
		schema.TableTaxaPartitions:       true,
	}
	var out []string
	for _, name := range ProjectTables() {
		if !skip[name] {
			out = append(out, name)
		}
	}
	return out
}

// NumberedColumns maps the catalog's polymorphic columns to their
// discriminators.
func NumberedColumns() map[string]string {
	return map[string]string{"row_id": "table_num"}
}

// CloneOverrides are the column values forced on a clone made for userID:
// every row belongs to that user and the new project starts unpublished. A
// non-positive userID keeps the source owners.
func CloneOverrides(userID int64) map[string]any {
	out := map[string]any{schema.TableProjects + ".published": 0}
	if userID > 0 {
		out["user_id"] = userID
	}
	return out
}

// ProjectConfig is the catalog configuration for cloning a whole project.
func ProjectConfig(reg *schema.Registry, projectID int64) Config {
	return Config{
		Registry:        reg,
		RootTable:       schema.TableProjects,
		RootID:          projectID,
		Participating:   ProjectTables(),
		Ignored:         schema.GlobalTables(),
		NumberedColumns: NumberedColumns(),
		Source:          ProjectSource{},
	}
}

// PartitionConfig is the catalog configuration for publishing one partition
// of a project as a new project.
func PartitionConfig(reg *schema.Registry, projectID, partitionID int64) Config {
	return Config{
		Registry:        reg,
		RootTable:       schema.TableProjects,
		RootID:          projectID,
		Participating:   PartitionTables(),
		Ignored:         schema.GlobalTables(),
		NumberedColumns: NumberedColumns(),
		Source:          PartitionSource{ProjectID: projectID, PartitionID: partitionID},
	}
}
