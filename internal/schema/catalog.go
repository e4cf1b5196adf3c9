package schema

// Table names of the platform catalog.
const (
	TableUsers                = "ca_users"
	TableInstitutions         = "institutions"
	TableProjects             = "projects"
	TableDocumentFolders      = "project_document_folders"
	TableDocuments            = "project_documents"
	TableReferences           = "bibliographic_references"
	TableFolios               = "folios"
	TableSpecimens            = "specimens"
	TableTaxa                 = "taxa"
	TableTaxaSpecimens        = "taxa_x_specimens"
	TableMediaViews           = "media_views"
	TableMediaFiles           = "media_files"
	TableTaxaMedia            = "taxa_x_media"
	TableCharacters           = "characters"
	TableCharacterStates      = "character_states"
	TableCharactersMedia      = "characters_x_media"
	TableMatrices             = "matrices"
	TableMatrixTaxaOrder      = "matrix_taxa_order"
	TableMatrixCharacterOrder = "matrix_character_order"
	TableCells                = "cells"
	TableCellsMedia           = "cells_x_media"
	TableMediaReferences      = "media_files_x_bibliographic_references"
	TableMediaDocuments       = "media_files_x_documents"
	TableFoliosMedia          = "folios_x_media_files"
	TableAnnotations          = "annotations"
	TablePartitions           = "partitions"
	TableCharactersPartitions = "characters_x_partitions"
	TableTaxaPartitions       = "taxa_x_partitions"
)

// ColumnProjectID is the owning column of project-scoped tables.
const ColumnProjectID = "project_id"

// Catalog returns fresh descriptors for every table of the platform schema.
func Catalog() []*Table {
	return []*Table{
		{Name: TableUsers, PrimaryKey: "user_id", Number: 90, Columns: []Column{
			PK("user_id"), Text("email"), Text("fname"), Text("lname"), Int("active"),
		}},
		{Name: TableInstitutions, PrimaryKey: "institution_id", Number: 91, Columns: []Column{
			PK("institution_id"), Text("name"), Text("code"),
		}},
		{Name: TableProjects, PrimaryKey: "project_id", Number: 1, Columns: []Column{
			PK("project_id"), FK("user_id", TableUsers), Text("name"), Text("description"),
			Int("published"), Int("nsf_funded"), Text("journal_title"), Int("created_on"), Int("published_on"),
		}},
		{Name: TableDocumentFolders, PrimaryKey: "folder_id", Number: 2, Owner: ColumnProjectID, Columns: []Column{
			PK("folder_id"), FK("project_id", TableProjects), Text("title"), Text("description"),
		}},
		{Name: TableDocuments, PrimaryKey: "document_id", Number: 3, Owner: ColumnProjectID, Columns: []Column{
			PK("document_id"), FK("project_id", TableProjects), NullFK("folder_id", TableDocumentFolders),
			FK("user_id", TableUsers), Text("title"), Text("description"), File("upload"),
			Int("access"), Int("published"), Int("uploaded_on"),
		}},
		{Name: TableReferences, PrimaryKey: "reference_id", Number: 4, Owner: ColumnProjectID, Columns: []Column{
			PK("reference_id"), FK("project_id", TableProjects), FK("user_id", TableUsers),
			Text("article_title"), Text("journal_title"), Int("pubyear"), JSON("authors"),
		}},
		{Name: TableFolios, PrimaryKey: "folio_id", Number: 5, Owner: ColumnProjectID, Columns: []Column{
			PK("folio_id"), FK("project_id", TableProjects), FK("user_id", TableUsers),
			Text("name"), Text("description"), Int("published"),
		}},
		{Name: TableSpecimens, PrimaryKey: "specimen_id", Number: 6, Owner: ColumnProjectID, Columns: []Column{
			PK("specimen_id"), FK("project_id", TableProjects), FK("user_id", TableUsers),
			NullFK("institution_id", TableInstitutions), Int("reference_source"), Text("catalog_number"), Text("description"),
		}},
		{Name: TableTaxa, PrimaryKey: "taxon_id", Number: 7, Owner: ColumnProjectID, Columns: []Column{
			PK("taxon_id"), FK("project_id", TableProjects), FK("user_id", TableUsers),
			Text("genus"), Text("specific_epithet"), Text("notes"), Int("is_extinct"),
		}},
		{Name: TableTaxaSpecimens, PrimaryKey: "link_id", Number: 8, Columns: []Column{
			PK("link_id"), FK("taxon_id", TableTaxa), FK("specimen_id", TableSpecimens), FK("user_id", TableUsers),
		}},
		{Name: TableMediaViews, PrimaryKey: "view_id", Number: 9, Owner: ColumnProjectID, Columns: []Column{
			PK("view_id"), FK("project_id", TableProjects), FK("user_id", TableUsers), Text("name"),
		}},
		{Name: TableMediaFiles, PrimaryKey: "media_id", Number: 10, Owner: ColumnProjectID, Columns: []Column{
			PK("media_id"), FK("project_id", TableProjects), FK("user_id", TableUsers),
			NullFK("specimen_id", TableSpecimens), NullFK("view_id", TableMediaViews),
			Media("media"), Text("notes"), Int("published"), Int("is_copyrighted"),
			Ancestor("ancestor_media_id"), Int("cataloguing_status"),
		}},
		{Name: TableTaxaMedia, PrimaryKey: "link_id", Number: 11, Columns: []Column{
			PK("link_id"), FK("taxon_id", TableTaxa), FK("media_id", TableMediaFiles), FK("user_id", TableUsers),
		}},
		{Name: TableCharacters, PrimaryKey: "character_id", Number: 12, Owner: ColumnProjectID, Columns: []Column{
			PK("character_id"), FK("project_id", TableProjects), FK("user_id", TableUsers),
			Text("name"), Text("description"), Int("ordering"), Int("type"),
		}},
		{Name: TableCharacterStates, PrimaryKey: "state_id", Number: 13, Columns: []Column{
			PK("state_id"), FK("character_id", TableCharacters), FK("user_id", TableUsers), Int("num"), Text("name"),
		}},
		{Name: TableCharactersMedia, PrimaryKey: "link_id", Number: 14, Columns: []Column{
			PK("link_id"), FK("character_id", TableCharacters), FK("media_id", TableMediaFiles),
			NullFK("state_id", TableCharacterStates), FK("user_id", TableUsers),
		}},
		{Name: TableMatrices, PrimaryKey: "matrix_id", Number: 15, Owner: ColumnProjectID, Columns: []Column{
			PK("matrix_id"), FK("project_id", TableProjects), FK("user_id", TableUsers),
			Text("title"), Text("notes"), JSON("other_options"), Int("published"),
		}},
		{Name: TableMatrixTaxaOrder, PrimaryKey: "order_id", Number: 16, Columns: []Column{
			PK("order_id"), FK("matrix_id", TableMatrices), FK("taxon_id", TableTaxa), FK("user_id", TableUsers),
			Int("position"), Text("notes"),
		}},
		{Name: TableMatrixCharacterOrder, PrimaryKey: "order_id", Number: 17, Columns: []Column{
			PK("order_id"), FK("matrix_id", TableMatrices), FK("character_id", TableCharacters), FK("user_id", TableUsers),
			Int("position"),
		}},
		{Name: TableCells, PrimaryKey: "cell_id", Number: 18, Columns: []Column{
			PK("cell_id"), FK("matrix_id", TableMatrices), FK("taxon_id", TableTaxa), FK("character_id", TableCharacters),
			NullFK("state_id", TableCharacterStates), FK("user_id", TableUsers),
			Int("is_npa"), Int("is_uncertain"), Float("start_value"), Float("end_value"),
		}},
		{Name: TableCellsMedia, PrimaryKey: "link_id", Number: 19, Columns: []Column{
			PK("link_id"), FK("matrix_id", TableMatrices), FK("taxon_id", TableTaxa), FK("character_id", TableCharacters),
			FK("media_id", TableMediaFiles), FK("user_id", TableUsers),
		}},
		{Name: TableMediaReferences, PrimaryKey: "link_id", Number: 20, Columns: []Column{
			PK("link_id"), FK("media_id", TableMediaFiles), FK("reference_id", TableReferences), FK("user_id", TableUsers), Text("pp"),
		}},
		{Name: TableMediaDocuments, PrimaryKey: "link_id", Number: 21, Columns: []Column{
			PK("link_id"), FK("media_id", TableMediaFiles), FK("document_id", TableDocuments), FK("user_id", TableUsers),
		}},
		{Name: TableFoliosMedia, PrimaryKey: "link_id", Number: 22, Columns: []Column{
			PK("link_id"), FK("folio_id", TableFolios), FK("media_id", TableMediaFiles), Int("position"),
		}},
		{Name: TableAnnotations, PrimaryKey: "annotation_id", Number: 23, Columns: []Column{
			PK("annotation_id"), Int("table_num"),
			Numbered("row_id", "table_num", TableMatrices, TableCharacters, TableCharacterStates, TableTaxa, TableMediaFiles, TableSpecimens),
			FK("user_id", TableUsers), Text("annotation"), Int("created_on"),
		}},
		{Name: TablePartitions, PrimaryKey: "partition_id", Number: 24, Owner: ColumnProjectID, Columns: []Column{
			PK("partition_id"), FK("project_id", TableProjects), FK("user_id", TableUsers), Text("name"), Text("description"),
		}},
		{Name: TableCharactersPartitions, PrimaryKey: "link_id", Number: 25, Columns: []Column{
			PK("link_id"), FK("character_id", TableCharacters), FK("partition_id", TablePartitions), FK("user_id", TableUsers),
		}},
		{Name: TableTaxaPartitions, PrimaryKey: "link_id", Number: 26, Columns: []Column{
			PK("link_id"), FK("taxon_id", TableTaxa), FK("partition_id", TablePartitions), FK("user_id", TableUsers),
		}},
	}
}

// GlobalTables are shared lookup tables that are never cloned.
func GlobalTables() []string {
	return []string{TableUsers, TableInstitutions}
}

// NewCatalogRegistry builds a registry over Catalog.
func NewCatalogRegistry() (*Registry, error) {
	return NewRegistry(Catalog()...)
}
