// Package schema holds static knowledge of the platform's relational tables:
// primary keys, foreign-key references, column kinds that need special
// handling during duplication, and the numeric table registry used by
// polymorphic ("numbered") references.
package schema

import (
	"fmt"
	"strings"
)

// Type is the storage type of a column, used for DDL generation and for
// decoding structured values.
type Type string

const (
	TypeInteger Type = "integer"
	TypeText    Type = "text"
	TypeFloat   Type = "float"
	TypeJSON    Type = "json"
)

// Kind classifies how the duplication engine treats a column.
type Kind int

const (
	// KindPlain values are copied verbatim.
	KindPlain Kind = iota
	// KindForeignKey values are remapped when the referenced table participates.
	KindForeignKey
	// KindAncestor is a self-reference recording the row's pre-clone id.
	KindAncestor
	// KindFile holds a single file locator (JSON).
	KindFile
	// KindMedia holds a media-variant bundle (JSON).
	KindMedia
	// KindNumbered is a reference whose target table comes from a sibling discriminator column.
	KindNumbered
	// KindStructured holds an arbitrary JSON document.
	KindStructured
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindForeignKey:
		return "foreign_key"
	case KindAncestor:
		return "ancestor"
	case KindFile:
		return "file"
	case KindMedia:
		return "media"
	case KindNumbered:
		return "numbered"
	case KindStructured:
		return "structured"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Polymorphic describes a numbered reference. Targets lists the tables the
// discriminator may name; they act as ordering edges. Resolve is bound by the
// Registry and maps a discriminator value to the concrete table.
type Polymorphic struct {
	Discriminator string
	Targets       []string
	Resolve       func(discriminator int64) (*Table, error)
}

// Column describes one column of a table.
type Column struct {
	Name        string
	Type        Type
	Kind        Kind
	References  string
	Nullable    bool
	Polymorphic *Polymorphic
}

// Table describes a table participating in (or referenced by) duplication.
type Table struct {
	Name       string
	PrimaryKey string
	// Number is the table number stored in polymorphic discriminator columns.
	Number int64
	// Owner is the column holding the owning root entity id (e.g. project_id).
	// Empty for tables whose membership can only be derived through joins.
	Owner   string
	Columns []Column
}

// Column returns the named column and its position.
func (t *Table) Column(name string) (Column, int, bool) {
	for i, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, i, true
		}
	}
	return Column{}, -1, false
}

// Dependencies returns the distinct tables this table references, excluding
// itself. Polymorphic candidate targets are included.
func (t *Table) Dependencies() []string {
	seen := make(map[string]bool)
	var deps []string
	add := func(name string) {
		if name == "" || name == t.Name || seen[name] {
			return
		}
		seen[name] = true
		deps = append(deps, name)
	}
	for _, c := range t.Columns {
		switch c.Kind {
		case KindForeignKey:
			add(c.References)
		case KindNumbered:
			if c.Polymorphic != nil {
				for _, target := range c.Polymorphic.Targets {
					add(target)
				}
			}
		}
	}
	return deps
}

func (t *Table) clone() *Table {
	cp := *t
	cp.Columns = make([]Column, len(t.Columns))
	for i, c := range t.Columns {
		if c.Polymorphic != nil {
			poly := *c.Polymorphic
			poly.Targets = append([]string(nil), c.Polymorphic.Targets...)
			c.Polymorphic = &poly
		}
		cp.Columns[i] = c
	}
	return &cp
}

// ConfigError reports an inconsistent table configuration: unknown tables,
// duplicate registrations or a dependency cycle.
type ConfigError struct {
	Reason string
	Tables []string
}

func (e *ConfigError) Error() string {
	if len(e.Tables) == 0 {
		return "schema configuration: " + e.Reason
	}
	return fmt.Sprintf("schema configuration: %s: %s", e.Reason, strings.Join(e.Tables, ", "))
}

// Column constructors keep the catalog declarations compact.

// PK declares an integer primary key column.
func PK(name string) Column { return Column{Name: name, Type: TypeInteger} }

// Int declares a plain integer column.
func Int(name string) Column { return Column{Name: name, Type: TypeInteger, Nullable: true} }

// Text declares a plain text column.
func Text(name string) Column { return Column{Name: name, Type: TypeText, Nullable: true} }

// Float declares a plain floating point column.
func Float(name string) Column { return Column{Name: name, Type: TypeFloat, Nullable: true} }

// FK declares a required foreign key.
func FK(name, table string) Column {
	return Column{Name: name, Type: TypeInteger, Kind: KindForeignKey, References: table}
}

// NullFK declares an optional foreign key.
func NullFK(name, table string) Column {
	c := FK(name, table)
	c.Nullable = true
	return c
}

// Ancestor declares the self-referential provenance column.
func Ancestor(name string) Column {
	return Column{Name: name, Type: TypeInteger, Kind: KindAncestor, Nullable: true}
}

// File declares a single file locator column.
func File(name string) Column {
	return Column{Name: name, Type: TypeJSON, Kind: KindFile, Nullable: true}
}

// Media declares a media-variant bundle column.
func Media(name string) Column {
	return Column{Name: name, Type: TypeJSON, Kind: KindMedia, Nullable: true}
}

// JSON declares a structured document column.
func JSON(name string) Column {
	return Column{Name: name, Type: TypeJSON, Kind: KindStructured, Nullable: true}
}

// Numbered declares a polymorphic reference resolved through discriminator.
func Numbered(name, discriminator string, targets ...string) Column {
	return Column{
		Name: name,
		Type: TypeInteger,
		Kind: KindNumbered,
		Polymorphic: &Polymorphic{
			Discriminator: discriminator,
			Targets:       targets,
		},
	}
}
