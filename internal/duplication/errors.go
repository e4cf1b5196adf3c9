package duplication

import (
	"errors"
	"fmt"

	"morphocore/internal/schema"
)

// Kind classifies a failed run.
type Kind string

const (
	// KindConfiguration covers cyclic or inconsistent table configuration,
	// unknown tables and unusable options. Never retried.
	KindConfiguration Kind = "configuration"
	// KindMissingMapping means a reference into a participating table had no
	// clone yet: an ordering or scope bug.
	KindMissingMapping Kind = "missing_mapping"
	// KindDatabase wraps select, insert and update failures.
	KindDatabase Kind = "database"
	// KindBlob wraps local file and object store copy failures.
	KindBlob Kind = "blob"
)

// DuplicationError is the single error returned by a failed run. Table and
// SourceID locate the row being cloned when the failure happened, if any.
type DuplicationError struct {
	Kind     Kind
	Table    string
	SourceID int64
	Err      error
}

func (e *DuplicationError) Error() string {
	switch {
	case e.Table != "" && e.SourceID != 0:
		return fmt.Sprintf("duplication %s error at %s row %d: %v", e.Kind, e.Table, e.SourceID, e.Err)
	case e.Table != "":
		return fmt.Sprintf("duplication %s error at %s: %v", e.Kind, e.Table, e.Err)
	default:
		return fmt.Sprintf("duplication %s error: %v", e.Kind, e.Err)
	}
}

func (e *DuplicationError) Unwrap() error { return e.Err }

// ErrMissingMapping matches every *MissingMappingError.
var ErrMissingMapping = errors.New("missing id mapping")

// MissingMappingError names the reference that had no clone.
type MissingMappingError struct {
	Table string
	ID    int64
}

func (e *MissingMappingError) Error() string {
	return fmt.Sprintf("%s: no clone of %s row %d", ErrMissingMapping, e.Table, e.ID)
}

// Is reports ErrMissingMapping equivalence.
func (e *MissingMappingError) Is(target error) bool { return target == ErrMissingMapping }

func configErr(table string, err error) *DuplicationError {
	return &DuplicationError{Kind: KindConfiguration, Table: table, Err: err}
}

// classify wraps err unless it already is a *DuplicationError. Missing
// mappings and schema configuration errors keep their own kind.
func classify(kind Kind, table string, id int64, err error) error {
	var de *DuplicationError
	if errors.As(err, &de) {
		return err
	}
	var ce *schema.ConfigError
	switch {
	case errors.Is(err, ErrMissingMapping):
		kind = KindMissingMapping
	case errors.As(err, &ce):
		kind = KindConfiguration
	}
	return &DuplicationError{Kind: kind, Table: table, SourceID: id, Err: err}
}
