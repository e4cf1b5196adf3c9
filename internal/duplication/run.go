package duplication

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"morphocore/internal/media"
	"morphocore/internal/schema"
)

// Run is the private state of one duplication. It is created by Duplicate
// and never shared between runs.
type Run struct {
	ID  string
	IDs *IDMap

	cfg           *Config
	participating map[string]bool
	created       []string
	local         *media.LocalDuplicator
	remote        *media.RemoteDuplicator
	derived       map[string][]int64
}

func newRun(cfg *Config) *Run {
	r := &Run{
		ID:            uuid.NewString(),
		IDs:           NewIDMap(),
		cfg:           cfg,
		participating: make(map[string]bool, len(cfg.Participating)),
		derived:       make(map[string][]int64),
	}
	ignored := make(map[string]bool, len(cfg.Ignored))
	for _, name := range cfg.Ignored {
		ignored[name] = true
	}
	for _, name := range cfg.Participating {
		if !ignored[name] {
			r.participating[name] = true
		}
	}
	return r
}

// RootID is the id of the entity being duplicated.
func (r *Run) RootID() int64 { return r.cfg.RootID }

// RootTable names the table of the entity being duplicated.
func (r *Run) RootTable() string { return r.cfg.RootTable }

// Registry returns the schema registry of the run.
func (r *Run) Registry() *schema.Registry { return r.cfg.Registry }

// Participates reports whether rows of table are cloned in this run.
func (r *Run) Participates(table string) bool { return r.participating[table] }

// CreatedFiles returns the local paths created so far, in creation order.
func (r *Run) CreatedFiles() []string {
	return append([]string(nil), r.created...)
}

// DerivedIDs returns a cached derived id set.
func (r *Run) DerivedIDs(table string) ([]int64, bool) {
	ids, ok := r.derived[table]
	return ids, ok
}

// SetDerivedIDs caches a derived id set, sorted and deduplicated.
func (r *Run) SetDerivedIDs(table string, ids []int64) []int64 {
	set := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !set[id] {
			set[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	r.derived[table] = out
	return out
}

// QueryIDs runs a single-column integer query inside the run's transaction.
func (r *Run) QueryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := r.cfg.Tx.QueryContext(ctx, r.cfg.Dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var ids []int64
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		id, ok := toInt64(v)
		if !ok {
			return nil, fmt.Errorf("non-integer id %v", v)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
