// Package duplication clones a root entity and every dependent row across
// the participating tables inside one database transaction, remapping
// foreign keys to the new identifiers and copying the binary assets the rows
// point at. Blob copies cannot join the transaction; a failed run deletes
// whatever files and objects it created.
package duplication

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"morphocore/internal/infra/persistence/sqldb"
	"morphocore/internal/media"
	"morphocore/internal/observability"
	"morphocore/internal/schema"
)

// Orchestrator runs one duplication. It is not reusable: a second Duplicate
// fails with a configuration error.
type Orchestrator struct {
	cfg      Config
	order    []*schema.Table
	numbered map[string]map[string]*schema.Polymorphic
	run      *Run
	used     bool

	logger  observability.Logger
	metrics observability.MetricsRecorder
	tracer  observability.Tracer
}

// New validates cfg and computes the table order.
func New(cfg Config, opts ...Option) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, configErr("", err)
	}
	order, err := cfg.Registry.OrderNumbered(cfg.Participating, cfg.Ignored, cfg.NumberedColumns)
	if err != nil {
		return nil, configErr("", err)
	}
	if cfg.Source == nil {
		cfg.Source = ProjectSource{}
	}
	if cfg.Dialect == "" {
		cfg.Dialect = sqldb.SQLite
	}
	o := &Orchestrator{
		cfg:     cfg,
		order:   order,
		logger:  observability.NopLogger(),
		metrics: observability.NopMetrics(),
		tracer:  observability.NopTracer(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.numbered, err = o.numberedColumns(); err != nil {
		return nil, err
	}
	return o, nil
}

// numberedColumns binds configured numbered columns to registry resolvers,
// per table. Declared numbered columns keep their own resolver.
func (o *Orchestrator) numberedColumns() (map[string]map[string]*schema.Polymorphic, error) {
	out := make(map[string]map[string]*schema.Polymorphic)
	for _, t := range o.order {
		cols := make(map[string]*schema.Polymorphic)
		for _, c := range t.Columns {
			if c.Kind == schema.KindNumbered && c.Polymorphic != nil {
				cols[c.Name] = c.Polymorphic
			}
		}
		for name, disc := range o.cfg.NumberedColumns {
			c, _, ok := t.Column(name)
			if !ok || cols[c.Name] != nil {
				continue
			}
			if _, _, ok := t.Column(disc); !ok {
				return nil, configErr(t.Name, fmt.Errorf("numbered column %s: discriminator %s not declared", name, disc))
			}
			cols[c.Name] = o.cfg.Registry.Polymorphic(disc)
		}
		if len(cols) > 0 {
			out[t.Name] = cols
		}
	}
	return out, nil
}

// Order returns the tables in the order they are cloned.
func (o *Orchestrator) Order() []*schema.Table {
	return append([]*schema.Table(nil), o.order...)
}

// IDs exposes the mapping of the current run, or nil before Duplicate.
func (o *Orchestrator) IDs() *IDMap {
	if o.run == nil {
		return nil
	}
	return o.run.IDs
}

// CreatedFiles returns the local paths created by the run.
func (o *Orchestrator) CreatedFiles() []string {
	if o.run == nil {
		return nil
	}
	return o.run.CreatedFiles()
}

// CreatedObjects returns the object keys created by the run.
func (o *Orchestrator) CreatedObjects() []string {
	if o.run == nil {
		return nil
	}
	return o.run.remote.Ledger()
}

// Duplicate clones the configured root through cfg.Tx and returns the id of
// the new root row. On failure it compensates before returning; the caller
// rolls the transaction back.
func (o *Orchestrator) Duplicate(ctx context.Context) (int64, error) {
	if o.used {
		return 0, configErr("", errors.New("orchestrator already used; create one per run"))
	}
	o.used = true
	if o.cfg.Tx == nil {
		return 0, configErr("", errors.New("no transaction"))
	}
	o.run = newRun(&o.cfg)
	if o.cfg.Local != nil {
		o.run.local = media.NewLocalDuplicator(*o.cfg.Local, o.logger)
	}
	o.run.remote = media.NewRemoteDuplicator(o.cfg.Remote, o.logger)

	var newID int64
	err := observability.Observe(ctx, o.tracer, o.metrics, "duplicate", func(ctx context.Context) error {
		o.logger.Info("duplication started", "run", o.run.ID, "table", o.cfg.RootTable, "id", o.cfg.RootID, "tables", len(o.order))
		for _, t := range o.order {
			if err := o.cloneTable(ctx, t); err != nil {
				return err
			}
		}
		id, err := o.run.IDs.Lookup(o.cfg.RootTable, o.cfg.RootID)
		if err != nil {
			return classify(KindMissingMapping, o.cfg.RootTable, o.cfg.RootID, err)
		}
		newID = id
		return nil
	})
	if err != nil {
		o.logger.Error("duplication failed", "run", o.run.ID, "err", err)
		o.Compensate(ctx)
		return 0, err
	}
	o.logger.Info("duplication finished", "run", o.run.ID, "table", o.cfg.RootTable, "id", o.cfg.RootID, "new_id", newID)
	return newID, nil
}

// Run owns the transaction: it begins one on db, duplicates and commits. A
// failed commit compensates the blob copies.
func (o *Orchestrator) Run(ctx context.Context, db *sql.DB) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &DuplicationError{Kind: KindDatabase, Err: fmt.Errorf("begin: %w", err)}
	}
	o.cfg.Tx = tx
	id, err := o.Duplicate(ctx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			o.logger.Error("rollback failed", "err", rbErr)
		}
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		o.Compensate(ctx)
		return 0, &DuplicationError{Kind: KindDatabase, Err: fmt.Errorf("commit: %w", err)}
	}
	return id, nil
}

// Compensate deletes every local file and remote object the run created.
// Failures are logged; calling it again is harmless.
func (o *Orchestrator) Compensate(ctx context.Context) {
	if o.run == nil {
		return
	}
	if len(o.run.created) > 0 {
		if err := media.RemoveFiles(o.run.created); err != nil {
			o.logger.Error("remove created files", "run", o.run.ID, "err", err)
		}
		o.logger.Warn("removed created files", "run", o.run.ID, "count", len(o.run.created))
		o.run.created = nil
	}
	if o.run.remote != nil {
		n := len(o.run.remote.Ledger())
		if err := o.run.remote.Rollback(ctx); err != nil {
			o.logger.Error("delete created objects", "run", o.run.ID, "err", err)
		}
		if n > 0 {
			o.logger.Warn("deleted created objects", "run", o.run.ID, "count", n)
		}
	}
}

// staged is an asset column detached from a row until the row has an id.
type staged struct {
	column string
	value  map[string]any
}

func (o *Orchestrator) cloneTable(ctx context.Context, t *schema.Table) error {
	q, err := o.cfg.Source.Resolve(ctx, o.run, t)
	if err != nil {
		return classify(KindDatabase, t.Name, 0, err)
	}
	rows, err := fetchRows(ctx, o.cfg.Tx, o.cfg.Dialect, t, q)
	if err != nil {
		return classify(KindDatabase, t.Name, 0, err)
	}
	o.logger.Debug("cloning table", "run", o.run.ID, "table", t.Name, "rows", len(rows))
	for _, row := range rows {
		if err := o.cloneRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) cloneRow(ctx context.Context, row *Row) error {
	t := row.Table
	srcID, err := row.ID()
	if err != nil {
		return classify(KindDatabase, t.Name, 0, err)
	}
	source := append([]any(nil), row.Values...)
	var assets []staged
	for i, c := range t.Columns {
		v := row.Values[i]
		switch {
		case c.Name == t.PrimaryKey:
			row.Values[i] = nil
		case c.Kind == schema.KindFile || c.Kind == schema.KindMedia:
			row.Values[i] = nil
			if md := o.decodeAsset(t, c, srcID, v); md != nil {
				assets = append(assets, staged{column: c.Name, value: md})
			}
		case c.Kind == schema.KindForeignKey:
			mapped, err := o.remap(c.References, v)
			if err != nil {
				return classify(KindDatabase, t.Name, srcID, fmt.Errorf("column %s: %w", c.Name, err))
			}
			row.Values[i] = mapped
		case c.Kind == schema.KindAncestor:
			row.Values[i] = srcID
		}
	}
	if err := o.remapNumbered(row, source); err != nil {
		return classify(KindConfiguration, t.Name, srcID, err)
	}
	for i, c := range t.Columns {
		if c.Name == t.PrimaryKey {
			continue
		}
		if v, ok := o.cfg.override(t.Name, c.Name); ok {
			row.Values[i] = v
		}
	}
	for i, c := range t.Columns {
		if c.Kind != schema.KindStructured || row.Values[i] == nil {
			continue
		}
		row.Values[i] = o.encodeStructured(t, c, srcID, row.Values[i])
	}

	newID, err := insertRow(ctx, o.cfg.Tx, o.cfg.Dialect, row)
	if err != nil {
		return classify(KindDatabase, t.Name, srcID, err)
	}
	if err := o.run.IDs.Put(t.Name, srcID, newID); err != nil {
		return classify(KindConfiguration, t.Name, srcID, err)
	}

	for _, a := range assets {
		if err := o.copyAsset(ctx, t, source, srcID, newID, a); err != nil {
			return err
		}
	}
	return nil
}

// remap translates a reference into a participating table. Nulls and
// references to other tables are kept.
func (o *Orchestrator) remap(table string, v any) (any, error) {
	if v == nil || !o.run.Participates(table) {
		return v, nil
	}
	id, ok := toInt64(v)
	if !ok {
		return nil, fmt.Errorf("reference %v into %s is not an integer", v, table)
	}
	return o.run.IDs.Lookup(table, id)
}

// remapNumbered resolves each numbered column through the table its source
// discriminator names.
func (o *Orchestrator) remapNumbered(row *Row, source []any) error {
	t := row.Table
	for name, poly := range o.numbered[t.Name] {
		_, i, _ := t.Column(name)
		_, di, _ := t.Column(poly.Discriminator)
		if source[i] == nil || source[di] == nil {
			continue
		}
		num, ok := toInt64(source[di])
		if !ok {
			return fmt.Errorf("discriminator %s value %v is not an integer", poly.Discriminator, source[di])
		}
		target, err := poly.Resolve(num)
		if err != nil {
			return fmt.Errorf("column %s: %w", name, err)
		}
		mapped, err := o.remap(target.Name, source[i])
		if err != nil {
			return fmt.Errorf("column %s: %w", name, err)
		}
		row.Values[i] = mapped
	}
	return nil
}

func (o *Orchestrator) decodeAsset(t *schema.Table, c schema.Column, id int64, v any) map[string]any {
	decoded, err := decodeJSON(v)
	if err != nil {
		o.logger.Warn("asset metadata is not valid JSON, leaving it unset", "table", t.Name, "column", c.Name, "id", id, "err", err)
		return nil
	}
	md, ok := decoded.(map[string]any)
	if !ok {
		if decoded != nil {
			o.logger.Warn("asset metadata is not an object, leaving it unset", "table", t.Name, "column", c.Name, "id", id)
		}
		return nil
	}
	return md
}

// encodeStructured stores decoded documents as JSON text. Values that are
// already text are validated and passed through unchanged.
func (o *Orchestrator) encodeStructured(t *schema.Table, c schema.Column, id int64, v any) any {
	if s, ok := v.(string); ok {
		if _, err := decodeJSON(s); err != nil {
			o.logger.Warn("structured column holds invalid JSON, copying raw", "table", t.Name, "column", c.Name, "id", id, "err", err)
		}
		return s
	}
	enc, err := encodeJSON(v)
	if err != nil {
		o.logger.Warn("structured column not encodable, copying raw", "table", t.Name, "column", c.Name, "id", id, "err", err)
		return v
	}
	return enc
}

// owners returns the owning entity before and after cloning, used to
// namespace copied assets. Tables without an owning column use the root.
func (o *Orchestrator) owners(t *schema.Table, source []any) (int64, int64) {
	if c, i, ok := t.Column(t.Owner); ok && t.Owner != "" {
		if old, ok := toInt64(source[i]); ok {
			mapped, err := o.remap(c.References, old)
			if id, ok := toInt64(mapped); err == nil && ok {
				return old, id
			}
			return old, old
		}
	}
	mapped, err := o.run.IDs.Lookup(o.cfg.RootTable, o.cfg.RootID)
	if err != nil {
		mapped = o.cfg.RootID
	}
	return o.cfg.RootID, mapped
}

func (o *Orchestrator) copyAsset(ctx context.Context, t *schema.Table, source []any, srcID, newID int64, a staged) error {
	oldOwner, newOwner := o.owners(t, source)
	req := media.Request{
		Table:      t.Name,
		Column:     a.column,
		OldOwnerID: oldOwner,
		NewOwnerID: newOwner,
		OldAssetID: srcID,
		NewAssetID: newID,
		Metadata:   a.value,
	}
	var out media.Metadata
	switch media.Classify(a.value) {
	case media.VariantRemote:
		md, err := o.run.remote.Copy(ctx, req)
		if err != nil {
			return classify(KindBlob, t.Name, srcID, err)
		}
		out = md
	case media.VariantLocal:
		if o.run.local == nil {
			o.logger.Warn("no local media root configured, leaving asset unset", "table", t.Name, "column", a.column, "id", srcID)
			return nil
		}
		res, err := o.run.local.Copy(ctx, req)
		o.run.created = append(o.run.created, res.Created...)
		if err != nil {
			return classify(KindBlob, t.Name, srcID, err)
		}
		out = res.Metadata
	default:
		o.logger.Warn("asset has neither object key nor filename, skipping", "table", t.Name, "column", a.column, "id", srcID)
		return nil
	}
	if out == nil {
		return nil
	}
	enc, err := encodeJSON(out)
	if err != nil {
		return classify(KindBlob, t.Name, srcID, fmt.Errorf("encode %s metadata: %w", a.column, err))
	}
	if err := updateColumn(ctx, o.cfg.Tx, o.cfg.Dialect, t, a.column, enc, newID); err != nil {
		return classify(KindDatabase, t.Name, srcID, err)
	}
	return nil
}
