package duplication

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"morphocore/internal/infra/persistence/sqldb"
	"morphocore/internal/schema"
)

// Row is one record of a described table; Values follow Table.Columns.
type Row struct {
	Table  *schema.Table
	Values []any
}

// Get returns the value of the named column.
func (r *Row) Get(column string) (any, bool) {
	_, i, ok := r.Table.Column(column)
	if !ok {
		return nil, false
	}
	return r.Values[i], true
}

// ID returns the primary-key value.
func (r *Row) ID() (int64, error) {
	v, _ := r.Get(r.Table.PrimaryKey)
	id, ok := toInt64(v)
	if !ok {
		return 0, fmt.Errorf("%s: primary key %s is not an integer: %v", r.Table.Name, r.Table.PrimaryKey, v)
	}
	return id, nil
}

func selectSQL(t *schema.Table, q Query) string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = "t." + sqldb.QuoteIdent(c.Name)
	}
	where := q.Where
	if strings.TrimSpace(where) == "" {
		where = "1 = 1"
	}
	return fmt.Sprintf("SELECT %s FROM %s t WHERE %s ORDER BY t.%s",
		strings.Join(cols, ", "), sqldb.QuoteIdent(t.Name), where, sqldb.QuoteIdent(t.PrimaryKey))
}

// fetchRows reads every selected row before returning so the transaction's
// connection is free for inserts.
func fetchRows(ctx context.Context, tx Querier, d sqldb.Dialect, t *schema.Table, q Query) ([]*Row, error) {
	rows, err := tx.QueryContext(ctx, d.Rebind(selectSQL(t, q)), q.Args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", t.Name, err)
	}
	defer func() { _ = rows.Close() }()
	var out []*Row
	for rows.Next() {
		vals := make([]any, len(t.Columns))
		ptrs := make([]any, len(t.Columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.Name, err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		out = append(out, &Row{Table: t, Values: vals})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", t.Name, err)
	}
	return out, nil
}

// insertRow inserts every non-key column and returns the assigned key.
func insertRow(ctx context.Context, tx Querier, d sqldb.Dialect, r *Row) (int64, error) {
	var cols, marks []string
	var args []any
	for i, c := range r.Table.Columns {
		if strings.EqualFold(c.Name, r.Table.PrimaryKey) {
			continue
		}
		cols = append(cols, sqldb.QuoteIdent(c.Name))
		marks = append(marks, "?")
		args = append(args, r.Values[i])
	}
	var query string
	if len(cols) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s",
			sqldb.QuoteIdent(r.Table.Name), sqldb.QuoteIdent(r.Table.PrimaryKey))
	} else {
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			sqldb.QuoteIdent(r.Table.Name), strings.Join(cols, ", "), strings.Join(marks, ", "), sqldb.QuoteIdent(r.Table.PrimaryKey))
	}
	var id int64
	if err := tx.QueryRowContext(ctx, d.Rebind(query), args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert %s: %w", r.Table.Name, err)
	}
	return id, nil
}

func updateColumn(ctx context.Context, tx Querier, d sqldb.Dialect, t *schema.Table, column string, v any, id int64) error {
	query := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?",
		sqldb.QuoteIdent(t.Name), sqldb.QuoteIdent(column), sqldb.QuoteIdent(t.PrimaryKey))
	if _, err := tx.ExecContext(ctx, d.Rebind(query), v, id); err != nil {
		return fmt.Errorf("update %s.%s: %w", t.Name, column, err)
	}
	return nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case float64:
		return int64(n), n == float64(int64(n))
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	case []byte:
		i, err := strconv.ParseInt(strings.TrimSpace(string(n)), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// decodeJSON accepts serialized text or an already decoded value.
func decodeJSON(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, nil
		}
		var out any
		if err := json.Unmarshal([]byte(t), &out); err != nil {
			return nil, err
		}
		return out, nil
	case []byte:
		return decodeJSON(string(t))
	default:
		return t, nil
	}
}

func encodeJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
