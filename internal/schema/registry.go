package schema

import (
	"fmt"
	"sort"
)

// Registry indexes tables by name and by table number. It is immutable after
// construction and safe to share across concurrent duplication runs.
type Registry struct {
	tables   []*Table
	byName   map[string]*Table
	byNumber map[int64]*Table
}

// NewRegistry validates and indexes the supplied tables. Tables are copied so
// later mutation by the caller does not leak into the registry.
func NewRegistry(tables ...*Table) (*Registry, error) {
	r := &Registry{
		byName:   make(map[string]*Table, len(tables)),
		byNumber: make(map[int64]*Table, len(tables)),
	}
	for _, t := range tables {
		if t == nil || t.Name == "" {
			return nil, &ConfigError{Reason: "table without name"}
		}
		if t.PrimaryKey == "" {
			return nil, &ConfigError{Reason: "table without primary key", Tables: []string{t.Name}}
		}
		if _, dup := r.byName[t.Name]; dup {
			return nil, &ConfigError{Reason: "duplicate table", Tables: []string{t.Name}}
		}
		cp := t.clone()
		if cp.Number != 0 {
			if other, dup := r.byNumber[cp.Number]; dup {
				return nil, &ConfigError{Reason: fmt.Sprintf("duplicate table number %d", cp.Number), Tables: []string{other.Name, cp.Name}}
			}
			r.byNumber[cp.Number] = cp
		}
		r.byName[cp.Name] = cp
		r.tables = append(r.tables, cp)
	}
	for _, t := range r.tables {
		if _, _, ok := t.Column(t.PrimaryKey); !ok {
			return nil, &ConfigError{Reason: "primary key column not declared", Tables: []string{t.Name}}
		}
		for i := range t.Columns {
			c := &t.Columns[i]
			switch c.Kind {
			case KindForeignKey:
				if c.References == t.Name {
					return nil, &ConfigError{Reason: fmt.Sprintf("column %s references its own table; declare it as an ancestor column", c.Name), Tables: []string{t.Name}}
				}
				if _, ok := r.byName[c.References]; !ok {
					return nil, &ConfigError{Reason: fmt.Sprintf("column %s.%s references unknown table %s", t.Name, c.Name, c.References), Tables: []string{t.Name}}
				}
			case KindAncestor:
				c.References = t.Name
			case KindNumbered:
				if c.Polymorphic == nil || c.Polymorphic.Discriminator == "" {
					return nil, &ConfigError{Reason: fmt.Sprintf("numbered column %s has no discriminator", c.Name), Tables: []string{t.Name}}
				}
				if _, _, ok := t.Column(c.Polymorphic.Discriminator); !ok {
					return nil, &ConfigError{Reason: fmt.Sprintf("discriminator %s not declared", c.Polymorphic.Discriminator), Tables: []string{t.Name}}
				}
				for _, target := range c.Polymorphic.Targets {
					if _, ok := r.byName[target]; !ok {
						return nil, &ConfigError{Reason: fmt.Sprintf("numbered column %s targets unknown table %s", c.Name, target), Tables: []string{t.Name}}
					}
				}
				c.Polymorphic.Resolve = r.resolverFor(c.Polymorphic.Targets)
			}
		}
	}
	return r, nil
}

// Polymorphic builds a resolver for a column that is numbered by
// configuration rather than by declaration. Any registered table may be named
// by the discriminator.
func (r *Registry) Polymorphic(discriminator string) *Polymorphic {
	return &Polymorphic{Discriminator: discriminator, Resolve: r.resolverFor(nil)}
}

func (r *Registry) resolverFor(targets []string) func(int64) (*Table, error) {
	allowed := make(map[string]bool, len(targets))
	for _, t := range targets {
		allowed[t] = true
	}
	return func(n int64) (*Table, error) {
		t, err := r.ByNumber(n)
		if err != nil {
			return nil, err
		}
		if len(allowed) > 0 && !allowed[t.Name] {
			return nil, fmt.Errorf("table number %d (%s) is not a permitted target", n, t.Name)
		}
		return t, nil
	}
}

// Tables returns every registered table in registration order.
func (r *Registry) Tables() []*Table {
	out := make([]*Table, len(r.tables))
	copy(out, r.tables)
	return out
}

// Table looks a table up by name.
func (r *Registry) Table(name string) (*Table, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// ByNumber looks a table up by its numeric identifier.
func (r *Registry) ByNumber(n int64) (*Table, error) {
	t, ok := r.byNumber[n]
	if !ok {
		return nil, fmt.Errorf("unknown table number %d", n)
	}
	return t, nil
}

// PrimaryKey returns the primary-key column of the named table.
func (r *Registry) PrimaryKey(name string) (string, error) {
	t, ok := r.byName[name]
	if !ok {
		return "", &ConfigError{Reason: "unknown table", Tables: []string{name}}
	}
	return t.PrimaryKey, nil
}

// Order returns the participating tables so that every table comes after all
// participating tables it references. Self-references and references to
// ignored or non-participating tables impose no constraint. Ties keep the
// caller's order. A cycle yields a *ConfigError listing the tables on it.
func (r *Registry) Order(participating, ignored []string) ([]*Table, error) {
	return r.OrderNumbered(participating, ignored, nil)
}

// OrderNumbered is Order for a run that also treats the columns in numbered
// (column name to discriminator) as polymorphic references. A numbered column
// without declared targets may point at any table, so its table is ordered
// after every other participating table.
func (r *Registry) OrderNumbered(participating, ignored []string, numbered map[string]string) ([]*Table, error) {
	ignoredSet := make(map[string]bool, len(ignored))
	for _, name := range ignored {
		if _, ok := r.byName[name]; !ok {
			return nil, &ConfigError{Reason: "unknown ignored table", Tables: []string{name}}
		}
		ignoredSet[name] = true
	}
	inSet := make(map[string]bool, len(participating))
	var tables []*Table
	for _, name := range participating {
		t, ok := r.byName[name]
		if !ok {
			return nil, &ConfigError{Reason: "unknown participating table", Tables: []string{name}}
		}
		if ignoredSet[name] {
			return nil, &ConfigError{Reason: "table both participating and ignored", Tables: []string{name}}
		}
		if inSet[name] {
			continue
		}
		inSet[name] = true
		tables = append(tables, t)
	}

	inDegree := make(map[string]int, len(tables))
	dependents := make(map[string][]string)
	for _, t := range tables {
		deps := t.Dependencies()
		if openNumbered(t, numbered) {
			for _, other := range tables {
				deps = append(deps, other.Name)
			}
		}
		seen := make(map[string]bool, len(deps))
		for _, dep := range deps {
			if dep == t.Name || seen[dep] || !inSet[dep] {
				continue
			}
			seen[dep] = true
			inDegree[t.Name]++
			dependents[dep] = append(dependents[dep], t.Name)
		}
	}

	done := make(map[string]bool, len(tables))
	sorted := make([]*Table, 0, len(tables))
	for len(sorted) < len(tables) {
		progressed := false
		for _, t := range tables {
			if done[t.Name] || inDegree[t.Name] != 0 {
				continue
			}
			done[t.Name] = true
			sorted = append(sorted, t)
			for _, child := range dependents[t.Name] {
				inDegree[child]--
			}
			progressed = true
			break
		}
		if !progressed {
			return nil, &ConfigError{Reason: "dependency cycle", Tables: onCycle(tables, done, dependents)}
		}
	}
	return sorted, nil
}

// openNumbered reports whether t has a polymorphic column with no declared
// target list, either declared or named in numbered.
func openNumbered(t *Table, numbered map[string]string) bool {
	for _, c := range t.Columns {
		if c.Kind == KindNumbered && (c.Polymorphic == nil || len(c.Polymorphic.Targets) == 0) {
			return true
		}
	}
	for name := range numbered {
		if c, _, ok := t.Column(name); ok && c.Kind != KindNumbered {
			return true
		}
	}
	return false
}

// onCycle returns, sorted, the unordered tables that reach themselves through
// dependents. Tables that only wait on a cycle are left out.
func onCycle(tables []*Table, done map[string]bool, dependents map[string][]string) []string {
	var cycle []string
	for _, t := range tables {
		if done[t.Name] {
			continue
		}
		visited := make(map[string]bool)
		stack := append([]string(nil), dependents[t.Name]...)
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if n == t.Name {
				cycle = append(cycle, t.Name)
				break
			}
			if visited[n] || done[n] {
				continue
			}
			visited[n] = true
			stack = append(stack, dependents[n]...)
		}
	}
	sort.Strings(cycle)
	return cycle
}
