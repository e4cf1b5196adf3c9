package duplication

import (
	"fmt"
	"sort"
)

// IDMap records table -> source id -> clone id for one run.
type IDMap struct {
	m map[string]map[int64]int64
}

// NewIDMap returns an empty map.
func NewIDMap() *IDMap {
	return &IDMap{m: make(map[string]map[int64]int64)}
}

// Put records a clone. A second entry for the same source row is an error.
func (m *IDMap) Put(table string, src, dst int64) error {
	ids, ok := m.m[table]
	if !ok {
		ids = make(map[int64]int64)
		m.m[table] = ids
	}
	if prev, dup := ids[src]; dup {
		return fmt.Errorf("%s row %d already cloned as %d", table, src, prev)
	}
	ids[src] = dst
	return nil
}

// Lookup returns the clone of src or a *MissingMappingError.
func (m *IDMap) Lookup(table string, src int64) (int64, error) {
	if dst, ok := m.m[table][src]; ok {
		return dst, nil
	}
	return 0, &MissingMappingError{Table: table, ID: src}
}

// Len reports how many rows of table were cloned.
func (m *IDMap) Len(table string) int {
	return len(m.m[table])
}

// Sources returns the cloned source ids of table in ascending order.
func (m *IDMap) Sources(table string) []int64 {
	out := make([]int64, 0, len(m.m[table]))
	for src := range m.m[table] {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
