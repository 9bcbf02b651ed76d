package models

import "strings"

// Table is a materialized tabular result: ordered columns and positional rows.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// ResultSet maps a statement name to its result. A missing name means the
// statement was rejected or failed.
type ResultSet map[string]*Table

// Empty reports whether the table is nil or has no rows.
func (t *Table) Empty() bool {
	return t == nil || len(t.Rows) == 0
}

// ColumnIndex returns the position of a column (case-insensitive) or -1.
func (t *Table) ColumnIndex(name string) int {
	if t == nil {
		return -1
	}
	for i, c := range t.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// Head returns a copy limited to the first n rows.
func (t *Table) Head(n int) *Table {
	if t == nil {
		return nil
	}
	if n < 0 || n > len(t.Rows) {
		n = len(t.Rows)
	}
	rows := make([][]any, n)
	copy(rows, t.Rows[:n])
	return &Table{Columns: append([]string(nil), t.Columns...), Rows: rows}
}

// Records converts rows into column-keyed maps, the shape JSON clients expect.
func (t *Table) Records() []map[string]any {
	if t == nil {
		return nil
	}
	out := make([]map[string]any, len(t.Rows))
	for i, row := range t.Rows {
		m := make(map[string]any, len(t.Columns))
		for j, c := range t.Columns {
			if j < len(row) {
				m[c] = row[j]
			}
		}
		out[i] = m
	}
	return out
}
