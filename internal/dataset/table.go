// Package dataset holds the engineered feature table consumed by the model
// search: one row per time period with the dependent variable, paid-media
// spend columns, context/organic columns and decomposed calendar columns.
package dataset

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Table is a column-oriented numeric table. Columns keep their declared
// order; all columns have the same length. The table is read-only once built
// and safe to share across concurrent trials.
type Table struct {
	names []string
	index map[string]int
	cols  [][]float64
	rows  int
}

// NewTable builds a table from parallel name/column slices. All columns must
// have equal length.
func NewTable(names []string, cols [][]float64) (*Table, error) {
	if len(names) != len(cols) {
		return nil, fmt.Errorf("dataset: %d names for %d columns", len(names), len(cols))
	}
	t := &Table{
		names: append([]string(nil), names...),
		index: make(map[string]int, len(names)),
		cols:  cols,
	}
	if len(cols) > 0 {
		t.rows = len(cols[0])
	}
	for i, name := range names {
		if _, dup := t.index[name]; dup {
			return nil, fmt.Errorf("dataset: duplicate column %q", name)
		}
		if len(cols[i]) != t.rows {
			return nil, fmt.Errorf("dataset: column %q has %d rows, want %d", name, len(cols[i]), t.rows)
		}
		t.index[name] = i
	}
	return t, nil
}

// Len returns the row count.
func (t *Table) Len() int { return t.rows }

// Names returns the column names in declared order.
func (t *Table) Names() []string { return append([]string(nil), t.names...) }

// Column returns the named column's backing slice. Callers must treat it as
// read-only.
func (t *Table) Column(name string) ([]float64, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// MustColumn is Column for callers that have already validated the schema.
func (t *Table) MustColumn(name string) []float64 {
	c, ok := t.Column(name)
	if !ok {
		panic(fmt.Sprintf("dataset: unknown column %q", name))
	}
	return c
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// rawColumn is an intermediate parse result: a column that may still hold
// non-numeric values.
type rawColumn struct {
	name    string
	values  []string
	numeric []float64
	isNum   bool
}

// FromRecords builds a Table from CSV-style records (header plus rows),
// encoding non-numeric columns on the way in:
//
//   - a column whose values all parse as floats is taken verbatim
//   - any other column is treated as categorical and one-hot encoded with
//     the first (sorted) level dropped, producing columns "<name>_<level>"
//
// Blank numeric cells become NaN; the evaluator replaces non-finite cells
// before fitting.
func FromRecords(records [][]string) (*Table, error) {
	if len(records) < 2 {
		return nil, fmt.Errorf("dataset: need a header row and at least one data row, got %d rows", len(records))
	}
	header := records[0]
	n := len(records) - 1

	raw := make([]rawColumn, len(header))
	for j, name := range header {
		col := rawColumn{name: strings.TrimSpace(name), values: make([]string, n), numeric: make([]float64, n), isNum: true}
		for i := 0; i < n; i++ {
			if j >= len(records[i+1]) {
				return nil, fmt.Errorf("dataset: row %d has %d fields, want %d", i+2, len(records[i+1]), len(header))
			}
			cell := strings.TrimSpace(records[i+1][j])
			col.values[i] = cell
			if cell == "" {
				col.numeric[i] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				col.isNum = false
			} else {
				col.numeric[i] = v
			}
		}
		raw[j] = col
	}

	var names []string
	var cols [][]float64
	for _, col := range raw {
		if col.isNum {
			names = append(names, col.name)
			cols = append(cols, col.numeric)
			continue
		}
		oneHotNames, oneHotCols := encodeCategorical(col.name, col.values)
		names = append(names, oneHotNames...)
		cols = append(cols, oneHotCols...)
	}
	return NewTable(names, cols)
}

// encodeCategorical one-hot encodes a string column, dropping the first
// sorted level to avoid perfect collinearity with the intercept.
func encodeCategorical(name string, values []string) ([]string, [][]float64) {
	levelSet := make(map[string]struct{})
	for _, v := range values {
		levelSet[v] = struct{}{}
	}
	levels := make([]string, 0, len(levelSet))
	for l := range levelSet {
		levels = append(levels, l)
	}
	sort.Strings(levels)
	if len(levels) < 2 {
		// Single-level column carries no information; encode as all-zeros so
		// the schema stays intact.
		return []string{name}, [][]float64{make([]float64, len(values))}
	}

	kept := levels[1:]
	names := make([]string, len(kept))
	cols := make([][]float64, len(kept))
	for k, level := range kept {
		names[k] = name + "_" + sanitizeLevel(level)
		col := make([]float64, len(values))
		for i, v := range values {
			if v == level {
				col[i] = 1
			}
		}
		cols[k] = col
	}
	return names, cols
}

func sanitizeLevel(level string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, level)
}
