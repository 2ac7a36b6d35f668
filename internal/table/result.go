// Package table holds query results as ordered, immutable columns and the
// helpers that classify and coerce them before charting.
package table

import (
	"errors"
	"fmt"
	"strings"
)

var ErrRaggedColumns = errors.New("columns have different lengths")

// ColumnType is the storage type a column was declared with, if known.
type ColumnType int

const (
	TypeUnknown ColumnType = iota
	TypeInteger
	TypeReal
	TypeText
	TypeTimestamp
)

func (t ColumnType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeReal:
		return "real"
	case TypeText:
		return "text"
	case TypeTimestamp:
		return "timestamp"
	default:
		return "unknown"
	}
}

// ParseDeclaredType maps a SQL declared type (as reported by the driver) to
// a ColumnType. Expression columns have no declared type.
func ParseDeclaredType(decl string) ColumnType {
	decl = strings.ToUpper(strings.TrimSpace(decl))
	if i := strings.IndexByte(decl, '('); i >= 0 {
		decl = decl[:i]
	}
	switch decl {
	case "":
		return TypeUnknown
	case "INT", "INTEGER", "BIGINT", "SMALLINT", "TINYINT", "MEDIUMINT", "BOOLEAN", "BOOL":
		return TypeInteger
	case "REAL", "FLOAT", "DOUBLE", "DOUBLE PRECISION", "NUMERIC", "DECIMAL":
		return TypeReal
	case "DATE", "DATETIME", "TIMESTAMP":
		return TypeTimestamp
	default:
		return TypeText
	}
}

// Column is one named column of a Result.
type Column struct {
	Name   string
	Type   ColumnType
	Values []any
}

// Result is an ordered set of equally long columns. The zero value is an
// empty result. A Result never exposes its backing slices.
type Result struct {
	columns []Column
	rows    int
}

// New copies cols into a Result.
func New(cols ...Column) (*Result, error) {
	r := &Result{columns: make([]Column, len(cols))}
	for i, c := range cols {
		if i == 0 {
			r.rows = len(c.Values)
		} else if len(c.Values) != r.rows {
			return nil, fmt.Errorf("%w: %q has %d values, want %d", ErrRaggedColumns, c.Name, len(c.Values), r.rows)
		}
		r.columns[i] = Column{Name: c.Name, Type: c.Type, Values: cloneValues(c.Values)}
	}
	return r, nil
}

// FromRows builds a Result from a header and row-major values.
func FromRows(names []string, types []ColumnType, rows [][]any) (*Result, error) {
	cols := make([]Column, len(names))
	for i, name := range names {
		cols[i] = Column{Name: name, Values: make([]any, len(rows))}
		if i < len(types) {
			cols[i].Type = types[i]
		}
	}
	for r, row := range rows {
		if len(row) != len(names) {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrRaggedColumns, r, len(row), len(names))
		}
		for c, v := range row {
			cols[c].Values[r] = v
		}
	}
	return &Result{columns: cols, rows: len(rows)}, nil
}

func (r *Result) NumRows() int {
	if r == nil {
		return 0
	}
	return r.rows
}

func (r *Result) NumColumns() int {
	if r == nil {
		return 0
	}
	return len(r.columns)
}

// Empty reports whether the result has no rows or no columns.
func (r *Result) Empty() bool {
	return r.NumRows() == 0 || r.NumColumns() == 0
}

func (r *Result) Names() []string {
	names := make([]string, r.NumColumns())
	for i := range names {
		names[i] = r.columns[i].Name
	}
	return names
}

func (r *Result) Types() []ColumnType {
	types := make([]ColumnType, r.NumColumns())
	for i := range types {
		types[i] = r.columns[i].Type
	}
	return types
}

// Index returns the position of the first column with the given name, or -1.
func (r *Result) Index(name string) int {
	for i := 0; i < r.NumColumns(); i++ {
		if r.columns[i].Name == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of the named column.
func (r *Result) Column(name string) (Column, bool) {
	i := r.Index(name)
	if i < 0 {
		return Column{}, false
	}
	c := r.columns[i]
	return Column{Name: c.Name, Type: c.Type, Values: cloneValues(c.Values)}, true
}

func (r *Result) Value(row, col int) any {
	return r.columns[col].Values[row]
}

// Row returns a copy of row i in column order.
func (r *Result) Row(i int) []any {
	row := make([]any, len(r.columns))
	for c := range r.columns {
		row[c] = r.columns[c].Values[i]
	}
	return row
}

// Rows returns a row-major copy of all values.
func (r *Result) Rows() [][]any {
	rows := make([][]any, r.NumRows())
	for i := range rows {
		rows[i] = r.Row(i)
	}
	return rows
}

// Records returns one map per row, keyed by column name.
func (r *Result) Records() []map[string]any {
	records := make([]map[string]any, r.NumRows())
	for i := range records {
		rec := make(map[string]any, len(r.columns))
		for _, c := range r.columns {
			rec[c.Name] = c.Values[i]
		}
		records[i] = rec
	}
	return records
}

// Strings renders every value for display; NULL becomes an empty string.
func (r *Result) Strings() [][]string {
	out := make([][]string, r.NumRows())
	for i := range out {
		out[i] = make([]string, len(r.columns))
		for c := range r.columns {
			out[i][c] = FormatValue(r.columns[c].Values[i])
		}
	}
	return out
}

func cloneValues(values []any) []any {
	if values == nil {
		return nil
	}
	out := make([]any, len(values))
	copy(out, values)
	return out
}
