package tabular

import (
	"fmt"
	"strconv"
)

// Frame is an ordered set of named columns over string rows.
type Frame struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// Row is a read-only view of one frame row.
type Row struct {
	frame *Frame
	pos   int
}

// New returns an empty frame with the given columns. Duplicate names are
// suffixed with ".1", ".2", ... so every column stays addressable.
func New(columns ...string) *Frame {
	f := &Frame{}
	f.setColumns(columns)
	return f
}

func (f *Frame) setColumns(columns []string) {
	f.columns = make([]string, 0, len(columns))
	f.index = make(map[string]int, len(columns))
	seen := make(map[string]int, len(columns))
	for _, name := range columns {
		unique := name
		if n, ok := seen[name]; ok {
			for {
				n++
				unique = name + "." + strconv.Itoa(n)
				if _, taken := f.index[unique]; !taken {
					break
				}
			}
			seen[name] = n
		} else {
			seen[name] = 0
		}
		f.index[unique] = len(f.columns)
		f.columns = append(f.columns, unique)
	}
}

// Columns returns a copy of the column names in order.
func (f *Frame) Columns() []string {
	return append([]string(nil), f.columns...)
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.rows)
}

// Has reports whether the frame has the named column.
func (f *Frame) Has(column string) bool {
	_, ok := f.index[column]
	return ok
}

// Append adds a row. Short rows are padded with empty cells; long rows are an error.
func (f *Frame) Append(values ...string) error {
	if len(values) > len(f.columns) {
		return fmt.Errorf("row has %d values for %d columns", len(values), len(f.columns))
	}
	row := make([]string, len(f.columns))
	copy(row, values)
	f.rows = append(f.rows, row)
	return nil
}

// AppendRecord adds a row from a column → value map. Unknown keys are ignored.
func (f *Frame) AppendRecord(record map[string]string) {
	row := make([]string, len(f.columns))
	for name, value := range record {
		if i, ok := f.index[name]; ok {
			row[i] = value
		}
	}
	f.rows = append(f.rows, row)
}

// Row returns a view of row i.
func (f *Frame) Row(i int) Row {
	return Row{frame: f, pos: i}
}

// Get returns the value of column in row i, or "" when the column is absent.
func (f *Frame) Get(i int, column string) string {
	c, ok := f.index[column]
	if !ok {
		return ""
	}
	return f.rows[i][c]
}

// Set stores value in column of row i. Setting an absent column is a no-op.
func (f *Frame) Set(i int, column, value string) {
	if c, ok := f.index[column]; ok {
		f.rows[i][c] = value
	}
}

// Values returns a copy of row i's cells in column order.
func (f *Frame) Values(i int) []string {
	return append([]string(nil), f.rows[i]...)
}

// Column returns a copy of every value in column.
func (f *Frame) Column(column string) []string {
	c, ok := f.index[column]
	if !ok {
		return nil
	}
	out := make([]string, len(f.rows))
	for i, row := range f.rows {
		out[i] = row[c]
	}
	return out
}

// Apply replaces every value of column with fn(value).
func (f *Frame) Apply(column string, fn func(string) string) {
	c, ok := f.index[column]
	if !ok {
		return
	}
	for _, row := range f.rows {
		row[c] = fn(row[c])
	}
}

// Insert adds a column at position pos (clamped to the valid range), filling
// it with fn(row). An existing column of the same name is replaced in place.
func (f *Frame) Insert(pos int, column string, fn func(Row) string) {
	if c, ok := f.index[column]; ok {
		for i, row := range f.rows {
			row[c] = fn(f.Row(i))
		}
		return
	}
	if pos < 0 || pos > len(f.columns) {
		pos = len(f.columns)
	}
	values := make([]string, len(f.rows))
	for i := range f.rows {
		values[i] = fn(f.Row(i))
	}
	columns := make([]string, 0, len(f.columns)+1)
	columns = append(columns, f.columns[:pos]...)
	columns = append(columns, column)
	columns = append(columns, f.columns[pos:]...)
	for i, row := range f.rows {
		next := make([]string, 0, len(row)+1)
		next = append(next, row[:pos]...)
		next = append(next, values[i])
		next = append(next, row[pos:]...)
		f.rows[i] = next
	}
	f.setColumns(columns)
}

// Get returns the named cell of the row.
func (r Row) Get(column string) string {
	return r.frame.Get(r.pos, column)
}

// Index returns the row position within its frame.
func (r Row) Index() int {
	return r.pos
}

// Record returns the row as a column → value map.
func (r Row) Record() map[string]string {
	out := make(map[string]string, len(r.frame.columns))
	for i, name := range r.frame.columns {
		out[name] = r.frame.rows[r.pos][i]
	}
	return out
}
