package tabular

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Keep selects which duplicate survives deduplication.
type Keep int

const (
	KeepFirst Keep = iota
	KeepLast
)

// Select returns a new frame with only the named columns, in that order.
// Missing columns are an error.
func (f *Frame) Select(columns ...string) (*Frame, error) {
	var missing []string
	for _, name := range columns {
		if !f.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	out, _ := f.Reindex(columns...)
	return out, nil
}

// Reindex returns a new frame with the named columns in order. Columns absent
// from f are created empty and reported in missing.
func (f *Frame) Reindex(columns ...string) (*Frame, []string) {
	out := New(columns...)
	src := make([]int, len(out.columns))
	var missing []string
	for i, name := range out.columns {
		if c, ok := f.index[name]; ok {
			src[i] = c
		} else {
			src[i] = -1
			missing = append(missing, name)
		}
	}
	out.rows = make([][]string, len(f.rows))
	for r, row := range f.rows {
		next := make([]string, len(src))
		for i, c := range src {
			if c >= 0 {
				next[i] = row[c]
			}
		}
		out.rows[r] = next
	}
	return out, missing
}

// Rename renames columns in place using an old → new mapping.
func (f *Frame) Rename(mapping map[string]string) *Frame {
	columns := f.Columns()
	for i, name := range columns {
		if next, ok := mapping[name]; ok {
			columns[i] = next
		}
	}
	f.setColumns(columns)
	return f
}

// Drop removes the named columns in place. Unknown names are ignored.
func (f *Frame) Drop(columns ...string) *Frame {
	drop := make(map[string]bool, len(columns))
	for _, name := range columns {
		drop[name] = true
	}
	keep := make([]string, 0, len(f.columns))
	for _, name := range f.columns {
		if !drop[name] {
			keep = append(keep, name)
		}
	}
	if len(keep) == len(f.columns) {
		return f
	}
	next, _ := f.Reindex(keep...)
	*f = *next
	return f
}

// Filter returns a new frame with the rows for which keep returns true.
func (f *Frame) Filter(keep func(Row) bool) *Frame {
	out := New(f.columns...)
	for i, row := range f.rows {
		if keep(f.Row(i)) {
			out.rows = append(out.rows, append([]string(nil), row...))
		}
	}
	return out
}

// SortBy stably sorts rows in place by the named columns, compared as strings.
func (f *Frame) SortBy(columns ...string) *Frame {
	idx := f.indices(columns)
	sort.SliceStable(f.rows, func(a, b int) bool {
		for _, c := range idx {
			if f.rows[a][c] != f.rows[b][c] {
				return f.rows[a][c] < f.rows[b][c]
			}
		}
		return false
	})
	return f
}

// Dedupe returns a new frame without rows that repeat the values of the named
// columns (every column when none are named). KeepFirst keeps the earliest
// occurrence, KeepLast the latest; surviving rows keep their relative order.
// Naming a column the frame does not have returns an unchanged copy.
func (f *Frame) Dedupe(keep Keep, columns ...string) *Frame {
	if len(columns) == 0 {
		columns = f.columns
	}
	idx := f.indices(columns)
	if len(idx) != len(columns) {
		return f.Filter(func(Row) bool { return true })
	}
	key := func(row []string) string {
		parts := make([]string, len(idx))
		for i, c := range idx {
			parts[i] = row[c]
		}
		return strings.Join(parts, "\x1f")
	}

	winner := make(map[string]int, len(f.rows))
	for i, row := range f.rows {
		k := key(row)
		if _, seen := winner[k]; seen && keep == KeepFirst {
			continue
		}
		winner[k] = i
	}
	out := New(f.columns...)
	for i, row := range f.rows {
		if winner[key(row)] == i {
			out.rows = append(out.rows, append([]string(nil), row...))
		}
	}
	return out
}

// Concat stacks frames vertically. The result has the union of columns in
// order of first appearance; cells absent from a source frame are empty.
func Concat(frames ...*Frame) *Frame {
	var columns []string
	seen := map[string]bool{}
	for _, f := range frames {
		if f == nil {
			continue
		}
		for _, name := range f.columns {
			if !seen[name] {
				seen[name] = true
				columns = append(columns, name)
			}
		}
	}
	out := New(columns...)
	for _, f := range frames {
		if f == nil {
			continue
		}
		aligned, _ := f.Reindex(out.columns...)
		out.rows = append(out.rows, aligned.rows...)
	}
	return out
}

// RowHash returns the hex MD5 digest of row i's values joined with ",".
func (f *Frame) RowHash(i int) string {
	sum := md5.Sum([]byte(strings.Join(f.rows[i], ",")))
	return hex.EncodeToString(sum[:])
}

func (f *Frame) indices(columns []string) []int {
	idx := make([]int, 0, len(columns))
	for _, name := range columns {
		if c, ok := f.index[name]; ok {
			idx = append(idx, c)
		}
	}
	return idx
}
