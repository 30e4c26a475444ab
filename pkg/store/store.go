// Package store implements the durable tabular dataset: a CSV file read in
// full at the start of a run and rewritten in full at the end.
//
// The table is keyed by a stable string id, one row per tracked entity.
// Rows are never removed and the column set is append-only; new columns may
// be introduced but existing ones survive every run.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrMissingStore indicates a run that requires prior output found no
// store file.
var ErrMissingStore = errors.New("store file does not exist")

// IDColumn is the mandatory key column.
const IDColumn = "id"

// Row is one entity. Cells hold serialized values; an absent cell reads as
// the empty string.
type Row struct {
	ID    string
	cells map[string]string
}

// Get returns the cell value for a column, or "" when unset.
func (r *Row) Get(col string) string {
	return r.cells[col]
}

// Set writes a cell value.
func (r *Row) Set(col, value string) {
	r.cells[col] = value
}

// Table is an ordered collection of rows with a unique-id invariant.
type Table struct {
	cols   []string
	colSet map[string]bool
	rows   []*Row
	index  map[string]*Row
}

// New returns an empty table holding only the id column.
func New() *Table {
	t := &Table{
		colSet: map[string]bool{},
		index:  map[string]*Row{},
	}
	t.EnsureColumns(IDColumn)
	return t
}

// Load reads an entire CSV store. Returns ErrMissingStore when the file
// does not exist. Rows with a blank id are dropped; they cannot be keyed
// and only ever came from upstream glitches.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingStore, path)
		}
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}
	if len(records) == 0 {
		return New(), nil
	}

	header := records[0]
	idIdx := -1
	for i, col := range header {
		if col == IDColumn {
			idIdx = i
			break
		}
	}
	if idIdx < 0 {
		return nil, fmt.Errorf("store %s has no %q column", path, IDColumn)
	}

	t := New()
	t.EnsureColumns(header...)

	for _, record := range records[1:] {
		if idIdx >= len(record) {
			continue
		}
		id := strings.TrimSpace(record[idIdx])
		if id == "" {
			continue
		}
		row, ok := t.Get(id)
		if !ok {
			row = t.Append(id)
		}
		for i, col := range header {
			if i == idIdx || i >= len(record) {
				continue
			}
			row.Set(col, record[i])
		}
	}
	return t, nil
}

// EnsureColumns appends any columns not yet present, in the given order.
// Existing columns keep their position.
func (t *Table) EnsureColumns(cols ...string) {
	for _, col := range cols {
		if !t.colSet[col] {
			t.cols = append(t.cols, col)
			t.colSet[col] = true
		}
	}
}

// Columns returns the column order used when writing.
func (t *Table) Columns() []string {
	return t.cols
}

// Rows returns all rows in store order.
func (t *Table) Rows() []*Row {
	return t.rows
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Get looks a row up by id.
func (t *Table) Get(id string) (*Row, bool) {
	row, ok := t.index[id]
	return row, ok
}

// Append adds a new row for an id not yet present and returns it.
func (t *Table) Append(id string) *Row {
	row := &Row{ID: id, cells: map[string]string{}}
	t.rows = append(t.rows, row)
	t.index[id] = row
	return row
}

// Write rewrites the whole store. The CSV goes to a temp file in the same
// directory first and is renamed into place, so a crash mid-write leaves
// the previous store intact.
func (t *Table) Write(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp store: %w", err)
	}
	tmpName := tmp.Name()

	writer := csv.NewWriter(tmp)
	if err := writer.Write(t.cols); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write store header: %w", err)
	}

	record := make([]string, len(t.cols))
	for _, row := range t.rows {
		for i, col := range t.cols {
			if col == IDColumn {
				record[i] = row.ID
			} else {
				record[i] = row.Get(col)
			}
		}
		if err := writer.Write(record); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("write store row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("flush store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close store: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename store: %w", err)
	}
	return nil
}
