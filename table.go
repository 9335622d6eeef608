// Copyright 2025-2026 The RunLog Authors. SPDX-License-Identifier: Apache-2.0

package runlog

import (
	"fmt"
	"path/filepath"

	"github.com/go-gota/gota/dataframe"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/runlog/runlog/internal/runfiles"
)

// Table is an append-only collection of rows with fixed columns, used to log
// structured results (prompts and completions, per-class evaluations, ...).
// A Table is not safe for concurrent use; build it, then hand it to
// Run.LogTable.
type Table struct {
	columns []string
	rows    [][]any
}

// NewTable creates an empty table with the given column names.
func NewTable(columns ...string) *Table {
	return &Table{columns: columns}
}

// Append adds one row. The number of values must match the number of columns.
func (t *Table) Append(values ...any) error {
	if len(values) != len(t.columns) {
		return errors.Errorf("table has %d columns, row has %d values", len(t.columns), len(values))
	}
	t.rows = append(t.rows, values)
	return nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Columns returns a copy of the column names.
func (t *Table) Columns() []string {
	cols := make([]string, len(t.columns))
	copy(cols, t.columns)
	return cols
}

// Rows returns the rows. The returned slice is shared; treat it as read-only.
func (t *Table) Rows() [][]any { return t.rows }

// Records returns the table as string records, header row first.
func (t *Table) Records() [][]string {
	records := make([][]string, 0, len(t.rows)+1)
	records = append(records, t.Columns())
	for _, row := range t.rows {
		rec := make([]string, len(row))
		for ii, v := range row {
			rec[ii] = fmt.Sprintf("%v", v)
		}
		records = append(records, rec)
	}
	return records
}

// DataFrame converts the table to a gota DataFrame, for analysis and display.
// Column types are inferred from the values.
func (t *Table) DataFrame() dataframe.DataFrame {
	return dataframe.LoadRecords(t.Records())
}

// tableFile is the serialized form of a table under the run's tables directory.
type tableFile struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// LogTable writes the table under the run's tables directory. Logging the same
// name again overwrites the previous contents, atomically: tables are usually
// logged once, complete, at the end of a run (use Append while accumulating).
func (r *Run) LogTable(name string, t *Table) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeLive("LogTable")
	filePath := filepath.Join(runfiles.TablesDir(r.dir), sanitizeName(name)+".json")
	err := runfiles.WriteJSON(filePath, tableFile{Columns: t.columns, Rows: t.rows})
	if err != nil {
		return errors.WithMessagef(err, "logging table %q of run %s", name, r.id)
	}
	klog.V(1).Infof("runlog: logged table %q (%d rows) of run %s", name, t.Len(), r.id)
	return nil
}

// LoadTable reads a table previously logged under a run directory.
func LoadTable(runDir, name string) (*Table, error) {
	filePath := filepath.Join(runfiles.TablesDir(runDir), sanitizeName(name)+".json")
	var tf tableFile
	if err := runfiles.ReadJSON(filePath, &tf); err != nil {
		return nil, errors.WithMessagef(err, "loading table %q", name)
	}
	return &Table{columns: tf.Columns, rows: tf.Rows}, nil
}

// ListTables returns the names of the tables logged under a run directory.
func ListTables(runDir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(runfiles.TablesDir(runDir), "*.json"))
	if err != nil {
		return nil, errors.Wrapf(err, "listing tables of %q", runDir)
	}
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		base := filepath.Base(p)
		names = append(names, base[:len(base)-len(".json")])
	}
	return names, nil
}
