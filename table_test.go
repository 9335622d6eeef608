// Copyright 2025-2026 The RunLog Authors. SPDX-License-Identifier: Apache-2.0

package runlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableAppend(t *testing.T) {
	table := NewTable("prompt", "response", "total_tokens")
	require.NoError(t, table.Append("2+2?", "4", 12))
	require.NoError(t, table.Append("3+3?", "6", 14))
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, []string{"prompt", "response", "total_tokens"}, table.Columns())

	err := table.Append("too", "few")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 columns")
	assert.Equal(t, 2, table.Len())
}

func TestTableRecordsAndDataFrame(t *testing.T) {
	table := NewTable("name", "score")
	require.NoError(t, table.Append("alpha", 0.5))
	require.NoError(t, table.Append("beta", 1.25))

	records := table.Records()
	require.Len(t, records, 3)
	assert.Equal(t, []string{"name", "score"}, records[0])
	assert.Equal(t, []string{"beta", "1.25"}, records[2])

	df := table.DataFrame()
	require.NoError(t, df.Error())
	rows, cols := df.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 2, cols)
	assert.InDelta(t, 1.25, df.Col("score").Elem(1).Float(), 1e-9)
}

func TestLogTableRoundTrip(t *testing.T) {
	run := newTestRun(t, nil)
	defer func() { _ = run.Finish() }()

	table := NewTable("prompt", "response")
	require.NoError(t, table.Append("hi", "hello"))
	require.NoError(t, run.LogTable("generations", table))

	names, err := ListTables(run.Dir())
	require.NoError(t, err)
	assert.Equal(t, []string{"generations"}, names)

	loaded, err := LoadTable(run.Dir(), "generations")
	require.NoError(t, err)
	assert.Equal(t, table.Columns(), loaded.Columns())
	require.Equal(t, 1, loaded.Len())
	// JSON round-trips values as strings and float64s.
	assert.Equal(t, []any{"hi", "hello"}, loaded.Rows()[0])

	// Re-logging the same name overwrites.
	require.NoError(t, table.Append("bye", "goodbye"))
	require.NoError(t, run.LogTable("generations", table))
	loaded, err = LoadTable(run.Dir(), "generations")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
}

func TestLoadTableMissing(t *testing.T) {
	_, err := LoadTable(t.TempDir(), "nope")
	require.Error(t, err)
}
