// Copyright 2025-2026 The RunLog Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"

	"github.com/runlog/runlog"
	"github.com/runlog/runlog/internal/runfiles"
)

// listRuns renders one row per run of the project, most recently updated last.
func listRuns(baseDir, project string) {
	ids, err := runfiles.ListRuns(baseDir, project)
	if err != nil {
		klog.Exitf("Failed to list runs: %+v", err)
	}
	if len(ids) == 0 {
		fmt.Printf("No runs recorded under %s.\n", filepath.Join(baseDir, project))
		return
	}

	fmt.Println(titleStyle.Render("Project " + project))
	table := newPlainTable(lipgloss.Left, lipgloss.Left, lipgloss.Center,
		lipgloss.Left, lipgloss.Right, lipgloss.Right, lipgloss.Right)
	table.Headers("Run", "Name", "Status", "Created", "Steps", "Last Loss", "Size")
	for _, id := range ids {
		runDir := runfiles.RunDir(baseDir, project, id)
		var state runlog.State
		if err := runfiles.ReadJSON(runfiles.StatePath(runDir), &state); err != nil {
			klog.Warningf("Skipping %s: %v", runDir, err)
			continue
		}
		lastLoss := "-"
		if value, found := lastLossOf(runDir); found {
			lastLoss = fmt.Sprintf("%f", value)
		}
		table.Row(
			state.ID,
			state.Name,
			state.Status.String(),
			humanize.Time(state.CreatedAt),
			humanize.Comma(int64(state.LastStep)),
			lastLoss,
			humanize.Bytes(uint64(dirSize(runDir))),
		)
	}
	fmt.Println(table.Render())
}

// lastLossOf scans the run history for the most recent loss record.
func lastLossOf(runDir string) (value float64, found bool) {
	err := runfiles.ScanJSONL(runfiles.HistoryPath(runDir), func(rec runlog.Record) error {
		if rec.Kind == runlog.KindLoss {
			value, found = rec.Value, true
		}
		return nil
	})
	if err != nil {
		return 0, false
	}
	return
}

// dirSize totals the file sizes under dir, in bytes.
func dirSize(dir string) (total int64) {
	_ = filepath.WalkDir(dir, func(_ string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return nil
		}
		if info, err := entry.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return
}
