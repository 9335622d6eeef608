// Copyright 2025-2026 The RunLog Authors. SPDX-License-Identifier: Apache-2.0

package report

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/types/xslices"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
)

func newPlainTable(alignments ...lipgloss.Position) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row < 0 {
				s = headerRowStyle
				return
			}
			switch {
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			} else if len(alignments) > 0 {
				alignment = alignments[len(alignments)-1]
			}
			s = s.Align(alignment)
			return
		})
}

// InfoTable renders the run identity and status as a two-column console table.
func (r *Report) InfoTable() string {
	table := newPlainTable(lipgloss.Right, lipgloss.Left)
	table.Row("run", r.State.ID)
	table.Row("name", r.State.Name)
	table.Row("project", r.State.Project)
	if len(r.State.Tags) > 0 {
		table.Row("tags", strings.Join(r.State.Tags, ", "))
	}
	if r.State.Notes != "" {
		table.Row("notes", r.State.Notes)
	}
	table.Row("status", r.State.Status.String())
	table.Row("created", humanize.Time(r.State.CreatedAt))
	table.Row("updated", humanize.Time(r.State.UpdatedAt))
	if !r.State.FinishedAt.IsZero() {
		table.Row("finished", humanize.Time(r.State.FinishedAt))
	}
	table.Row("last_step", humanize.Comma(int64(r.State.LastStep)))
	if r.State.ExitError != "" {
		table.Row("exit_error", r.State.ExitError)
	}
	table.Row("directory", r.RunDir)
	return table.Render()
}

// ConfigTable renders the hyperparameters the run was configured with.
func (r *Report) ConfigTable() string {
	table := newPlainTable(lipgloss.Left)
	table.Headers("Parameter", "Type", "Value")
	for _, key := range xslices.SortedKeys(r.Config) {
		value := r.Config[key]
		table.Row(key, fmt.Sprintf("%T", value), formatValue(value))
	}
	return table.Render()
}

// SummaryTable renders the final metric values as a console table. The
// summary is empty while the run is still live.
func (r *Report) SummaryTable() string {
	table := newPlainTable(lipgloss.Left, lipgloss.Right)
	table.Headers("Metric", "Value")
	for _, metric := range xslices.SortedKeys(r.Summary) {
		table.Row(metric, formatValue(r.Summary[metric]))
	}
	return table.Render()
}

// MetricsTable renders the history as a console table, one row per step, the
// first column being the step followed by one column per metric. If metrics
// is empty, all recorded metrics are included.
func (r *Report) MetricsTable(metrics ...string) string {
	if len(metrics) == 0 {
		for _, s := range r.AllSeries() {
			metrics = append(metrics, s.Metric)
		}
	}

	// Group values by step.
	valuesAtStep := make(map[float64][]string)
	for _, s := range r.AllSeries() {
		idx := slices.Index(metrics, s.Metric)
		if idx == -1 {
			continue
		}
		for ii := range s.Steps {
			row, found := valuesAtStep[s.Steps[ii]]
			if !found {
				row = make([]string, len(metrics))
				valuesAtStep[s.Steps[ii]] = row
			}
			row[idx] = fmt.Sprintf("%f", s.Values[ii])
		}
	}

	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	headerStyle := lipgloss.NewStyle().Padding(0, 1).Bold(true).Reverse(true)
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row < 0 {
				return headerStyle
			}
			return cellStyle
		})
	table.Headers(append([]string{"Step"}, metrics...)...)

	steps := xslices.SortedKeys(valuesAtStep)
	for _, step := range steps {
		table.Row(append([]string{fmt.Sprintf("%.0f", step)}, valuesAtStep[step]...)...)
	}
	return table.Render()
}

func formatValue(v any) string {
	switch value := v.(type) {
	case float64:
		return fmt.Sprintf("%f", value)
	case string:
		return value
	default:
		return fmt.Sprintf("%v", v)
	}
}
