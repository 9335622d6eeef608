// Copyright 2025-2026 The RunLog Authors. SPDX-License-Identifier: Apache-2.0

// Package report turns recorded runs into figures, charts and tables.
//
// A Report is loaded from a run directory. Metrics are grouped by kind
// ("loss", "accuracy", ...), one figure per kind, each metric a line:
//
//	rep := must.M1(report.Load(runDir))
//	fmt.Println(rep.SummaryTable())
//	must.M(rep.WriteHTML("/tmp/report.html")) // Interactive plotly page.
//	must.M(rep.WritePNG("loss", "loss.png"))  // Static chart.
//
// In a GoNB notebook, Display renders the figures inline.
package report

import (
	"cmp"
	"os"
	"sort"

	"github.com/gomlx/gomlx/types/xslices"
	"github.com/pkg/errors"

	"github.com/runlog/runlog"
	"github.com/runlog/runlog/internal/runfiles"
)

// Series is the recorded time-series of one metric.
type Series struct {
	Metric string
	Short  string
	Kind   string
	Steps  []float64
	Values []float64
}

// Report is the loaded view of one run directory.
type Report struct {
	RunDir  string
	State   runlog.State
	Config  runlog.Config
	Summary map[string]any
	History []runlog.Record

	kinds  []string
	series map[string][]*Series
	media  []runlog.Record
}

// Load reads a run directory into a Report. The run may still be live: the
// summary is empty until the run finishes, the history reflects what was
// logged so far.
func Load(runDir string) (*Report, error) {
	r := &Report{RunDir: runDir}
	if err := runfiles.ReadJSON(runfiles.StatePath(runDir), &r.State); err != nil {
		return nil, errors.WithMessagef(err, "loading run state from %q", runDir)
	}
	if err := runfiles.ReadJSON(runfiles.ConfigPath(runDir), &r.Config); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return nil, errors.WithMessagef(err, "loading run config from %q", runDir)
	}
	if err := runfiles.ReadJSON(runfiles.SummaryPath(runDir), &r.Summary); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return nil, errors.WithMessagef(err, "loading run summary from %q", runDir)
	}
	history, err := runfiles.LoadJSONL[runlog.Record](runfiles.HistoryPath(runDir))
	if err != nil && !os.IsNotExist(errors.Cause(err)) {
		return nil, errors.WithMessagef(err, "loading run history from %q", runDir)
	}
	r.History = history
	r.index()
	return r, nil
}

// index groups the history into per-kind, per-metric series.
func (r *Report) index() {
	byMetric := make(map[string]*Series)
	var order []string
	for _, rec := range r.History {
		if rec.Kind == runlog.KindMedia {
			r.media = append(r.media, rec)
			continue
		}
		s, found := byMetric[rec.Metric]
		if !found {
			s = &Series{
				Metric: rec.Metric,
				Short:  rec.Short,
				Kind:   cmp.Or(rec.Kind, runlog.KindGeneric),
			}
			byMetric[rec.Metric] = s
			order = append(order, rec.Metric)
		}
		s.Steps = append(s.Steps, rec.Step)
		s.Values = append(s.Values, rec.Value)
	}

	r.series = make(map[string][]*Series)
	sort.Strings(order)
	for _, metric := range order {
		s := byMetric[metric]
		r.series[s.Kind] = append(r.series[s.Kind], s)
	}
	r.kinds = xslices.SortedKeys(r.series)
}

// Kinds returns the metric kinds present in the history, sorted.
func (r *Report) Kinds() []string { return r.kinds }

// Series returns the metric series of one kind, sorted by metric name. The
// returned slice is shared, treat it as read-only.
func (r *Report) Series(kind string) []*Series { return r.series[kind] }

// AllSeries returns every metric series, sorted by kind then metric name.
func (r *Report) AllSeries() []*Series {
	var all []*Series
	for _, kind := range r.kinds {
		all = append(all, r.series[kind]...)
	}
	return all
}

// Media returns the image records of the run, in logging order. The file
// paths are relative to the run directory.
func (r *Report) Media() []runlog.Record { return r.media }
