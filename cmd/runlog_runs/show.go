// Copyright 2025-2026 The RunLog Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/runlog/runlog"
	"github.com/runlog/runlog/internal/runfiles"
	"github.com/runlog/runlog/report"
)

var (
	flagParams  = flag.Bool("params", false, "Shows the hyperparameters the run was configured with.")
	flagSummary = flag.Bool("summary", false, "Shows the final metric values of the run.")
	flagMetrics = flag.String("metrics", "",
		`Glob selecting the metrics to include in the history table, e.g. "*loss*", or "*" for all. `+
			"Matches the metric name or its short name.")
	flagTable = flag.String("table", "",
		"Prints the logged table with the given name, e.g. --table=generations.")
	flagExportHTML = flag.String("export_html", "",
		"Writes an interactive HTML report, one chart per metric kind, to the given path.")
	flagExportPNG = flag.String("export_png", "",
		`Writes a static chart of one metric kind to a PNG file, given as "<kind>:<path>", e.g. "loss:/tmp/loss.png".`)
)

// showRun renders the details of one run. The id "latest" selects the most
// recently updated run of the project.
func showRun(baseDir, project, runID string) {
	if runID == "latest" {
		var err error
		runID, err = runfiles.LatestRun(baseDir, project)
		if err != nil {
			klog.Exitf("%+v", err)
		}
	}
	runDir := runfiles.RunDir(baseDir, project, runID)
	rep, err := report.Load(runDir)
	if err != nil {
		klog.Exitf("Failed to load run %q: %+v", runID, err)
	}

	fmt.Println(titleStyle.Render("Run " + rep.State.ID))
	fmt.Println(rep.InfoTable())

	if *flagParams {
		fmt.Println(titleStyle.Render("Hyperparameters"))
		fmt.Println(rep.ConfigTable())
	}
	if *flagSummary {
		fmt.Println(titleStyle.Render("Summary"))
		fmt.Println(rep.SummaryTable())
	}
	if *flagMetrics != "" {
		showMetrics(rep)
	}
	if *flagTable != "" {
		showTable(runDir, *flagTable)
	}
	if *flagExportHTML != "" {
		if err := rep.WriteHTML(*flagExportHTML); err != nil {
			klog.Exitf("Failed to export HTML report: %+v", err)
		}
		fmt.Printf("Wrote HTML report to %s\n", *flagExportHTML)
	}
	if *flagExportPNG != "" {
		kind, pngPath, err := parseExportPNG(*flagExportPNG)
		if err != nil {
			klog.Exitf("%v", err)
		}
		if err := rep.WritePNG(kind, pngPath); err != nil {
			klog.Exitf("Failed to export %q chart: %+v", kind, err)
		}
		fmt.Printf("Wrote %s chart to %s\n", kind, pngPath)
	}
}

func showMetrics(rep *report.Report) {
	metrics := matchMetrics(rep, *flagMetrics)
	if len(metrics) == 0 {
		var recorded []string
		for _, s := range rep.AllSeries() {
			recorded = append(recorded, s.Metric)
		}
		klog.Warningf("No metric matches --metrics=%q. Recorded metrics: %s",
			*flagMetrics, strings.Join(recorded, ", "))
		return
	}
	fmt.Println(titleStyle.Render("Metrics"))
	fmt.Println(rep.MetricsTable(metrics...))
}

// matchMetrics returns the metric names whose name or short name matches the
// glob, in report order.
func matchMetrics(rep *report.Report, glob string) (matched []string) {
	for _, s := range rep.AllSeries() {
		nameMatch, err := filepath.Match(glob, s.Metric)
		if err != nil {
			klog.Exitf("Invalid --metrics glob %q: %v", glob, err)
		}
		shortMatch, _ := filepath.Match(glob, s.Short)
		if nameMatch || shortMatch {
			matched = append(matched, s.Metric)
		}
	}
	return
}

func showTable(runDir, name string) {
	t, err := runlog.LoadTable(runDir, name)
	if err != nil {
		names, _ := runlog.ListTables(runDir)
		klog.Exitf("Failed to load table %q (recorded tables: %s): %+v",
			name, strings.Join(names, ", "), err)
	}
	fmt.Println(titleStyle.Render("Table " + name))
	fmt.Println(t.DataFrame())
}

// parseExportPNG splits the "<kind>:<path>" argument of --export_png.
func parseExportPNG(arg string) (kind, pngPath string, err error) {
	kind, pngPath, found := strings.Cut(arg, ":")
	if !found || kind == "" || pngPath == "" {
		return "", "", errors.Errorf(
			`--export_png takes "<kind>:<path>", e.g. "loss:/tmp/loss.png", got %q`, arg)
	}
	return kind, pngPath, nil
}
