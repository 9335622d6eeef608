// Copyright 2025-2026 The RunLog Authors. SPDX-License-Identifier: Apache-2.0

// runlog_runs inspects runs recorded locally by runlog.
//
// List the runs of a project:
//
//	runlog_runs --list
//
// Inspect one run, by id or simply the most recent one:
//
//	runlog_runs latest
//	runlog_runs a1b2c3d4 --params --summary
//	runlog_runs latest --metrics="*loss*"
//	runlog_runs latest --table=generations
//
// Export charts:
//
//	runlog_runs latest --export_html=/tmp/report.html
//	runlog_runs latest --export_png=loss:/tmp/loss.png
//
// The base directory defaults to $RUNLOG_DIR or ~/.runlog. When it holds more
// than one project, pick one with --project. With --loop the view is
// re-rendered every few seconds, to watch a run still training.
package main

import (
	"cmp"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gomlx/gomlx/ml/data"
	"github.com/muesli/termenv"
	"k8s.io/klog/v2"

	"github.com/runlog/runlog"
	"github.com/runlog/runlog/internal/runfiles"
)

var (
	flagDir = flag.String("dir", cmp.Or(os.Getenv(runlog.EnvBaseDir), runlog.DefaultBaseDir),
		"Base directory holding the recorded runs.")
	flagProject = flag.String("project", "",
		"Project to inspect. If empty and the base directory holds exactly one project, that one is used.")
	flagList = flag.Bool("list", false,
		"Lists the runs of the project, most recently updated last.")
	flagLoop = flag.Bool("loop", false,
		"Re-renders the view every few seconds, to watch a run still training. Interrupt with Ctrl+C.")
)

// watchPeriod is how often --loop re-renders.
const watchPeriod = 3 * time.Second

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	args := flag.Args()
	if len(args) > 1 {
		klog.Exitf("At most one run id expected, got %v. See 'runlog_runs -help'.", args)
	}

	baseDir := data.ReplaceTildeInDir(*flagDir)
	project := resolveProject(baseDir)
	for {
		if *flagLoop {
			termenv.NewOutput(os.Stdout).ClearScreen()
		}
		if len(args) == 1 && !*flagList {
			showRun(baseDir, project, args[0])
		} else {
			listRuns(baseDir, project)
		}
		if !*flagLoop {
			return
		}
		time.Sleep(watchPeriod)
	}
}

// resolveProject returns --project if set, otherwise the only project under
// the base directory. With several projects it lists them and exits.
func resolveProject(baseDir string) string {
	if *flagProject != "" {
		return *flagProject
	}
	projects, err := runfiles.ListProjects(baseDir)
	if err != nil {
		klog.Exitf("Failed to list projects under %q: %+v", baseDir, err)
	}
	switch len(projects) {
	case 0:
		klog.Exitf("No projects found under %q. Is --dir pointing at the right directory?", baseDir)
	case 1:
		return projects[0]
	}
	fmt.Printf("Several projects under %s, pick one with --project:\n", baseDir)
	for _, project := range projects {
		fmt.Printf("\t%s\n", project)
	}
	os.Exit(0)
	return ""
}
