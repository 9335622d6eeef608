// Copyright 2025-2026 The RunLog Authors. SPDX-License-Identifier: Apache-2.0

// Package runlog is an experiment tracking client for machine learning training
// loops: it records a run's hyperparameters, step-tagged scalar metrics, images,
// tables and artifacts (typically checkpoints) under a local run directory, and
// optionally mirrors them to a tracking server.
//
// The shortest possible use:
//
//	run := must.M1(runlog.Build().
//		Project("mnist").
//		Config(runlog.Config{"batch_size": 64, "learning_rate": 1e-3}).
//		Done())
//	defer func() { _ = run.Finish() }()
//	for step := 0; step < numSteps; step++ {
//		...
//		must.M(run.LogMetrics(step, runlog.Metrics{"Train: Moving Average Loss": loss}))
//	}
//
// Runs are always recorded locally, under `<dir>/<project>/<run-id>/` (the base
// directory defaults to `~/.runlog`, or $RUNLOG_DIR). When an API key is
// configured (Build().APIKey or $RUNLOG_API_KEY) and a server address is set
// ($RUNLOG_BASE_URL), records are additionally queued to a background syncer
// that mirrors them to the server, retrying transient failures with exponential
// backoff. Sync failures never fail the run: local files are authoritative.
//
// Training loops built with GoMLX can be instrumented with one call using the
// github.com/runlog/runlog/mlxrun package. Plots and summaries of recorded runs
// are produced by github.com/runlog/runlog/report and the runlog_runs command.
package runlog

import (
	"time"
)

// Version of the client library. Reported to the server in the User-Agent.
const Version = "0.3.0"

// Config is the hyperparameter set of a run: a mapping of named scalars (epoch
// count, batch size, learning rate, dropout probability, noise-schedule bounds,
// timestep count, ...). It is stored once when the run is created and never
// mutated afterwards; Run.Config returns the stored values.
type Config map[string]any

// Metrics maps metric names to values, for one step. Use the Kind* constants as
// name prefixes ("Train: ", "Eval on test: ") only if you like them; names are
// free-form.
type Metrics map[string]float64

// Kinds of metrics. A record's kind groups metrics that share a plot and
// y-axis. These match the metric types produced by GoMLX trainers; any other
// string is accepted too.
const (
	KindLoss     = "loss"
	KindAccuracy = "accuracy"
	KindGeneric  = "metrics"

	// KindMedia marks records that index a logged image instead of a scalar.
	KindMedia = "media"
)

// Record is one observation in a run's history: a named scalar tagged with the
// global step at which it was observed. Records are append-only, one JSON line
// each in the run's history file.
type Record struct {
	// Metric is the full metric name.
	Metric string `json:"metric"`

	// Short is an abbreviated name used in compact displays.
	Short string `json:"short,omitempty"`

	// Kind of the metric, typically KindLoss or KindAccuracy.
	Kind string `json:"kind,omitempty"`

	// Step is the global step of the observation. An integer stored as float64.
	Step float64 `json:"step"`

	// Value observed.
	Value float64 `json:"value"`

	// File points at a media file inside the run directory, for KindMedia
	// records. Empty for scalars.
	File string `json:"file,omitempty"`
}

// State of a run, serialized in the run's state file.
type State struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Project   string    `json:"project"`
	Tags      []string  `json:"tags,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	Status    RunStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// FinishedAt is zero while the run is live.
	FinishedAt time.Time `json:"finished_at,omitzero"`

	// LastStep is the largest step logged so far, for quick display.
	LastStep int `json:"last_step"`

	// ExitError holds the error message of a failed run.
	ExitError string `json:"exit_error,omitempty"`
}
