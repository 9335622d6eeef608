// Copyright 2025-2026 The RunLog Authors. SPDX-License-Identifier: Apache-2.0

package runlog

// RunStatus is the lifecycle state of a run.
type RunStatus int

//go:generate go tool enumer -type=RunStatus -trimprefix=Status -transform=snake -values -text -json -output=runstatus_enumer.go runstatus.go

const (
	// StatusPending: the run directory exists but the run was not announced yet.
	StatusPending RunStatus = iota

	// StatusRunning: live run, history still open.
	StatusRunning

	// StatusFinished: Finish was called, all files flushed.
	StatusFinished

	// StatusFailed: FinishWithError was called.
	StatusFailed

	// StatusCrashed: the process died without finishing the run. Set by tooling
	// that inspects stale runs, never by the client itself.
	StatusCrashed
)
