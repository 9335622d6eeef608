// Copyright 2025-2026 The RunLog Authors. SPDX-License-Identifier: Apache-2.0

// Package runfiles defines the on-disk layout of a run directory and the low-level
// file primitives used by the tracking client: atomic JSON writes, append-only
// JSONL streams and file digests.
//
// A run directory looks like:
//
//	<base>/<project>/<run-id>/
//	    state.json          run identity and lifecycle state
//	    config.json         hyperparameters, written once at creation
//	    history.jsonl       one metric record per line, append-only
//	    summary.json        final values, written at finish
//	    media/              logged images
//	    tables/             logged tables
//	    artifacts/<name>/   artifact files plus manifest.json
//
// Everything in here is path and byte plumbing. Interpretation of the contents
// belongs to the runlog package.
package runfiles

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	// DirPermMode is the permission (before umask) used for run directories.
	DirPermMode = os.FileMode(0770)

	// FilePermMode is the permission (before umask) used for run files.
	FilePermMode = os.FileMode(0664)

	StateFileName   = "state.json"
	ConfigFileName  = "config.json"
	HistoryFileName = "history.jsonl"
	SummaryFileName = "summary.json"

	MediaDirName     = "media"
	TablesDirName    = "tables"
	ArtifactsDirName = "artifacts"

	// ManifestFileName sits inside each artifact directory.
	ManifestFileName = "manifest.json"
)

// RunDir returns the directory of a run, without creating it.
func RunDir(base, project, runID string) string {
	return filepath.Join(base, project, runID)
}

func StatePath(runDir string) string   { return filepath.Join(runDir, StateFileName) }
func ConfigPath(runDir string) string  { return filepath.Join(runDir, ConfigFileName) }
func HistoryPath(runDir string) string { return filepath.Join(runDir, HistoryFileName) }
func SummaryPath(runDir string) string { return filepath.Join(runDir, SummaryFileName) }
func MediaDir(runDir string) string    { return filepath.Join(runDir, MediaDirName) }
func TablesDir(runDir string) string   { return filepath.Join(runDir, TablesDirName) }

// ArtifactDir returns the directory holding the files of one named artifact.
func ArtifactDir(runDir, name string) string {
	return filepath.Join(runDir, ArtifactsDirName, name)
}

// NewRunID returns a fresh 8 characters run id, derived from a random UUID.
func NewRunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// CreateRunDir creates the directory for a new run, including the media and
// tables subdirectories. It fails if the directory already exists: run ids are
// random, the caller is expected to retry with a new id on collision.
func CreateRunDir(base, project, runID string) (string, error) {
	dir := RunDir(base, project, runID)
	if _, err := os.Stat(dir); err == nil {
		return "", errors.Errorf("run directory %q already exists", dir)
	}
	for _, sub := range []string{"", MediaDirName, TablesDirName, ArtifactsDirName} {
		if err := os.MkdirAll(filepath.Join(dir, sub), DirPermMode); err != nil {
			return "", errors.Wrapf(err, "failed to create run directory %q", dir)
		}
	}
	return dir, nil
}

// ListRuns returns the run ids found under a project directory, sorted by the
// modification time of their state file, oldest first. Entries without a state
// file are skipped.
func ListRuns(base, project string) ([]string, error) {
	projectDir := filepath.Join(base, project)
	entries, err := os.ReadDir(projectDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list runs in %q", projectDir)
	}
	type runInfo struct {
		id      string
		modTime int64
	}
	var runs []runInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		fi, err := os.Stat(StatePath(filepath.Join(projectDir, entry.Name())))
		if err != nil {
			continue
		}
		runs = append(runs, runInfo{id: entry.Name(), modTime: fi.ModTime().UnixNano()})
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].modTime < runs[j].modTime })
	ids := make([]string, len(runs))
	for ii, r := range runs {
		ids[ii] = r.id
	}
	return ids, nil
}

// LatestRun returns the id of the most recently modified run of a project.
func LatestRun(base, project string) (string, error) {
	ids, err := ListRuns(base, project)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", errors.Errorf("no runs found under %q", filepath.Join(base, project))
	}
	return ids[len(ids)-1], nil
}

// ListProjects returns the project names under the base directory.
func ListProjects(base string) ([]string, error) {
	entries, err := os.ReadDir(base)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list projects in %q", base)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
