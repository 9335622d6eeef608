// Copyright 2025-2026 The RunLog Authors. SPDX-License-Identifier: Apache-2.0

package runlog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/runlog/runlog/internal/runfiles"
)

// ArtifactFile is one file of an artifact, identified by its content digest.
type ArtifactFile struct {
	// Path of the file relative to the artifact version directory.
	Path      string `json:"path"`
	SHA256    string `json:"sha256"`
	SizeBytes int64  `json:"size_bytes"`
}

// Artifact is a versioned set of files registered with a run, typically a model
// checkpoint. Versions are immutable once written; logging the same name again
// with changed contents creates the next version, logging identical contents
// returns the existing one.
type Artifact struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Version    int            `json:"version"`
	Files      []ArtifactFile `json:"files"`
	TotalBytes int64          `json:"total_bytes"`
	CreatedAt  time.Time      `json:"created_at"`

	// Dir is the local version directory holding the files.
	Dir string `json:"-"`
}

// Ref returns the "name:vN" reference of this artifact version.
func (a *Artifact) Ref() string {
	return fmt.Sprintf("%s:v%d", a.Name, a.Version)
}

// LogArtifact copies the given files into the run's artifact store under name,
// digests them and registers the result with the run. typ is a free-form
// category, "model" for checkpoints by convention.
//
// If the files are identical (by digest) to the latest version of the artifact,
// no new version is created and the existing one is returned. When syncing,
// new versions are uploaded to the server; upload failures are logged and do
// not fail the call.
func (r *Run) LogArtifact(name, typ string, paths ...string) (*Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeLive("LogArtifact")
	if len(paths) == 0 {
		return nil, errors.Errorf("artifact %q has no files", name)
	}

	// Digest sources first: identical contents resolve to the existing version.
	files := make([]ArtifactFile, 0, len(paths))
	var total int64
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		base := filepath.Base(p)
		if seen[base] {
			return nil, errors.Errorf("artifact %q has two files named %q", name, base)
		}
		seen[base] = true
		digest, size, err := runfiles.SHA256File(p)
		if err != nil {
			return nil, errors.WithMessagef(err, "digesting file for artifact %q", name)
		}
		files = append(files, ArtifactFile{Path: base, SHA256: digest, SizeBytes: size})
		total += size
	}

	artifactDir := runfiles.ArtifactDir(r.dir, name)
	version := nextArtifactVersion(artifactDir)
	if version > 0 {
		if latest, err := loadArtifact(artifactDir, version-1); err == nil && latest.sameFiles(files) {
			klog.V(1).Infof("runlog: artifact %q unchanged, reusing %s", name, latest.Ref())
			return latest, nil
		}
	}

	versionDir := filepath.Join(artifactDir, versionDirName(version))
	if err := os.MkdirAll(versionDir, runfiles.DirPermMode); err != nil {
		return nil, errors.Wrapf(err, "creating artifact directory %q", versionDir)
	}
	for ii, p := range paths {
		if _, err := runfiles.CopyFile(filepath.Join(versionDir, files[ii].Path), p); err != nil {
			return nil, errors.WithMessagef(err, "staging artifact %q", name)
		}
	}
	artifact := &Artifact{
		Name:       name,
		Type:       typ,
		Version:    version,
		Files:      files,
		TotalBytes: total,
		CreatedAt:  time.Now(),
		Dir:        versionDir,
	}
	manifestPath := filepath.Join(versionDir, runfiles.ManifestFileName)
	if err := runfiles.WriteJSON(manifestPath, artifact); err != nil {
		return nil, errors.WithMessagef(err, "writing manifest of artifact %q", name)
	}
	klog.V(1).Infof("runlog: staged artifact %s (%s in %d files)",
		artifact.Ref(), humanize.Bytes(uint64(total)), len(files))

	if r.syncer != nil {
		if err := r.syncer.uploadArtifact(artifact); err != nil {
			klog.Warningf("runlog: failed to upload artifact %s of run %s: %v", artifact.Ref(), r.id, err)
		}
	}
	return artifact, nil
}

// Artifacts lists the artifact versions recorded under the run directory, all
// versions of all names, ordered by name then version.
func (r *Run) Artifacts() ([]*Artifact, error) {
	return ListArtifacts(r.dir)
}

// ListArtifacts lists the artifact versions recorded under a run directory.
func ListArtifacts(runDir string) ([]*Artifact, error) {
	root := filepath.Join(runDir, runfiles.ArtifactsDirName)
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "listing artifacts in %q", root)
	}
	var artifacts []*Artifact
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		artifactDir := filepath.Join(root, entry.Name())
		numVersions := nextArtifactVersion(artifactDir)
		for v := 0; v < numVersions; v++ {
			artifact, err := loadArtifact(artifactDir, v)
			if err != nil {
				return nil, err
			}
			artifacts = append(artifacts, artifact)
		}
	}
	return artifacts, nil
}

func versionDirName(version int) string {
	return fmt.Sprintf("v%03d", version)
}

// nextArtifactVersion returns the first unused version number, scanning the
// existing version directories.
func nextArtifactVersion(artifactDir string) int {
	version := 0
	for {
		_, err := os.Stat(filepath.Join(artifactDir, versionDirName(version)))
		if err != nil {
			return version
		}
		version++
	}
}

func loadArtifact(artifactDir string, version int) (*Artifact, error) {
	versionDir := filepath.Join(artifactDir, versionDirName(version))
	artifact := &Artifact{}
	err := runfiles.ReadJSON(filepath.Join(versionDir, runfiles.ManifestFileName), artifact)
	if err != nil {
		return nil, errors.WithMessagef(err, "loading artifact manifest in %q", versionDir)
	}
	artifact.Dir = versionDir
	return artifact, nil
}

func (a *Artifact) sameFiles(files []ArtifactFile) bool {
	if len(a.Files) != len(files) {
		return false
	}
	byPath := make(map[string]string, len(a.Files))
	for _, f := range a.Files {
		byPath[f.Path] = f.SHA256
	}
	for _, f := range files {
		if byPath[f.Path] != f.SHA256 {
			return false
		}
	}
	return true
}
