// Copyright 2025-2026 The RunLog Authors. SPDX-License-Identifier: Apache-2.0

package runlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// Tunables of the background syncer. Transient failures are retried with
// exponential backoff and jitter; anything still failing after maxAttempts is
// given up on and logged, never failing the run.
const (
	syncQueueSize     = 4096
	syncBatchSize     = 256
	syncFlushInterval = 2 * time.Second
	syncMaxAttempts   = 5
	syncInitialWait   = 500 * time.Millisecond
	syncMaxWait       = 30 * time.Second
	syncHTTPTimeout   = 30 * time.Second
)

// syncer mirrors a run to a tracking server. Records are queued and shipped in
// batches by a background goroutine; run lifecycle messages and artifact
// uploads are sent synchronously (with the same retry policy).
//
// All exported-to-the-package entry points (enqueue, postRun, postFinish,
// uploadArtifact, close) are called under the owning Run's mutex, so the
// struct itself needs no locking; only the queue channel is shared with the
// sender goroutine.
type syncer struct {
	client           *http.Client
	baseURL, apiKey  string
	project, runID   string
	queue            chan Record
	senderDone       chan struct{}
	closed           bool
	dropped, batches int64
}

func newSyncer(baseURL, apiKey, project, runID string) *syncer {
	s := &syncer{
		client:     &http.Client{Timeout: syncHTTPTimeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		project:    project,
		runID:      runID,
		queue:      make(chan Record, syncQueueSize),
		senderDone: make(chan struct{}),
	}
	go s.sender()
	return s
}

// Wire messages. The server side of this contract is external; see the runlog
// server documentation for the authoritative schema.
type runUpsert struct {
	Project   string    `json:"project"`
	RunID     string    `json:"run_id"`
	Name      string    `json:"name"`
	Config    Config    `json:"config,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Client    string    `json:"client"`
}

type recordBatch struct {
	Records []Record `json:"records"`
}

type runFinish struct {
	Status     string         `json:"status"`
	Summary    map[string]any `json:"summary,omitempty"`
	ExitError  string         `json:"exit_error,omitempty"`
	FinishedAt time.Time      `json:"finished_at"`
}

// enqueue queues one record for shipping. It never blocks: when the queue is
// full the record is counted as dropped and reported at the end of the run.
func (s *syncer) enqueue(rec Record) {
	if s.closed {
		s.dropped++
		return
	}
	select {
	case s.queue <- rec:
	default:
		s.dropped++
	}
}

// close drains the queue, waits for the sender to ship the remaining batches
// and returns the number of records that could not be delivered. Lifecycle
// messages (postFinish) can still be sent after close; only the record queue
// shuts down.
func (s *syncer) close() int64 {
	if !s.closed {
		s.closed = true
		close(s.queue)
		<-s.senderDone
	}
	return s.dropped + s.batches
}

// sender is the background goroutine shipping record batches, by size or by
// time, until the queue is closed.
func (s *syncer) sender() {
	defer close(s.senderDone)
	ticker := time.NewTicker(syncFlushInterval)
	defer ticker.Stop()
	batch := make([]Record, 0, syncBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.post(s.runPath("records"), recordBatch{Records: batch}); err != nil {
			klog.Warningf("runlog: failed to sync %d records of run %s: %v", len(batch), s.runID, err)
			s.batchDropped(len(batch))
		}
		batch = batch[:0]
	}
	for {
		select {
		case rec, ok := <-s.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= syncBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// batchDropped is only touched by the sender goroutine while the run is live;
// the final value is read by close after the sender exited.
func (s *syncer) batchDropped(n int) {
	s.batches += int64(n)
}

func (s *syncer) postRun(state State, config Config) {
	msg := runUpsert{
		Project:   s.project,
		RunID:     s.runID,
		Name:      state.Name,
		Config:    config,
		Tags:      state.Tags,
		Notes:     state.Notes,
		Status:    state.Status.String(),
		CreatedAt: state.CreatedAt,
		Client:    "runlog/" + Version,
	}
	if err := s.post(s.apiPath("runs"), msg); err != nil {
		klog.Warningf("runlog: failed to announce run %s to %s: %v", s.runID, s.baseURL, err)
	}
}

func (s *syncer) postFinish(summary map[string]any, state State) {
	msg := runFinish{
		Status:     state.Status.String(),
		Summary:    summary,
		ExitError:  state.ExitError,
		FinishedAt: state.FinishedAt,
	}
	if err := s.post(s.runPath("finish"), msg); err != nil {
		klog.Warningf("runlog: failed to finish run %s on %s: %v", s.runID, s.baseURL, err)
	}
}

// uploadArtifact ships the artifact manifest followed by each file. A progress
// bar is shown on a terminal for the file bytes.
func (s *syncer) uploadArtifact(artifact *Artifact) error {
	if err := s.post(s.runPath("artifacts"), artifact); err != nil {
		return errors.WithMessagef(err, "uploading manifest of artifact %q", artifact.Name)
	}
	var bar *progressbar.ProgressBar
	if isTTY(os.Stdout) {
		bar = progressbar.DefaultBytes(artifact.TotalBytes, "uploading "+artifact.Name)
	}
	for _, file := range artifact.Files {
		localPath := filepath.Join(artifact.Dir, file.Path)
		err := s.putFile(s.runPath("artifacts", artifact.Name, file.Path), localPath, file, bar)
		if err != nil {
			return errors.WithMessagef(err, "uploading file %q of artifact %q", file.Path, artifact.Name)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return nil
}

func (s *syncer) checkHealth() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/healthz", nil)
	if err != nil {
		return errors.Wrap(err, "building health check request")
	}
	s.setHeaders(req, "")
	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "health check failed")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *syncer) runURL() string {
	return fmt.Sprintf("%s/%s/%s", s.baseURL, s.project, s.runID)
}

func (s *syncer) apiPath(parts ...string) string {
	url := s.baseURL + "/api/v1"
	for _, p := range parts {
		url += "/" + p
	}
	return url
}

func (s *syncer) runPath(parts ...string) string {
	return s.apiPath(append([]string{"runs", s.project, s.runID}, parts...)...)
}

// post sends msg as JSON, retrying transient failures with exponential backoff
// (jittered, capped at syncMaxAttempts attempts in total).
func (s *syncer) post(url string, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}
	return s.retry(url, func() error {
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, "building request"))
		}
		s.setHeaders(req, "application/json")
		return s.do(req)
	})
}

// putFile uploads one file as an octet stream. The file is re-read on every
// attempt so retries send complete bodies.
func (s *syncer) putFile(url, localPath string, digest ArtifactFile, bar *progressbar.ProgressBar) error {
	return s.retry(url, func() error {
		f, err := os.Open(localPath)
		if err != nil {
			return backoff.Permanent(errors.Wrapf(err, "opening %q", localPath))
		}
		defer func() { _ = f.Close() }()
		var body io.Reader = f
		if bar != nil {
			body = io.TeeReader(f, bar)
		}
		req, err := http.NewRequest(http.MethodPut, url, body)
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, "building request"))
		}
		req.ContentLength = digest.SizeBytes
		s.setHeaders(req, "application/octet-stream")
		req.Header.Set("X-Runlog-Digest", "sha256:"+digest.SHA256)
		return s.do(req)
	})
}

func (s *syncer) retry(url string, op backoff.Operation) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = syncInitialWait
	bo.MaxInterval = syncMaxWait
	bo.MaxElapsedTime = 0 // Attempts are capped by count, not by wall time.
	return backoff.RetryNotify(op,
		backoff.WithMaxRetries(bo, syncMaxAttempts-1),
		func(err error, wait time.Duration) {
			klog.V(1).Infof("runlog: request to %s failed (retrying in %s): %v", url, wait, err)
		})
}

func (s *syncer) setHeaders(req *http.Request, contentType string) {
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("User-Agent", "runlog/"+Version)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
}

// do executes the request and classifies the response: 408, 429 and 5xx are
// transient, any other non-2xx status is permanent.
func (s *syncer) do(req *http.Request) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	err = errors.Errorf("server returned status %d", resp.StatusCode)
	if resp.StatusCode == http.StatusRequestTimeout ||
		resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode >= 500 {
		return err
	}
	return backoff.Permanent(err)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
