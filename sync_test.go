// Copyright 2025-2026 The RunLog Authors. SPDX-License-Identifier: Apache-2.0

package runlog

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runlog/runlog/internal/runfiles"
)

type capturedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// captureServer records every request and answers 200.
type captureServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []capturedRequest
}

func newCaptureServer() *captureServer {
	cs := &captureServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		cs.mu.Lock()
		cs.requests = append(cs.requests, capturedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Header: r.Header.Clone(),
			Body:   body,
		})
		cs.mu.Unlock()
	}))
	return cs
}

func (cs *captureServer) captured() []capturedRequest {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]capturedRequest(nil), cs.requests...)
}

// firstPath returns the position of the first request whose path matches
// exactly or ends in "/"+suffix, or -1.
func firstPath(requests []capturedRequest, suffix string) int {
	for i, req := range requests {
		if req.Path == suffix || strings.HasSuffix(req.Path, "/"+suffix) {
			return i
		}
	}
	return -1
}

func TestSyncEndToEnd(t *testing.T) {
	server := newCaptureServer()
	defer server.Close()

	run, err := Build().
		Project("test").
		Config(Config{"lr": 0.01}).
		Dir(t.TempDir()).
		BaseURL(server.URL).
		APIKey("secret").
		Quiet().
		Done()
	require.NoError(t, err)
	require.NoError(t, run.LogMetrics(0, Metrics{"loss": 2.0}))
	require.NoError(t, run.LogMetrics(1, Metrics{"loss": 1.5, "accuracy": 0.3}))
	require.NoError(t, run.Finish())

	requests := server.captured()
	require.NotEmpty(t, requests)
	for _, req := range requests {
		assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"), req.Path)
		assert.Equal(t, "runlog/"+Version, req.Header.Get("User-Agent"), req.Path)
	}

	upsertIdx := firstPath(requests, "/api/v1/runs")
	require.GreaterOrEqual(t, upsertIdx, 0, "the run was never announced")
	var upsert runUpsert
	require.NoError(t, json.Unmarshal(requests[upsertIdx].Body, &upsert))
	assert.Equal(t, "test", upsert.Project)
	assert.Equal(t, run.ID(), upsert.RunID)
	assert.Equal(t, "running", upsert.Status)
	assert.Equal(t, "runlog/"+Version, upsert.Client)
	assert.Equal(t, 0.01, upsert.Config["lr"])

	recordsIdx := firstPath(requests, "records")
	finishIdx := firstPath(requests, "finish")
	require.GreaterOrEqual(t, recordsIdx, 0, "no record batch was posted")
	require.GreaterOrEqual(t, finishIdx, 0, "no finish message was posted")
	// Queued records land before the finish message.
	assert.Less(t, recordsIdx, finishIdx)

	var synced []Record
	for _, req := range requests {
		if strings.HasSuffix(req.Path, "/records") {
			var batch recordBatch
			require.NoError(t, json.Unmarshal(req.Body, &batch))
			synced = append(synced, batch.Records...)
		}
	}
	require.Len(t, synced, 3)
	assert.Equal(t, "loss", synced[0].Metric)
	assert.Equal(t, 2.0, synced[0].Value)

	var finish runFinish
	require.NoError(t, json.Unmarshal(requests[finishIdx].Body, &finish))
	assert.Equal(t, "finished", finish.Status)
	assert.Equal(t, 1.5, finish.Summary["loss"])
	assert.Equal(t, 0.3, finish.Summary["accuracy"])

	wantPrefix := fmt.Sprintf("/api/v1/runs/test/%s/", run.ID())
	assert.Contains(t, requests[recordsIdx].Path, wantPrefix)
	assert.Contains(t, requests[finishIdx].Path, wantPrefix)
}

func TestSyncRetriesTransient(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	s := newSyncer(server.URL, "key", "proj", "run1")
	defer s.close()
	err := s.post(s.runPath("records"), recordBatch{Records: []Record{{Metric: "loss", Value: 1}}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), attempts.Load())
}

func TestSyncClientErrorsAreNotRetried(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	s := newSyncer(server.URL, "key", "proj", "run1")
	defer s.close()
	err := s.post(s.runPath("finish"), runFinish{Status: "finished"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int64(1), attempts.Load())
}

func TestSyncAttemptsAreCapped(t *testing.T) {
	if testing.Short() {
		t.Skip("waits through several backoff intervals")
	}
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	s := newSyncer(server.URL, "key", "proj", "run1")
	defer s.close()
	err := s.post(s.runPath("records"), recordBatch{})
	require.Error(t, err)
	assert.Equal(t, int64(syncMaxAttempts), attempts.Load())
}

func TestSyncArtifactUpload(t *testing.T) {
	server := newCaptureServer()
	defer server.Close()

	dir := t.TempDir()
	content := []byte("model weights")
	localPath := filepath.Join(dir, "model.bin")
	require.NoError(t, os.WriteFile(localPath, content, 0o644))
	digest, size, err := runfiles.SHA256File(localPath)
	require.NoError(t, err)

	artifact := &Artifact{
		Name:       "weights",
		Type:       "checkpoint",
		Version:    0,
		Files:      []ArtifactFile{{Path: "model.bin", SHA256: digest, SizeBytes: size}},
		TotalBytes: size,
		Dir:        dir,
	}
	s := newSyncer(server.URL, "key", "proj", "run1")
	defer s.close()
	require.NoError(t, s.uploadArtifact(artifact))

	requests := server.captured()
	require.Len(t, requests, 2)
	assert.Equal(t, http.MethodPost, requests[0].Method)
	assert.Equal(t, "/api/v1/runs/proj/run1/artifacts", requests[0].Path)
	var manifest Artifact
	require.NoError(t, json.Unmarshal(requests[0].Body, &manifest))
	assert.Equal(t, "weights", manifest.Name)

	assert.Equal(t, http.MethodPut, requests[1].Method)
	assert.Equal(t, "/api/v1/runs/proj/run1/artifacts/weights/model.bin", requests[1].Path)
	assert.Equal(t, content, requests[1].Body)
	assert.Equal(t, "sha256:"+digest, requests[1].Header.Get("X-Runlog-Digest"))
}

func TestSyncQueueDropsWhenClosed(t *testing.T) {
	server := newCaptureServer()
	defer server.Close()

	s := newSyncer(server.URL, "key", "proj", "run1")
	s.enqueue(Record{Metric: "loss", Value: 1})
	assert.Zero(t, s.close())
	// Late records are counted, not shipped.
	s.enqueue(Record{Metric: "loss", Value: 2})
	assert.Equal(t, int64(1), s.close())
}
