// Copyright 2025-2026 The RunLog Authors. SPDX-License-Identifier: Apache-2.0

package runfiles

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// CreateJSONLWriter creates a channel that appends each value sent to it as one
// JSON line of filePath. Writing happens on a separate goroutine so callers are
// not slowed down by I/O; in exchange, errors are only reported at the very end:
// close the writer channel, then receive from errReport. If a write fails the
// goroutine stops writing but keeps draining until closed.
func CreateJSONLWriter[T any](filePath string) (writer chan<- T, errReport <-chan error) {
	entryChan := make(chan T, 100)
	writer = entryChan
	errChan := make(chan error, 1)
	errReport = errChan
	go func() {
		f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, FilePermMode)
		if err != nil {
			err = errors.Wrapf(err, "failed to open %q for append", filePath)
			klog.Errorf("Error: %v", err)
		}
		enc := json.NewEncoder(f)
		for entry := range entryChan {
			if err != nil {
				continue
			}
			if encErr := enc.Encode(entry); encErr != nil {
				err = errors.Wrapf(encErr, "failed to append entry to %q", filePath)
				klog.Errorf("Error: %v", err)
			}
		}
		if f != nil {
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
		}
		errChan <- err
	}()
	return
}

// ScanJSONL reads filePath line by line, decoding each line into a T and handing
// it to fn. Scanning stops at the first error returned by fn.
func ScanJSONL[T any](filePath string, fn func(entry T) error) error {
	f, err := os.Open(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to open %q", filePath)
	}
	defer func() { _ = f.Close() }()
	dec := json.NewDecoder(f)
	for {
		var entry T
		err := dec.Decode(&entry)
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "error while decoding %q", filePath)
		}
		if err = fn(entry); err != nil {
			return err
		}
	}
	return nil
}

// LoadJSONL reads all entries of a JSONL file at once.
func LoadJSONL[T any](filePath string) ([]T, error) {
	var entries []T
	err := ScanJSONL(filePath, func(entry T) error {
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
