// Copyright 2025-2026 The RunLog Authors. SPDX-License-Identifier: Apache-2.0

package runfiles

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// WriteJSON writes v as indented JSON to filePath, atomically: the bytes go to a
// temporary file in the same directory, which is renamed into place. A reader
// never observes a partially written file.
func WriteJSON(filePath string, v any) error {
	dir := filepath.Dir(filePath)
	f, err := os.CreateTemp(dir, "."+filepath.Base(filePath)+".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "failed to create temporary file in %q", dir)
	}
	tmpName := f.Name()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "\t")
	err = enc.Encode(v)
	if err == nil {
		err = f.Close()
	} else {
		_ = f.Close()
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrapf(err, "failed to write JSON to %q", filePath)
	}
	if err = os.Chmod(tmpName, FilePermMode); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrapf(err, "failed to chmod %q", tmpName)
	}
	if err = os.Rename(tmpName, filePath); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrapf(err, "failed to move %q into place", filePath)
	}
	return nil
}

// ReadJSON parses the JSON file at filePath into v.
func ReadJSON(filePath string, v any) error {
	f, err := os.Open(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to open %q", filePath)
	}
	defer func() { _ = f.Close() }()
	dec := json.NewDecoder(f)
	if err = dec.Decode(v); err != nil {
		return errors.Wrapf(err, "failed to parse JSON file %q", filePath)
	}
	return nil
}
