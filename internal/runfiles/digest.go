// Copyright 2025-2026 The RunLog Authors. SPDX-License-Identifier: Apache-2.0

package runfiles

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/pkg/errors"
)

// SHA256File returns the hex-encoded SHA256 digest of the file contents and its
// size in bytes.
func SHA256File(filePath string) (digest string, size int64, err error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", 0, errors.Wrapf(err, "failed to open %q", filePath)
	}
	defer func() { _ = f.Close() }()
	hasher := sha256.New()
	size, err = io.Copy(hasher, f)
	if err != nil {
		return "", 0, errors.Wrapf(err, "failed to read %q", filePath)
	}
	return hex.EncodeToString(hasher.Sum(nil)), size, nil
}

// CopyFile copies src to dst (created with FilePermMode), returning the number
// of bytes copied. dst is removed on error.
func CopyFile(dst, src string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to open %q", src)
	}
	defer func() { _ = in.Close() }()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, FilePermMode)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to create %q", dst)
	}
	n, err := io.Copy(out, in)
	if err == nil {
		err = out.Close()
	} else {
		_ = out.Close()
	}
	if err != nil {
		_ = os.Remove(dst)
		return n, errors.Wrapf(err, "failed to copy %q to %q", src, dst)
	}
	return n, nil
}
