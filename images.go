// Copyright 2025-2026 The RunLog Authors. SPDX-License-Identifier: Apache-2.0

package runlog

import (
	"fmt"
	"image"
	"path"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/runlog/runlog/internal/runfiles"
)

// maxImageEdge bounds logged images: anything larger is scaled down (keeping
// the aspect ratio) before being written to the run's media directory. Sample
// sheets stay inspectable without filling the disk with full-size renders.
const maxImageEdge = 1024

// LogImage records an image under the given metric name and step: the image is
// saved as a PNG in the run's media directory and indexed in the history with a
// KindMedia record. Steps must be non-decreasing per name, like scalars.
func (r *Run) LogImage(step int, name string, img image.Image) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeLive("LogImage")

	bounds := img.Bounds()
	if bounds.Dx() > maxImageEdge || bounds.Dy() > maxImageEdge {
		img = imaging.Fit(img, maxImageEdge, maxImageEdge, imaging.Lanczos)
	}
	fileName := fmt.Sprintf("%s_%06d.png", sanitizeName(name), step)
	filePath := filepath.Join(runfiles.MediaDir(r.dir), fileName)
	if err := imaging.Save(img, filePath); err != nil {
		return errors.Wrapf(err, "failed to save image %q of run %s", name, r.id)
	}
	return r.logLocked(Record{
		Metric: name,
		Kind:   KindMedia,
		Step:   float64(step),
		File:   path.Join(runfiles.MediaDirName, fileName),
	})
}

// sanitizeName maps a metric or table name to a safe file name component.
func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
