// Copyright 2025-2026 The RunLog Authors. SPDX-License-Identifier: Apache-2.0

package report

import (
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// WritePNG renders the metrics of one kind as a static PNG chart, one line
// per metric.
func (r *Report) WritePNG(kind, filePath string) error {
	series := r.series[kind]
	if len(series) == 0 {
		return errors.Errorf("no metrics of kind %q recorded in %q", kind, r.RunDir)
	}

	p := plot.New()
	p.Title.Text = kind
	p.X.Label.Text = "Steps"
	p.Y.Label.Text = kind
	p.Add(plotter.NewGrid())
	p.Legend.Top = true

	args := make([]any, 0, 2*len(series))
	for _, s := range series {
		xys := make(plotter.XYs, len(s.Steps))
		for ii := range s.Steps {
			xys[ii].X = s.Steps[ii]
			xys[ii].Y = s.Values[ii]
		}
		args = append(args, s.Metric, xys)
	}
	if err := plotutil.AddLinePoints(p, args...); err != nil {
		return errors.Wrapf(err, "failed to build chart for metric kind %q", kind)
	}
	if err := p.Save(12*vg.Inch, 6*vg.Inch, filePath); err != nil {
		return errors.Wrapf(err, "failed to save chart to %q", filePath)
	}
	return nil
}
