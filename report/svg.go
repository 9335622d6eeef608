// Copyright 2025-2026 The RunLog Authors. SPDX-License-Identifier: Apache-2.0

package report

import (
	"bytes"
	"fmt"
	"os"

	mg "github.com/erkkah/margaid"
	"github.com/pkg/errors"

	"github.com/runlog/runlog/internal/runfiles"
)

// SVG chart dimensions.
const (
	svgWidth  = 1024
	svgHeight = 400
)

// RenderSVG renders the metrics of one kind as an SVG chart, one line per
// metric, and returns the SVG markup. Charts use linear projections, pass
// mg.Log to change an axis.
func (r *Report) RenderSVG(kind string, xProjection, yProjection mg.Projection) (string, error) {
	series := r.series[kind]
	if len(series) == 0 {
		return "", errors.Errorf("no metrics of kind %q recorded in %q", kind, r.RunDir)
	}

	allSeries := make([]*mg.Series, 0, len(series))
	allPoints := mg.NewSeries()
	for _, s := range series {
		line := mg.NewSeries(mg.Titled(s.Metric))
		for ii := range s.Steps {
			v := mg.MakeValue(s.Steps[ii], s.Values[ii])
			line.Add(v)
			allPoints.Add(v)
		}
		allSeries = append(allSeries, line)
	}

	diagram := mg.New(svgWidth, svgHeight,
		mg.WithAutorange(mg.XAxis, allSeries...),
		mg.WithProjection(mg.XAxis, xProjection),
		mg.WithAutorange(mg.YAxis, allSeries...),
		mg.WithProjection(mg.YAxis, yProjection),
		mg.WithInset(70),
		mg.WithPadding(2),
		mg.WithColorScheme(90),
		mg.WithBackgroundColor("#f8f8f8"),
	)
	for _, s := range allSeries {
		diagram.Line(s, mg.UsingAxes(mg.XAxis, mg.YAxis), mg.UsingMarker("square"), mg.UsingStrokeWidth(2))
	}
	diagram.Axis(allPoints, mg.XAxis, diagram.ValueTicker('f', 0, 10), false, "Steps")
	diagram.Axis(allPoints, mg.YAxis, diagram.ValueTicker('f', 3, 10), true, kind)
	diagram.Frame()
	diagram.Title(fmt.Sprintf("%s metrics", kind))
	diagram.Legend(mg.BottomLeft)

	buf := bytes.NewBuffer(nil)
	if err := diagram.Render(buf); err != nil {
		return "", errors.Wrapf(err, "failed to render SVG chart for %q", kind)
	}
	return buf.String(), nil
}

// WriteSVG renders the metrics of one kind with RenderSVG, with linear
// projections on both axes, and writes the SVG to a file.
func (r *Report) WriteSVG(kind, filePath string) error {
	svg, err := r.RenderSVG(kind, mg.Lin, mg.Lin)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filePath, []byte(svg), runfiles.FilePermMode); err != nil {
		return errors.Wrapf(err, "failed to write SVG chart to %q", filePath)
	}
	return nil
}
