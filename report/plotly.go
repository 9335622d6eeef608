// Copyright 2025-2026 The RunLog Authors. SPDX-License-Identifier: Apache-2.0

package report

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"os"

	grob "github.com/MetalBlueberry/go-plotly/generated/v2.34.0/graph_objects"
	ptypes "github.com/MetalBlueberry/go-plotly/pkg/types"
	"github.com/janpfeifer/gonb/gonbui"
	gonbplotly "github.com/janpfeifer/gonb/gonbui/plotly"
	"github.com/pkg/errors"
)

// Fig builds the interactive plotly figure for one metric kind, one scatter
// trace per metric. It returns nil if the kind has no recorded series.
func (r *Report) Fig(kind string) *grob.Fig {
	series := r.series[kind]
	if len(series) == 0 {
		return nil
	}
	fig := &grob.Fig{
		Layout: &grob.Layout{
			Title: &grob.LayoutTitle{
				Text: ptypes.S(kind),
			},
			Xaxis: &grob.LayoutXaxis{
				Showgrid: ptypes.B(true),
				Type:     grob.LayoutXaxisTypeLog,
			},
			Yaxis: &grob.LayoutYaxis{
				Showgrid: ptypes.B(true),
				Type:     grob.LayoutYaxisTypeLog,
			},
			Legend: &grob.LayoutLegend{},
		},
	}
	for _, s := range series {
		fig.Data = append(fig.Data, &grob.Scatter{
			Name: ptypes.S(s.Metric),
			Line: &grob.ScatterLine{
				Shape: grob.ScatterLineShapeLinear,
			},
			Mode: "lines+markers",
			X:    ptypes.DataArray(s.Steps),
			Y:    ptypes.DataArray(s.Values),
		})
	}
	return fig
}

// Figs returns one figure per metric kind, in Kinds order.
func (r *Report) Figs() []*grob.Fig {
	figs := make([]*grob.Fig, 0, len(r.kinds))
	for _, kind := range r.kinds {
		figs = append(figs, r.Fig(kind))
	}
	return figs
}

// Display renders all figures inline, one per metric kind. Outside a GoNB
// notebook it falls back to printing the metrics history table.
func (r *Report) Display() error {
	if !gonbui.IsNotebook {
		fmt.Println(r.MetricsTable())
		return nil
	}
	for _, kind := range r.kinds {
		gonbui.DisplayHtmlf("<p><b>Metric: %s</b></p>\n", kind)
		err := gonbplotly.DisplayFig(r.Fig(kind))
		if err != nil {
			return err
		}
	}
	return nil
}

var (
	singleFileHTML = `<!DOCTYPE html>
	<head>
		<meta charset="utf-8">
		<title>{{ .Title }}</title>
		<script src="{{ .CDN }}"></script>
	</head>
	<body>
{{- range $i, $f := .Figures }}
		<div id="plot{{ $i }}"></div>
		{{ if not (eq $i (lastIdx $.Figures)) }}
		<hr style="border-color: gray;">
		{{ end }}
{{- end }}
	<script>
{{- range $i, $f := .Figures }}
		data = JSON.parse(atob('{{ $f }}'))
		Plotly.newPlot('plot{{ $i }}', data);
{{- end }}
	</script>
	</body>
</html>`
	singleFileHTMLTmpl = template.Must(template.New("plotly").Funcs(template.FuncMap{
		"lastIdx": func(a []string) int { return len(a) - 1 },
	}).Parse(singleFileHTML))
)

// RenderHTML writes a standalone HTML page with one interactive plotly figure
// per metric kind. The page loads plotly.js from a CDN, the data itself is
// embedded.
func (r *Report) RenderHTML(w io.Writer) error {
	serialized := make([]string, 0, len(r.kinds))
	for _, kind := range r.kinds {
		figAsJSON, err := json.Marshal(r.Fig(kind))
		if err != nil {
			return errors.Wrapf(err, "failed to marshal plotly figure for metric kind %q", kind)
		}
		serialized = append(serialized, base64.StdEncoding.EncodeToString(figAsJSON))
	}
	data := &struct {
		Title   string
		CDN     string
		Figures []string
	}{
		Title:   r.State.Name,
		CDN:     gonbplotly.PlotlySrc,
		Figures: serialized,
	}
	if err := singleFileHTMLTmpl.Execute(w, data); err != nil {
		return errors.Wrap(err, "failed to render plotly figures")
	}
	return nil
}

// WriteHTML writes the RenderHTML page to a file.
func (r *Report) WriteHTML(filePath string) error {
	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create file %q", filePath)
	}
	err = r.RenderHTML(f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return err
}
