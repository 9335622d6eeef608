// Copyright 2025-2026 The RunLog Authors. SPDX-License-Identifier: Apache-2.0

package report

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	grob "github.com/MetalBlueberry/go-plotly/generated/v2.34.0/graph_objects"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runlog/runlog"
)

// buildTestRun records a small finished run and returns its directory.
func buildTestRun(t *testing.T) string {
	run, err := runlog.Build().
		Project("test").
		Name("report-unit").
		Config(runlog.Config{"learning_rate": 0.1}).
		Dir(t.TempDir()).
		Quiet().
		Done()
	require.NoError(t, err)

	losses := []float64{2.0, 1.2, 0.8, 0.5}
	accuracies := []float64{0.3, 0.6, 0.75, 0.9}
	for step := range losses {
		require.NoError(t, run.LogMetrics(step, runlog.Metrics{
			"Train: Moving Average Loss": losses[step],
			"Train: Accuracy":            accuracies[step],
		}))
	}

	img := image.NewGray(image.Rect(0, 0, 4, 4))
	img.SetGray(1, 1, color.Gray{Y: 255})
	require.NoError(t, run.LogImage(3, "sample", img))

	run.SetSummary("best_accuracy", 0.9)
	require.NoError(t, run.Finish())
	return run.Dir()
}

func TestLoadAndSeries(t *testing.T) {
	runDir := buildTestRun(t)
	rep, err := Load(runDir)
	require.NoError(t, err)

	assert.Equal(t, runlog.StatusFinished, rep.State.Status)
	assert.Equal(t, "report-unit", rep.State.Name)
	assert.Equal(t, 0.1, rep.Config["learning_rate"])
	assert.Equal(t, 0.9, rep.Summary["best_accuracy"])

	// The image record goes to Media, not to the plottable series.
	require.Equal(t, []string{runlog.KindAccuracy, runlog.KindLoss}, rep.Kinds())
	require.Len(t, rep.Media(), 1)
	assert.NotEmpty(t, rep.Media()[0].File)

	lossSeries := rep.Series(runlog.KindLoss)
	require.Len(t, lossSeries, 1)
	assert.Equal(t, "Train: Moving Average Loss", lossSeries[0].Metric)
	assert.Equal(t, []float64{0, 1, 2, 3}, lossSeries[0].Steps)
	assert.Equal(t, []float64{2.0, 1.2, 0.8, 0.5}, lossSeries[0].Values)

	assert.Len(t, rep.AllSeries(), 2)
}

func TestLoadLiveRun(t *testing.T) {
	run, err := runlog.Build().Project("test").Dir(t.TempDir()).Quiet().Done()
	require.NoError(t, err)

	rep, err := Load(run.Dir())
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusRunning, rep.State.Status)
	assert.Empty(t, rep.Summary)

	require.NoError(t, run.Finish())
}

func TestLoadMissingRunDir(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "no-such-run"))
	require.Error(t, err)
}

func TestFigs(t *testing.T) {
	rep, err := Load(buildTestRun(t))
	require.NoError(t, err)

	fig := rep.Fig(runlog.KindLoss)
	require.NotNil(t, fig)
	require.Len(t, fig.Data, 1)
	trace, ok := fig.Data[0].(*grob.Scatter)
	require.True(t, ok)
	assert.Len(t, trace.X.Value().([]float64), 4)

	assert.Nil(t, rep.Fig("no-such-kind"))
	assert.Len(t, rep.Figs(), len(rep.Kinds()))
}

func TestWriteHTML(t *testing.T) {
	rep, err := Load(buildTestRun(t))
	require.NoError(t, err)

	htmlPath := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, rep.WriteHTML(htmlPath))
	content, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Plotly.newPlot")
	assert.Contains(t, string(content), "plot0")
	assert.Contains(t, string(content), "plot1")
}

func TestWritePNG(t *testing.T) {
	rep, err := Load(buildTestRun(t))
	require.NoError(t, err)

	pngPath := filepath.Join(t.TempDir(), "loss.png")
	require.NoError(t, rep.WritePNG(runlog.KindLoss, pngPath))
	info, err := os.Stat(pngPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	require.Error(t, rep.WritePNG("no-such-kind", pngPath))
}

func TestWriteSVG(t *testing.T) {
	rep, err := Load(buildTestRun(t))
	require.NoError(t, err)

	svgPath := filepath.Join(t.TempDir(), "accuracy.svg")
	require.NoError(t, rep.WriteSVG(runlog.KindAccuracy, svgPath))
	content, err := os.ReadFile(svgPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "<svg")
	assert.Contains(t, string(content), "accuracy metrics")

	require.Error(t, rep.WriteSVG("no-such-kind", svgPath))
}

func TestTables(t *testing.T) {
	rep, err := Load(buildTestRun(t))
	require.NoError(t, err)

	info := rep.InfoTable()
	assert.Contains(t, info, rep.State.ID)
	assert.Contains(t, info, "finished")

	config := rep.ConfigTable()
	assert.Contains(t, config, "learning_rate")
	assert.Contains(t, config, "0.100000")

	summary := rep.SummaryTable()
	assert.Contains(t, summary, "best_accuracy")
	assert.Contains(t, summary, "Train: Accuracy")

	metrics := rep.MetricsTable()
	assert.Contains(t, metrics, "Step")
	assert.Contains(t, metrics, "Train: Moving Average Loss")
	assert.Contains(t, metrics, "0.800000")

	onlyAccuracy := rep.MetricsTable("Train: Accuracy")
	assert.Contains(t, onlyAccuracy, "Train: Accuracy")
	assert.NotContains(t, onlyAccuracy, "Train: Moving Average Loss")
}
