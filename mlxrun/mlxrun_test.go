// Copyright 2025-2026 The RunLog Authors. SPDX-License-Identifier: Apache-2.0

package mlxrun

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/gomlx/gomlx/backends"
	simplego "github.com/gomlx/gomlx/backends/simplego"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/checkpoints"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/ml/train/losses"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runlog/runlog"
	"github.com/runlog/runlog/internal/runfiles"
)

// newTestTrainer builds the smallest possible trainer: a single scalar
// variable trained to match the labels.
func newTestTrainer(ctx *context.Context) *train.Trainer {
	backend := backends.NewWithConfig(simplego.BackendName)
	modelFn := func(ctx *context.Context, spec any, inputs []*Node) []*Node {
		g := inputs[0].Graph()
		predictionVar := ctx.In("model").VariableWithValue("prediction", float32(0))
		return []*Node{predictionVar.ValueGraph(g)}
	}
	optimizer := optimizers.StochasticGradientDescent().WithDecay(false).WithLearningRate(0.1).Done()
	return train.NewTrainer(backend, ctx, modelFn, losses.MeanAbsoluteError, optimizer, nil, nil)
}

func TestObserver(t *testing.T) {
	run, err := runlog.Build().Project("test").Dir(t.TempDir()).Quiet().Done()
	require.NoError(t, err)

	ctx := context.New()
	trainer := newTestTrainer(ctx)
	loop := train.NewLoop(trainer)

	ckptDir := filepath.Join(t.TempDir(), "checkpoint")
	checkpoint, err := checkpoints.Build(ctx).Dir(ckptDir).Keep(2).Done()
	require.NoError(t, err)

	counter := CountExamples(&fakeDataset{name: "train", numExamples: 6, batchSize: 3, infinite: true})
	evalDS := &fakeDataset{name: "validation", numExamples: 6, batchSize: 3}
	Attach(run, loop).
		WithDatasets(evalDS).
		WithExampleCount(counter).
		WithEpochSize(6).
		WithCheckpoint(checkpoint, 0).
		ScheduleEveryNSteps(2)

	_, err = loop.RunSteps(counter, 6)
	require.NoError(t, err)
	require.NoError(t, run.Finish())

	assert.Equal(t, int64(18), counter.Examples())

	records, err := runfiles.LoadJSONL[runlog.Record](runfiles.HistoryPath(run.Dir()))
	require.NoError(t, err)
	byMetric := make(map[string][]runlog.Record)
	for _, rec := range records {
		byMetric[rec.Metric] = append(byMetric[rec.Metric], rec)
	}

	examples := byMetric[MetricExamplesSeen]
	require.NotEmpty(t, examples)
	assert.Equal(t, float64(18), examples[len(examples)-1].Value)

	epochs := byMetric[MetricEpoch]
	require.NotEmpty(t, epochs)
	assert.Equal(t, float64(3), epochs[len(epochs)-1].Value)

	var sawTrain, sawEval bool
	for name := range byMetric {
		if strings.HasPrefix(name, "Train: ") {
			sawTrain = true
		}
		if strings.HasSuffix(name, " on validation") {
			sawEval = true
		}
	}
	assert.True(t, sawTrain, "no training metrics were logged")
	assert.True(t, sawEval, "no evaluation metrics were logged")
	assert.NotContains(t, byMetric, "Train: Batch Loss")

	// Losses are non-negative, whatever the trainer named them.
	for name, recs := range byMetric {
		if recs[0].Kind != runlog.KindLoss {
			continue
		}
		for _, rec := range recs {
			assert.GreaterOrEqual(t, rec.Value, 0.0, name)
		}
	}

	// The end-of-loop checkpoint was staged as an artifact.
	artifacts, err := run.Artifacts()
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, "checkpoint:v0", artifacts[0].Ref())
	assert.NotEmpty(t, artifacts[0].Files)
}

func TestObserverCollectsOncePerStep(t *testing.T) {
	run, err := runlog.Build().Project("test").Dir(t.TempDir()).Quiet().Done()
	require.NoError(t, err)

	ctx := context.New()
	trainer := newTestTrainer(ctx)
	loop := train.NewLoop(trainer)

	counter := CountExamples(&fakeDataset{name: "train", numExamples: 4, batchSize: 2, infinite: true})
	// Two overlapping schedules: every step and four times over the loop.
	Attach(run, loop).
		WithExampleCount(counter).
		ScheduleEveryNSteps(1).
		ScheduleNTimes(4)

	_, err = loop.RunSteps(counter, 4)
	require.NoError(t, err)
	require.NoError(t, run.Finish())

	records, err := runfiles.LoadJSONL[runlog.Record](runfiles.HistoryPath(run.Dir()))
	require.NoError(t, err)
	var examples []runlog.Record
	for _, rec := range records {
		if rec.Metric == MetricExamplesSeen {
			examples = append(examples, rec)
		}
	}
	// One collection per executed step plus the final one, not one per
	// schedule.
	require.Len(t, examples, 5)
	assert.Equal(t, float64(8), examples[len(examples)-1].Value)
}

func TestLogEval(t *testing.T) {
	run, err := runlog.Build().Project("test").Dir(t.TempDir()).Quiet().Done()
	require.NoError(t, err)

	ctx := context.New()
	trainer := newTestTrainer(ctx)
	loop := train.NewLoop(trainer)
	trainDS := &fakeDataset{name: "train", numExamples: 4, batchSize: 2, infinite: true}
	_, err = loop.RunSteps(trainDS, 2)
	require.NoError(t, err)

	evalDS := &fakeDataset{name: "holdout", numExamples: 4, batchSize: 2}
	require.NoError(t, LogEval(run, loop, evalDS))
	require.NoError(t, run.Finish())

	records, err := runfiles.LoadJSONL[runlog.Record](runfiles.HistoryPath(run.Dir()))
	require.NoError(t, err)
	var sawHoldout bool
	for _, rec := range records {
		if strings.HasSuffix(rec.Metric, " on holdout") {
			sawHoldout = true
		}
	}
	assert.True(t, sawHoldout, "no holdout metrics were logged")
}
