// Copyright 2025-2026 The RunLog Authors. SPDX-License-Identifier: Apache-2.0

// Package mlxrun streams GoMLX training metrics into a runlog.Run.
//
// It attaches to a train.Loop the same way the notebook plotters do: metric
// collection is scheduled at selected steps, each collection logs the trainer's
// training metrics plus an evaluation on the configured datasets, and the
// checkpoint (if any) is saved and logged as an artifact when the loop ends.
//
// A typical training function:
//
//	run := must.M1(runlog.Build().Project("mnist").Config(cfg).Done())
//	defer run.Finish()
//	loop := train.NewLoop(trainer)
//	commandline.AttachProgressBar(loop)
//	counter := mlxrun.CountExamples(trainDS)
//	mlxrun.Attach(run, loop).
//		WithDatasets(trainEvalDS, testEvalDS).
//		WithExampleCount(counter).
//		WithCheckpoint(checkpoint, 1000).
//		ScheduleNTimes(100)
//	_ = must.M1(loop.RunEpochs(counter, numEpochs))
//
// The observer never finishes the run: the owner decides whether a run spans
// one loop or several.
package mlxrun

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/gomlx/gomlx/ml/context/checkpoints"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/runlog/runlog"
)

// Names of the bookkeeping metrics logged alongside the trainer's own.
const (
	MetricEpoch        = "Epoch"
	MetricExamplesSeen = "Examples Seen"
)

// Observer wires a train.Loop to a runlog.Run. Create it with Attach and
// configure it with the chained With* and Schedule* methods.
type Observer struct {
	run  *runlog.Run
	loop *train.Loop

	evalDatasets        []train.Dataset
	batchNormAveragesDS train.Dataset
	counter             *CountingDataset
	epochSize           int
	customMetricFn      CustomMetricFn
	checkpoint          *checkpoints.Handler

	// lastStepCollected dedupes collection when more than one schedule fires
	// on the same loop step.
	lastStepCollected int
	scheduledOnEnd    bool
}

// CustomMetricFn can be registered with Observer.WithCustomMetricFn to log
// additional metrics at every collection step.
type CustomMetricFn func(run *runlog.Run, step float64) error

// Attach creates an Observer for the given run and loop. Nothing is collected
// until one of the Schedule* methods is called.
func Attach(run *runlog.Run, loop *train.Loop) *Observer {
	return &Observer{
		run:               run,
		loop:              loop,
		lastStepCollected: -1,
	}
}

// WithDatasets configures the datasets to evaluate at each collecting step
// (see the Schedule* methods). The datasets must be finite (one epoch).
func (o *Observer) WithDatasets(datasets ...train.Dataset) *Observer {
	o.evalDatasets = datasets
	return o
}

// WithBatchNormalizationAveragesUpdate configures a one-epoch dataset used to
// update the batch normalization averages (of mean and variance) before each
// evaluation. It is a no-op if the model doesn't use batch normalization.
func (o *Observer) WithBatchNormalizationAveragesUpdate(oneEpochDS train.Dataset) *Observer {
	o.batchNormAveragesDS = oneEpochDS
	return o
}

// WithExampleCount logs the cumulative number of examples seen by counter as
// the metric "Examples Seen" at each collection step. Wrap the outermost
// training dataset (after any parallelization) so counts match what the
// trainer consumed.
func (o *Observer) WithExampleCount(counter *CountingDataset) *Observer {
	o.counter = counter
	return o
}

// WithEpochSize sets the number of examples in one epoch, used to derive the
// "Epoch" metric when the loop is driven by train.Loop.RunSteps. When driven
// by RunEpochs the loop's own epoch counter is used instead.
func (o *Observer) WithEpochSize(numExamples int) *Observer {
	o.epochSize = numExamples
	return o
}

// WithCustomMetricFn registers the given function to run at every collection
// step. Only one function can be registered, set to nil to reset.
func (o *Observer) WithCustomMetricFn(fn CustomMetricFn) *Observer {
	o.customMetricFn = fn
	return o
}

// WithCheckpoint saves the checkpoint every everyNSteps steps (if > 0) and at
// the end of the loop, and then logs the checkpoint directory as the run's
// "checkpoint" artifact. If checkpoint is nil, it's a no-op.
func (o *Observer) WithCheckpoint(checkpoint *checkpoints.Handler, everyNSteps int) *Observer {
	if checkpoint == nil {
		return o
	}
	o.checkpoint = checkpoint
	if everyNSteps > 0 {
		train.EveryNSteps(o.loop, everyNSteps, "mlxrun.Checkpoint", 100,
			func(loop *train.Loop, metrics []*tensors.Tensor) error {
				return checkpoint.Save()
			})
	}
	o.attachOnEnd()
	return o
}

// ScheduleExponential collects metrics starting at startStep and then at
// exponentially spaced steps with the given factor. Typical values are 100
// and 1.1: frequent early on, when most of the change happens.
func (o *Observer) ScheduleExponential(startStep int, stepFactor float64) *Observer {
	train.ExponentialCallback(o.loop, startStep, stepFactor, true, "mlxrun.Collect", 0, o.collect)
	o.attachOnEnd()
	return o
}

// ScheduleNTimes collects metrics numPoints times, evenly distributed over
// the loop.
func (o *Observer) ScheduleNTimes(numPoints int) *Observer {
	train.NTimesDuringLoop(o.loop, numPoints, "mlxrun.Collect", 0, o.collect)
	o.attachOnEnd()
	return o
}

// ScheduleEveryNSteps collects metrics every n steps.
func (o *Observer) ScheduleEveryNSteps(n int) *Observer {
	train.EveryNSteps(o.loop, n, "mlxrun.Collect", 0, o.collect)
	o.attachOnEnd()
	return o
}

// collect logs one sample of all metrics: bookkeeping, training (pre-computed
// by the trainer and given), and one evaluation per configured dataset.
func (o *Observer) collect(loop *train.Loop, trainMetrics []*tensors.Tensor) error {
	// Only collect once per step: multiple calls happen when collection was
	// scheduled more than one way, or on the last step of the loop.
	if o.lastStepCollected >= loop.LoopStep {
		return nil
	}
	o.lastStepCollected = loop.LoopStep
	step := float64(loop.Trainer.GlobalStep())

	if err := o.run.Log(runlog.Record{
		Metric: MetricEpoch, Short: "ep", Kind: runlog.KindGeneric,
		Step: step, Value: o.epochValue(loop),
	}); err != nil {
		return err
	}
	if o.counter != nil {
		if err := o.run.Log(runlog.Record{
			Metric: MetricExamplesSeen, Short: "ex", Kind: runlog.KindGeneric,
			Step: step, Value: float64(o.counter.Examples()),
		}); err != nil {
			return err
		}
	}

	for ii, desc := range loop.Trainer.TrainMetrics() {
		if desc.Name() == "Batch Loss" {
			// Skip the batch loss, it fluctuates a lot at each batch, and the
			// trainer always includes the moving average loss.
			continue
		}
		err := o.run.Log(runlog.Record{
			Metric: "Train: " + desc.Name(),
			Short:  fmt.Sprintf("T/%s", desc.ShortName()),
			Kind:   desc.MetricType(),
			Step:   step,
			Value:  shapes.ConvertTo[float64](trainMetrics[ii].Value()),
		})
		if err != nil {
			return err
		}
	}

	if o.batchNormAveragesDS != nil {
		loop.Trainer.BatchNormalizationAveragesUpdate(o.batchNormAveragesDS)
	}
	for _, ds := range o.evalDatasets {
		if err := logEvalDataset(o.run, loop, ds, step); err != nil {
			return err
		}
	}

	if o.customMetricFn != nil {
		if err := o.customMetricFn(o.run, step); err != nil {
			return errors.WithMessagef(err, "custom metric function failed at step %d", loop.LoopStep)
		}
	}
	return nil
}

// epochValue returns the running epoch index: the loop's own counter when
// driven by RunEpochs, otherwise derived from the example count when the
// epoch size is known. Zero when neither is available.
func (o *Observer) epochValue(loop *train.Loop) float64 {
	epoch := float64(loop.Epoch)
	if o.counter != nil && o.epochSize > 0 {
		derived := math.Floor(float64(o.counter.Examples()) / float64(o.epochSize))
		if derived > epoch {
			epoch = derived
		}
	}
	return epoch
}

// attachOnEnd registers the final collection and checkpoint logging when
// training finishes. Registered only once, however many schedules are set.
func (o *Observer) attachOnEnd() {
	if o.scheduledOnEnd {
		return
	}
	o.scheduledOnEnd = true
	o.loop.OnEnd("mlxrun.Finalize", 110, func(loop *train.Loop, metrics []*tensors.Tensor) error {
		if err := o.collect(loop, metrics); err != nil {
			return err
		}
		return o.logCheckpoint()
	})
}

// logCheckpoint saves the checkpoint one last time and registers the
// checkpoint directory contents as the run's "checkpoint" artifact.
func (o *Observer) logCheckpoint() error {
	if o.checkpoint == nil {
		return nil
	}
	if err := o.checkpoint.Save(); err != nil {
		return errors.WithMessagef(err, "saving checkpoint at the end of training")
	}
	files, err := checkpointFiles(o.checkpoint.Dir())
	if err != nil {
		return err
	}
	artifact, err := o.run.LogArtifact("checkpoint", "model", files...)
	if err != nil {
		return errors.WithMessagef(err, "logging checkpoint artifact from %q", o.checkpoint.Dir())
	}
	klog.V(1).Infof("mlxrun: logged %s from %q", artifact.Ref(), o.checkpoint.Dir())
	return nil
}

// checkpointFiles lists the regular files in the checkpoint directory.
func checkpointFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "listing checkpoint directory %q", dir)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	if len(files) == 0 {
		return nil, errors.Errorf("checkpoint directory %q has no files", dir)
	}
	return files, nil
}

// LogEval evaluates each dataset with the loop's trainer and logs the metrics
// at the current global step. Use it for a final evaluation after training,
// the values then land in the run's summary.
func LogEval(run *runlog.Run, loop *train.Loop, datasets ...train.Dataset) error {
	step := float64(loop.Trainer.GlobalStep())
	for _, ds := range datasets {
		if err := logEvalDataset(run, loop, ds, step); err != nil {
			return err
		}
	}
	return nil
}

func logEvalDataset(run *runlog.Run, loop *train.Loop, ds train.Dataset, step float64) error {
	evalMetrics, err := loop.Trainer.Eval(ds)
	if err != nil {
		return errors.WithMessagef(err, "evaluating on %q at step %d", ds.Name(), loop.LoopStep)
	}
	for ii, desc := range loop.Trainer.EvalMetrics() {
		err := run.Log(runlog.Record{
			Metric: fmt.Sprintf("%s on %s", desc.Name(), ds.Name()),
			Short:  fmt.Sprintf("%s(%s)", desc.ShortName(), shortDatasetName(ds)),
			Kind:   desc.MetricType(),
			Step:   step,
			Value:  shapes.ConvertTo[float64](evalMetrics[ii].Value()),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func shortDatasetName(ds train.Dataset) string {
	name := ds.Name()
	if len(name) > 3 {
		return name[:3]
	}
	return name
}
