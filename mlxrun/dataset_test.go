// Copyright 2025-2026 The RunLog Authors. SPDX-License-Identifier: Apache-2.0

package mlxrun

import (
	"io"
	"testing"

	"github.com/gomlx/gomlx/types/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDataset yields numExamples examples in batches of batchSize, as
// [n, 1] float32 inputs and labels. When infinite, it wraps around instead of
// returning io.EOF.
type fakeDataset struct {
	name        string
	numExamples int
	batchSize   int
	infinite    bool
	pos         int
}

func (ds *fakeDataset) Name() string { return ds.name }

func (ds *fakeDataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	if ds.pos >= ds.numExamples {
		if !ds.infinite {
			return nil, nil, nil, io.EOF
		}
		ds.pos = 0
	}
	n := min(ds.batchSize, ds.numExamples-ds.pos)
	xs := make([][]float32, n)
	ys := make([][]float32, n)
	for ii := range n {
		v := float32(ds.pos + ii)
		xs[ii] = []float32{v}
		ys[ii] = []float32{2 * v}
	}
	ds.pos += n
	return nil, []*tensors.Tensor{tensors.FromValue(xs)},
		[]*tensors.Tensor{tensors.FromValue(ys)}, nil
}

func (ds *fakeDataset) Reset() { ds.pos = 0 }

// drainEpoch yields until io.EOF, returning the number of yields.
func drainEpoch(t *testing.T, ds *CountingDataset) int {
	t.Helper()
	yields := 0
	for {
		_, _, _, err := ds.Yield()
		if err == io.EOF {
			return yields
		}
		require.NoError(t, err)
		yields++
	}
}

func TestCountingDatasetOneEpoch(t *testing.T) {
	// 10 examples in batches of 3: the last batch is partial.
	counter := CountExamples(&fakeDataset{name: "train", numExamples: 10, batchSize: 3})
	yields := drainEpoch(t, counter)
	assert.Equal(t, 4, yields)
	assert.Equal(t, int64(10), counter.Examples())
	assert.Equal(t, int64(4), counter.Batches())
	assert.Equal(t, int64(10), counter.EpochExamples())

	counter.Reset()
	assert.Equal(t, int64(0), counter.EpochExamples())
	drainEpoch(t, counter)
	// Totals accumulate across epochs, and each epoch sees every example once.
	assert.Equal(t, int64(20), counter.Examples())
	assert.Equal(t, int64(10), counter.EpochExamples())
}

func TestCountingDatasetName(t *testing.T) {
	counter := CountExamples(&fakeDataset{name: "train", numExamples: 1, batchSize: 1})
	assert.Equal(t, "train", counter.Name())
}

// scalarDataset yields scalar labels and no inputs, the degenerate shape some
// synthetic datasets use.
type scalarDataset struct {
	remaining int
}

func (ds *scalarDataset) Name() string { return "scalars" }

func (ds *scalarDataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	if ds.remaining == 0 {
		return nil, nil, nil, io.EOF
	}
	ds.remaining--
	return nil, nil, []*tensors.Tensor{tensors.FromScalar(float32(1))}, nil
}

func (ds *scalarDataset) Reset() {}

func TestCountingDatasetScalars(t *testing.T) {
	counter := CountExamples(&scalarDataset{remaining: 5})
	drainEpoch(t, counter)
	assert.Equal(t, int64(5), counter.Examples())
	assert.Equal(t, int64(5), counter.Batches())
}
