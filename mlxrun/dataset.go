// Copyright 2025-2026 The RunLog Authors. SPDX-License-Identifier: Apache-2.0

package mlxrun

import (
	"sync"

	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/types/tensors"
)

// CountingDataset wraps a train.Dataset and counts the examples and batches
// flowing through Yield, using the leading axis of the first yielded tensor.
// It is safe for concurrent use, so it can sit under data.Parallel -- but then
// counts reflect what was prefetched, not what was trained on; prefer wrapping
// the outermost dataset.
type CountingDataset struct {
	ds train.Dataset

	mu         sync.Mutex
	examples   int64
	batches    int64
	epochStart int64
}

// CountExamples wraps ds into a CountingDataset.
func CountExamples(ds train.Dataset) *CountingDataset {
	return &CountingDataset{ds: ds}
}

func (c *CountingDataset) Name() string { return c.ds.Name() }

// Yield implements train.Dataset, counting as a side effect.
func (c *CountingDataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	spec, inputs, labels, err = c.ds.Yield()
	if err != nil {
		return
	}
	n := leadingDim(inputs, labels)
	c.mu.Lock()
	c.examples += int64(n)
	c.batches++
	c.mu.Unlock()
	return
}

// Reset implements train.Dataset and marks an epoch boundary for
// EpochExamples.
func (c *CountingDataset) Reset() {
	c.mu.Lock()
	c.epochStart = c.examples
	c.mu.Unlock()
	c.ds.Reset()
}

// Examples returns the total number of examples yielded so far.
func (c *CountingDataset) Examples() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.examples
}

// Batches returns the total number of batches yielded so far.
func (c *CountingDataset) Batches() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batches
}

// EpochExamples returns the number of examples yielded since the last Reset.
func (c *CountingDataset) EpochExamples() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.examples - c.epochStart
}

// leadingDim is the batch size of a yield: the leading axis of the first
// input (or label, for input-less datasets). Scalars count as one example.
func leadingDim(inputs, labels []*tensors.Tensor) int {
	all := inputs
	if len(all) == 0 {
		all = labels
	}
	if len(all) == 0 {
		return 0
	}
	shape := all[0].Shape()
	if shape.Rank() == 0 {
		return 1
	}
	return shape.Dimensions[0]
}
