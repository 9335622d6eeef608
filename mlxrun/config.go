// Copyright 2025-2026 The RunLog Authors. SPDX-License-Identifier: Apache-2.0

package mlxrun

import (
	"github.com/gomlx/gomlx/ml/context"

	"github.com/runlog/runlog"
)

// ConfigFromContext copies the root-scope hyperparameters of a GoMLX context
// into a run config, ready for runlog.Builder.Config. Parameters set in inner
// scopes are skipped: they are layer-local overrides, not run-level
// hyperparameters.
func ConfigFromContext(ctx *context.Context) runlog.Config {
	config := runlog.Config{}
	ctx.EnumerateParams(func(scope, key string, value any) {
		if scope == context.ScopeSeparator {
			config[key] = value
		}
	})
	return config
}
