// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package runner

import (
	"context"
	"log/slog"

	"github.com/tombee/stepflow/internal/controller/metrics"
	"github.com/tombee/stepflow/internal/log"
	"github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/workflow"
)

// ReplayOptions controls how a replay chooses its steps.
type ReplayOptions struct {
	// FromSnapshot re-runs the steps recorded on the source execution
	// instead of the workflow's current definition.
	FromSnapshot bool
}

// ReplayOption configures a replay.
type ReplayOption func(*ReplayOptions)

// FromSnapshot makes the replay use the source execution's recorded steps.
func FromSnapshot() ReplayOption {
	return func(o *ReplayOptions) {
		o.FromSnapshot = true
	}
}

// Replay starts a new execution of the workflow behind a finished
// execution and returns the new execution ID. The new execution's ReplayOf
// is set to executionID.
//
// The source is looked up in the gateway first and then in memory. Errors:
// a NotFoundError for a missing execution or workflow, and a
// NotReplayableError when the source has not finished.
func (r *Runner) Replay(ctx context.Context, executionID string, opts ...ReplayOption) (string, error) {
	var options ReplayOptions
	for _, opt := range opts {
		opt(&options)
	}

	if r.draining.Load() {
		return "", ErrDraining
	}

	source, err := r.replaySource(ctx, executionID)
	if err != nil {
		return "", err
	}

	if !source.Status.IsTerminal() {
		return "", &errors.NotReplayableError{
			ExecutionID: executionID,
			Status:      string(source.Status),
		}
	}

	def, err := r.Workflow(ctx, source.WorkflowID)
	if err != nil {
		return "", err
	}

	steps := def.Steps
	if options.FromSnapshot {
		steps = source.InputSnapshot
	}

	snap, err := r.start(ctx, def, steps, source.ID)
	if err != nil {
		return "", err
	}

	if r.metrics != nil {
		r.metrics.RecordReplay(ctx, def.ID)
	}
	r.logger.Info("execution replayed",
		slog.String(log.ExecutionIDKey, snap.ID),
		slog.String(log.WorkflowIDKey, def.ID),
		slog.String("replay_of", source.ID),
		slog.Bool("from_snapshot", options.FromSnapshot))
	return snap.ID, nil
}

// replaySource loads the source execution, gateway first.
func (r *Runner) replaySource(ctx context.Context, executionID string) (*workflow.Execution, error) {
	exec, err := r.gateway.GetExecution(ctx, executionID)
	if err == nil {
		return exec, nil
	}
	if !errors.Is(err, errors.ErrExecutionNotFound) {
		r.state.persistenceError(metrics.OpGetExecution, executionID, err)
	}

	if run, ok := r.state.Get(executionID); ok {
		snap := run.snapshot()
		return &snap.Execution, nil
	}
	return nil, &errors.NotFoundError{Resource: "execution", ID: executionID}
}
