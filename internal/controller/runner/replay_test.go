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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/stepflow/internal/controller/backend/memory"
	stepflowerrors "github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/workflow"
)

func TestReplay_SetsReplayOf(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	ctx := context.Background()

	first := h.run(t, def("replayed",
		step("a", "fail"),
		step("b", "record", "a"),
	))
	require.Equal(t, workflow.ExecutionFailed, first.Status)

	id, err := h.runner.Replay(ctx, first.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, id)

	second := h.wait(t, id)
	assert.Equal(t, first.ID, second.ReplayOf)
	assert.Equal(t, first.WorkflowID, second.WorkflowID)
	assert.Equal(t, workflow.ExecutionFailed, second.Status)

	stored, err := h.gateway.GetExecution(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ReplayOf)

	// The source is untouched
	source, err := h.gateway.GetExecution(ctx, first.ID)
	require.NoError(t, err)
	assert.Empty(t, source.ReplayOf)
	assert.Equal(t, workflow.ExecutionFailed, source.Status)
}

func TestReplay_UsesCurrentDefinitionByDefault(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	ctx := context.Background()

	original := def("evolving", step("a", "fail"))
	original.ID = "evolving"
	first := h.run(t, original)
	require.Equal(t, workflow.ExecutionFailed, first.Status)

	fixed := def("evolving", step("a", "record"))
	fixed.ID = "evolving"
	_, err := h.runner.CreateWorkflow(ctx, fixed)
	require.NoError(t, err)

	id, err := h.runner.Replay(ctx, first.ID)
	require.NoError(t, err)
	replayed := h.wait(t, id)
	assert.Equal(t, workflow.ExecutionSuccess, replayed.Status)
	assert.Equal(t, []string{"a"}, h.recorded())

	// From the snapshot the original failing step runs again
	id, err = h.runner.Replay(ctx, first.ID, FromSnapshot())
	require.NoError(t, err)
	fromSnapshot := h.wait(t, id)
	assert.Equal(t, workflow.ExecutionFailed, fromSnapshot.Status)
	assert.Equal(t, "fail", fromSnapshot.Step("a").Executor)
	assert.Equal(t, first.ID, fromSnapshot.ReplayOf)
}

func TestReplay_NotFound(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	ctx := context.Background()

	_, err := h.runner.Replay(ctx, "missing")
	assert.ErrorIs(t, err, stepflowerrors.ErrExecutionNotFound)

	var nf *stepflowerrors.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.ID)
}

func TestReplay_WorkflowGone(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	ctx := context.Background()

	final := h.run(t, def("deleted", step("a", "noop")))
	require.NoError(t, h.defs.Delete(ctx, final.WorkflowID))
	require.NoError(t, h.gateway.DeleteDefinition(ctx, final.WorkflowID))

	_, err := h.runner.Replay(ctx, final.ID)
	assert.ErrorIs(t, err, stepflowerrors.ErrWorkflowNotFound)
}

func TestReplay_NotReplayableWhileRunning(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	ctx := context.Background()

	id, err := h.runner.CreateWorkflow(ctx, def("busy", step("a", "noop")))
	require.NoError(t, err)

	started := epoch
	require.NoError(t, h.gateway.CreateExecution(ctx, &workflow.Execution{
		ID:         "elsewhere",
		WorkflowID: id,
		Status:     workflow.ExecutionRunning,
		StartedAt:  &started,
		TotalSteps: 1,
		StepOrder:  []string{"a"},
		CreatedAt:  epoch,
		UpdatedAt:  epoch,
	}))

	_, err = h.runner.Replay(ctx, "elsewhere")
	var notReplayable *stepflowerrors.NotReplayableError
	require.ErrorAs(t, err, &notReplayable)
	assert.Equal(t, "elsewhere", notReplayable.ExecutionID)
	assert.Equal(t, string(workflow.ExecutionRunning), notReplayable.Status)
}

func TestReplay_FallsBackToMemory(t *testing.T) {
	h := newHarness(t, Config{}, &failingGateway{Backend: memory.New()})
	ctx := context.Background()

	first := h.run(t, def("memory-only", step("a", "record")))
	require.Equal(t, workflow.ExecutionSuccess, first.Status)

	id, err := h.runner.Replay(ctx, first.ID)
	require.NoError(t, err)

	replayed := h.wait(t, id)
	assert.Equal(t, workflow.ExecutionSuccess, replayed.Status)
	assert.Equal(t, first.ID, replayed.ReplayOf)
	assert.Equal(t, []string{"a", "a"}, h.recorded())
}

func TestReplay_RejectedWhileDraining(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	ctx := context.Background()

	final := h.run(t, def("drain", step("a", "noop")))
	h.runner.StartDraining()

	_, err := h.runner.Replay(ctx, final.ID)
	assert.ErrorIs(t, err, ErrDraining)
}
