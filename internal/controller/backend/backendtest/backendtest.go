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

// Package backendtest holds the behavioural tests every backend.Gateway
// implementation must pass.
package backendtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/stepflow/internal/controller/backend"
	"github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/workflow"
)

// Factory returns a fresh, empty gateway for one subtest.
type Factory func(t *testing.T) backend.Gateway

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// At returns a UTC timestamp offset from a fixed base by n seconds.
func At(n int) *time.Time {
	t := base.Add(time.Duration(n) * time.Second)
	return &t
}

// NewExecution builds a test execution started at the given offset; a
// negative offset leaves it unstarted.
func NewExecution(id, workflowID string, startedAt int) *workflow.Execution {
	exec := &workflow.Execution{
		ID:         id,
		WorkflowID: workflowID,
		Status:     workflow.ExecutionPending,
		TotalSteps: 2,
		StepOrder:  []string{"a", "b"},
		InputSnapshot: []workflow.Step{
			{Name: "a", Executor: "noop"},
			{Name: "b", Executor: "echo", Params: map[string]any{"k": "v"}, DependsOn: []string{"a"}},
		},
	}
	if startedAt >= 0 {
		exec.StartedAt = At(startedAt)
		exec.Status = workflow.ExecutionRunning
	}
	return exec
}

// Run executes the conformance suite against gateways built by newGateway.
func Run(t *testing.T, newGateway Factory) {
	t.Run("create and get round trip", func(t *testing.T) { testRoundTrip(t, newGateway(t)) })
	t.Run("create and update are upserts", func(t *testing.T) { testUpsertExecution(t, newGateway(t)) })
	t.Run("caller timestamps are kept", func(t *testing.T) { testCallerTimestamps(t, newGateway(t)) })
	t.Run("get missing execution", func(t *testing.T) { testGetMissing(t, newGateway(t)) })
	t.Run("step state upsert is idempotent", func(t *testing.T) { testStepStateUpsert(t, newGateway(t)) })
	t.Run("list newest first", func(t *testing.T) { testListOrdering(t, newGateway(t)) })
	t.Run("list filter and paging", func(t *testing.T) { testListFilter(t, newGateway(t)) })
	t.Run("prune keeps most recent", func(t *testing.T) { testPrune(t, newGateway(t)) })
	t.Run("prune disabled", func(t *testing.T) { testPruneDisabled(t, newGateway(t)) })
	t.Run("delete execution", func(t *testing.T) { testDelete(t, newGateway(t)) })
	t.Run("definitions", func(t *testing.T) { testDefinitions(t, newGateway(t)) })
}

func testRoundTrip(t *testing.T, gw backend.Gateway) {
	ctx := context.Background()
	exec := NewExecution("exec-1", "wf-1", 0)
	exec.ReplayOf = "exec-0"
	exec.StepsCompleted = 1

	require.NoError(t, gw.CreateExecution(ctx, exec))

	got, err := gw.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", got.WorkflowID)
	assert.Equal(t, workflow.ExecutionRunning, got.Status)
	assert.Equal(t, 1, got.StepsCompleted)
	assert.Equal(t, 2, got.TotalSteps)
	assert.Equal(t, []string{"a", "b"}, got.StepOrder)
	assert.Equal(t, "exec-0", got.ReplayOf)
	require.NotNil(t, got.StartedAt)
	assert.True(t, got.StartedAt.Equal(*exec.StartedAt))
	assert.Nil(t, got.CompletedAt)
	require.Len(t, got.InputSnapshot, 2)
	assert.Equal(t, []string{"a"}, got.InputSnapshot[1].DependsOn)
	assert.Equal(t, "v", got.InputSnapshot[1].Params["k"])
	assert.False(t, got.CreatedAt.IsZero())
}

func testUpsertExecution(t *testing.T, gw backend.Gateway) {
	ctx := context.Background()
	exec := NewExecution("exec-1", "wf-1", 0)

	require.NoError(t, gw.CreateExecution(ctx, exec))
	require.NoError(t, gw.CreateExecution(ctx, exec), "create must be safe to repeat")

	exec.Status = workflow.ExecutionFailed
	exec.StepsCompleted = 2
	exec.CompletedAt = At(5)
	exec.Error = "boom"
	require.NoError(t, gw.UpdateExecution(ctx, exec))
	require.NoError(t, gw.UpdateExecution(ctx, exec), "update must be safe to repeat")

	// Update of an execution that was never created inserts it.
	require.NoError(t, gw.UpdateExecution(ctx, NewExecution("exec-2", "wf-1", 1)))

	got, err := gw.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.ExecutionFailed, got.Status)
	assert.Equal(t, 2, got.StepsCompleted)
	assert.Equal(t, "boom", got.Error)
	require.NotNil(t, got.CompletedAt)

	list, err := gw.ListExecutions(ctx, backend.ExecutionFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func testCallerTimestamps(t *testing.T, gw backend.Gateway) {
	ctx := context.Background()
	exec := NewExecution("exec-1", "wf-1", 0)
	exec.CreatedAt = *At(0)
	exec.UpdatedAt = *At(1)
	require.NoError(t, gw.CreateExecution(ctx, exec))

	exec.Status = workflow.ExecutionSuccess
	exec.UpdatedAt = *At(7)
	require.NoError(t, gw.UpdateExecution(ctx, exec))

	got, err := gw.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(*At(0)), "created_at = %v", got.CreatedAt)
	assert.True(t, got.UpdatedAt.Equal(*At(7)), "updated_at = %v", got.UpdatedAt)

	// A zero UpdatedAt is filled in by the gateway
	fresh := NewExecution("exec-2", "wf-1", 1)
	require.NoError(t, gw.CreateExecution(ctx, fresh))
	got, err = gw.GetExecution(ctx, "exec-2")
	require.NoError(t, err)
	assert.False(t, got.UpdatedAt.IsZero())
}

func testGetMissing(t *testing.T, gw backend.Gateway) {
	_, err := gw.GetExecution(context.Background(), "nope")
	assert.ErrorIs(t, err, errors.ErrExecutionNotFound)
}

func testStepStateUpsert(t *testing.T, gw backend.Gateway) {
	ctx := context.Background()
	require.NoError(t, gw.CreateExecution(ctx, NewExecution("exec-1", "wf-1", 0)))

	a := &workflow.StepState{Name: "a", Executor: "noop", Status: workflow.StepReady}
	b := &workflow.StepState{Name: "b", Executor: "echo", DependsOn: []string{"a"}, Status: workflow.StepPending}
	require.NoError(t, gw.UpsertStepState(ctx, "exec-1", a))
	require.NoError(t, gw.UpsertStepState(ctx, "exec-1", b))
	require.NoError(t, gw.UpsertStepState(ctx, "exec-1", a))

	a.Status = workflow.StepFailed
	a.StartedAt = At(1)
	a.CompletedAt = At(2)
	a.Error = "exit 1"
	require.NoError(t, gw.UpsertStepState(ctx, "exec-1", a))
	require.NoError(t, gw.UpsertStepState(ctx, "exec-1", a))

	states, err := gw.ListStepStates(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, states, 2, "exactly one state per step name")
	assert.Equal(t, "a", states[0].Name)
	assert.Equal(t, workflow.StepFailed, states[0].Status)
	assert.Equal(t, "exit 1", states[0].Error)
	require.NotNil(t, states[0].CompletedAt)
	assert.True(t, states[0].CompletedAt.Equal(*At(2)))
	assert.Equal(t, "b", states[1].Name)
	assert.Equal(t, []string{"a"}, states[1].DependsOn)
	assert.Equal(t, workflow.StepPending, states[1].Status)

	other, err := gw.ListStepStates(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func testListOrdering(t *testing.T, gw backend.Gateway) {
	ctx := context.Background()
	require.NoError(t, gw.CreateExecution(ctx, NewExecution("never", "wf-1", -1)))
	require.NoError(t, gw.CreateExecution(ctx, NewExecution("old", "wf-1", 10)))
	require.NoError(t, gw.CreateExecution(ctx, NewExecution("new", "wf-2", 30)))
	require.NoError(t, gw.CreateExecution(ctx, NewExecution("mid", "wf-1", 20)))

	list, err := gw.ListExecutions(ctx, backend.ExecutionFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "mid", "old", "never"}, ids(list))
}

func testListFilter(t *testing.T, gw backend.Gateway) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, gw.CreateExecution(ctx, NewExecution(fmt.Sprintf("a-%d", i), "wf-a", i)))
	}
	require.NoError(t, gw.CreateExecution(ctx, NewExecution("b-0", "wf-b", 100)))

	list, err := gw.ListExecutions(ctx, backend.ExecutionFilter{WorkflowID: "wf-a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a-4", "a-3", "a-2", "a-1", "a-0"}, ids(list))

	list, err = gw.ListExecutions(ctx, backend.ExecutionFilter{WorkflowID: "wf-a", Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"a-3", "a-2"}, ids(list))

	list, err = gw.ListExecutions(ctx, backend.ExecutionFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testPrune(t *testing.T, gw backend.Gateway) {
	ctx := context.Background()
	require.NoError(t, gw.CreateExecution(ctx, NewExecution("never", "wf-1", -1)))
	require.NoError(t, gw.UpsertStepState(ctx, "never", &workflow.StepState{Name: "a", Status: workflow.StepReady}))
	for i := 0; i < 11; i++ {
		id := fmt.Sprintf("e-%02d", i)
		require.NoError(t, gw.CreateExecution(ctx, NewExecution(id, fmt.Sprintf("wf-%d", i%3), i)))
		require.NoError(t, gw.UpsertStepState(ctx, id, &workflow.StepState{Name: "a", Status: workflow.StepSuccess}))
	}

	deleted, err := gw.PruneExecutions(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	list, err := gw.ListExecutions(ctx, backend.ExecutionFilter{})
	require.NoError(t, err)
	require.Len(t, list, 10)
	assert.Equal(t, "e-10", list[0].ID)
	assert.Equal(t, "e-01", list[9].ID)

	_, err = gw.GetExecution(ctx, "e-00")
	assert.ErrorIs(t, err, errors.ErrExecutionNotFound)
	_, err = gw.GetExecution(ctx, "never")
	assert.ErrorIs(t, err, errors.ErrExecutionNotFound)

	states, err := gw.ListStepStates(ctx, "never")
	require.NoError(t, err)
	assert.Empty(t, states, "pruning removes step states")

	deleted, err = gw.PruneExecutions(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func testPruneDisabled(t *testing.T, gw backend.Gateway) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, gw.CreateExecution(ctx, NewExecution(fmt.Sprintf("e-%d", i), "wf", i)))
	}

	for _, max := range []int{0, -1} {
		deleted, err := gw.PruneExecutions(ctx, max)
		require.NoError(t, err)
		assert.Equal(t, 0, deleted)
	}

	list, err := gw.ListExecutions(ctx, backend.ExecutionFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func testDelete(t *testing.T, gw backend.Gateway) {
	ctx := context.Background()
	require.NoError(t, gw.CreateExecution(ctx, NewExecution("e", "wf", 0)))
	require.NoError(t, gw.UpsertStepState(ctx, "e", &workflow.StepState{Name: "a", Status: workflow.StepReady}))

	require.NoError(t, gw.DeleteExecution(ctx, "e"))
	_, err := gw.GetExecution(ctx, "e")
	assert.ErrorIs(t, err, errors.ErrExecutionNotFound)

	states, err := gw.ListStepStates(ctx, "e")
	require.NoError(t, err)
	assert.Empty(t, states)

	assert.ErrorIs(t, gw.DeleteExecution(ctx, "e"), errors.ErrExecutionNotFound)
}

func testDefinitions(t *testing.T, gw backend.Gateway) {
	ctx := context.Background()
	def := &workflow.Definition{
		ID:          "wf-b",
		Name:        "build",
		Description: "build it",
		Parallel:    true,
		Steps: []workflow.Step{
			{Name: "a", Executor: "noop"},
			{Name: "b", Executor: "delay", Params: map[string]any{"duration": "1s"}, DependsOn: []string{"a"}},
		},
	}
	require.NoError(t, gw.SaveDefinition(ctx, def))
	require.NoError(t, gw.SaveDefinition(ctx, &workflow.Definition{ID: "wf-a", Name: "other"}))

	def.Description = "changed"
	require.NoError(t, gw.SaveDefinition(ctx, def), "save is an upsert")

	got, err := gw.GetDefinition(ctx, "wf-b")
	require.NoError(t, err)
	assert.Equal(t, "changed", got.Description)
	assert.True(t, got.Parallel)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, "1s", got.Steps[1].Params["duration"])

	list, err := gw.ListDefinitions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "wf-a", list[0].ID)

	require.NoError(t, gw.DeleteDefinition(ctx, "wf-a"))
	_, err = gw.GetDefinition(ctx, "wf-a")
	assert.ErrorIs(t, err, errors.ErrWorkflowNotFound)
}

func ids(execs []*workflow.Execution) []string {
	out := make([]string, len(execs))
	for i, e := range execs {
		out[i] = e.ID
	}
	return out
}
