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

	stepflowerrors "github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/executor"
	"github.com/tombee/stepflow/pkg/workflow"
)

func TestNewPlan(t *testing.T) {
	tests := []struct {
		name      string
		steps     []workflow.Step
		wantOrder []string
		wantTicks [][]string
	}{
		{
			name:      "empty",
			wantOrder: []string{},
			wantTicks: [][]string{},
		},
		{
			name:      "linear",
			steps:     []workflow.Step{step("a", "noop"), step("b", "noop", "a"), step("c", "noop", "b")},
			wantOrder: []string{"a", "b", "c"},
			wantTicks: [][]string{{"a"}, {"b"}, {"c"}},
		},
		{
			name: "diamond",
			steps: []workflow.Step{
				step("a", "noop"),
				step("b", "noop", "a"),
				step("c", "noop", "a"),
				step("d", "noop", "b", "c"),
			},
			wantOrder: []string{"a", "b", "c", "d"},
			wantTicks: [][]string{{"a"}, {"b", "c"}, {"d"}},
		},
		{
			name: "uneven branches",
			steps: []workflow.Step{
				step("x", "noop"),
				step("y", "noop", "x"),
				step("z", "noop", "y"),
				step("w", "noop"),
				step("v", "noop", "w", "z"),
			},
			wantOrder: []string{"x", "w", "y", "z", "v"},
			wantTicks: [][]string{{"x", "w"}, {"y"}, {"z"}, {"v"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := def(tt.name, tt.steps...)
			plan, err := NewPlan(d, executor.NewBuiltinRegistry(nil))
			require.NoError(t, err)

			assert.Equal(t, len(tt.steps), plan.TotalSteps)
			assert.ElementsMatch(t, tt.wantOrder, plan.Order)
			assert.Equal(t, tt.wantTicks, plan.Ticks)
			assert.Empty(t, plan.Warnings)
		})
	}
}

func TestNewPlan_WarnsOnUnregisteredExecutor(t *testing.T) {
	plan, err := NewPlan(def("warn", step("a", "shell")), executor.NewBuiltinRegistry(nil))
	require.NoError(t, err)
	require.Len(t, plan.Warnings, 1)
	assert.Contains(t, plan.Warnings[0], `"shell"`)
}

func TestNewPlan_RejectsCycles(t *testing.T) {
	_, err := NewPlan(def("cycle", step("a", "noop", "b"), step("b", "noop", "a")), nil)

	var cycleErr *stepflowerrors.CycleDetectedError
	assert.ErrorAs(t, err, &cycleErr)
}

func TestRunner_Plan(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	ctx := context.Background()

	id, err := h.runner.CreateWorkflow(ctx, def("planned", step("a", "record"), step("b", "record", "a")))
	require.NoError(t, err)

	plan, err := h.runner.Plan(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, plan.WorkflowID)
	assert.Equal(t, [][]string{{"a"}, {"b"}}, plan.Ticks)
	assert.Empty(t, h.recorded(), "planning must not run steps")

	_, err = h.runner.Plan(ctx, "missing")
	assert.ErrorIs(t, err, stepflowerrors.ErrWorkflowNotFound)
}
