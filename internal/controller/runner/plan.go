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
	"fmt"

	"github.com/tombee/stepflow/pkg/executor"
	"github.com/tombee/stepflow/pkg/workflow"
)

// Plan is the execution plan of a workflow computed without running it.
type Plan struct {
	WorkflowID string `json:"workflow_id"`
	Name       string `json:"name"`
	TotalSteps int    `json:"total_steps"`

	// Order is the dependency order the resolver produced.
	Order []string `json:"order"`

	// Ticks groups steps by the tick they run in when every step
	// succeeds. Steps within a tick run concurrently.
	Ticks [][]string `json:"ticks"`

	Warnings []string `json:"warnings,omitempty"`
}

// NewPlan validates def and computes its plan. Steps whose executor is not
// registered produce a warning: they would fail at run time.
func NewPlan(def *workflow.Definition, executors *executor.Registry) (*Plan, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	order, err := workflow.Resolve(def.Steps)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		WorkflowID: def.ID,
		Name:       def.Name,
		TotalSteps: len(def.Steps),
		Order:      order,
		Ticks:      [][]string{},
	}

	byName := make(map[string]workflow.Step, len(def.Steps))
	for _, step := range def.Steps {
		byName[step.Name] = step
	}

	// A step runs one tick after its latest dependency.
	level := make(map[string]int, len(order))
	for _, name := range order {
		lvl := 0
		for _, dep := range byName[name].DependsOn {
			if level[dep]+1 > lvl {
				lvl = level[dep] + 1
			}
		}
		level[name] = lvl
	}
	for _, step := range def.Steps {
		lvl := level[step.Name]
		for len(plan.Ticks) <= lvl {
			plan.Ticks = append(plan.Ticks, nil)
		}
		plan.Ticks[lvl] = append(plan.Ticks[lvl], step.Name)
	}

	if executors != nil {
		for _, step := range def.Steps {
			if _, err := executors.Resolve(step.Executor); err != nil {
				plan.Warnings = append(plan.Warnings,
					fmt.Sprintf("step %q uses unregistered executor %q", step.Name, step.Executor))
			}
		}
	}

	return plan, nil
}

// Plan computes the plan of a stored workflow.
func (r *Runner) Plan(ctx context.Context, workflowID string) (*Plan, error) {
	def, err := r.Workflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return NewPlan(def, r.executors)
}
