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

package workflow

import (
	"fmt"
	"time"

	"github.com/tombee/stepflow/pkg/errors"
)

// StepStatus is the state of a single step within an execution.
type StepStatus string

// Step states
const (
	StepPending   StepStatus = "PENDING"
	StepReady     StepStatus = "READY"
	StepRunning   StepStatus = "RUNNING"
	StepSuccess   StepStatus = "SUCCESS"
	StepFailed    StepStatus = "FAILED"
	StepCancelled StepStatus = "CANCELLED"
)

var stepTransitions = map[StepStatus][]StepStatus{
	StepPending: {StepReady, StepCancelled},
	StepReady:   {StepRunning, StepCancelled},
	StepRunning: {StepSuccess, StepFailed, StepCancelled},
}

// IsValid checks if a step status is known.
func (s StepStatus) IsValid() bool {
	switch s {
	case StepPending, StepReady, StepRunning, StepSuccess, StepFailed, StepCancelled:
		return true
	}
	return false
}

// IsTerminal returns true if the step will not change state again.
func (s StepStatus) IsTerminal() bool {
	return s == StepSuccess || s == StepFailed || s == StepCancelled
}

// CanTransition reports whether moving from s to next is allowed.
func (s StepStatus) CanTransition(next StepStatus) bool {
	for _, allowed := range stepTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ExecutionStatus is the state of a whole execution.
type ExecutionStatus string

// Execution states
const (
	ExecutionPending   ExecutionStatus = "PENDING"
	ExecutionRunning   ExecutionStatus = "RUNNING"
	ExecutionSuccess   ExecutionStatus = "SUCCESS"
	ExecutionFailed    ExecutionStatus = "FAILED"
	ExecutionCancelled ExecutionStatus = "CANCELLED"
)

// IsValid checks if an execution status is known.
func (s ExecutionStatus) IsValid() bool {
	switch s {
	case ExecutionPending, ExecutionRunning, ExecutionSuccess, ExecutionFailed, ExecutionCancelled:
		return true
	}
	return false
}

// IsTerminal returns true once an execution has finished.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionSuccess || s == ExecutionFailed || s == ExecutionCancelled
}

// Execution is one run of a workflow definition.
type Execution struct {
	ID             string          `json:"execution_id"`
	WorkflowID     string          `json:"workflow_id"`
	Status         ExecutionStatus `json:"status"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	StepsCompleted int             `json:"steps_completed"`
	TotalSteps     int             `json:"total_steps"`
	StepOrder      []string        `json:"step_order"`
	ReplayOf       string          `json:"replay_of,omitempty"`
	InputSnapshot  []Step          `json:"input_snapshot"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Clone returns a deep copy of the execution.
func (e *Execution) Clone() *Execution {
	if e == nil {
		return nil
	}
	out := *e
	out.StartedAt = cloneTime(e.StartedAt)
	out.CompletedAt = cloneTime(e.CompletedAt)
	out.StepOrder = append([]string(nil), e.StepOrder...)
	out.InputSnapshot = CloneSteps(e.InputSnapshot)
	return &out
}

// StepState tracks one step of one execution.
type StepState struct {
	Name        string     `json:"name"`
	Executor    string     `json:"executor"`
	DependsOn   []string   `json:"depends_on,omitempty"`
	Status      StepStatus `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// NewStepState creates the initial state for a step: READY when it has no
// dependencies, PENDING otherwise.
func NewStepState(step Step) *StepState {
	status := StepReady
	if len(step.DependsOn) > 0 {
		status = StepPending
	}
	return &StepState{
		Name:      step.Name,
		Executor:  step.Executor,
		DependsOn: append([]string(nil), step.DependsOn...),
		Status:    status,
	}
}

// Transition moves the step to next, stamping started_at on RUNNING and
// completed_at on terminal states.
func (s *StepState) Transition(next StepStatus, at time.Time) error {
	if !s.Status.CanTransition(next) {
		return &errors.ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("step %s cannot transition from %s to %s", s.Name, s.Status, next),
		}
	}
	s.Status = next
	switch {
	case next == StepRunning:
		s.StartedAt = &at
	case next.IsTerminal():
		s.CompletedAt = &at
	}
	return nil
}

// DependenciesMet reports whether every dependency has succeeded.
func (s *StepState) DependenciesMet(states map[string]*StepState) bool {
	for _, dep := range s.DependsOn {
		d, ok := states[dep]
		if !ok || d.Status != StepSuccess {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the step state.
func (s *StepState) Clone() *StepState {
	if s == nil {
		return nil
	}
	out := *s
	out.DependsOn = append([]string(nil), s.DependsOn...)
	out.StartedAt = cloneTime(s.StartedAt)
	out.CompletedAt = cloneTime(s.CompletedAt)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
