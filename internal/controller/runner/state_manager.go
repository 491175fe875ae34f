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
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/stepflow/internal/controller/backend"
	"github.com/tombee/stepflow/internal/controller/metrics"
	"github.com/tombee/stepflow/internal/log"
	"github.com/tombee/stepflow/pkg/workflow"
)

// execution is the live, mutable state of one run.
type execution struct {
	mu    sync.RWMutex // Protects exec and states
	exec  *workflow.Execution
	steps map[string]workflow.Step
	// states in declaration order
	states []*workflow.StepState
	byName map[string]*workflow.StepState

	// persistMu serialises gateway writes so the last write carries the
	// newest state.
	persistMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// snapshot returns a deep copy of the execution and its steps.
func (e *execution) snapshot() *ExecutionSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	steps := make([]*workflow.StepState, len(e.states))
	for i, st := range e.states {
		steps[i] = st.Clone()
	}
	return &ExecutionSnapshot{
		Execution: *e.exec.Clone(),
		Steps:     steps,
	}
}

func (e *execution) status() workflow.ExecutionStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.exec.Status
}

// StateManager handles execution state with thread-safe snapshots.
// The in-memory map is the source of truth; gateway persistence is best-effort.
type StateManager struct {
	mu      sync.RWMutex
	runs    map[string]*execution
	gateway backend.Gateway
	logger  *slog.Logger
}

// NewStateManager creates a new StateManager.
func NewStateManager(gw backend.Gateway, logger *slog.Logger) *StateManager {
	return &StateManager{
		runs:    make(map[string]*execution),
		gateway: gw,
		logger:  logger,
	}
}

// Create registers a new PENDING execution with initial step states and
// persists it. The execution context is detached from ctx so the run
// outlives the request that started it.
func (s *StateManager) Create(ctx context.Context, def *workflow.Definition, steps []workflow.Step, order []string, replayOf string, now time.Time) *execution {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	run := &execution{
		exec: &workflow.Execution{
			ID:            uuid.NewString(),
			WorkflowID:    def.ID,
			Status:        workflow.ExecutionPending,
			TotalSteps:    len(steps),
			StepOrder:     order,
			ReplayOf:      replayOf,
			InputSnapshot: workflow.CloneSteps(steps),
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		steps:  make(map[string]workflow.Step, len(steps)),
		states: make([]*workflow.StepState, 0, len(steps)),
		byName: make(map[string]*workflow.StepState, len(steps)),
		ctx:    runCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for _, step := range workflow.CloneSteps(steps) {
		st := workflow.NewStepState(step)
		run.steps[step.Name] = step
		run.states = append(run.states, st)
		run.byName[step.Name] = st
	}

	s.mu.Lock()
	s.runs[run.exec.ID] = run
	s.mu.Unlock()

	s.persistCreate(run)
	return run
}

// Get returns the live execution by ID.
func (s *StateManager) Get(id string) (*execution, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	return run, ok
}

// List returns copies of the in-memory executions, optionally filtered by
// workflow.
func (s *StateManager) List(workflowID string) []*workflow.Execution {
	s.mu.RLock()
	runs := make([]*execution, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	s.mu.RUnlock()

	var out []*workflow.Execution
	for _, run := range runs {
		run.mu.RLock()
		if workflowID == "" || run.exec.WorkflowID == workflowID {
			out = append(out, run.exec.Clone())
		}
		run.mu.RUnlock()
	}
	return out
}

// ActiveCount returns the number of executions that are not terminal.
func (s *StateManager) ActiveCount() int {
	s.mu.RLock()
	runs := make([]*execution, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	s.mu.RUnlock()

	count := 0
	for _, run := range runs {
		if !run.status().IsTerminal() {
			count++
		}
	}
	return count
}

// CancelAll cancels every live execution.
func (s *StateManager) CancelAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, run := range s.runs {
		run.cancel()
	}
}

// Evict applies the retention order to the in-memory map: beyond the
// newest maxEntries, terminal executions are dropped. Returns the IDs
// removed.
func (s *StateManager) Evict(maxEntries int) []string {
	if maxEntries <= 0 {
		return nil
	}

	execs := s.List("")
	if len(execs) <= maxEntries {
		return nil
	}
	backend.SortNewestFirst(execs)

	var evicted []string
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, exec := range execs[maxEntries:] {
		if !exec.Status.IsTerminal() {
			continue
		}
		if run, ok := s.runs[exec.ID]; ok {
			run.cancel()
			delete(s.runs, exec.ID)
			evicted = append(evicted, exec.ID)
		}
	}
	return evicted
}

// persistCreate writes a new execution and its initial step states.
func (s *StateManager) persistCreate(run *execution) {
	run.persistMu.Lock()
	defer run.persistMu.Unlock()

	snap := run.snapshot()
	ctx := context.WithoutCancel(run.ctx)

	if err := s.gateway.CreateExecution(ctx, &snap.Execution); err != nil {
		s.persistenceError(metrics.OpCreateExecution, snap.ID, err)
	}
	for _, st := range snap.Steps {
		if err := s.gateway.UpsertStepState(ctx, snap.ID, st); err != nil {
			s.persistenceError(metrics.OpUpsertStepState, snap.ID, err)
		}
	}
}

// persistExecution writes the current execution record.
func (s *StateManager) persistExecution(run *execution) {
	run.persistMu.Lock()
	defer run.persistMu.Unlock()

	run.mu.RLock()
	exec := run.exec.Clone()
	run.mu.RUnlock()

	if err := s.gateway.UpdateExecution(context.WithoutCancel(run.ctx), exec); err != nil {
		s.persistenceError(metrics.OpUpdateExecution, exec.ID, err)
	}
}

// persistSteps writes the named step states followed by the execution
// record.
func (s *StateManager) persistSteps(run *execution, names ...string) {
	run.persistMu.Lock()
	defer run.persistMu.Unlock()

	run.mu.RLock()
	exec := run.exec.Clone()
	states := make([]*workflow.StepState, 0, len(names))
	for _, name := range names {
		if st, ok := run.byName[name]; ok {
			states = append(states, st.Clone())
		}
	}
	run.mu.RUnlock()

	ctx := context.WithoutCancel(run.ctx)
	for _, st := range states {
		if err := s.gateway.UpsertStepState(ctx, exec.ID, st); err != nil {
			s.persistenceError(metrics.OpUpsertStepState, exec.ID, err)
		}
	}
	if err := s.gateway.UpdateExecution(ctx, exec); err != nil {
		s.persistenceError(metrics.OpUpdateExecution, exec.ID, err)
	}
}

// persistenceError logs and counts a gateway failure. The caller carries on.
func (s *StateManager) persistenceError(operation, executionID string, err error) {
	metrics.RecordPersistenceError(operation, metrics.ErrorType(err))

	attrs := []any{
		slog.String(log.OperationKey, operation),
		log.Error(err),
	}
	if executionID != "" {
		attrs = append(attrs, slog.String(log.ExecutionIDKey, executionID))
	}
	s.logger.Warn("persistence failed", attrs...)
}
