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

// Package memory provides an in-memory backend implementation.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tombee/stepflow/internal/controller/backend"
	"github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/workflow"
)

// Compile-time interface assertions.
var (
	_ backend.ExecutionStore  = (*Backend)(nil)
	_ backend.StepStateStore  = (*Backend)(nil)
	_ backend.ExecutionLister = (*Backend)(nil)
	_ backend.Pruner          = (*Backend)(nil)
	_ backend.DefinitionStore = (*Backend)(nil)
	_ backend.Gateway         = (*Backend)(nil)
)

// Backend is an in-memory storage backend. Values are copied on the way in
// and out so callers never share memory with the store.
type Backend struct {
	mu          sync.RWMutex
	executions  map[string]*workflow.Execution
	steps       map[string][]*workflow.StepState
	definitions map[string]*workflow.Definition
}

// New creates a new in-memory backend.
func New() *Backend {
	return &Backend{
		executions:  make(map[string]*workflow.Execution),
		steps:       make(map[string][]*workflow.StepState),
		definitions: make(map[string]*workflow.Definition),
	}
}

// CreateExecution inserts or replaces an execution.
func (b *Backend) CreateExecution(ctx context.Context, exec *workflow.Execution) error {
	return b.put(exec)
}

// UpdateExecution inserts or replaces an execution.
func (b *Backend) UpdateExecution(ctx context.Context, exec *workflow.Execution) error {
	return b.put(exec)
}

func (b *Backend) put(exec *workflow.Execution) error {
	if exec == nil || exec.ID == "" {
		return &errors.ValidationError{Field: "execution_id", Message: "execution ID cannot be empty"}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	stored := exec.Clone()
	now := time.Now()
	if prev, ok := b.executions[exec.ID]; ok {
		stored.CreatedAt = prev.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = now
	}
	b.executions[exec.ID] = stored
	return nil
}

// GetExecution retrieves an execution by ID.
func (b *Backend) GetExecution(ctx context.Context, id string) (*workflow.Execution, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	exec, ok := b.executions[id]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "execution", ID: id}
	}
	return exec.Clone(), nil
}

// UpsertStepState inserts or updates a step state.
func (b *Backend) UpsertStepState(ctx context.Context, executionID string, state *workflow.StepState) error {
	if state == nil || state.Name == "" {
		return &errors.ValidationError{Field: "step_name", Message: "step name cannot be empty"}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	states := b.steps[executionID]
	for i, s := range states {
		if s.Name == state.Name {
			states[i] = state.Clone()
			return nil
		}
	}
	b.steps[executionID] = append(states, state.Clone())
	return nil
}

// ListStepStates returns the step states of an execution.
func (b *Backend) ListStepStates(ctx context.Context, executionID string) ([]*workflow.StepState, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	states := b.steps[executionID]
	out := make([]*workflow.StepState, len(states))
	for i, s := range states {
		out[i] = s.Clone()
	}
	return out, nil
}

// ListExecutions lists executions newest-first.
func (b *Backend) ListExecutions(ctx context.Context, filter backend.ExecutionFilter) ([]*workflow.Execution, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*workflow.Execution
	for _, exec := range b.executions {
		if filter.WorkflowID != "" && exec.WorkflowID != filter.WorkflowID {
			continue
		}
		out = append(out, exec.Clone())
	}

	backend.SortNewestFirst(out)
	return backend.Page(out, filter.Limit, filter.Offset), nil
}

// DeleteExecution removes an execution and its step states.
func (b *Backend) DeleteExecution(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.executions[id]; !ok {
		return &errors.NotFoundError{Resource: "execution", ID: id}
	}
	delete(b.executions, id)
	delete(b.steps, id)
	return nil
}

// PruneExecutions deletes the oldest executions beyond maxEntries.
func (b *Backend) PruneExecutions(ctx context.Context, maxEntries int) (int, error) {
	if maxEntries <= 0 {
		return 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.executions) <= maxEntries {
		return 0, nil
	}

	all := make([]*workflow.Execution, 0, len(b.executions))
	for _, exec := range b.executions {
		all = append(all, exec)
	}
	backend.SortNewestFirst(all)

	victims := all[maxEntries:]
	for _, exec := range victims {
		delete(b.executions, exec.ID)
		delete(b.steps, exec.ID)
	}
	return len(victims), nil
}

// SaveDefinition creates or replaces a workflow definition.
func (b *Backend) SaveDefinition(ctx context.Context, def *workflow.Definition) error {
	if def == nil || def.ID == "" {
		return &errors.ValidationError{Field: "id", Message: "workflow ID cannot be empty"}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.definitions[def.ID] = def.Clone()
	return nil
}

// GetDefinition retrieves a workflow definition by ID.
func (b *Backend) GetDefinition(ctx context.Context, id string) (*workflow.Definition, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	def, ok := b.definitions[id]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "workflow", ID: id}
	}
	return def.Clone(), nil
}

// ListDefinitions returns all workflow definitions ordered by ID.
func (b *Backend) ListDefinitions(ctx context.Context) ([]*workflow.Definition, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*workflow.Definition, 0, len(b.definitions))
	for _, def := range b.definitions {
		out = append(out, def.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteDefinition removes a workflow definition.
func (b *Backend) DeleteDefinition(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.definitions[id]; !ok {
		return &errors.NotFoundError{Resource: "workflow", ID: id}
	}
	delete(b.definitions, id)
	return nil
}

// Close is a no-op for the in-memory backend.
func (b *Backend) Close() error {
	return nil
}
