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

// Package backend provides the persistence gateway for executions.
//
// # Interface Hierarchy
//
// The backend package uses interface segregation to allow minimal implementations:
//
//   - ExecutionStore (core): CreateExecution, UpdateExecution, GetExecution
//   - StepStateStore (core): UpsertStepState, ListStepStates
//   - ExecutionLister: ListExecutions, DeleteExecution
//   - Pruner: PruneExecutions
//   - DefinitionStore: SaveDefinition, GetDefinition, ListDefinitions, DeleteDefinition
//   - io.Closer: Close
//
// The Gateway interface composes all of these. Implementations live in the
// memory, sqlite, and postgres subpackages and are selected at construction
// time; the runner never branches on which one it holds.
package backend

import (
	"context"
	"io"
	"sort"

	"github.com/tombee/stepflow/pkg/workflow"
)

// ExecutionStore is the core interface for execution storage.
type ExecutionStore interface {
	// CreateExecution inserts or replaces an execution by ID.
	CreateExecution(ctx context.Context, exec *workflow.Execution) error

	// UpdateExecution inserts or replaces an execution by ID.
	UpdateExecution(ctx context.Context, exec *workflow.Execution) error

	// GetExecution retrieves an execution by ID.
	// Returns a *errors.NotFoundError when absent.
	GetExecution(ctx context.Context, id string) (*workflow.Execution, error)
}

// StepStateStore stores the per-step state of executions.
type StepStateStore interface {
	// UpsertStepState inserts or updates the state keyed by
	// (executionID, state.Name).
	UpsertStepState(ctx context.Context, executionID string, state *workflow.StepState) error

	// ListStepStates returns the step states of an execution in the order
	// they were first stored.
	ListStepStates(ctx context.Context, executionID string) ([]*workflow.StepState, error)
}

// ExecutionLister lists and deletes executions.
type ExecutionLister interface {
	// ListExecutions returns executions newest-first by start time.
	// Executions that never started sort last.
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*workflow.Execution, error)

	// DeleteExecution removes an execution and its step states.
	DeleteExecution(ctx context.Context, id string) error
}

// Pruner bounds the number of stored executions.
type Pruner interface {
	// PruneExecutions deletes the oldest executions beyond maxEntries,
	// together with their step states, and returns how many were deleted.
	// Executions that never started count as oldest. maxEntries <= 0
	// disables pruning.
	PruneExecutions(ctx context.Context, maxEntries int) (int, error)
}

// DefinitionStore persists workflow definitions.
type DefinitionStore interface {
	SaveDefinition(ctx context.Context, def *workflow.Definition) error
	GetDefinition(ctx context.Context, id string) (*workflow.Definition, error)
	ListDefinitions(ctx context.Context) ([]*workflow.Definition, error)
	DeleteDefinition(ctx context.Context, id string) error
}

// Gateway is the full persistence interface.
type Gateway interface {
	ExecutionStore
	StepStateStore
	ExecutionLister
	Pruner
	DefinitionStore
	io.Closer
}

// ExecutionFilter contains filter options for listing executions.
type ExecutionFilter struct {
	// WorkflowID restricts results to one workflow when set
	WorkflowID string

	// Limit caps the number of results (0 = no limit)
	Limit int

	// Offset skips results after ordering
	Offset int
}

// SortNewestFirst orders executions by start time descending. Executions that
// never started go last; ties fall back to creation time then ID so the
// order is stable.
func SortNewestFirst(execs []*workflow.Execution) {
	sort.SliceStable(execs, func(i, j int) bool {
		a, b := execs[i], execs[j]
		switch {
		case a.StartedAt == nil && b.StartedAt == nil:
		case a.StartedAt == nil:
			return false
		case b.StartedAt == nil:
			return true
		case !a.StartedAt.Equal(*b.StartedAt):
			return a.StartedAt.After(*b.StartedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

// Page applies offset and limit to an already ordered slice.
func Page(execs []*workflow.Execution, limit, offset int) []*workflow.Execution {
	if offset > 0 {
		if offset >= len(execs) {
			return []*workflow.Execution{}
		}
		execs = execs[offset:]
	}
	if limit > 0 && len(execs) > limit {
		execs = execs[:limit]
	}
	return execs
}
