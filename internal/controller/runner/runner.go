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
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/tombee/stepflow/internal/controller/backend"
	"github.com/tombee/stepflow/internal/controller/backend/memory"
	"github.com/tombee/stepflow/internal/controller/metrics"
	"github.com/tombee/stepflow/internal/log"
	"github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/executor"
	"github.com/tombee/stepflow/pkg/workflow"
)

// ErrDraining is returned by Execute and Replay once the runner has started
// shutting down.
var ErrDraining = errors.New("runner is draining: new executions are not accepted")

// MetricsCollector defines the interface for recording workflow metrics.
type MetricsCollector interface {
	RecordExecutionStart(ctx context.Context, executionID, workflowID string)
	RecordExecutionComplete(ctx context.Context, executionID, workflowID, status string, duration time.Duration)
	RecordStepComplete(ctx context.Context, workflowID, executor, status string, duration time.Duration)
	RecordReplay(ctx context.Context, workflowID string)
	RecordPruned(ctx context.Context, count int)
}

// Config contains runner configuration.
type Config struct {
	// MaxExecutions bounds the number of stored executions. Zero or
	// negative disables pruning.
	MaxExecutions int

	// StepTimeout bounds each executor call. Zero means no timeout.
	StepTimeout time.Duration
}

// ListFilter contains filtering options for listing executions.
type ListFilter struct {
	WorkflowID string
	Limit      int
	Offset     int
}

// ExecutionSnapshot is an immutable copy of an execution and its step
// states. It shares no memory with the runner.
type ExecutionSnapshot struct {
	workflow.Execution
	Steps []*workflow.StepState `json:"steps"`
}

// Step returns the state of the named step, or nil.
func (s *ExecutionSnapshot) Step(name string) *workflow.StepState {
	for _, st := range s.Steps {
		if st.Name == name {
			return st
		}
	}
	return nil
}

// Runner manages workflow executions by composing focused components.
type Runner struct {
	cfg Config

	state     *StateManager
	events    *EventHub
	retention *Retention

	gateway   backend.Gateway
	defs      workflow.Store
	executors *executor.Registry

	clock   executor.Clock
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics MetricsCollector

	// draining indicates the runner is in graceful shutdown mode
	draining atomic.Bool

	// wg tracks active execute() goroutines for clean shutdown
	wg sync.WaitGroup
}

// New creates a Runner. A nil gateway selects the in-memory backend, a nil
// store an empty workflow.Registry, and nil executors the built-in set.
func New(cfg Config, gw backend.Gateway, defs workflow.Store, executors *executor.Registry, opts ...Option) *Runner {
	r := &Runner{
		cfg:       cfg,
		gateway:   gw,
		defs:      defs,
		executors: executors,
		clock:     executor.RealClock{},
		logger:    slog.Default(),
		tracer:    noop.NewTracerProvider().Tracer("stepflow"),
		events:    NewEventHub(),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.gateway == nil {
		r.gateway = memory.New()
	}
	if r.defs == nil {
		r.defs = workflow.NewRegistry()
	}
	if r.executors == nil {
		r.executors = executor.NewBuiltinRegistry(r.clock)
	}
	r.logger = log.WithComponent(r.logger, "runner")
	r.state = NewStateManager(r.gateway, r.logger)
	r.retention = NewRetention(r.gateway, r.state, r.logger)

	return r
}

// Gateway returns the persistence gateway.
func (r *Runner) Gateway() backend.Gateway {
	return r.gateway
}

// Executors returns the step executor registry.
func (r *Runner) Executors() *executor.Registry {
	return r.executors
}

// CreateWorkflow validates def and stores it. An empty ID is replaced with a
// generated one. Invalid definitions, including unknown dependencies and
// cycles, are rejected before anything is stored.
func (r *Runner) CreateWorkflow(ctx context.Context, def *workflow.Definition) (string, error) {
	if def == nil {
		return "", &errors.ValidationError{Field: "workflow", Message: "workflow cannot be nil"}
	}
	def = def.Clone()
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	if err := def.Validate(); err != nil {
		return "", err
	}

	if err := r.defs.Put(ctx, def); err != nil {
		return "", err
	}
	if err := r.gateway.SaveDefinition(ctx, def); err != nil {
		r.state.persistenceError(metrics.OpSaveDefinition, "", err)
	}

	r.logger.Info("workflow created",
		slog.String(log.WorkflowIDKey, def.ID),
		slog.String("name", def.Name),
		slog.Int("steps", len(def.Steps)))
	return def.ID, nil
}

// Workflow returns a stored definition, consulting the gateway when the
// registry does not hold it.
func (r *Runner) Workflow(ctx context.Context, id string) (*workflow.Definition, error) {
	def, err := r.defs.Get(ctx, id)
	if err == nil {
		return def, nil
	}

	def, gwErr := r.gateway.GetDefinition(ctx, id)
	if gwErr != nil {
		if !errors.Is(gwErr, errors.ErrWorkflowNotFound) {
			r.state.persistenceError("GetDefinition", "", gwErr)
		}
		return nil, &errors.NotFoundError{Resource: "workflow", ID: id}
	}
	// Cache for later lookups
	_ = r.defs.Put(ctx, def)
	return def, nil
}

// Execute starts an execution of the stored workflow and returns at once
// with a PENDING snapshot. The execution continues after ctx is cancelled;
// use Cancel to stop it.
func (r *Runner) Execute(ctx context.Context, workflowID string) (*ExecutionSnapshot, error) {
	if r.draining.Load() {
		return nil, ErrDraining
	}
	def, err := r.Workflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return r.start(ctx, def, def.Steps, "")
}

// start creates the execution state and launches the tick loop.
func (r *Runner) start(ctx context.Context, def *workflow.Definition, steps []workflow.Step, replayOf string) (*ExecutionSnapshot, error) {
	order, err := workflow.Resolve(steps)
	if err != nil {
		return nil, err
	}

	run := r.state.Create(ctx, def, steps, order, replayOf, r.clock.Now())

	// Snapshot before the goroutine can move the state on
	snapshot := run.snapshot()

	r.wg.Add(1)
	go r.execute(run)

	return snapshot, nil
}

// Get returns a snapshot of an execution. Live executions are served from
// memory; anything else is looked up in the gateway.
func (r *Runner) Get(ctx context.Context, id string) (*ExecutionSnapshot, error) {
	if run, ok := r.state.Get(id); ok {
		return run.snapshot(), nil
	}

	exec, err := r.gateway.GetExecution(ctx, id)
	if err != nil {
		if !errors.Is(err, errors.ErrExecutionNotFound) {
			r.state.persistenceError(metrics.OpGetExecution, id, err)
		}
		return nil, &errors.NotFoundError{Resource: "execution", ID: id}
	}

	steps, err := r.gateway.ListStepStates(ctx, id)
	if err != nil {
		r.state.persistenceError("ListStepStates", id, err)
	}
	return &ExecutionSnapshot{Execution: *exec, Steps: steps}, nil
}

// List returns executions newest-first by start time. When the gateway
// cannot be read the in-memory executions are listed instead.
func (r *Runner) List(ctx context.Context, filter ListFilter) []*workflow.Execution {
	execs, err := r.gateway.ListExecutions(ctx, backend.ExecutionFilter{
		WorkflowID: filter.WorkflowID,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
	if err == nil {
		return execs
	}
	r.state.persistenceError(metrics.OpListExecutions, "", err)

	execs = r.state.List(filter.WorkflowID)
	backend.SortNewestFirst(execs)
	return backend.Page(execs, filter.Limit, filter.Offset)
}

// Wait blocks until the execution reaches a terminal status or ctx is done.
// Executions owned by another process are returned as stored.
func (r *Runner) Wait(ctx context.Context, id string) (*ExecutionSnapshot, error) {
	run, ok := r.state.Get(id)
	if !ok {
		return r.Get(ctx, id)
	}

	select {
	case <-run.done:
		return run.snapshot(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel stops a live execution. Running steps observe context
// cancellation and unstarted steps stay PENDING. Cancelling a finished
// execution is a no-op.
func (r *Runner) Cancel(id string) error {
	run, ok := r.state.Get(id)
	if !ok {
		return &errors.NotFoundError{Resource: "execution", ID: id}
	}
	run.cancel()
	return nil
}

// Subscribe returns a channel of events for one execution, or for every
// execution when id is empty, and an unsubscribe function.
func (r *Runner) Subscribe(id string) (<-chan StepEvent, func()) {
	return r.events.Subscribe(id)
}

// Prune applies the retention policy with an explicit bound.
func (r *Runner) Prune(ctx context.Context, maxEntries int) int {
	n := r.retention.Prune(ctx, maxEntries)
	if n > 0 && r.metrics != nil {
		r.metrics.RecordPruned(ctx, n)
	}
	return n
}

// StartDraining puts the runner into draining mode.
func (r *Runner) StartDraining() {
	r.draining.Store(true)
}

// IsDraining returns true if the runner is in draining mode.
func (r *Runner) IsDraining() bool {
	return r.draining.Load()
}

// ActiveCount returns the number of executions that have not finished.
func (r *Runner) ActiveCount() int {
	return r.state.ActiveCount()
}

// WaitForDrain blocks until every execution goroutine has exited or ctx is
// done. Call StartDraining first so no new executions begin.
func (r *Runner) WaitForDrain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels all live executions and waits for their goroutines to exit.
// Returns an error if they do not finish before ctx is done.
func (r *Runner) Stop(ctx context.Context) error {
	r.StartDraining()
	r.state.CancelAll()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if remaining := r.ActiveCount(); remaining > 0 {
			return fmt.Errorf("stop timeout: %d execution(s) still running after cancellation", remaining)
		}
		return ctx.Err()
	}
}
