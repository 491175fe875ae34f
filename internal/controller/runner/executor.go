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

// Tick loop for workflow executions.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tombee/stepflow/internal/log"
	"github.com/tombee/stepflow/internal/tracing"
	"github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/executor"
	"github.com/tombee/stepflow/pkg/workflow"
)

// execute drives one execution to a terminal status.
func (r *Runner) execute(run *execution) {
	defer r.wg.Done()
	defer close(run.done)

	snap := run.snapshot()
	logger := log.WithExecutionContext(r.logger, snap.ID, snap.WorkflowID)

	ctx, span := tracing.StartExecution(run.ctx, r.tracer, snap.ID, snap.WorkflowID)
	defer span.End()

	started := r.clock.Now()
	run.mu.Lock()
	run.exec.Status = workflow.ExecutionRunning
	run.exec.StartedAt = &started
	run.exec.UpdatedAt = started
	run.mu.Unlock()
	r.state.persistExecution(run)

	if r.metrics != nil {
		r.metrics.RecordExecutionStart(ctx, snap.ID, snap.WorkflowID)
	}
	r.events.publishExecution(snap.ID, workflow.ExecutionRunning, "", started)
	logger.Info("execution started",
		slog.Int("steps", snap.TotalSteps),
		slog.String("replay_of", snap.ReplayOf))

	remaining := make(map[string]bool, len(snap.Steps))
	for _, st := range snap.Steps {
		remaining[st.Name] = true
	}

	tick := 0
	for len(remaining) > 0 {
		if run.ctx.Err() != nil {
			r.finish(ctx, run, span, logger, workflow.ExecutionCancelled, "execution cancelled")
			return
		}

		ready := r.readySteps(run, remaining)
		if len(ready) == 0 {
			err := &errors.DependencyDeadlockError{
				ExecutionID: snap.ID,
				Pending:     pendingNames(run, remaining),
			}
			logger.Warn("no ready steps", log.Error(err))
			span.RecordError(err)
			r.finish(ctx, run, span, logger, workflow.ExecutionFailed, err.Error())
			return
		}

		tick++
		log.Trace(logger, "tick", slog.Int("tick", tick), slog.Any("ready", ready))

		// Mark the whole tick RUNNING before any step starts
		now := r.clock.Now()
		run.mu.Lock()
		for _, name := range ready {
			_ = run.byName[name].Transition(workflow.StepRunning, now)
		}
		run.mu.Unlock()
		for _, name := range ready {
			r.events.publishStep(snap.ID, name, workflow.StepRunning, "", now)
		}

		// Only a join: step failures land on the step state, never in the group.
		var g errgroup.Group
		for _, name := range ready {
			g.Go(func() error {
				r.runStep(ctx, run, logger, name)
				return nil
			})
		}
		_ = g.Wait()

		for _, name := range ready {
			delete(remaining, name)
		}
	}

	if run.ctx.Err() != nil && r.anyStep(run, workflow.StepCancelled) {
		r.finish(ctx, run, span, logger, workflow.ExecutionCancelled, "execution cancelled")
		return
	}

	status := workflow.ExecutionSuccess
	errMsg := ""
	if r.anyStep(run, workflow.StepFailed) {
		status = workflow.ExecutionFailed
		errMsg = "one or more steps failed"
	}
	r.finish(ctx, run, span, logger, status, errMsg)
}

// readySteps returns the READY steps still remaining, in declaration order.
func (r *Runner) readySteps(run *execution, remaining map[string]bool) []string {
	run.mu.RLock()
	defer run.mu.RUnlock()

	var ready []string
	for _, st := range run.states {
		if remaining[st.Name] && st.Status == workflow.StepReady {
			ready = append(ready, st.Name)
		}
	}
	return ready
}

func pendingNames(run *execution, remaining map[string]bool) []string {
	run.mu.RLock()
	defer run.mu.RUnlock()

	var names []string
	for _, st := range run.states {
		if remaining[st.Name] {
			names = append(names, st.Name)
		}
	}
	return names
}

func (r *Runner) anyStep(run *execution, status workflow.StepStatus) bool {
	run.mu.RLock()
	defer run.mu.RUnlock()
	for _, st := range run.states {
		if st.Status == status {
			return true
		}
	}
	return false
}

// runStep calls the step's executor and records the outcome. A failing
// step never aborts the tick.
func (r *Runner) runStep(ctx context.Context, run *execution, logger *slog.Logger, name string) {
	run.mu.RLock()
	step := run.steps[name]
	workflowID := run.exec.WorkflowID
	executionID := run.exec.ID
	run.mu.RUnlock()

	logger = log.WithStepContext(logger, name)
	stepCtx, span := tracing.StartStep(ctx, r.tracer, name, step.Executor)
	defer span.End()

	if r.cfg.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(stepCtx, r.cfg.StepTimeout)
		defer cancel()
	}

	begin := r.clock.Now()
	_, err := r.callExecutor(stepCtx, step)
	end := r.clock.Now()
	duration := end.Sub(begin)

	next := workflow.StepSuccess
	errMsg := ""
	switch {
	case err == nil:
	case run.ctx.Err() != nil:
		next = workflow.StepCancelled
		errMsg = run.ctx.Err().Error()
	case stepCtx.Err() == context.DeadlineExceeded:
		next = workflow.StepFailed
		errMsg = (&errors.TimeoutError{
			Operation: "step " + name,
			Duration:  r.cfg.StepTimeout,
			Cause:     err,
		}).Error()
	default:
		next = workflow.StepFailed
		errMsg = err.Error()
	}

	// Record the outcome and promote dependents in one critical section so
	// readers never see a finished step with stale dependents.
	var promoted []string
	run.mu.Lock()
	st := run.byName[name]
	_ = st.Transition(next, end)
	st.Error = errMsg
	run.exec.StepsCompleted++
	run.exec.UpdatedAt = end
	if next == workflow.StepSuccess {
		for _, dep := range run.states {
			if dep.Status == workflow.StepPending && dep.DependenciesMet(run.byName) {
				_ = dep.Transition(workflow.StepReady, end)
				promoted = append(promoted, dep.Name)
			}
		}
	}
	run.mu.Unlock()

	r.state.persistSteps(run, append([]string{name}, promoted...)...)

	if r.metrics != nil {
		r.metrics.RecordStepComplete(ctx, workflowID, step.Executor, string(next), duration)
	}
	r.events.publishStep(executionID, name, next, errMsg, end)
	for _, p := range promoted {
		r.events.publishStep(executionID, p, workflow.StepReady, "", end)
	}

	if err != nil {
		span.RecordError(err)
		logger.Warn("step failed",
			slog.String("executor", step.Executor),
			slog.String("status", string(next)),
			log.Duration(duration),
			log.Error(err))
		return
	}
	span.SetOK()
	logger.Debug("step completed",
		slog.String("executor", step.Executor),
		log.Duration(duration),
		slog.Int("promoted", len(promoted)))
}

// callExecutor invokes the step's executor. A panic is returned as the
// step's error.
func (r *Runner) callExecutor(ctx context.Context, step workflow.Step) (result executor.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("step executor panicked: %v", p)
		}
	}()
	return r.executors.Execute(ctx, step)
}

// finish records the terminal status, persists it and applies retention.
func (r *Runner) finish(ctx context.Context, run *execution, span *tracing.WorkflowSpan, logger *slog.Logger, status workflow.ExecutionStatus, errMsg string) {
	now := r.clock.Now()

	run.mu.Lock()
	run.exec.Status = status
	run.exec.CompletedAt = &now
	run.exec.UpdatedAt = now
	run.exec.Error = errMsg
	executionID := run.exec.ID
	workflowID := run.exec.WorkflowID
	completed := run.exec.StepsCompleted
	var duration time.Duration
	if run.exec.StartedAt != nil {
		duration = now.Sub(*run.exec.StartedAt)
	}
	run.mu.Unlock()

	r.state.persistExecution(run)

	// Metrics and retention must not be skipped for a cancelled run
	ctx = context.WithoutCancel(ctx)
	if r.metrics != nil {
		r.metrics.RecordExecutionComplete(ctx, executionID, workflowID, string(status), duration)
	}
	r.events.publishExecution(executionID, status, errMsg, now)

	span.SetAttributes(map[string]any{
		"workflow.status":          string(status),
		"workflow.steps_completed": completed,
	})
	if status == workflow.ExecutionSuccess {
		span.SetOK()
	} else if errMsg != "" {
		span.AddEvent("execution.error", map[string]any{"error": errMsg})
	}

	attrs := []any{
		slog.String("status", string(status)),
		slog.Int("steps_completed", completed),
		log.Duration(duration),
	}
	if errMsg != "" {
		attrs = append(attrs, slog.String("error", errMsg))
	}
	logger.Info("execution finished", attrs...)

	if r.cfg.MaxExecutions > 0 {
		r.Prune(ctx, r.cfg.MaxExecutions)
	}
}
