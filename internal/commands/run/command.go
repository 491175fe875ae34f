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

// Package run implements the run command.
package run

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/stepflow/internal/commands/shared"
	"github.com/tombee/stepflow/internal/controller/filewatcher"
	"github.com/tombee/stepflow/internal/controller/runner"
	"github.com/tombee/stepflow/pkg/workflow"
)

// settleTimeout bounds the wait for a cancelled execution to finish.
const settleTimeout = 30 * time.Second

// NewCommand creates the run command
func NewCommand() *cobra.Command {
	var (
		dryRun  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Execute a workflow and wait for the result",
		Annotations: map[string]string{
			"group": "execution",
		},
		Long: `Run registers a workflow definition, executes it and waits for it to finish.

Steps whose dependencies have all succeeded run concurrently. A failed step
leaves its dependents PENDING and the execution FAILED.

The workflow ID is the definition's id field, or the file name without its
extension. With a persistent backend (sqlite or postgres) the execution can
be inspected and replayed later.

Exit codes:
  0  execution succeeded
  1  execution failed or was cancelled
  2  invalid workflow definition
  3  not found`,
		Example: `  stepflow run build.yaml
  stepflow run build.yaml --timeout 5m
  stepflow run build.yaml --dry-run --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, args[0], dryRun, timeout)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the execution plan without running")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Cancel the execution after this long (0 = no limit)")

	return cmd
}

// LoadDefinition parses a workflow file. A definition without an id takes
// the file name without its extension.
func LoadDefinition(path string) (*workflow.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, shared.NewInvalidInputError("failed to read workflow", err)
	}
	def, err := workflow.ParseDefinition(data)
	if err != nil {
		return nil, shared.NewInvalidInputError(fmt.Sprintf("invalid workflow %s", path), err)
	}
	if def.ID == "" {
		def.ID = filewatcher.WorkflowID(filepath.Base(path))
	}
	return def, nil
}

func runWorkflow(cmd *cobra.Command, path string, dryRun bool, timeout time.Duration) error {
	def, err := LoadDefinition(path)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, _, err := shared.OpenController(ctx)
	if err != nil {
		return err
	}
	defer c.Shutdown(context.Background())
	r := c.Runner()

	if dryRun {
		plan, err := runner.NewPlan(def, r.Executors())
		if err != nil {
			return shared.Classify("invalid workflow", err)
		}
		return printPlan(cmd, plan)
	}

	id, err := r.CreateWorkflow(ctx, def)
	if err != nil {
		return shared.Classify("invalid workflow", err)
	}

	// Subscribe before starting so no event is missed. This process runs
	// a single execution, so the all-executions stream is this one's.
	events, unsubscribe := r.Subscribe("")
	defer unsubscribe()

	snap, err := r.Execute(ctx, id)
	if err != nil {
		return shared.Classify("failed to start execution", err)
	}

	var progress *shared.Progress
	if !shared.GetJSON() && !shared.GetQuiet() {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", shared.Header.Render("Running"), def.Name, shared.Muted.Render(snap.ID))
		progress = shared.StartProgress(cmd.OutOrStdout(), events)
	}

	final, err := wait(ctx, r, snap.ID, timeout)
	if progress != nil {
		progress.Stop()
	}
	if err != nil {
		return shared.NewExecutionError("failed to wait for execution", err)
	}

	if err := printResult(cmd, "run", final); err != nil {
		return err
	}
	return ResultError(final)
}

// ResultError returns an execution error unless the execution succeeded.
func ResultError(final *runner.ExecutionSnapshot) error {
	if final.Status == workflow.ExecutionSuccess {
		return nil
	}
	msg := fmt.Sprintf("execution %s %s", final.ID, final.Status)
	if final.Error != "" {
		msg += ": " + final.Error
	}
	return shared.NewExecutionError(msg, nil)
}

// wait blocks until the execution finishes. An interrupt or the timeout
// cancels it and waits for the cancellation to settle.
func wait(ctx context.Context, r *runner.Runner, id string, timeout time.Duration) (*runner.ExecutionSnapshot, error) {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	final, err := r.Wait(waitCtx, id)
	if err == nil {
		return final, nil
	}

	_ = r.Cancel(id)
	settleCtx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	return r.Wait(settleCtx, id)
}

func printResult(cmd *cobra.Command, command string, final *runner.ExecutionSnapshot) error {
	if shared.GetJSON() {
		return shared.WriteJSON(cmd.OutOrStdout(), shared.ExecutionView{
			JSONResponse: shared.NewJSONResponse(command, final.Status == workflow.ExecutionSuccess),
			Execution:    &final.Execution,
			Steps:        final.Steps,
		})
	}
	if shared.GetQuiet() {
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout())
	shared.PrintExecution(cmd.OutOrStdout(), &final.Execution, final.Steps)
	return nil
}

func printPlan(cmd *cobra.Command, plan *runner.Plan) error {
	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		return shared.WriteJSON(out, struct {
			shared.JSONResponse
			Plan *runner.Plan `json:"plan"`
		}{shared.NewJSONResponse("run", true), plan})
	}

	fmt.Fprintf(out, "%s %s (%d steps)\n", shared.Header.Render("Plan"), plan.Name, plan.TotalSteps)
	for i, tick := range plan.Ticks {
		fmt.Fprintf(out, "  %s %v\n", shared.RenderLabel(fmt.Sprintf("tick %d:", i+1)), tick)
	}
	for _, w := range plan.Warnings {
		fmt.Fprintln(out, "  "+shared.RenderWarn(w))
	}
	return nil
}
