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

package run

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/stepflow/internal/commands/shared"
	"github.com/tombee/stepflow/internal/controller/runner"
)

// NewReplayCommand creates the replay command
func NewReplayCommand() *cobra.Command {
	var (
		fromSnapshot bool
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "replay <execution-id>",
		Short: "Run a finished execution again",
		Annotations: map[string]string{
			"group": "execution",
		},
		Long: `Replay starts a new execution of the workflow a finished execution ran.

The new execution records the source in replay_of. By default it runs the
workflow's current definition. With --from-snapshot it runs the steps the
source execution recorded when it started.

Only SUCCESS, FAILED and CANCELLED executions can be replayed. Replay needs
a persistent backend when the source ran in another process.`,
		Example: `  stepflow replay 6f1c2d3e-...
  stepflow replay 6f1c2d3e-... --from-snapshot`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return replayExecution(cmd, args[0], fromSnapshot, timeout)
		},
	}

	cmd.Flags().BoolVar(&fromSnapshot, "from-snapshot", false, "Run the steps recorded by the source execution")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Cancel the replay after this long (0 = no limit)")

	return cmd
}

func replayExecution(cmd *cobra.Command, sourceID string, fromSnapshot bool, timeout time.Duration) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, _, err := shared.OpenController(ctx)
	if err != nil {
		return err
	}
	defer c.Shutdown(context.Background())
	r := c.Runner()

	var opts []runner.ReplayOption
	if fromSnapshot {
		opts = append(opts, runner.FromSnapshot())
	}

	events, unsubscribe := r.Subscribe("")
	defer unsubscribe()

	id, err := r.Replay(ctx, sourceID, opts...)
	if err != nil {
		return shared.Classify(fmt.Sprintf("cannot replay %s", sourceID), err)
	}

	var progress *shared.Progress
	if !shared.GetJSON() && !shared.GetQuiet() {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", shared.Header.Render("Replaying"), sourceID, shared.Muted.Render(id))
		progress = shared.StartProgress(cmd.OutOrStdout(), events)
	}

	final, err := wait(ctx, r, id, timeout)
	if progress != nil {
		progress.Stop()
	}
	if err != nil {
		return shared.NewExecutionError("failed to wait for replay", err)
	}

	if err := printResult(cmd, "replay", final); err != nil {
		return err
	}
	return ResultError(final)
}
