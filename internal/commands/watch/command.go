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

// Package watch implements the watch command.
package watch

import (
	"github.com/spf13/cobra"

	"github.com/tombee/stepflow/internal/commands/shared"
	"github.com/tombee/stepflow/internal/controller"
)

// NewCommand creates the watch command
func NewCommand() *cobra.Command {
	var (
		metricsAddr string
		runOnChange bool
	)

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Register workflows from a directory and keep them current",
		Annotations: map[string]string{
			"group": "workflow",
		},
		Long: `Watch registers every workflow file in a directory and re-registers a
file whenever it changes. It runs until interrupted, then waits for running
executions to finish before exiting.

The directory defaults to workflows.dir from the configuration. Files are
selected with the workflows include and exclude patterns. Changes are
debounced, and reloads are rate limited when
workflows.max_reloads_per_minute is set.

With --metrics-addr, Prometheus metrics are served on /metrics and a
readiness probe on /healthz.`,
		Example: `  stepflow watch ./workflows
  stepflow watch ./workflows --run-on-change --metrics-addr :9090`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := shared.LoadConfig()
			if err != nil {
				return err
			}

			dir := cfg.Workflows.Dir
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				return shared.NewInvalidInputError("no workflows directory: pass one or set workflows.dir", nil)
			}

			v, _, _ := shared.GetVersion()
			err = controller.Watch(cmd.Context(), cfg, controller.WatchOptions{
				Version:     v,
				Dir:         dir,
				MetricsAddr: metricsAddr,
				RunOnChange: runOnChange,
				Logger:      shared.NewLogger(cfg),
			})
			if err != nil {
				return shared.NewExecutionError("watch failed", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&runOnChange, "run-on-change", false, "Execute each workflow after it is reloaded")

	return cmd
}
