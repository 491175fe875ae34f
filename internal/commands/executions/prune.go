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

package executions

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/stepflow/internal/commands/shared"
)

func newPruneCommand() *cobra.Command {
	var maxEntries int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete the oldest executions beyond a bound",
		Long: `Prune keeps the newest executions, ordered by start time, and deletes
the rest with their step states. Without --max the engine's
max_executions setting is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cfg, err := shared.OpenController(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())

			if !cmd.Flags().Changed("max") {
				maxEntries = cfg.Engine.MaxExecutions
			}
			if maxEntries <= 0 {
				return shared.NewInvalidInputError("set --max or engine.max_executions to a positive bound", nil)
			}

			n := c.Runner().Prune(cmd.Context(), maxEntries)

			if shared.GetJSON() {
				return shared.WriteJSON(cmd.OutOrStdout(), struct {
					shared.JSONResponse
					Pruned int `json:"pruned"`
					Kept   int `json:"max_executions"`
				}{shared.NewJSONResponse("executions prune", true), n, maxEntries})
			}
			if !shared.GetQuiet() {
				fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("Pruned %d execution(s), keeping at most %d", n, maxEntries)))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxEntries, "max", 0, "Number of executions to keep")

	return cmd
}
