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

	"github.com/spf13/cobra"

	"github.com/tombee/stepflow/internal/commands/shared"
	"github.com/tombee/stepflow/internal/controller/runner"
	"github.com/tombee/stepflow/pkg/workflow"
)

func newListCommand() *cobra.Command {
	var (
		workflowID string
		limit      int
		offset     int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List executions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 || offset < 0 {
				return shared.NewInvalidInputError("--limit and --offset must not be negative", nil)
			}

			c, _, err := shared.OpenController(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())

			execs := c.Runner().List(cmd.Context(), runner.ListFilter{
				WorkflowID: workflowID,
				Limit:      limit,
				Offset:     offset,
			})

			if shared.GetJSON() {
				if execs == nil {
					execs = []*workflow.Execution{}
				}
				return shared.WriteJSON(cmd.OutOrStdout(), struct {
					shared.JSONResponse
					Executions []*workflow.Execution `json:"executions"`
				}{shared.NewJSONResponse("executions list", true), execs})
			}

			shared.PrintExecutionTable(cmd.OutOrStdout(), execs)
			return nil
		},
	}

	cmd.Flags().StringVarP(&workflowID, "workflow", "w", "", "Only list executions of this workflow")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of executions (0 = all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many executions")

	return cmd
}
