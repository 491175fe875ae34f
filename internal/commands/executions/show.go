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

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <execution-id>",
		Short: "Show an execution and its step states",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := shared.OpenController(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())

			snap, err := c.Runner().Get(cmd.Context(), args[0])
			if err != nil {
				return shared.Classify(fmt.Sprintf("execution %s", args[0]), err)
			}

			if shared.GetJSON() {
				return shared.WriteJSON(cmd.OutOrStdout(), shared.ExecutionView{
					JSONResponse: shared.NewJSONResponse("executions show", true),
					Execution:    &snap.Execution,
					Steps:        snap.Steps,
				})
			}
			shared.PrintExecution(cmd.OutOrStdout(), &snap.Execution, snap.Steps)
			return nil
		},
	}
}
