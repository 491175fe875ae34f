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

// Package executions implements commands that inspect and prune stored
// executions.
package executions

import (
	"github.com/spf13/cobra"
)

// NewCommand creates the executions command group
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "executions",
		Aliases: []string{"exec", "runs"},
		Short:   "Inspect stored executions",
		Annotations: map[string]string{
			"group": "execution",
		},
		Long: `Inspect executions recorded by the persistence backend.

Executions are only visible across invocations with a persistent backend
(sqlite or postgres). The memory backend forgets them when the process
exits.`,
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newPruneCommand())

	return cmd
}
