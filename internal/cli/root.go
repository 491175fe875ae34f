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

package cli

import (
	"github.com/spf13/cobra"

	"github.com/tombee/stepflow/internal/commands/executions"
	"github.com/tombee/stepflow/internal/commands/run"
	"github.com/tombee/stepflow/internal/commands/shared"
	"github.com/tombee/stepflow/internal/commands/validate"
	versioncmd "github.com/tombee/stepflow/internal/commands/version"
	"github.com/tombee/stepflow/internal/commands/watch"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for stepflow with every
// subcommand attached.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stepflow",
		Short: "stepflow - dependency-ordered workflow execution",
		Long: `stepflow runs workflows made of named steps with declared dependencies.

Steps run as soon as every step they depend on has succeeded, so
independent branches run concurrently. Executions are recorded by a
pluggable backend (memory, sqlite or postgres) and can be listed,
inspected, replayed and pruned.

Run 'stepflow validate <file>' to check a definition.
Run 'stepflow run <file>' to execute it.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	verbose, quiet, json, config := shared.RegisterFlagPointers()

	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: ~/.config/stepflow/config.yaml)")

	// Execution
	cmd.AddCommand(run.NewCommand())
	cmd.AddCommand(run.NewReplayCommand())
	cmd.AddCommand(executions.NewCommand())

	// Workflows
	cmd.AddCommand(validate.NewCommand())
	cmd.AddCommand(watch.NewCommand())

	cmd.AddCommand(versioncmd.NewVersionCommand())

	return cmd
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
