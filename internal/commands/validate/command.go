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

// Package validate implements the validate command.
package validate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tombee/stepflow/internal/commands/shared"
	"github.com/tombee/stepflow/internal/controller/filewatcher"
	"github.com/tombee/stepflow/internal/controller/runner"
	"github.com/tombee/stepflow/pkg/executor"
)

// Result describes one validated workflow file.
type Result struct {
	Path     string   `json:"path"`
	ID       string   `json:"id,omitempty"`
	Name     string   `json:"name,omitempty"`
	Steps    int      `json:"steps"`
	Ticks    int      `json:"ticks"`
	Warnings []string `json:"warnings,omitempty"`
}

type validateResponse struct {
	shared.JSONResponse
	Workflows []Result         `json:"workflows"`
	Errors    []shared.JSONError `json:"errors,omitempty"`
}

// NewCommand creates the validate command
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <workflow|dir>",
		Short: "Validate workflow definitions without running them",
		Annotations: map[string]string{
			"group": "workflow",
		},
		Long: `Validate parses workflow definitions and resolves their dependency order.

A directory is searched with the include and exclude patterns from the
workflows section of the configuration. Unknown dependencies and cycles are
errors. Steps naming an executor that is not built in are warnings.`,
		Example: `  stepflow validate build.yaml
  stepflow validate ./workflows --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args[0])
		},
	}

	return cmd
}

func runValidate(cmd *cobra.Command, target string) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}

	info, err := os.Stat(target)
	if err != nil {
		return shared.NewInvalidInputError("cannot read "+target, err)
	}

	var (
		results []Result
		errs    []error
	)
	executors := executor.NewBuiltinRegistry(nil)

	if info.IsDir() {
		m, err := filewatcher.NewMatcher(cfg.Workflows.Include, cfg.Workflows.Exclude)
		if err != nil {
			return shared.NewInvalidInputError("invalid workflow patterns", err)
		}
		loaded, loadErrs, err := filewatcher.LoadDir(target, m)
		if err != nil {
			return shared.NewInvalidInputError("cannot search "+target, err)
		}
		for _, le := range loadErrs {
			le.Path = filepath.Join(target, le.Path)
			errs = append(errs, le)
		}
		for _, l := range loaded {
			res, err := check(filepath.Join(target, l.Path), l, executors)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			results = append(results, res)
		}
	} else {
		dir, rel := filepath.Split(target)
		if dir == "" {
			dir = "."
		}
		def, err := filewatcher.LoadFile(dir, rel)
		if err != nil {
			errs = append(errs, &filewatcher.LoadError{Path: target, Err: err})
		} else {
			res, err := check(target, filewatcher.Loaded{Path: rel, Definition: def}, executors)
			if err != nil {
				errs = append(errs, err)
			} else {
				results = append(results, res)
			}
		}
	}

	if shared.GetJSON() {
		resp := validateResponse{
			JSONResponse: shared.NewJSONResponse("validate", len(errs) == 0),
			Workflows:    results,
		}
		for _, e := range errs {
			je := shared.ErrorToJSON(shared.Classify("invalid workflow", e))
			if le, ok := e.(*filewatcher.LoadError); ok {
				je.Path = le.Path
			}
			resp.Errors = append(resp.Errors, je)
		}
		if err := shared.WriteJSON(cmd.OutOrStdout(), resp); err != nil {
			return err
		}
	} else {
		printResults(cmd, results, errs)
	}

	if len(errs) > 0 {
		return shared.NewInvalidInputError(fmt.Sprintf("%d invalid workflow(s)", len(errs)), nil)
	}
	return nil
}

func check(path string, l filewatcher.Loaded, executors *executor.Registry) (Result, error) {
	plan, err := runner.NewPlan(l.Definition, executors)
	if err != nil {
		return Result{}, &filewatcher.LoadError{Path: path, Err: err}
	}
	return Result{
		Path:     path,
		ID:       l.Definition.ID,
		Name:     plan.Name,
		Steps:    plan.TotalSteps,
		Ticks:    len(plan.Ticks),
		Warnings: plan.Warnings,
	}, nil
}

func printResults(cmd *cobra.Command, results []Result, errs []error) {
	out := cmd.OutOrStdout()
	for _, r := range results {
		fmt.Fprintf(out, "[OK] %s %s\n", r.Path, shared.Muted.Render(fmt.Sprintf("(%s, %d steps, %d ticks)", r.ID, r.Steps, r.Ticks)))
		for _, w := range r.Warnings {
			fmt.Fprintln(out, "  "+shared.RenderWarn(w))
		}
	}
	for _, e := range errs {
		fmt.Fprintf(out, "[FAIL] %s\n", e)
	}
	if shared.GetQuiet() {
		return
	}
	if len(results) == 0 && len(errs) == 0 {
		fmt.Fprintln(out, shared.Muted.Render("No workflow files found"))
	}
}
