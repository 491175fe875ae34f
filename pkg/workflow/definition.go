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

package workflow

import (
	"fmt"
	"strings"

	"github.com/tombee/stepflow/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Definition represents a YAML-based workflow definition.
// It names a set of steps and the dependencies between them. A definition is
// immutable once an execution references it: the steps are snapshotted into
// the execution when it starts.
type Definition struct {
	// ID is the workflow identifier. Generated on registration when empty.
	ID string `yaml:"id,omitempty" json:"id"`

	// Name is the human-readable workflow name
	Name string `yaml:"name" json:"name"`

	// Description provides human-readable context about the workflow
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Steps in declaration order. Declaration order breaks ties when
	// resolving the execution order.
	Steps []Step `yaml:"steps" json:"steps"`

	// Parallel is descriptive metadata kept for round-tripping. The runner
	// dispatches every ready step of a tick concurrently whatever its value.
	Parallel bool `yaml:"parallel,omitempty" json:"parallel,omitempty"`
}

// Step is a named unit of work within a workflow.
type Step struct {
	// Name is unique within a workflow
	Name string `yaml:"name" json:"name"`

	// Executor references the step executor that performs the work
	Executor string `yaml:"executor" json:"executor"`

	// Params are passed to the executor unmodified
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`

	// DependsOn lists the names of steps that must succeed first
	DependsOn []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
}

// ParseDefinition parses and validates a workflow definition from YAML.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, errors.Wrap(err, "failed to parse workflow definition")
	}

	if err := def.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid workflow definition")
	}

	return &def, nil
}

// Validate checks step names and the dependency graph. Dependency errors are
// returned unwrapped so callers can match UnknownDependencyError and
// CycleDetectedError directly.
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return &errors.ValidationError{
			Field:      "name",
			Message:    "workflow name is required",
			Suggestion: "add a top-level name field",
		}
	}

	seen := make(map[string]bool, len(d.Steps))
	for i, step := range d.Steps {
		if strings.TrimSpace(step.Name) == "" {
			return &errors.ValidationError{
				Field:   fmt.Sprintf("steps[%d].name", i),
				Message: "step name is required",
			}
		}
		if seen[step.Name] {
			return &errors.ValidationError{
				Field:      fmt.Sprintf("steps[%d].name", i),
				Message:    fmt.Sprintf("duplicate step name %q", step.Name),
				Suggestion: "step names must be unique within a workflow",
			}
		}
		seen[step.Name] = true
	}

	_, err := Resolve(d.Steps)
	return err
}

// Clone returns a deep copy of the definition.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	out := *d
	out.Steps = CloneSteps(d.Steps)
	return &out
}

// CloneSteps deep-copies a step list, including parameter maps.
func CloneSteps(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	for i, s := range steps {
		out[i] = Step{
			Name:      s.Name,
			Executor:  s.Executor,
			Params:    cloneParams(s.Params),
			DependsOn: append([]string(nil), s.DependsOn...),
		}
	}
	return out
}

func cloneParams(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneParams(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}
