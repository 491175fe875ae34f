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

package errors

import (
	"fmt"
	"strings"
	"time"
)

// Sentinel values for use with Is. They match any NotFoundError of the same
// resource type regardless of ID.
var (
	ErrExecutionNotFound = &NotFoundError{Resource: "execution"}
	ErrWorkflowNotFound  = &NotFoundError{Resource: "workflow"}
)

// ValidationError represents user input validation failures.
// Use this for invalid user input, malformed data, or constraint violations.
type ValidationError struct {
	// Field identifies which input field failed validation
	Field string

	// Message is the human-readable error description
	Message string

	// Suggestion provides actionable guidance for fixing the error
	Suggestion string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) ErrorType() string { return "validation" }
func (e *ValidationError) IsRetryable() bool { return false }

// NotFoundError represents a resource not found error.
// Use this when a requested resource does not exist.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "workflow", "execution")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// Is matches another NotFoundError for the same resource. A target with an
// empty ID matches any ID.
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	if !ok {
		return false
	}
	return t.Resource == e.Resource && (t.ID == "" || t.ID == e.ID)
}

func (e *NotFoundError) ErrorType() string { return "not_found" }
func (e *NotFoundError) IsRetryable() bool { return false }

// ConfigError represents configuration problems.
// Use this for configuration file errors, missing settings, or invalid config values.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "backend.type")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// TimeoutError represents operation timeouts.
// Use this when a step exceeds its configured timeout.
type TimeoutError struct {
	// Operation describes what timed out (e.g., "step fetch")
	Operation string

	// Duration is how long the operation ran before timing out
	Duration time.Duration

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s operation timed out after %v", e.Operation, e.Duration)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

func (e *TimeoutError) ErrorType() string { return "timeout" }
func (e *TimeoutError) IsRetryable() bool { return true }

// UnknownDependencyError is returned when a step depends on a name that is
// not declared in the same workflow.
type UnknownDependencyError struct {
	Step    string
	Missing string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("step %q depends on unknown step %q", e.Step, e.Missing)
}

func (e *UnknownDependencyError) ErrorType() string { return "validation" }
func (e *UnknownDependencyError) IsRetryable() bool { return false }

// CycleDetectedError is returned when the dependency graph cannot be fully
// ordered. Steps lists the names left with unresolved dependencies.
type CycleDetectedError struct {
	Steps []string
}

func (e *CycleDetectedError) Error() string {
	if len(e.Steps) == 0 {
		return "dependency cycle detected"
	}
	return fmt.Sprintf("dependency cycle detected among steps: %s", strings.Join(e.Steps, ", "))
}

func (e *CycleDetectedError) ErrorType() string { return "validation" }
func (e *CycleDetectedError) IsRetryable() bool { return false }

// DependencyDeadlockError is raised by the scheduler when steps remain but
// none of them can become ready.
type DependencyDeadlockError struct {
	ExecutionID string
	Pending     []string
}

func (e *DependencyDeadlockError) Error() string {
	return fmt.Sprintf("execution %s deadlocked: no ready steps, %d pending (%s)",
		e.ExecutionID, len(e.Pending), strings.Join(e.Pending, ", "))
}

func (e *DependencyDeadlockError) ErrorType() string { return "deadlock" }
func (e *DependencyDeadlockError) IsRetryable() bool { return false }

// NotReplayableError is returned when replay is requested for an execution
// that has not reached a terminal status.
type NotReplayableError struct {
	ExecutionID string
	Status      string
}

func (e *NotReplayableError) Error() string {
	return fmt.Sprintf("execution %s is not replayable in status %s", e.ExecutionID, e.Status)
}

func (e *NotReplayableError) ErrorType() string { return "conflict" }
func (e *NotReplayableError) IsRetryable() bool { return false }
