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

package errors_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	stepflowerrors "github.com/tombee/stepflow/pkg/errors"
)

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *stepflowerrors.ValidationError
		wantMsg string
	}{
		{
			name:    "with field",
			err:     &stepflowerrors.ValidationError{Field: "steps[1].name", Message: "duplicate step name"},
			wantMsg: "validation failed on steps[1].name: duplicate step name",
		},
		{
			name:    "without field",
			err:     &stepflowerrors.ValidationError{Message: "invalid format"},
			wantMsg: "validation failed: invalid format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("ValidationError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestNotFoundError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{
			name:   "execution sentinel matches any id",
			err:    &stepflowerrors.NotFoundError{Resource: "execution", ID: "abc"},
			target: stepflowerrors.ErrExecutionNotFound,
			want:   true,
		},
		{
			name:   "workflow sentinel through wrapping",
			err:    fmt.Errorf("replay: %w", &stepflowerrors.NotFoundError{Resource: "workflow", ID: "wf"}),
			target: stepflowerrors.ErrWorkflowNotFound,
			want:   true,
		},
		{
			name:   "different resource does not match",
			err:    &stepflowerrors.NotFoundError{Resource: "workflow", ID: "wf"},
			target: stepflowerrors.ErrExecutionNotFound,
			want:   false,
		},
		{
			name:   "explicit id must match",
			err:    &stepflowerrors.NotFoundError{Resource: "execution", ID: "a"},
			target: &stepflowerrors.NotFoundError{Resource: "execution", ID: "b"},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.want {
				t.Errorf("errors.Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGraphErrors_Error(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{
			name: "unknown dependency",
			err:  &stepflowerrors.UnknownDependencyError{Step: "build", Missing: "fetch"},
			want: []string{`"build"`, `"fetch"`},
		},
		{
			name: "cycle with steps",
			err:  &stepflowerrors.CycleDetectedError{Steps: []string{"a", "b"}},
			want: []string{"cycle", "a, b"},
		},
		{
			name: "cycle without steps",
			err:  &stepflowerrors.CycleDetectedError{},
			want: []string{"dependency cycle detected"},
		},
		{
			name: "deadlock",
			err:  &stepflowerrors.DependencyDeadlockError{ExecutionID: "e1", Pending: []string{"c"}},
			want: []string{"e1", "deadlocked", "1 pending", "c"},
		},
		{
			name: "not replayable",
			err:  &stepflowerrors.NotReplayableError{ExecutionID: "e2", Status: "running"},
			want: []string{"e2", "running"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("Error() = %q, want to contain %q", got, want)
				}
			}
		})
	}
}

func TestErrorClassifier(t *testing.T) {
	tests := []struct {
		err       stepflowerrors.ErrorClassifier
		wantType  string
		retryable bool
	}{
		{&stepflowerrors.ValidationError{}, "validation", false},
		{&stepflowerrors.NotFoundError{}, "not_found", false},
		{&stepflowerrors.TimeoutError{}, "timeout", true},
		{&stepflowerrors.UnknownDependencyError{}, "validation", false},
		{&stepflowerrors.CycleDetectedError{}, "validation", false},
		{&stepflowerrors.DependencyDeadlockError{}, "deadlock", false},
		{&stepflowerrors.NotReplayableError{}, "conflict", false},
	}

	for _, tt := range tests {
		t.Run(tt.wantType, func(t *testing.T) {
			if got := tt.err.ErrorType(); got != tt.wantType {
				t.Errorf("ErrorType() = %q, want %q", got, tt.wantType)
			}
			if got := tt.err.IsRetryable(); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestConfigError_Unwrap(t *testing.T) {
	cause := errors.New("file not found")
	err := fmt.Errorf("loading config: %w", &stepflowerrors.ConfigError{
		Key:    "backend.type",
		Reason: "unsupported",
		Cause:  cause,
	})

	var target *stepflowerrors.ConfigError
	if !errors.As(err, &target) {
		t.Fatal("errors.As should find ConfigError in wrapped error")
	}
	if target.Unwrap() != cause {
		t.Error("ConfigError.Unwrap() should return root cause")
	}
	if !strings.Contains(target.Error(), "backend.type") {
		t.Errorf("ConfigError.Error() = %q, want key", target.Error())
	}
}

func TestTimeoutError_Error(t *testing.T) {
	err := &stepflowerrors.TimeoutError{Operation: "step fetch", Duration: 2 * time.Second}
	want := "step fetch operation timed out after 2s"
	if got := err.Error(); got != want {
		t.Errorf("TimeoutError.Error() = %q, want %q", got, want)
	}
}
