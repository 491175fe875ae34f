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

package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/workflow"
)

// DefaultFailMessage is the error text of a fail step with no message param.
const DefaultFailMessage = "step failed"

// Builtin returns the executor for a built-in kind, or nil for an unknown kind.
func Builtin(kind Kind, clock Clock) StepExecutor {
	switch kind {
	case KindNoop:
		return Func(noop)
	case KindEcho:
		return Func(echo)
	case KindDelay:
		return &Delay{Clock: clock}
	case KindFail:
		return Func(fail)
	}
	return nil
}

func noop(ctx context.Context, step workflow.Step) (Result, error) {
	return Result{}, ctx.Err()
}

// echo returns the step params as output.
func echo(ctx context.Context, step workflow.Step) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	out := make(map[string]any, len(step.Params))
	for k, v := range step.Params {
		out[k] = v
	}
	return Result{Output: out}, nil
}

// fail always errors with the "message" param.
func fail(ctx context.Context, step workflow.Step) (Result, error) {
	msg, _ := step.Params["message"].(string)
	if msg == "" {
		msg = DefaultFailMessage
	}
	return Result{}, errors.New(msg)
}

// Delay waits for the "duration" param before succeeding. The duration is a
// Go duration string ("250ms") or a number of milliseconds.
type Delay struct {
	Clock Clock
}

// Execute waits on the clock or returns early when ctx is done.
func (d *Delay) Execute(ctx context.Context, step workflow.Step) (Result, error) {
	dur, err := ParseDuration(step.Params["duration"])
	if err != nil {
		return Result{}, &errors.ValidationError{
			Field:   step.Name + ".params.duration",
			Message: err.Error(),
		}
	}

	clock := d.Clock
	if clock == nil {
		clock = RealClock{}
	}

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-clock.After(dur):
		return Result{Duration: dur}, nil
	}
}

// ParseDuration converts a params value into a duration. A nil value is zero.
func ParseDuration(v any) (time.Duration, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case string:
		return time.ParseDuration(t)
	case int:
		return time.Duration(t) * time.Millisecond, nil
	case int64:
		return time.Duration(t) * time.Millisecond, nil
	case float64:
		return time.Duration(t * float64(time.Millisecond)), nil
	default:
		return 0, fmt.Errorf("unsupported duration value %v (%T)", v, v)
	}
}
