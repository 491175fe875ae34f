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

// Package executor defines the pluggable step executors that perform the
// work of a workflow step, and a registry that resolves a step's executor
// reference to an implementation.
//
// The engine only cares whether an executor returned an error. Output is
// carried for observability and for callers that inspect results.
package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/workflow"
)

// Result is what a step executor produced.
type Result struct {
	// Output is opaque executor output
	Output map[string]any

	// Duration is how long the executor reported it took
	Duration time.Duration
}

// StepExecutor performs the work for a single step.
type StepExecutor interface {
	Execute(ctx context.Context, step workflow.Step) (Result, error)
}

// Func adapts an ordinary function to StepExecutor.
type Func func(ctx context.Context, step workflow.Step) (Result, error)

// Execute calls f.
func (f Func) Execute(ctx context.Context, step workflow.Step) (Result, error) {
	return f(ctx, step)
}

// Kind identifies a built-in executor.
type Kind string

// Built-in executor kinds
const (
	KindNoop  Kind = "noop"
	KindEcho  Kind = "echo"
	KindDelay Kind = "delay"
	KindFail  Kind = "fail"
)

// Kinds lists every built-in kind.
func Kinds() []Kind {
	return []Kind{KindNoop, KindEcho, KindDelay, KindFail}
}

// Registry resolves executor references by exact name. References are never
// matched by prefix or substring.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]StepExecutor
	fallback  StepExecutor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[string]StepExecutor),
	}
}

// NewBuiltinRegistry creates a registry with every built-in kind registered.
// Time-based executors use clock; nil selects the real clock.
func NewBuiltinRegistry(clock Clock) *Registry {
	if clock == nil {
		clock = RealClock{}
	}
	r := NewRegistry()
	for _, k := range Kinds() {
		// Built-in names are unique, so registration cannot fail.
		_ = r.Register(string(k), Builtin(k, clock))
	}
	return r
}

// Register adds an executor under ref.
// Returns an error if ref is empty or already registered.
func (r *Registry) Register(ref string, exec StepExecutor) error {
	if exec == nil {
		return fmt.Errorf("cannot register nil executor")
	}
	if ref == "" {
		return fmt.Errorf("executor reference cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executors[ref]; exists {
		return fmt.Errorf("executor already registered: %s", ref)
	}
	r.executors[ref] = exec
	return nil
}

// SetFallback sets the executor used for references with no registration.
func (r *Registry) SetFallback(exec StepExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = exec
}

// Resolve returns the executor registered under ref.
func (r *Registry) Resolve(ref string) (StepExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if exec, ok := r.executors[ref]; ok {
		return exec, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, &errors.NotFoundError{Resource: "executor", ID: ref}
}

// Has checks if ref is registered.
func (r *Registry) Has(ref string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.executors[ref]
	return ok
}

// List returns all registered references, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	refs := make([]string, 0, len(r.executors))
	for ref := range r.executors {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// Execute resolves the step's executor and runs it. An unresolvable
// reference is returned as an error, which fails the step.
func (r *Registry) Execute(ctx context.Context, step workflow.Step) (Result, error) {
	exec, err := r.Resolve(step.Executor)
	if err != nil {
		return Result{}, err
	}
	return exec.Execute(ctx, step)
}
