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

/*
Package runner executes workflow definitions.

A Runner owns the live executions of one process. Each execution runs in
its own goroutine as a sequence of ticks: every step that is READY at the
start of a tick is dispatched concurrently, and the next tick starts only
after all of them finish. A finished step promotes its PENDING dependents
to READY once all of their dependencies have succeeded. Dependents of a
failed step never become ready; when steps remain but none is ready the
execution fails with a DependencyDeadlockError.

# State

The in-memory execution state is authoritative. Every change is also
written to the persistence gateway, but gateway errors are logged, counted
and otherwise ignored so a broken store never fails a run.

# Usage

	r := runner.New(runner.Config{MaxExecutions: 100}, gw, workflow.NewRegistry(),
	    executor.NewBuiltinRegistry(executor.RealClock{}),
	    runner.WithLogger(logger))

	id, err := r.CreateWorkflow(ctx, def)
	snap, err := r.Execute(ctx, id)
	final, err := r.Wait(ctx, snap.ID)

Completed executions can be replayed with Replay, which re-runs the
workflow and links the new execution to its source through ReplayOf.
After every completion the retention pruner trims the store to
Config.MaxExecutions.
*/
package runner
