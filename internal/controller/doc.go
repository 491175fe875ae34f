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
Package controller assembles a stepflow engine from configuration.

The Controller owns the long-lived components and their lifecycle:

  - Gateway: persistence for executions, step states and definitions
    (memory for development, SQLite for a single host, PostgreSQL for shared
    deployments)
  - Runner: resolves workflows and drives executions tick by tick
  - Telemetry: OpenTelemetry spans and metrics with a Prometheus endpoint
  - Reloader: keeps workflow definitions in a directory registered

# Usage

	cfg, _ := config.Load("")
	c, err := controller.New(ctx, cfg, controller.Options{Version: "1.0.0"})
	if err != nil {
	    return err
	}
	defer c.Shutdown(context.Background())

	id, _ := c.Runner().CreateWorkflow(ctx, def)
	snap, _ := c.Runner().Execute(ctx, id)

Run wraps New with signal handling for the long-running watch mode.
*/
package controller
