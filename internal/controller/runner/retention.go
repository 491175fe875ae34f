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

package runner

import (
	"context"
	"log/slog"

	"github.com/tombee/stepflow/internal/controller/backend"
	"github.com/tombee/stepflow/internal/controller/metrics"
)

// Retention bounds the number of stored executions across all workflows.
// The oldest executions by start time go first and executions that never
// started count as oldest.
type Retention struct {
	pruner backend.Pruner
	state  *StateManager
	logger *slog.Logger
}

// NewRetention creates a pruner over the gateway and the in-memory state.
func NewRetention(pruner backend.Pruner, state *StateManager, logger *slog.Logger) *Retention {
	return &Retention{
		pruner: pruner,
		state:  state,
		logger: logger,
	}
}

// Prune keeps the newest maxEntries executions and returns how many were
// deleted from the gateway. maxEntries <= 0 disables pruning. Gateway
// errors are logged and reported as zero deletions.
func (p *Retention) Prune(ctx context.Context, maxEntries int) int {
	if maxEntries <= 0 {
		return 0
	}

	deleted, err := p.pruner.PruneExecutions(ctx, maxEntries)
	if err != nil {
		p.state.persistenceError(metrics.OpPrune, "", err)
		deleted = 0
	}

	evicted := p.state.Evict(maxEntries)

	if deleted > 0 || len(evicted) > 0 {
		p.logger.Info("pruned executions",
			slog.Int("deleted", deleted),
			slog.Int("evicted", len(evicted)),
			slog.Int("max_executions", maxEntries))
	}
	return deleted
}
