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
	"context"
	"sort"
	"sync"

	"github.com/tombee/stepflow/pkg/errors"
)

// Store holds workflow definitions by ID.
type Store interface {
	// Put creates or replaces a definition.
	Put(ctx context.Context, def *Definition) error

	// Get retrieves a definition by ID.
	Get(ctx context.Context, id string) (*Definition, error)

	// Delete removes a definition by ID.
	Delete(ctx context.Context, id string) error

	// List returns all definitions ordered by ID.
	List(ctx context.Context) ([]*Definition, error)
}

// Registry is an in-memory Store. It is read concurrently by runners and
// mutated only by explicit create or reload calls. Definitions are copied on
// the way in and out so callers cannot mutate stored steps.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

var _ Store = (*Registry)(nil)

// NewRegistry creates an empty definition registry.
func NewRegistry() *Registry {
	return &Registry{
		defs: make(map[string]*Definition),
	}
}

// Put creates or replaces a definition.
func (r *Registry) Put(ctx context.Context, def *Definition) error {
	if def == nil {
		return &errors.ValidationError{
			Field:   "workflow",
			Message: "workflow cannot be nil",
		}
	}
	if def.ID == "" {
		return &errors.ValidationError{
			Field:   "id",
			Message: "workflow ID cannot be empty",
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.ID] = def.Clone()
	return nil
}

// Get retrieves a definition by ID.
func (r *Registry) Get(ctx context.Context, id string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[id]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "workflow", ID: id}
	}
	return def.Clone(), nil
}

// Delete removes a definition by ID.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.defs[id]; !ok {
		return &errors.NotFoundError{Resource: "workflow", ID: id}
	}
	delete(r.defs, id)
	return nil
}

// List returns all definitions ordered by ID.
func (r *Registry) List(ctx context.Context) ([]*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
