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
	"github.com/tombee/stepflow/pkg/errors"
)

// Resolve validates the dependency graph of steps and returns the step names
// in topological order.
//
// Every depends_on entry must name a declared step, otherwise an
// UnknownDependencyError is returned. A graph that cannot be fully ordered
// yields a CycleDetectedError listing the steps left over. The result is
// deterministic: ready steps are ordered by declaration order.
//
// Resolve only validates and orders; the runner decides what executes
// concurrently.
func Resolve(steps []Step) ([]string, error) {
	index := make(map[string]int, len(steps))
	names := make([]string, 0, len(steps))
	for _, s := range steps {
		if _, ok := index[s.Name]; ok {
			continue
		}
		index[s.Name] = len(names)
		names = append(names, s.Name)
	}

	dependents := make(map[string][]string, len(names))
	indegree := make(map[string]int, len(names))
	for _, n := range names {
		indegree[n] = 0
	}

	for _, s := range steps {
		for _, dep := range s.DependsOn {
			if _, ok := index[dep]; !ok {
				return nil, &errors.UnknownDependencyError{Step: s.Name, Missing: dep}
			}
			dependents[dep] = append(dependents[dep], s.Name)
			indegree[s.Name]++
		}
	}

	queue := make([]string, 0, len(names))
	for _, n := range names {
		if indegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	order := make([]string, 0, len(names))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)

		for _, d := range dependents[n] {
			indegree[d]--
			if indegree[d] == 0 {
				queue = append(queue, d)
			}
		}
	}

	if len(order) < len(names) {
		var residual []string
		for _, n := range names {
			if indegree[n] > 0 {
				residual = append(residual, n)
			}
		}
		return nil, &errors.CycleDetectedError{Steps: residual}
	}

	return order, nil
}
