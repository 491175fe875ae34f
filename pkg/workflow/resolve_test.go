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
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/stepflow/pkg/errors"
)

func step(name string, deps ...string) Step {
	return Step{Name: name, Executor: "noop", DependsOn: deps}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name  string
		steps []Step
		want  []string
	}{
		{
			name:  "empty",
			steps: nil,
			want:  []string{},
		},
		{
			name:  "linear chain",
			steps: []Step{step("a"), step("b", "a"), step("c", "b")},
			want:  []string{"a", "b", "c"},
		},
		{
			name:  "linear chain declared backwards",
			steps: []Step{step("c", "b"), step("b", "a"), step("a")},
			want:  []string{"a", "b", "c"},
		},
		{
			name:  "diamond",
			steps: []Step{step("a"), step("b", "a"), step("c", "a"), step("d", "b", "c")},
			want:  []string{"a", "b", "c", "d"},
		},
		{
			name:  "independent roots keep declaration order",
			steps: []Step{step("z"), step("y"), step("x")},
			want:  []string{"z", "y", "x"},
		},
		{
			name:  "duplicate dependency entry",
			steps: []Step{step("a"), step("b", "a", "a")},
			want:  []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.steps)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_UnknownDependency(t *testing.T) {
	_, err := Resolve([]Step{step("a"), step("b", "missing")})

	var unknown *errors.UnknownDependencyError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "b", unknown.Step)
	assert.Equal(t, "missing", unknown.Missing)
}

func TestResolve_Cycle(t *testing.T) {
	tests := []struct {
		name     string
		steps    []Step
		residual []string
	}{
		{
			name:     "two step cycle",
			steps:    []Step{step("a", "b"), step("b", "a")},
			residual: []string{"a", "b"},
		},
		{
			name:     "self dependency",
			steps:    []Step{step("a", "a")},
			residual: []string{"a"},
		},
		{
			name:     "cycle behind a valid prefix",
			steps:    []Step{step("root"), step("x", "root", "z"), step("y", "x"), step("z", "y"), step("w", "z")},
			residual: []string{"x", "y", "z", "w"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.steps)
			var cycle *errors.CycleDetectedError
			require.ErrorAs(t, err, &cycle)
			assert.Equal(t, tt.residual, cycle.Steps)
		})
	}
}

// Random DAGs: every edge points from a lower to a higher index, so the
// graph is acyclic and every dependency must precede its dependent.
func TestResolve_RandomDAGsRespectDependencies(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 200; iter++ {
		n := 1 + rng.Intn(12)
		steps := make([]Step, n)
		for i := 0; i < n; i++ {
			steps[i] = Step{Name: fmt.Sprintf("s%d", i)}
			for j := 0; j < i; j++ {
				if rng.Intn(3) == 0 {
					steps[i].DependsOn = append(steps[i].DependsOn, fmt.Sprintf("s%d", j))
				}
			}
		}
		rng.Shuffle(n, func(i, j int) { steps[i], steps[j] = steps[j], steps[i] })

		order, err := Resolve(steps)
		require.NoError(t, err)
		require.Len(t, order, n)

		pos := make(map[string]int, n)
		for i, name := range order {
			pos[name] = i
		}
		require.Len(t, pos, n, "order must be a permutation")
		for _, s := range steps {
			for _, dep := range s.DependsOn {
				assert.Less(t, pos[dep], pos[s.Name], "%s must precede %s", dep, s.Name)
			}
		}
	}
}

func TestResolve_Deterministic(t *testing.T) {
	steps := []Step{step("a"), step("b", "a"), step("c", "a"), step("d", "b", "c"), step("e")}
	first, err := Resolve(steps)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Resolve(steps)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
