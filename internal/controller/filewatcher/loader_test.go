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

package filewatcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stepflowerrors "github.com/tombee/stepflow/pkg/errors"
)

const buildYAML = `name: build
steps:
  - name: compile
    executor: noop
  - name: test
    executor: noop
    depends_on: [compile]
`

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "build.yaml", buildYAML)
	writeFile(t, dir, "team/deploy.yml", "id: deploy\nname: deploy\nsteps:\n  - name: ship\n    executor: echo\n")
	writeFile(t, dir, "cycle.yaml", "name: cycle\nsteps:\n  - name: a\n    executor: noop\n    depends_on: [b]\n  - name: b\n    executor: noop\n    depends_on: [a]\n")
	writeFile(t, dir, "notes.txt", "not a workflow")
	writeFile(t, dir, ".build.yaml.swp", "garbage")

	m, err := NewMatcher(nil, nil)
	require.NoError(t, err)

	loaded, failed, err := LoadDir(dir, m)
	require.NoError(t, err)

	require.Len(t, loaded, 2)
	assert.Equal(t, "build.yaml", loaded[0].Path)
	assert.Equal(t, "build", loaded[0].Definition.ID)
	assert.Len(t, loaded[0].Definition.Steps, 2)
	assert.Equal(t, "team/deploy.yml", loaded[1].Path)
	assert.Equal(t, "deploy", loaded[1].Definition.ID)

	require.Len(t, failed, 1)
	assert.Equal(t, "cycle.yaml", failed[0].Path)
	var cycleErr *stepflowerrors.CycleDetectedError
	assert.ErrorAs(t, failed[0], &cycleErr)
}

func TestLoadDir_NotADirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "build.yaml", buildYAML)
	m, err := NewMatcher(nil, nil)
	require.NoError(t, err)

	_, _, err = LoadDir(filepath.Join(dir, "build.yaml"), m)
	assert.Error(t, err)

	_, _, err = LoadDir(filepath.Join(dir, "missing"), m)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "nested/build.yaml", buildYAML)

	def, err := LoadFile(dir, "nested/build.yaml")
	require.NoError(t, err)
	assert.Equal(t, "nested/build", def.ID)
	assert.Equal(t, "build", def.Name)

	_, err = LoadFile(dir, "missing.yaml")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWorkflowID(t *testing.T) {
	assert.Equal(t, "build", WorkflowID("build.yaml"))
	assert.Equal(t, "team/build", WorkflowID("team/build.yml"))
	assert.Equal(t, "noext", WorkflowID("noext"))
}
