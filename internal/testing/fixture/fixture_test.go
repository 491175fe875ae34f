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

package fixture

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/stepflow/internal/config"
	stepflowerrors "github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/workflow"
)

func TestWorkflowFixtures(t *testing.T) {
	for name, src := range map[string]string{"diamond": Diamond, "failing": Failing} {
		def, err := workflow.ParseDefinition([]byte(src))
		require.NoError(t, err, name)
		assert.NotEmpty(t, def.Steps, name)
	}

	_, err := workflow.ParseDefinition([]byte(Cyclic))
	var cycle *stepflowerrors.CycleDetectedError
	assert.ErrorAs(t, err, &cycle)
}

func TestChainRoundTrip(t *testing.T) {
	def := Chain("chain", "noop", "a", "b", "c")
	require.Len(t, def.Steps, 3)
	assert.Empty(t, def.Steps[0].DependsOn)
	assert.Equal(t, []string{"b"}, def.Steps[2].DependsOn)

	parsed, err := workflow.ParseDefinition([]byte(Marshal(t, def)))
	require.NoError(t, err)
	assert.Equal(t, def.Steps, parsed.Steps)
}

func TestWriteFile_CreatesParents(t *testing.T) {
	dir := t.TempDir()
	path := WriteFile(t, dir, "nested/deeper/flow.yaml", Diamond)
	assert.Equal(t, filepath.Join(dir, "nested", "deeper", "flow.yaml"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Diamond, string(data))
}

func TestSQLiteConfig_Loads(t *testing.T) {
	path, dir := SQLiteConfig(t)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.BackendSQLite, cfg.Backend.Type)
	assert.Equal(t, filepath.Join(dir, "stepflow.db"), cfg.Backend.SQLite.Path)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestWriteConfig_Engine(t *testing.T) {
	path := WriteConfig(t, t.TempDir(), Config{MaxExecutions: 5})

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Engine.MaxExecutions)
	assert.Equal(t, config.BackendMemory, cfg.Backend.Type)
}
