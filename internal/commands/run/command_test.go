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

package run

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/stepflow/internal/commands/shared"
	"github.com/tombee/stepflow/internal/testing/fixture"
	"github.com/tombee/stepflow/pkg/workflow"
)

// setup points the CLI at an isolated sqlite database and returns the
// workspace directory.
func setup(t *testing.T) string {
	t.Helper()
	shared.ResetFlagsForTest()
	t.Cleanup(shared.ResetFlagsForTest)

	cfgPath, dir := fixture.SQLiteConfig(t)
	shared.SetConfigPathForTest(cfgPath)
	return dir
}

// execute runs cmd under a root carrying the global flags.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "stepflow", SilenceUsage: true, SilenceErrors: true}
	verbose, quiet, jsonOut, cfg := shared.RegisterFlagPointers()
	root.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "")
	root.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "")
	root.PersistentFlags().BoolVar(jsonOut, "json", false, "")
	root.PersistentFlags().StringVar(cfg, "config", shared.GetConfigPath(), "")
	root.AddCommand(cmd)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{cmd.Name()}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestNewCommand(t *testing.T) {
	cmd := NewCommand()
	assert.Equal(t, "run <workflow>", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("dry-run"))
	assert.NotNil(t, cmd.Flags().Lookup("timeout"))
}

func TestRun_Success(t *testing.T) {
	dir := setup(t)
	path := fixture.WriteFile(t, dir, "diamond.yaml", fixture.Diamond)

	out, err := execute(t, NewCommand(), path)
	require.NoError(t, err)
	assert.Contains(t, out, "Running")
	assert.Contains(t, out, string(workflow.ExecutionSuccess))
	assert.Contains(t, out, "4/4")
}

func TestRun_JSON(t *testing.T) {
	dir := setup(t)
	path := fixture.WriteFile(t, dir, "diamond.yaml", fixture.Diamond)

	out, err := execute(t, NewCommand(), "--json", path)
	require.NoError(t, err)

	var view struct {
		Success   bool                  `json:"success"`
		Execution workflow.Execution    `json:"execution"`
		Steps     []*workflow.StepState `json:"steps"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.True(t, view.Success)
	assert.Equal(t, "diamond", view.Execution.WorkflowID)
	assert.Equal(t, workflow.ExecutionSuccess, view.Execution.Status)
	require.Len(t, view.Steps, 4)
	for _, st := range view.Steps {
		assert.Equal(t, workflow.StepSuccess, st.Status, st.Name)
	}
}

func TestRun_FailedExecutionExitCode(t *testing.T) {
	dir := setup(t)
	path := fixture.WriteFile(t, dir, "broken.yaml", fixture.Failing)

	out, err := execute(t, NewCommand(), path)
	require.Error(t, err)
	assert.Equal(t, shared.ExitExecutionFailed, shared.ExitCodeFor(err))
	assert.Contains(t, err.Error(), string(workflow.ExecutionFailed))
	assert.Contains(t, out, string(workflow.StepPending))
}

func TestRun_InvalidDefinition(t *testing.T) {
	dir := setup(t)
	path := fixture.WriteFile(t, dir, "cyclic.yaml", fixture.Cyclic)

	_, err := execute(t, NewCommand(), path)
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidInput, shared.ExitCodeFor(err))
}

func TestRun_MissingFile(t *testing.T) {
	dir := setup(t)

	_, err := execute(t, NewCommand(), filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidInput, shared.ExitCodeFor(err))
}

func TestRun_DryRun(t *testing.T) {
	dir := setup(t)
	path := fixture.WriteFile(t, dir, "diamond.yaml", fixture.Diamond)

	out, err := execute(t, NewCommand(), "--dry-run", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Plan")
	assert.Contains(t, out, "tick 1:")
	assert.Contains(t, out, "tick 3:")
	assert.NotContains(t, out, "Running")
}

func TestLoadDefinition_DefaultsIDToFileName(t *testing.T) {
	dir := t.TempDir()
	path := fixture.WriteFile(t, dir, "nightly-build.yml", fixture.Diamond)

	def, err := LoadDefinition(path)
	require.NoError(t, err)
	assert.Equal(t, "nightly-build", def.ID)

	withID := fixture.WriteFile(t, dir, "other.yaml", "id: explicit\n"+fixture.Diamond)
	def, err = LoadDefinition(withID)
	require.NoError(t, err)
	assert.Equal(t, "explicit", def.ID)
}

func TestReplay_NewExecutionReferencesSource(t *testing.T) {
	dir := setup(t)
	path := fixture.WriteFile(t, dir, "broken.yaml", fixture.Failing)

	out, err := execute(t, NewCommand(), "--json", path)
	require.Error(t, err)
	var first struct {
		Execution workflow.Execution `json:"execution"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &first))
	require.NotEmpty(t, first.Execution.ID)

	// The definition is fixed before the replay
	fixture.WriteFile(t, dir, "broken.yaml", strings.ReplaceAll(fixture.Failing, "executor: fail", "executor: noop"))
	_, err = execute(t, NewCommand(), "--dry-run", path)
	require.NoError(t, err)

	out, err = execute(t, NewReplayCommand(), "--json", first.Execution.ID)
	require.Error(t, err, "the stored definition still fails")

	var replayed struct {
		Execution workflow.Execution `json:"execution"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &replayed))
	assert.Equal(t, first.Execution.ID, replayed.Execution.ReplayOf)
	assert.NotEqual(t, first.Execution.ID, replayed.Execution.ID)
}

func TestReplay_UnknownExecution(t *testing.T) {
	setup(t)

	_, err := execute(t, NewReplayCommand(), "missing")
	require.Error(t, err)
	assert.Equal(t, shared.ExitNotFound, shared.ExitCodeFor(err))

	var exitErr *shared.ExitError
	assert.True(t, errors.As(err, &exitErr))
}
