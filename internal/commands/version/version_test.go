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

package version

import (
	"bytes"
	"encoding/json"
	"runtime"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/stepflow/internal/commands/shared"
)

// runVersionCmd executes version under a root carrying --json.
func runVersionCmd(t *testing.T, args ...string) string {
	t.Helper()
	shared.ResetFlagsForTest()
	t.Cleanup(shared.ResetFlagsForTest)
	shared.SetVersion("1.4.0", "c0ffee1", "2025-03-01")
	t.Cleanup(func() { shared.SetVersion("dev", "unknown", "unknown") })

	root := &cobra.Command{Use: "stepflow"}
	_, _, jsonPtr, _ := shared.RegisterFlagPointers()
	root.PersistentFlags().BoolVar(jsonPtr, "json", false, "JSON output")
	root.AddCommand(NewVersionCommand())

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs(append([]string{"version"}, args...))
	require.NoError(t, root.Execute())
	return buf.String()
}

func TestVersionCommand(t *testing.T) {
	cmd := NewVersionCommand()
	assert.Equal(t, "version", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
}

func TestVersionOutput(t *testing.T) {
	out := runVersionCmd(t)

	assert.Contains(t, out, "stepflow version 1.4.0")
	assert.Contains(t, out, "c0ffee1")
	assert.Contains(t, out, "2025-03-01")
	assert.Contains(t, out, runtime.Version())
}

func TestVersionJSONOutput(t *testing.T) {
	out := runVersionCmd(t, "--json")

	var info VersionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info), out)
	assert.Equal(t, "1.4.0", info.Version)
	assert.Equal(t, "c0ffee1", info.Commit)
	assert.Equal(t, "version", info.Command)
	assert.True(t, info.Success)
}

func TestVersionRejectsArgs(t *testing.T) {
	cmd := NewVersionCommand()
	cmd.SetArgs([]string{"extra"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}
