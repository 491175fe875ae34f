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

// Package fixture provides workflow definitions and configuration files
// for tests.
package fixture

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/tombee/stepflow/pkg/workflow"
)

// Diamond is a four-step workflow: a, then b and c together, then d.
const Diamond = `name: diamond
steps:
  - name: a
    executor: noop
  - name: b
    executor: echo
    depends_on: [a]
  - name: c
    executor: noop
    depends_on: [a]
  - name: d
    executor: noop
    depends_on: [b, c]
`

// Failing is a workflow whose first step fails, leaving its dependent
// PENDING.
const Failing = `name: broken
steps:
  - name: a
    executor: fail
  - name: b
    executor: noop
    depends_on: [a]
`

// Cyclic is a workflow whose steps depend on each other.
const Cyclic = `name: cyclic
steps:
  - name: a
    executor: noop
    depends_on: [b]
  - name: b
    executor: noop
    depends_on: [a]
`

// Chain builds a linear workflow in which each named step depends on the
// previous one.
func Chain(name string, executor string, steps ...string) *workflow.Definition {
	def := &workflow.Definition{Name: name}
	for i, s := range steps {
		step := workflow.Step{Name: s, Executor: executor}
		if i > 0 {
			step.DependsOn = []string{steps[i-1]}
		}
		def.Steps = append(def.Steps, step)
	}
	return def
}

// Marshal renders def as workflow YAML.
func Marshal(t testing.TB, def *workflow.Definition) string {
	t.Helper()
	data, err := yaml.Marshal(def)
	if err != nil {
		t.Fatalf("failed to marshal workflow: %v", err)
	}
	return string(data)
}

// WriteFile writes content to dir/name, creating parent directories.
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// Config is the subset of configuration tests usually set.
type Config struct {
	LogLevel      string
	Backend       string
	SQLitePath    string
	PostgresURL   string
	MaxExecutions int
}

// WriteConfig writes cfg as config.yaml in dir and returns its path.
func WriteConfig(t testing.TB, dir string, cfg Config) string {
	t.Helper()

	doc := map[string]any{}
	if cfg.LogLevel != "" {
		doc["log"] = map[string]any{"level": cfg.LogLevel}
	}
	be := map[string]any{}
	if cfg.Backend != "" {
		be["type"] = cfg.Backend
	}
	if cfg.SQLitePath != "" {
		be["sqlite"] = map[string]any{"path": cfg.SQLitePath}
	}
	if cfg.PostgresURL != "" {
		be["postgres"] = map[string]any{"connection_string": cfg.PostgresURL}
	}
	if len(be) > 0 {
		doc["backend"] = be
	}
	if cfg.MaxExecutions > 0 {
		doc["engine"] = map[string]any{"max_executions": cfg.MaxExecutions}
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		t.Fatalf("failed to marshal config: %v", err)
	}
	return WriteFile(t, dir, "config.yaml", string(data))
}

// SQLiteConfig writes a quiet configuration backed by a fresh sqlite
// database in a temporary directory. It returns the config path and the
// directory.
func SQLiteConfig(t testing.TB) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := WriteConfig(t, dir, Config{
		LogLevel:   "error",
		Backend:    "sqlite",
		SQLitePath: filepath.Join(dir, "stepflow.db"),
	})
	return path, dir
}
