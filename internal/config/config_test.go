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

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	stepflowerrors "github.com/tombee/stepflow/pkg/errors"
)

var envKeys = []string{
	"LOG_LEVEL", "LOG_FORMAT", "LOG_SOURCE",
	"STEPFLOW_BACKEND", "STEPFLOW_SQLITE_PATH", "STEPFLOW_POSTGRES_URL",
	"STEPFLOW_MAX_EXECUTIONS", "STEPFLOW_STEP_TIMEOUT",
	"STEPFLOW_WORKFLOWS_DIR", "STEPFLOW_METRICS_ADDR",
	"STEPFLOW_TRACES_EXPORTER", "STEPFLOW_TRACES_ENDPOINT", "STEPFLOW_TRACES_INSECURE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Log.Level != "info" {
		t.Errorf("expected log level 'info', got %q", cfg.Log.Level)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("expected log format 'text', got %q", cfg.Log.Format)
	}
	if cfg.Backend.Type != BackendMemory {
		t.Errorf("expected memory backend, got %q", cfg.Backend.Type)
	}
	if !strings.HasSuffix(cfg.Backend.SQLite.Path, "stepflow.db") {
		t.Errorf("unexpected sqlite path %q", cfg.Backend.SQLite.Path)
	}
	if cfg.Engine.MaxExecutions != 0 {
		t.Errorf("expected pruning disabled by default, got %d", cfg.Engine.MaxExecutions)
	}
	if cfg.Engine.ShutdownTimeout != 30*time.Second {
		t.Errorf("expected shutdown timeout 30s, got %v", cfg.Engine.ShutdownTimeout)
	}
	if cfg.Telemetry.Traces.Exporter != TraceExporterNone {
		t.Errorf("expected trace export off by default, got %q", cfg.Telemetry.Traces.Exporter)
	}
	if len(cfg.Workflows.Include) != 2 {
		t.Errorf("expected default include patterns, got %v", cfg.Workflows.Include)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
		errText string
	}{
		{
			name:   "valid default config",
			modify: func(c *Config) {},
		},
		{
			name:    "unknown backend",
			modify:  func(c *Config) { c.Backend.Type = "redis" },
			wantErr: true,
			errText: "backend.type",
		},
		{
			name:    "postgres without connection string",
			modify:  func(c *Config) { c.Backend.Type = BackendPostgres },
			wantErr: true,
			errText: "connection_string",
		},
		{
			name: "postgres with connection string",
			modify: func(c *Config) {
				c.Backend.Type = BackendPostgres
				c.Backend.Postgres.ConnectionString = "postgres://localhost/stepflow"
			},
		},
		{
			name: "sqlite without path",
			modify: func(c *Config) {
				c.Backend.Type = BackendSQLite
				c.Backend.SQLite.Path = ""
			},
			wantErr: true,
			errText: "sqlite.path",
		},
		{
			name:    "bad log format",
			modify:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: true,
			errText: "log.format",
		},
		{
			name:    "negative max executions",
			modify:  func(c *Config) { c.Engine.MaxExecutions = -1 },
			wantErr: true,
			errText: "max_executions",
		},
		{
			name:    "negative step timeout",
			modify:  func(c *Config) { c.Engine.StepTimeout = -time.Second },
			wantErr: true,
			errText: "step_timeout",
		},
		{
			name:    "negative debounce",
			modify:  func(c *Config) { c.Workflows.Debounce = -time.Millisecond },
			wantErr: true,
			errText: "workflows.debounce",
		},
		{
			name:    "unknown trace exporter",
			modify:  func(c *Config) { c.Telemetry.Traces.Exporter = "zipkin" },
			wantErr: true,
			errText: "telemetry.traces.exporter",
		},
		{
			name:    "otlp without endpoint",
			modify:  func(c *Config) { c.Telemetry.Traces.Exporter = TraceExporterOTLP },
			wantErr: true,
			errText: "telemetry.traces.endpoint",
		},
		{
			name: "otlp with endpoint",
			modify: func(c *Config) {
				c.Telemetry.Traces.Exporter = TraceExporterOTLPHTTP
				c.Telemetry.Traces.Endpoint = "collector:4318"
			},
		},
		{
			name:   "console exporter",
			modify: func(c *Config) { c.Telemetry.Traces.Exporter = TraceExporterConsole },
		},
		{
			name:    "sample rate above one",
			modify:  func(c *Config) { c.Telemetry.Traces.SampleRate = 1.5 },
			wantErr: true,
			errText: "sample_rate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
				if !strings.Contains(err.Error(), tt.errText) {
					t.Errorf("expected error containing %q, got %q", tt.errText, err.Error())
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
log:
  level: debug
  format: json
backend:
  type: sqlite
  sqlite:
    path: /tmp/stepflow-test.db
    wal: true
engine:
  max_executions: 10
  step_timeout: 30s
workflows:
  dir: ./workflows
metrics:
  addr: ":9090"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("unexpected log config: %+v", cfg.Log)
	}
	if cfg.Backend.Type != BackendSQLite || cfg.Backend.SQLite.Path != "/tmp/stepflow-test.db" || !cfg.Backend.SQLite.WAL {
		t.Errorf("unexpected backend config: %+v", cfg.Backend)
	}
	if cfg.Engine.MaxExecutions != 10 {
		t.Errorf("expected max executions 10, got %d", cfg.Engine.MaxExecutions)
	}
	if cfg.Engine.StepTimeout != 30*time.Second {
		t.Errorf("expected step timeout 30s, got %v", cfg.Engine.StepTimeout)
	}
	if cfg.Workflows.Dir != "./workflows" {
		t.Errorf("unexpected workflows dir %q", cfg.Workflows.Dir)
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("unexpected metrics addr %q", cfg.Metrics.Addr)
	}
	// Defaults still fill the gaps.
	if cfg.Engine.ShutdownTimeout != 30*time.Second {
		t.Errorf("expected default shutdown timeout, got %v", cfg.Engine.ShutdownTimeout)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("engine:\n  max_executions: 5\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("STEPFLOW_MAX_EXECUTIONS", "20")
	t.Setenv("STEPFLOW_STEP_TIMEOUT", "2s")
	t.Setenv("STEPFLOW_BACKEND", "POSTGRES")
	t.Setenv("STEPFLOW_POSTGRES_URL", "postgres://db/stepflow")
	t.Setenv("STEPFLOW_WORKFLOWS_DIR", "/srv/workflows")
	t.Setenv("STEPFLOW_METRICS_ADDR", "127.0.0.1:9100")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("STEPFLOW_TRACES_EXPORTER", "OTLP")
	t.Setenv("STEPFLOW_TRACES_ENDPOINT", "collector:4317")
	t.Setenv("STEPFLOW_TRACES_INSECURE", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Engine.MaxExecutions != 20 {
		t.Errorf("env should override file, got %d", cfg.Engine.MaxExecutions)
	}
	if cfg.Engine.StepTimeout != 2*time.Second {
		t.Errorf("expected 2s step timeout, got %v", cfg.Engine.StepTimeout)
	}
	if cfg.Backend.Type != BackendPostgres || cfg.Backend.Postgres.ConnectionString != "postgres://db/stepflow" {
		t.Errorf("unexpected backend: %+v", cfg.Backend)
	}
	if cfg.Workflows.Dir != "/srv/workflows" {
		t.Errorf("unexpected workflows dir %q", cfg.Workflows.Dir)
	}
	if cfg.Metrics.Addr != "127.0.0.1:9100" {
		t.Errorf("unexpected metrics addr %q", cfg.Metrics.Addr)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected json format, got %q", cfg.Log.Format)
	}
	traces := cfg.Telemetry.Traces
	if traces.Exporter != TraceExporterOTLP || traces.Endpoint != "collector:4317" || !traces.Insecure {
		t.Errorf("unexpected traces config: %+v", traces)
	}
}

func TestLoad_IgnoresUnparseableEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("STEPFLOW_MAX_EXECUTIONS", "many")
	t.Setenv("STEPFLOW_STEP_TIMEOUT", "soon")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.MaxExecutions != 0 || cfg.Engine.StepTimeout != 0 {
		t.Errorf("unparseable values should be ignored, got %+v", cfg.Engine)
	}
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		var cfgErr *stepflowerrors.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("expected ConfigError, got %v", err)
		}
		if cfgErr.Key != "config_file" {
			t.Errorf("expected key config_file, got %q", cfgErr.Key)
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte("log: [unclosed"), 0o600); err != nil {
			t.Fatal(err)
		}
		_, err := Load(path)
		var cfgErr *stepflowerrors.ConfigError
		if !errors.As(err, &cfgErr) || cfgErr.Key != "config_file" {
			t.Fatalf("expected config_file ConfigError, got %v", err)
		}
	})

	t.Run("validation failure", func(t *testing.T) {
		t.Setenv("STEPFLOW_BACKEND", "cassandra")
		_, err := Load("")
		var cfgErr *stepflowerrors.ConfigError
		if !errors.As(err, &cfgErr) || cfgErr.Key != "validation" {
			t.Fatalf("expected validation ConfigError, got %v", err)
		}
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected wrapped ErrInvalidConfig, got %v", err)
		}
	})
}

func TestConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	dir, err := ConfigDir()
	if err != nil {
		t.Fatal(err)
	}
	if dir != "/custom/config/stepflow" {
		t.Errorf("unexpected dir %q", dir)
	}

	path, err := ConfigPath()
	if err != nil {
		t.Fatal(err)
	}
	if path != "/custom/config/stepflow/config.yaml" {
		t.Errorf("unexpected path %q", path)
	}
}

func TestResolvePath(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)

	if got := ResolvePath("/explicit.yaml"); got != "/explicit.yaml" {
		t.Errorf("explicit path should win, got %q", got)
	}
	if got := ResolvePath(""); got != "" {
		t.Errorf("missing default file should resolve to empty, got %q", got)
	}

	dir := filepath.Join(base, "stepflow")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(want, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := ResolvePath(""); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
