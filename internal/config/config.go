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

// Package config loads stepflow configuration from YAML with environment
// variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	stepflowerrors "github.com/tombee/stepflow/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Backend types
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Config represents the complete stepflow configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Backend   BackendConfig   `yaml:"backend"`
	Engine    EngineConfig    `yaml:"engine"`
	Workflows WorkflowsConfig `yaml:"workflows"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is json or text.
	Format string `yaml:"format"`

	// AddSource adds file and line to log entries.
	AddSource bool `yaml:"add_source"`
}

// BackendConfig configures the persistence gateway.
type BackendConfig struct {
	// Type is the backend type: "memory", "sqlite" or "postgres".
	// Environment: STEPFLOW_BACKEND
	Type string `yaml:"type,omitempty"`

	// SQLite contains SQLite-specific configuration.
	SQLite SQLiteConfig `yaml:"sqlite,omitempty"`

	// Postgres contains PostgreSQL-specific configuration.
	Postgres PostgresConfig `yaml:"postgres,omitempty"`
}

// SQLiteConfig contains SQLite settings.
type SQLiteConfig struct {
	// Path is the database file. Environment: STEPFLOW_SQLITE_PATH
	Path string `yaml:"path,omitempty"`

	// WAL enables write-ahead logging.
	WAL bool `yaml:"wal"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	// ConnectionString is the PostgreSQL connection URL.
	// Environment: STEPFLOW_POSTGRES_URL
	ConnectionString string `yaml:"connection_string,omitempty"`

	// MaxConns caps the connection pool size.
	MaxConns int `yaml:"max_conns,omitempty"`

	// ConnMaxLifetime sets the maximum lifetime of a connection.
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime,omitempty"`
}

// EngineConfig configures the workflow runner.
type EngineConfig struct {
	// MaxExecutions is the global retention bound. 0 disables pruning.
	// Environment: STEPFLOW_MAX_EXECUTIONS
	MaxExecutions int `yaml:"max_executions"`

	// StepTimeout bounds each step executor call. 0 means no timeout.
	// Environment: STEPFLOW_STEP_TIMEOUT
	StepTimeout time.Duration `yaml:"step_timeout,omitempty"`

	// ShutdownTimeout is how long Stop waits for running executions.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// WorkflowsConfig configures where workflow definitions are loaded from.
type WorkflowsConfig struct {
	// Dir is the directory scanned for definitions.
	// Environment: STEPFLOW_WORKFLOWS_DIR
	Dir string `yaml:"dir,omitempty"`

	// Include patterns (doublestar) relative to Dir.
	Include []string `yaml:"include,omitempty"`

	// Exclude patterns (doublestar) relative to Dir.
	Exclude []string `yaml:"exclude,omitempty"`

	// Debounce is the settle window for file changes while watching.
	Debounce time.Duration `yaml:"debounce,omitempty"`

	// MaxReloadsPerMinute limits reloads while watching. 0 means no limit.
	MaxReloadsPerMinute int `yaml:"max_reloads_per_minute,omitempty"`
}

// MetricsConfig configures the metrics endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables it.
	// Environment: STEPFLOW_METRICS_ADDR
	Addr string `yaml:"addr,omitempty"`
}

// Trace exporter kinds accepted by telemetry.traces.exporter.
const (
	TraceExporterNone     = "none"
	TraceExporterConsole  = "console"
	TraceExporterOTLP     = "otlp"
	TraceExporterOTLPHTTP = "otlp-http"
)

// TelemetryConfig configures span export.
type TelemetryConfig struct {
	Traces TracesConfig `yaml:"traces"`
}

// TracesConfig selects the span exporter.
type TracesConfig struct {
	// Exporter is none, console, otlp or otlp-http.
	// Environment: STEPFLOW_TRACES_EXPORTER
	Exporter string `yaml:"exporter,omitempty"`

	// Endpoint is host:port of the OTLP collector.
	// Environment: STEPFLOW_TRACES_ENDPOINT
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure disables TLS to the collector.
	// Environment: STEPFLOW_TRACES_INSECURE
	Insecure bool `yaml:"insecure,omitempty"`

	// Headers are added to every OTLP request.
	Headers map[string]string `yaml:"headers,omitempty"`

	// SampleRate is the fraction of executions traced. 0 means all.
	SampleRate float64 `yaml:"sample_rate,omitempty"`
}

// Default returns a configuration with default values.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from configPath (optional), applies defaults and
// environment overrides, then validates.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &stepflowerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	// Apply defaults to any zero values (handles minimal configs)
	cfg.applyDefaults()

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &stepflowerrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Backend.Type == "" {
		c.Backend.Type = BackendMemory
	}
	if c.Backend.SQLite.Path == "" {
		c.Backend.SQLite.Path = filepath.Join(defaultDataDir(), "stepflow.db")
	}
	if c.Engine.ShutdownTimeout == 0 {
		c.Engine.ShutdownTimeout = 30 * time.Second
	}
	if c.Telemetry.Traces.Exporter == "" {
		c.Telemetry.Traces.Exporter = TraceExporterNone
	}
	if len(c.Workflows.Include) == 0 {
		c.Workflows.Include = []string{"**/*.yaml", "**/*.yml"}
	}
}

func (c *Config) loadFromFile(path string) error {
	path = expandHome(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
// Unparseable numeric values are ignored.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || strings.ToLower(val) == "true"
	}

	if val := os.Getenv("STEPFLOW_BACKEND"); val != "" {
		c.Backend.Type = strings.ToLower(val)
	}
	if val := os.Getenv("STEPFLOW_SQLITE_PATH"); val != "" {
		c.Backend.SQLite.Path = val
	}
	if val := os.Getenv("STEPFLOW_POSTGRES_URL"); val != "" {
		c.Backend.Postgres.ConnectionString = val
	}

	if val := os.Getenv("STEPFLOW_MAX_EXECUTIONS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Engine.MaxExecutions = n
		}
	}
	if val := os.Getenv("STEPFLOW_STEP_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Engine.StepTimeout = d
		}
	}

	if val := os.Getenv("STEPFLOW_WORKFLOWS_DIR"); val != "" {
		c.Workflows.Dir = val
	}
	if val := os.Getenv("STEPFLOW_METRICS_ADDR"); val != "" {
		c.Metrics.Addr = val
	}

	if val := os.Getenv("STEPFLOW_TRACES_EXPORTER"); val != "" {
		c.Telemetry.Traces.Exporter = strings.ToLower(val)
	}
	if val := os.Getenv("STEPFLOW_TRACES_ENDPOINT"); val != "" {
		c.Telemetry.Traces.Endpoint = val
	}
	if val := os.Getenv("STEPFLOW_TRACES_INSECURE"); val != "" {
		c.Telemetry.Traces.Insecure = val == "1" || strings.ToLower(val) == "true"
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []string

	switch c.Backend.Type {
	case BackendMemory:
	case BackendSQLite:
		if c.Backend.SQLite.Path == "" {
			errs = append(errs, "backend.sqlite.path is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.Backend.Postgres.ConnectionString == "" {
			errs = append(errs, "backend.postgres.connection_string is required for the postgres backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("backend.type %q is not one of memory, sqlite, postgres", c.Backend.Type))
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q must be json or text", c.Log.Format))
	}

	if c.Engine.MaxExecutions < 0 {
		errs = append(errs, "engine.max_executions cannot be negative")
	}
	if c.Engine.StepTimeout < 0 {
		errs = append(errs, "engine.step_timeout cannot be negative")
	}
	if c.Workflows.Debounce < 0 {
		errs = append(errs, "workflows.debounce cannot be negative")
	}
	if c.Workflows.MaxReloadsPerMinute < 0 {
		errs = append(errs, "workflows.max_reloads_per_minute cannot be negative")
	}

	switch c.Telemetry.Traces.Exporter {
	case TraceExporterNone, TraceExporterConsole:
	case TraceExporterOTLP, TraceExporterOTLPHTTP:
		if c.Telemetry.Traces.Endpoint == "" {
			errs = append(errs, fmt.Sprintf("telemetry.traces.endpoint is required for the %s exporter", c.Telemetry.Traces.Exporter))
		}
	default:
		errs = append(errs, fmt.Sprintf("telemetry.traces.exporter %q is not one of none, console, otlp, otlp-http", c.Telemetry.Traces.Exporter))
	}
	if c.Telemetry.Traces.SampleRate < 0 || c.Telemetry.Traces.SampleRate > 1 {
		errs = append(errs, "telemetry.traces.sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "stepflow")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "stepflow")
}
