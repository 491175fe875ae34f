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

package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tombee/stepflow/internal/config"
	"github.com/tombee/stepflow/internal/controller/backend"
	"github.com/tombee/stepflow/internal/controller/backend/memory"
	"github.com/tombee/stepflow/internal/controller/backend/postgres"
	"github.com/tombee/stepflow/internal/controller/backend/sqlite"
	"github.com/tombee/stepflow/internal/controller/filewatcher"
	"github.com/tombee/stepflow/internal/controller/runner"
	internallog "github.com/tombee/stepflow/internal/log"
	"github.com/tombee/stepflow/internal/tracing"
	"github.com/tombee/stepflow/internal/tracing/export"
	stepflowerrors "github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/executor"
)

// Options contains controller options set at build time.
type Options struct {
	Version string

	// Logger overrides the logger built from the log configuration.
	Logger *slog.Logger

	// Executors replaces the built-in executor registry.
	Executors *executor.Registry

	// Registry receives exported metrics. Nil serves a private registry
	// together with the default Prometheus gatherer.
	Registry *prometheus.Registry
}

// Controller is the assembled engine.
type Controller struct {
	cfg       *config.Config
	opts      Options
	logger    *slog.Logger
	gateway   backend.Gateway
	telemetry *tracing.Provider
	runner    *runner.Runner

	mu            sync.Mutex
	metricsServer *http.Server
	metricsLn     net.Listener
	stopped       bool
}

// OpenGateway connects the persistence gateway selected by cfg.
func OpenGateway(ctx context.Context, cfg config.BackendConfig, logger *slog.Logger) (backend.Gateway, error) {
	switch cfg.Type {
	case config.BackendSQLite:
		gw, err := sqlite.New(sqlite.Config{
			Path: cfg.SQLite.Path,
			WAL:  cfg.SQLite.WAL,
		})
		if err != nil {
			return nil, stepflowerrors.Wrap(err, "failed to create sqlite backend")
		}
		return gw, nil
	case config.BackendPostgres:
		gw, err := postgres.New(ctx, postgres.Config{
			ConnectionString: cfg.Postgres.ConnectionString,
			MaxConns:         int32(cfg.Postgres.MaxConns),
			ConnMaxLifetime:  cfg.Postgres.ConnMaxLifetime,
			Logger:           logger,
		})
		if err != nil {
			return nil, stepflowerrors.Wrap(err, "failed to create postgres backend")
		}
		return gw, nil
	case config.BackendMemory, "":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Type)
	}
}

// New creates a controller from cfg.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Controller, error) {
	logger := opts.Logger
	if logger == nil {
		logger = internallog.New(&internallog.Config{
			Level:     cfg.Log.Level,
			Format:    internallog.Format(cfg.Log.Format),
			AddSource: cfg.Log.AddSource,
		})
	}
	logger = internallog.WithComponent(logger, "controller")

	gw, err := OpenGateway(ctx, cfg.Backend, logger)
	if err != nil {
		return nil, err
	}

	traces := cfg.Telemetry.Traces
	telemetry, err := tracing.NewProvider(tracing.Config{
		ServiceName:    "stepflow",
		ServiceVersion: opts.Version,
		SampleRate:     traces.SampleRate,
		Registry:       opts.Registry,
		Traces: export.Config{
			Exporter: traces.Exporter,
			Endpoint: traces.Endpoint,
			Insecure: traces.Insecure,
			Headers:  traces.Headers,
		},
	})
	if err != nil {
		_ = gw.Close()
		return nil, fmt.Errorf("failed to create telemetry provider: %w", err)
	}

	r := runner.New(runner.Config{
		MaxExecutions: cfg.Engine.MaxExecutions,
		StepTimeout:   cfg.Engine.StepTimeout,
	}, gw, nil, opts.Executors,
		runner.WithLogger(logger),
		runner.WithWorkflowTracer(telemetry.Tracer("stepflow/runner")),
		runner.WithMetrics(telemetry.MetricsCollector()),
	)

	logger.Debug("controller created",
		slog.String("backend", cfg.Backend.Type),
		slog.Int("max_executions", cfg.Engine.MaxExecutions),
		slog.Duration("step_timeout", cfg.Engine.StepTimeout))

	return &Controller{
		cfg:       cfg,
		opts:      opts,
		logger:    logger,
		gateway:   gw,
		telemetry: telemetry,
		runner:    r,
	}, nil
}

// Runner returns the workflow runner.
func (c *Controller) Runner() *runner.Runner {
	return c.runner
}

// Gateway returns the persistence gateway.
func (c *Controller) Gateway() backend.Gateway {
	return c.gateway
}

// MetricsHandler serves the Prometheus scrape endpoint.
func (c *Controller) MetricsHandler() http.Handler {
	return c.telemetry.MetricsHandler()
}

// NewReloader creates a reloader for dir registering into the runner.
// When runOnChange is set every reloaded workflow is executed.
func (c *Controller) NewReloader(dir string, runOnChange bool) (*filewatcher.Reloader, error) {
	cfg := filewatcher.ReloaderConfig{
		Dir:                 dir,
		Include:             c.cfg.Workflows.Include,
		Exclude:             c.cfg.Workflows.Exclude,
		Debounce:            c.cfg.Workflows.Debounce,
		MaxReloadsPerMinute: c.cfg.Workflows.MaxReloadsPerMinute,
	}
	if runOnChange {
		cfg.OnLoad = func(ctx context.Context, workflowID string) {
			snap, err := c.runner.Execute(ctx, workflowID)
			if err != nil {
				c.logger.Warn("failed to run reloaded workflow",
					slog.String(internallog.WorkflowIDKey, workflowID),
					internallog.Error(err))
				return
			}
			c.logger.Info("reloaded workflow started",
				slog.String(internallog.WorkflowIDKey, workflowID),
				slog.String(internallog.ExecutionIDKey, snap.ID))
		}
	}
	return filewatcher.NewReloader(cfg, c.runner, c.logger)
}

// StartMetricsServer serves /metrics on addr in the background and returns
// the bound address.
func (c *Controller) StartMetricsServer(addr string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.metricsServer != nil {
		return "", fmt.Errorf("metrics server already started")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if c.runner.IsDraining() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	c.metricsServer = srv
	c.metricsLn = ln

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("metrics server error", internallog.Error(err))
		}
	}()

	c.logger.Info("metrics server listening", slog.String("addr", ln.Addr().String()))
	return ln.Addr().String(), nil
}

// Shutdown drains running executions, then releases the metrics server,
// telemetry and the gateway. Executions still running when the shutdown
// timeout expires are cancelled.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil
	}
	c.stopped = true

	active := c.runner.ActiveCount()
	c.logger.Info("graceful shutdown initiated", slog.Int("active_executions", active))
	c.runner.StartDraining()

	drainTimeout := c.cfg.Engine.ShutdownTimeout
	if drainTimeout <= 0 {
		drainTimeout = 30 * time.Second
	}
	drainCtx, drainCancel := context.WithTimeout(ctx, drainTimeout)
	defer drainCancel()

	if err := c.runner.WaitForDrain(drainCtx); err != nil {
		c.logger.Warn("drain timeout exceeded",
			slog.Int("remaining_executions", c.runner.ActiveCount()),
			slog.Duration("drain_timeout", drainTimeout))
	}

	var errs []error
	if err := c.runner.Stop(ctx); err != nil {
		c.logger.Warn("runner stop timeout", internallog.Error(err))
		errs = append(errs, err)
	}

	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}

	if err := c.telemetry.Shutdown(ctx); err != nil {
		c.logger.Warn("telemetry shutdown error", internallog.Error(err))
	}

	if err := c.gateway.Close(); err != nil {
		errs = append(errs, fmt.Errorf("gateway: %w", err))
	}

	c.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
