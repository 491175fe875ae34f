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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tombee/stepflow/internal/config"
	internallog "github.com/tombee/stepflow/internal/log"
)

// WatchOptions configures the long-running watch mode.
type WatchOptions struct {
	Version string

	// Dir overrides the configured workflows directory.
	Dir string

	// MetricsAddr overrides the configured metrics address.
	MetricsAddr string

	// RunOnChange executes each workflow after it is reloaded.
	RunOnChange bool

	// Logger overrides the logger built from configuration.
	Logger *slog.Logger
}

// Watch registers the workflows in a directory, keeps them current and
// serves metrics until ctx is done or SIGINT/SIGTERM arrives, then shuts
// down gracefully.
func Watch(ctx context.Context, cfg *config.Config, opts WatchOptions) error {
	if opts.Dir != "" {
		cfg.Workflows.Dir = opts.Dir
	}
	if opts.MetricsAddr != "" {
		cfg.Metrics.Addr = opts.MetricsAddr
	}
	if cfg.Workflows.Dir == "" {
		return fmt.Errorf("no workflows directory: set workflows.dir or pass a directory")
	}

	c, err := New(ctx, cfg, Options{Version: opts.Version, Logger: opts.Logger})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Addr != "" {
		if _, err := c.StartMetricsServer(cfg.Metrics.Addr); err != nil {
			_ = c.Shutdown(context.Background())
			return err
		}
	}

	reloader, err := c.NewReloader(cfg.Workflows.Dir, opts.RunOnChange)
	if err != nil {
		_ = c.Shutdown(context.Background())
		return err
	}

	runErr := reloader.Run(ctx)
	if runErr != nil {
		c.logger.Error("watch stopped", internallog.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Engine.ShutdownTimeout+cfg.Engine.ShutdownTimeout/2)
	defer cancel()
	if err := c.Shutdown(shutdownCtx); err != nil {
		c.logger.Error("error during shutdown", internallog.Error(err))
		if runErr == nil {
			runErr = fmt.Errorf("shutdown error: %w", err)
		}
	}
	return runErr
}
