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

package shared

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/tombee/stepflow/internal/config"
	"github.com/tombee/stepflow/internal/controller"
	internallog "github.com/tombee/stepflow/internal/log"
	pkgerrors "github.com/tombee/stepflow/pkg/errors"
)

// LoadConfig loads the configuration selected by --config, or the default
// path when it exists. --verbose and --quiet adjust the log level.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.ResolvePath(GetConfigPath()))
	if err != nil {
		return nil, NewInvalidInputError("failed to load config", err)
	}
	switch {
	case GetVerbose():
		cfg.Log.Level = "debug"
	case GetQuiet():
		cfg.Log.Level = "error"
	}
	return cfg, nil
}

// NewLogger builds the CLI logger. Logs go to stderr so stdout stays
// parseable.
func NewLogger(cfg *config.Config) *slog.Logger {
	return internallog.New(&internallog.Config{
		Level:     cfg.Log.Level,
		Format:    internallog.Format(cfg.Log.Format),
		Output:    os.Stderr,
		AddSource: cfg.Log.AddSource,
	})
}

// OpenController loads configuration and assembles a controller. The
// caller must call Shutdown.
func OpenController(ctx context.Context) (*controller.Controller, *config.Config, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	v, _, _ := GetVersion()
	c, err := controller.New(ctx, cfg, controller.Options{
		Version: v,
		Logger:  NewLogger(cfg),
	})
	if err != nil {
		return nil, nil, NewExecutionError("failed to start engine", err)
	}
	return c, cfg, nil
}

// errorType returns the classification of the first ErrorClassifier in
// err's chain.
func errorType(err error) string {
	var classifier pkgerrors.ErrorClassifier
	if errors.As(err, &classifier) {
		return classifier.ErrorType()
	}
	return ""
}
