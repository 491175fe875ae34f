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
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tombee/stepflow/internal/log"
	"github.com/tombee/stepflow/pkg/workflow"
)

// Registrar stores workflow definitions. *runner.Runner satisfies it.
type Registrar interface {
	CreateWorkflow(ctx context.Context, def *workflow.Definition) (string, error)
}

// ReloaderConfig configures a Reloader.
type ReloaderConfig struct {
	// Dir is the directory holding workflow definitions
	Dir string

	// Include and Exclude are doublestar patterns relative to Dir. An empty
	// Include selects DefaultInclude.
	Include []string
	Exclude []string

	// Debounce is the settle window for file changes. Zero selects
	// DefaultDebounce.
	Debounce time.Duration

	// MaxReloadsPerMinute limits how often changed files are reloaded.
	// Zero means no limit.
	MaxReloadsPerMinute int

	// OnLoad is called after a changed definition has been stored. It is
	// not called for the initial load.
	OnLoad func(ctx context.Context, workflowID string)
}

// Reloader registers every definition in a directory and re-registers
// files as they change. Removing a file keeps its workflow registered so
// past executions stay replayable.
type Reloader struct {
	cfg       ReloaderConfig
	registrar Registrar
	matcher   *Matcher
	limiter   *rate.Limiter
	logger    *slog.Logger

	mu  sync.RWMutex
	ids map[string]string // relative path -> workflow ID
}

// NewReloader creates a Reloader. Invalid patterns are rejected.
func NewReloader(cfg ReloaderConfig, registrar Registrar, logger *slog.Logger) (*Reloader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m, err := NewMatcher(cfg.Include, cfg.Exclude)
	if err != nil {
		return nil, err
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = DefaultDebounce
	}

	r := &Reloader{
		cfg:       cfg,
		registrar: registrar,
		matcher:   m,
		logger:    log.WithComponent(logger, "reloader"),
		ids:       make(map[string]string),
	}
	if cfg.MaxReloadsPerMinute > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(float64(cfg.MaxReloadsPerMinute)/60.0), cfg.MaxReloadsPerMinute)
	}
	return r, nil
}

// LoadAll registers every definition in the directory and returns how many
// were stored. Files that fail to load are logged and skipped.
func (r *Reloader) LoadAll(ctx context.Context) (int, error) {
	loaded, failed, err := LoadDir(r.cfg.Dir, r.matcher)
	if err != nil {
		return 0, err
	}
	for _, lerr := range failed {
		recordReload("error")
		r.logger.Warn("skipping invalid workflow definition", slog.String("path", lerr.Path), log.Error(lerr.Err))
	}

	stored := 0
	for _, l := range loaded {
		if _, err := r.register(ctx, l.Path, l.Definition); err != nil {
			continue
		}
		stored++
	}
	r.logger.Info("workflow definitions loaded",
		slog.String("dir", r.cfg.Dir),
		slog.Int("loaded", stored),
		slog.Int("failed", len(loaded)-stored+len(failed)))
	return stored, nil
}

// Run loads the directory and then applies changes until ctx is done.
func (r *Reloader) Run(ctx context.Context) error {
	if _, err := r.LoadAll(ctx); err != nil {
		return err
	}

	w, err := NewWatcher(r.cfg.Dir, r.matcher, r.cfg.Debounce, r.logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Run(ctx)
	}()

	for c := range w.Changes() {
		r.Apply(ctx, c)
	}
	return <-errCh
}

// Apply handles one settled change and returns the workflow ID it
// affected, or "" when nothing was stored.
func (r *Reloader) Apply(ctx context.Context, c Change) string {
	if c.Op == OpRemoved {
		r.mu.Lock()
		id, ok := r.ids[c.Path]
		delete(r.ids, c.Path)
		r.mu.Unlock()
		if ok {
			r.logger.Info("workflow definition removed, workflow stays registered",
				slog.String("path", c.Path),
				slog.String(log.WorkflowIDKey, id))
		}
		return ""
	}

	if r.limiter != nil && !r.limiter.Allow() {
		recordRateLimited()
		r.logger.Warn("reload rate limit exceeded, change skipped", slog.String("path", c.Path))
		return ""
	}

	def, err := LoadFile(r.cfg.Dir, c.Path)
	if err != nil {
		recordReload("error")
		r.logger.Warn("failed to reload workflow definition", slog.String("path", c.Path), log.Error(err))
		return ""
	}
	id, err := r.register(ctx, c.Path, def)
	if err != nil {
		return ""
	}
	r.logger.Info("workflow definition reloaded",
		slog.String("path", c.Path),
		slog.String(log.WorkflowIDKey, id))

	if r.cfg.OnLoad != nil {
		r.cfg.OnLoad(ctx, id)
	}
	return id
}

func (r *Reloader) register(ctx context.Context, rel string, def *workflow.Definition) (string, error) {
	id, err := r.registrar.CreateWorkflow(ctx, def)
	if err != nil {
		recordReload("error")
		r.logger.Warn("failed to register workflow", slog.String("path", rel), log.Error(err))
		return "", err
	}
	recordReload("ok")

	r.mu.Lock()
	r.ids[rel] = id
	r.mu.Unlock()
	return id, nil
}

// Workflows returns the workflow IDs currently backed by a file, sorted.
func (r *Reloader) Workflows() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.ids))
	for _, id := range r.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
