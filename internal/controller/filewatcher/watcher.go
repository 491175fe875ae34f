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

// Package filewatcher loads workflow definitions from a directory and keeps
// them current as files change.
package filewatcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tombee/stepflow/internal/log"
)

// Op is the kind of change seen for a definition file.
type Op string

const (
	// OpChanged covers created, written and renamed-into files
	OpChanged Op = "changed"
	// OpRemoved covers deleted and renamed-away files
	OpRemoved Op = "removed"
)

// Change is a settled change to one definition file.
type Change struct {
	// Path is the slash-separated path relative to the watched directory
	Path string
	Op   Op
}

// DefaultDebounce is the settle window used when none is configured.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reports changes to definition files under a directory tree.
// fsnotify watches are not recursive, so every subdirectory is added at
// start and as it is created.
type Watcher struct {
	dir       string
	matcher   *Matcher
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	logger    *slog.Logger

	mu      sync.Mutex // Guards changes against sends after close
	changes chan Change
	closed  bool
}

// NewWatcher starts watching dir. Changes are debounced over window.
func NewWatcher(dir string, m *Matcher, window time.Duration, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		dir:     abs,
		matcher: m,
		fsw:     fsw,
		changes: make(chan Change, 100),
		logger:  log.WithComponent(logger, "filewatcher").With(slog.String("dir", abs)),
	}
	w.debouncer = NewDebouncer(window, w.emit)

	if err := w.addTree(abs); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Changes returns the channel of settled changes. It is closed when Run
// returns.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Run processes filesystem events until ctx is done, then releases the
// watch. Pending changes are flushed before the channel closes.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.close()
	defer w.fsw.Close()
	defer w.debouncer.Stop()

	w.logger.Info("watching workflow definitions")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("file watcher stopped")
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("fsnotify event channel closed")
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("fsnotify error channel closed")
			}
			w.logger.Error("file watcher error", log.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	// New directories may already hold definitions
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", slog.String("path", event.Name), log.Error(err))
			}
			return
		}
	}

	rel, err := filepath.Rel(w.dir, event.Name)
	if err != nil || !w.matcher.Match(rel) {
		return
	}

	var op Op
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpRemoved
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		op = OpChanged
	default:
		// Chmod only
		return
	}

	recordEvent(op)
	w.debouncer.Add(Change{Path: filepath.ToSlash(rel), Op: op})
}

// emit delivers a settled change. A full channel drops it.
func (w *Watcher) emit(c Change) {
	// A rename may be followed by a create of the same path
	if c.Op == OpRemoved {
		if _, err := os.Stat(filepath.Join(w.dir, filepath.FromSlash(c.Path))); err == nil {
			c.Op = OpChanged
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.changes <- c:
		log.Trace(w.logger, "definition changed", slog.String("path", c.Path), slog.String("op", string(c.Op)))
	default:
		w.logger.Warn("change channel full, dropping change", slog.String("path", c.Path))
	}
}

func (w *Watcher) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	close(w.changes)
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		return nil
	})
}
