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
	"sync"
	"time"
)

// Debouncer coalesces rapid changes to the same path. A path is flushed once
// no further change has been seen for the window, carrying the latest
// change. Editors commonly write a file several times per save.
type Debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	pending map[string]*pendingChange
	onFlush func(Change)
	stopped bool
}

type pendingChange struct {
	timer  *time.Timer
	change Change
}

// NewDebouncer creates a debouncer that calls onFlush for each settled path.
// A zero window flushes every change immediately.
func NewDebouncer(window time.Duration, onFlush func(Change)) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]*pendingChange),
		onFlush: onFlush,
	}
}

// Add records a change, restarting the path's timer.
func (d *Debouncer) Add(c Change) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if d.window <= 0 {
		d.mu.Unlock()
		d.onFlush(c)
		return
	}

	p, ok := d.pending[c.Path]
	if ok {
		p.timer.Stop()
		p.change = c
	} else {
		p = &pendingChange{change: c}
		d.pending[c.Path] = p
	}
	path := c.Path
	p.timer = time.AfterFunc(d.window, func() {
		d.flush(path)
	})
	d.mu.Unlock()
}

func (d *Debouncer) flush(path string) {
	d.mu.Lock()
	p, ok := d.pending[path]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.pending, path)
	d.mu.Unlock()

	// Outside the lock so onFlush may call Add
	d.onFlush(p.change)
}

// Stop cancels the timers and flushes every pending change. Later calls
// to Add are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true

	changes := make([]Change, 0, len(d.pending))
	for path, p := range d.pending {
		p.timer.Stop()
		changes = append(changes, p.change)
		delete(d.pending, path)
	}
	d.mu.Unlock()

	for _, c := range changes {
		d.onFlush(c)
	}
}

// Pending returns the number of paths waiting to settle.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
