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
	"fmt"
	"io"
	"sync"

	"github.com/tombee/stepflow/internal/controller/runner"
	"github.com/tombee/stepflow/pkg/workflow"
)

// Progress prints step events of one execution as they arrive.
type Progress struct {
	w    io.Writer
	done chan struct{}
	wg   sync.WaitGroup
}

// StartProgress prints events from ch until Stop is called or ch has
// delivered the execution's terminal event.
func StartProgress(w io.Writer, ch <-chan runner.StepEvent) *Progress {
	p := &Progress{w: w, done: make(chan struct{})}
	p.wg.Add(1)
	go p.loop(ch)
	return p
}

func (p *Progress) loop(ch <-chan runner.StepEvent) {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			p.drain(ch)
			return
		case ev, ok := <-ch:
			if !ok || p.handle(ev) {
				return
			}
		}
	}
}

// drain prints events already buffered when Stop was called.
func (p *Progress) drain(ch <-chan runner.StepEvent) {
	for {
		select {
		case ev, ok := <-ch:
			if !ok || p.handle(ev) {
				return
			}
		default:
			return
		}
	}
}

// handle prints ev and reports whether it ended the execution.
func (p *Progress) handle(ev runner.StepEvent) bool {
	if ev.Kind == runner.EventExecution {
		return workflow.ExecutionStatus(ev.Status).IsTerminal()
	}
	p.print(ev)
	return false
}

func (p *Progress) print(ev runner.StepEvent) {
	status := workflow.StepStatus(ev.Status)
	switch status {
	case workflow.StepReady, workflow.StepPending:
		// Only starts and outcomes are interesting
		return
	}
	line := fmt.Sprintf("  %s %s", RenderStepStatus(status), ev.Step)
	if ev.Error != "" {
		line += " " + Muted.Render(ev.Error)
	}
	fmt.Fprintln(p.w, line)
}

// Stop ends printing and waits for the printer to exit.
func (p *Progress) Stop() {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
	p.wg.Wait()
}
