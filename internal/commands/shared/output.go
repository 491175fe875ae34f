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
	"strings"
	"text/tabwriter"
	"time"

	"github.com/tombee/stepflow/pkg/workflow"
)

// ExecutionView is the JSON shape of an execution with its steps.
type ExecutionView struct {
	JSONResponse
	Execution *workflow.Execution  `json:"execution"`
	Steps     []*workflow.StepState `json:"steps,omitempty"`
}

// PrintExecution writes a human-readable summary of an execution and its
// steps in declaration order.
func PrintExecution(w io.Writer, exec *workflow.Execution, steps []*workflow.StepState) {
	fmt.Fprintf(w, "%s %s\n", Header.Render("Execution"), exec.ID)
	fmt.Fprintf(w, "  %s %s\n", RenderLabel("workflow:"), exec.WorkflowID)
	fmt.Fprintf(w, "  %s %s\n", RenderLabel("status:  "), RenderExecutionStatus(exec.Status))
	fmt.Fprintf(w, "  %s %d/%d\n", RenderLabel("steps:   "), exec.StepsCompleted, exec.TotalSteps)
	if exec.StartedAt != nil {
		fmt.Fprintf(w, "  %s %s\n", RenderLabel("started: "), exec.StartedAt.Format(time.RFC3339))
	}
	if exec.StartedAt != nil && exec.CompletedAt != nil {
		fmt.Fprintf(w, "  %s %s\n", RenderLabel("duration:"), exec.CompletedAt.Sub(*exec.StartedAt).Round(time.Millisecond))
	}
	if exec.ReplayOf != "" {
		fmt.Fprintf(w, "  %s %s\n", RenderLabel("replay of:"), exec.ReplayOf)
	}
	if exec.Error != "" {
		fmt.Fprintf(w, "  %s %s\n", RenderLabel("error:   "), StatusError.Render(exec.Error))
	}

	if len(steps) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, st := range steps {
		deps := ""
		if len(st.DependsOn) > 0 {
			deps = Muted.Render("after " + strings.Join(st.DependsOn, ", "))
		}
		line := fmt.Sprintf("  %s\t%s\t%s\t%s", st.Name, RenderStepStatus(st.Status), Muted.Render(st.Executor), deps)
		if st.Error != "" {
			line += "\t" + StatusError.Render(st.Error)
		}
		fmt.Fprintln(tw, line)
	}
	_ = tw.Flush()
}

// PrintExecutionTable writes one line per execution.
func PrintExecutionTable(w io.Writer, execs []*workflow.Execution) {
	if len(execs) == 0 {
		fmt.Fprintln(w, Muted.Render("No executions found"))
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWORKFLOW\tSTATUS\tSTEPS\tSTARTED\tREPLAY OF")
	for _, e := range execs {
		started := "-"
		if e.StartedAt != nil {
			started = e.StartedAt.Format(time.RFC3339)
		}
		replayOf := "-"
		if e.ReplayOf != "" {
			replayOf = e.ReplayOf
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			e.ID, e.WorkflowID, RenderExecutionStatus(e.Status), e.StepsCompleted, e.TotalSteps, started, replayOf)
	}
	_ = tw.Flush()
}
