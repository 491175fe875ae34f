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
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/tombee/stepflow/pkg/workflow"
)

// CLI style colors using lipgloss
var (
	// StatusOK styles success indicators
	StatusOK = lipgloss.NewStyle().Foreground(lipgloss.Color("42")) // green

	// StatusWarn styles warning indicators
	StatusWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // orange

	// StatusError styles error indicators
	StatusError = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red

	// StatusInfo styles running and informational text
	StatusInfo = lipgloss.NewStyle().Foreground(lipgloss.Color("39")) // blue

	// Muted styles secondary text
	Muted = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray

	// Bold styles emphasized text
	Bold = lipgloss.NewStyle().Bold(true)

	// Header styles section headers
	Header = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
)

// Symbols for status indicators
const (
	SymbolOK      = "✓"
	SymbolWarn    = "⚠"
	SymbolError   = "✗"
	SymbolInfo    = "•"
	SymbolPending = "○"
	SymbolRunning = "▶"
)

// IsTerminal reports whether stdout is a terminal. Live progress is only
// drawn on terminals.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// RenderOK renders a success message with green checkmark
func RenderOK(msg string) string {
	return StatusOK.Render(SymbolOK) + " " + msg
}

// RenderWarn renders a warning message with orange symbol
func RenderWarn(msg string) string {
	return StatusWarn.Render(SymbolWarn) + " " + msg
}

// RenderError renders an error message with red X
func RenderError(msg string) string {
	return StatusError.Render(SymbolError) + " " + msg
}

// RenderLabel renders a dim label (for key: value pairs)
func RenderLabel(label string) string {
	return Muted.Render(label)
}

// RenderExecutionStatus colors an execution status.
func RenderExecutionStatus(s workflow.ExecutionStatus) string {
	switch s {
	case workflow.ExecutionSuccess:
		return StatusOK.Render(string(s))
	case workflow.ExecutionFailed:
		return StatusError.Render(string(s))
	case workflow.ExecutionCancelled:
		return StatusWarn.Render(string(s))
	case workflow.ExecutionRunning:
		return StatusInfo.Render(string(s))
	default:
		return Muted.Render(string(s))
	}
}

// RenderStepStatus renders a step status with its symbol.
func RenderStepStatus(s workflow.StepStatus) string {
	switch s {
	case workflow.StepSuccess:
		return StatusOK.Render(SymbolOK + " " + string(s))
	case workflow.StepFailed:
		return StatusError.Render(SymbolError + " " + string(s))
	case workflow.StepCancelled:
		return StatusWarn.Render(SymbolWarn + " " + string(s))
	case workflow.StepRunning:
		return StatusInfo.Render(SymbolRunning + " " + string(s))
	case workflow.StepReady:
		return StatusInfo.Render(SymbolInfo + " " + string(s))
	default:
		return Muted.Render(SymbolPending + " " + string(s))
	}
}
