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
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tombee/stepflow/internal/config"
	pkgerrors "github.com/tombee/stepflow/pkg/errors"
)

// Exit codes
const (
	ExitSuccess         = 0
	ExitExecutionFailed = 1
	ExitInvalidInput    = 2
	ExitNotFound        = 3
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewExecutionError creates an error for a workflow execution that did not
// succeed.
func NewExecutionError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitExecutionFailed, Message: msg, Cause: cause}
}

// NewInvalidInputError creates an error for invalid workflow files,
// arguments or configuration.
func NewInvalidInputError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitInvalidInput, Message: msg, Cause: cause}
}

// NewNotFoundError creates an error for missing or non-replayable
// executions and workflows.
func NewNotFoundError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitNotFound, Message: msg, Cause: cause}
}

// Classify wraps err in an ExitError chosen by its type. ExitErrors are
// returned unchanged.
func Classify(msg string, err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return &ExitError{Code: ExitCodeFor(err), Message: msg, Cause: err}
}

// ExitCodeFor maps an error to an exit code.
func ExitCodeFor(err error) int {
	var (
		exitErr       *ExitError
		notFound      *pkgerrors.NotFoundError
		notReplayable *pkgerrors.NotReplayableError
		validation    *pkgerrors.ValidationError
		unknownDep    *pkgerrors.UnknownDependencyError
		cycle         *pkgerrors.CycleDetectedError
		configErr     *pkgerrors.ConfigError
	)
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.As(err, &notFound), errors.As(err, &notReplayable):
		return ExitNotFound
	case errors.As(err, &validation), errors.As(err, &unknownDep), errors.As(err, &cycle),
		errors.As(err, &configErr), errors.Is(err, config.ErrInvalidConfig):
		return ExitInvalidInput
	default:
		return ExitExecutionFailed
	}
}

// HandleExitError prints err and exits with its code.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	printError(os.Stderr, err)
	os.Exit(ExitCodeFor(err))
}

func printError(w io.Writer, err error) {
	fmt.Fprintln(w, RenderError(err.Error()))

	// Walk the chain for a suggestion
	for e := err; e != nil; e = errors.Unwrap(e) {
		if userErr, ok := e.(pkgerrors.UserVisibleError); ok {
			if userErr.IsUserVisible() && userErr.Suggestion() != "" {
				fmt.Fprintf(w, "\nSuggestion: %s\n", userErr.Suggestion())
			}
			return
		}
	}
}
