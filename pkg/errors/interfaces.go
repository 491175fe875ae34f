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

package errors

// UserVisibleError is implemented by errors the CLI can explain to a person
// running stepflow: a short message and, where one exists, what to change.
type UserVisibleError interface {
	error

	// IsUserVisible is false for internal failures whose detail should only
	// reach the logs.
	IsUserVisible() bool

	// UserMessage is the one-line explanation printed by the CLI.
	UserMessage() string

	// Suggestion names the fix, or is empty.
	Suggestion() string
}

// ErrorClassifier lets callers bucket errors without type switches. The
// persistence error counter and the CLI error logging both read it.
type ErrorClassifier interface {
	error

	// ErrorType is a stable label such as "validation", "not_found" or
	// "deadlock".
	ErrorType() string

	// IsRetryable reports whether the same call may succeed later.
	IsRetryable() bool
}
