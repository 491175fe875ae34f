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
	"fmt"
	"path"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultInclude matches YAML workflow definitions at any depth.
var DefaultInclude = []string{"**/*.yaml", "**/*.yml"}

// Matcher selects workflow definition files by include and exclude glob
// patterns. Patterns use doublestar syntax and are matched against the
// slash-separated path relative to the watched directory, then against the
// base name.
type Matcher struct {
	include []string
	exclude []string
}

// NewMatcher validates the patterns and returns a matcher. An empty include
// list selects DefaultInclude. Editor and system temporary files are always
// excluded.
func NewMatcher(include, exclude []string) (*Matcher, error) {
	if len(include) == 0 {
		include = DefaultInclude
	}
	for _, p := range include {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid include pattern %q", p)
		}
	}
	for _, p := range exclude {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
	}

	return &Matcher{
		include: append([]string(nil), include...),
		exclude: append(append([]string(nil), exclude...), DefaultExcludePatterns()...),
	}, nil
}

// Include returns the include patterns.
func (m *Matcher) Include() []string {
	return m.include
}

// Match reports whether rel, a path relative to the watched directory,
// names a workflow definition.
func (m *Matcher) Match(rel string) bool {
	rel = filepath.ToSlash(rel)

	included := false
	for _, p := range m.include {
		if matchPattern(p, rel) {
			included = true
			break
		}
	}
	if !included {
		return false
	}

	for _, p := range m.exclude {
		if matchPattern(p, rel) {
			return false
		}
	}
	return true
}

func matchPattern(pattern, rel string) bool {
	if ok, _ := doublestar.Match(pattern, rel); ok {
		return true
	}
	ok, _ := doublestar.Match(pattern, path.Base(rel))
	return ok
}

// DefaultExcludePatterns returns editor swap files and other files that
// are never workflow definitions.
func DefaultExcludePatterns() []string {
	return []string{
		// Vim
		"*.swp",
		"*.swo",
		".*.sw?",
		// Emacs
		"*~",
		"#*#",
		".#*",
		".DS_Store",
		"**/.git/**",
		"*.tmp",
	}
}
