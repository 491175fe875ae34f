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
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/tombee/stepflow/pkg/workflow"
)

// Loaded is a workflow definition read from a file.
type Loaded struct {
	// Path is the slash-separated path relative to the loaded directory
	Path       string
	Definition *workflow.Definition
}

// LoadError reports a definition file that could not be read or parsed.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// LoadDir reads every definition under dir selected by m, in lexical path
// order. Files that fail to parse are reported in the returned LoadErrors
// and do not stop the walk; the error result is set only when dir itself
// cannot be read.
func LoadDir(dir string, m *Matcher) ([]Loaded, []*LoadError, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("workflows directory: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("workflows directory: %s is not a directory", dir)
	}

	fsys := os.DirFS(dir)
	seen := make(map[string]bool)
	var paths []string
	for _, pattern := range m.Include() {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, p := range matches {
			if !seen[p] && m.Match(p) {
				seen[p] = true
				paths = append(paths, p)
			}
		}
	}
	sort.Strings(paths)

	var loaded []Loaded
	var failed []*LoadError
	for _, rel := range paths {
		def, err := loadFile(fsys, rel)
		if err != nil {
			failed = append(failed, &LoadError{Path: rel, Err: err})
			continue
		}
		loaded = append(loaded, Loaded{Path: rel, Definition: def})
	}
	return loaded, failed, nil
}

// LoadFile reads one definition. rel is the path relative to dir and
// supplies the workflow ID when the file does not set one.
func LoadFile(dir, rel string) (*workflow.Definition, error) {
	return loadFile(os.DirFS(dir), filepath.ToSlash(rel))
}

func loadFile(fsys fs.FS, rel string) (*workflow.Definition, error) {
	data, err := fs.ReadFile(fsys, rel)
	if err != nil {
		return nil, err
	}
	def, err := workflow.ParseDefinition(data)
	if err != nil {
		return nil, err
	}
	if def.ID == "" {
		def.ID = WorkflowID(rel)
	}
	return def, nil
}

// WorkflowID derives a stable workflow ID from a definition's relative
// path: the path without its extension, so "deploy/build.yaml" becomes
// "deploy/build".
func WorkflowID(rel string) string {
	rel = filepath.ToSlash(rel)
	return strings.TrimSuffix(rel, path.Ext(rel))
}
