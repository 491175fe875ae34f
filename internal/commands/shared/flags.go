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

// globalFlags holds the persistent flags registered on the root command.
type globalFlags struct {
	verbose bool
	quiet   bool
	json    bool
	config  string
}

// buildInfo is injected from main via ldflags.
type buildInfo struct {
	version string
	commit  string
	date    string
}

var (
	flags globalFlags
	build = buildInfo{version: "dev", commit: "unknown", date: "unknown"}
)

// RegisterFlagPointers returns the verbose, quiet, json and config flag
// targets for the root command to bind.
func RegisterFlagPointers() (*bool, *bool, *bool, *string) {
	return &flags.verbose, &flags.quiet, &flags.json, &flags.config
}

// SetVersion records the build information reported by the version command.
func SetVersion(v, c, b string) {
	build = buildInfo{version: v, commit: c, date: b}
}

// GetVersion returns the version, commit and build date.
func GetVersion() (string, string, string) {
	return build.version, build.commit, build.date
}

// GetVerbose reports whether --verbose was given.
func GetVerbose() bool { return flags.verbose }

// GetQuiet reports whether --quiet was given.
func GetQuiet() bool { return flags.quiet }

// GetJSON reports whether --json was given.
func GetJSON() bool { return flags.json }

// GetConfigPath returns the --config value.
func GetConfigPath() string { return flags.config }

// ResetFlagsForTest restores the global flags to their defaults.
func ResetFlagsForTest() {
	flags = globalFlags{}
}

// SetConfigPathForTest sets the config path for testing purposes
func SetConfigPathForTest(path string) {
	flags.config = path
}
