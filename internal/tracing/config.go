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

package tracing

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tombee/stepflow/internal/tracing/export"
)

// Config holds observability configuration.
type Config struct {
	// ServiceName identifies this service in traces.
	ServiceName string

	// ServiceVersion is the application version.
	ServiceVersion string

	// SampleRate is the fraction of root traces to sample (0.0 - 1.0).
	// Zero means sample everything.
	SampleRate float64

	// Registry receives the exported metrics. Nil uses a private registry
	// served together with the default Prometheus gatherer.
	Registry *prometheus.Registry

	// Traces selects where spans are exported. The zero value keeps spans
	// in-process.
	Traces export.Config
}

func (c Config) withDefaults() Config {
	if c.ServiceName == "" {
		c.ServiceName = "stepflow"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "dev"
	}
	if c.SampleRate <= 0 || c.SampleRate > 1 {
		c.SampleRate = 1.0
	}
	return c
}
