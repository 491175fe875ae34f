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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// watcherEvents counts filesystem events that matched a definition file
	watcherEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepflow_filewatcher_events_total",
			Help: "Total workflow definition file events by event type",
		},
		[]string{"event_type"},
	)

	// watcherReloads counts definition reloads by result
	watcherReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepflow_filewatcher_reloads_total",
			Help: "Total workflow definition reloads by result",
		},
		[]string{"result"},
	)

	// watcherRateLimited counts changes dropped by the reload limiter
	watcherRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stepflow_filewatcher_rate_limited_total",
			Help: "Total definition changes dropped by the reload rate limit",
		},
	)
)

func recordEvent(op Op) {
	watcherEvents.WithLabelValues(string(op)).Inc()
}

func recordReload(result string) {
	watcherReloads.WithLabelValues(result).Inc()
}

func recordRateLimited() {
	watcherRateLimited.Inc()
}
