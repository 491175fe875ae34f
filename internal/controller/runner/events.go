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

package runner

import (
	"sync"
	"time"

	"github.com/tombee/stepflow/pkg/workflow"
)

// Event kinds
const (
	EventStep      = "step"
	EventExecution = "execution"
)

// StepEvent reports a state change of a step or of a whole execution.
type StepEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	Kind        string    `json:"kind"`
	ExecutionID string    `json:"execution_id"`
	Step        string    `json:"step,omitempty"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
}

// allExecutions is the subscription key for events of every execution.
const allExecutions = ""

// EventHub fans events out to subscribers. Sends never block: a subscriber
// whose buffer is full misses events.
type EventHub struct {
	mu          sync.RWMutex
	subscribers map[string][]chan StepEvent
}

// NewEventHub creates a new EventHub.
func NewEventHub() *EventHub {
	return &EventHub{
		subscribers: make(map[string][]chan StepEvent),
	}
}

func (h *EventHub) publishStep(executionID, step string, status workflow.StepStatus, errMsg string, at time.Time) {
	h.Publish(StepEvent{
		Timestamp:   at,
		Kind:        EventStep,
		ExecutionID: executionID,
		Step:        step,
		Status:      string(status),
		Error:       errMsg,
	})
}

func (h *EventHub) publishExecution(executionID string, status workflow.ExecutionStatus, errMsg string, at time.Time) {
	h.Publish(StepEvent{
		Timestamp:   at,
		Kind:        EventExecution,
		ExecutionID: executionID,
		Status:      string(status),
		Error:       errMsg,
	})
}

// Publish sends an event to the subscribers of its execution and to
// subscribers of all executions.
func (h *EventHub) Publish(event StepEvent) {
	h.mu.RLock()
	// Copy to avoid racing with unsubscribe modifying the slices
	subs := make([]chan StepEvent, 0, len(h.subscribers[event.ExecutionID])+len(h.subscribers[allExecutions]))
	subs = append(subs, h.subscribers[event.ExecutionID]...)
	if event.ExecutionID != allExecutions {
		subs = append(subs, h.subscribers[allExecutions]...)
	}
	h.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			// Channel full, skip
		}
	}
}

// Subscribe returns a channel that receives events for executionID, or for
// every execution when executionID is empty, and an unsubscribe function.
func (h *EventHub) Subscribe(executionID string) (<-chan StepEvent, func()) {
	ch := make(chan StepEvent, 100)

	h.mu.Lock()
	h.subscribers[executionID] = append(h.subscribers[executionID], ch)
	h.mu.Unlock()

	// The channel is not closed on unsubscribe so concurrent senders never
	// panic; it is garbage collected once unreferenced.
	unsub := func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		subs := h.subscribers[executionID]
		for i, sub := range subs {
			if sub == ch {
				h.subscribers[executionID] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(h.subscribers[executionID]) == 0 {
			delete(h.subscribers, executionID)
		}
	}

	return ch, unsub
}

// SubscriberCount returns the number of subscribers for an execution.
func (h *EventHub) SubscriberCount(executionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[executionID])
}
