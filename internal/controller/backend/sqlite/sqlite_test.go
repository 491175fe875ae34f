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

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/tombee/stepflow/internal/controller/backend"
	"github.com/tombee/stepflow/internal/controller/backend/backendtest"
	"github.com/tombee/stepflow/pkg/workflow"
)

// createTestBackend creates a SQLite backend for testing in a temporary directory.
func createTestBackend(t *testing.T) (*Backend, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	be, err := New(Config{Path: dbPath, WAL: true})
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	t.Cleanup(func() { be.Close() })

	return be, dbPath
}

func TestSQLiteBackend_Conformance(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Gateway {
		be, _ := createTestBackend(t)
		return be
	})
}

func TestSQLiteBackend_Persistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "persist.db")
	cfg := Config{Path: dbPath, WAL: true}
	ctx := context.Background()

	be1, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}

	exec := backendtest.NewExecution("persist-exec", "wf", 0)
	exec.Status = workflow.ExecutionSuccess
	if err := be1.CreateExecution(ctx, exec); err != nil {
		t.Fatalf("failed to create execution: %v", err)
	}
	if err := be1.UpsertStepState(ctx, exec.ID, &workflow.StepState{Name: "a", Executor: "noop", Status: workflow.StepSuccess}); err != nil {
		t.Fatalf("failed to upsert step state: %v", err)
	}
	if err := be1.Close(); err != nil {
		t.Fatalf("failed to close backend: %v", err)
	}

	// Reopening runs the migrations again, which must be idempotent.
	be2, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to reopen backend: %v", err)
	}
	defer be2.Close()

	retrieved, err := be2.GetExecution(ctx, "persist-exec")
	if err != nil {
		t.Fatalf("failed to get persisted execution: %v", err)
	}
	if retrieved.Status != workflow.ExecutionSuccess {
		t.Errorf("expected status SUCCESS, got %s", retrieved.Status)
	}

	states, err := be2.ListStepStates(ctx, "persist-exec")
	if err != nil {
		t.Fatalf("failed to list step states: %v", err)
	}
	if len(states) != 1 || states[0].Status != workflow.StepSuccess {
		t.Errorf("unexpected step states after reopen: %+v", states)
	}
}

func TestSQLiteBackend_ForeignKeyConstraints(t *testing.T) {
	be, _ := createTestBackend(t)
	ctx := context.Background()

	// A step state cannot exist without its execution.
	err := be.UpsertStepState(ctx, "missing-exec", &workflow.StepState{Name: "a", Executor: "noop", Status: workflow.StepReady})
	if err == nil {
		t.Error("expected foreign key violation for unknown execution")
	}
}

func TestSQLiteBackend_InvalidPath(t *testing.T) {
	_, err := New(Config{Path: filepath.Join(t.TempDir(), "missing-dir", "x.db")})
	if err == nil {
		t.Error("expected error opening database in a missing directory")
	}
}
