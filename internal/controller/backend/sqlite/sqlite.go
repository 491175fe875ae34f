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

// Package sqlite provides a SQLite backend implementation for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/tombee/stepflow/internal/controller/backend"
	stepflowerrors "github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/workflow"
	_ "modernc.org/sqlite"
)

// Compile-time interface assertions.
var (
	_ backend.ExecutionStore  = (*Backend)(nil)
	_ backend.StepStateStore  = (*Backend)(nil)
	_ backend.ExecutionLister = (*Backend)(nil)
	_ backend.Pruner          = (*Backend)(nil)
	_ backend.DefinitionStore = (*Backend)(nil)
	_ backend.Gateway         = (*Backend)(nil)
)

// timeLayout is fixed width so that text comparison orders timestamps.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Backend is a SQLite storage backend.
type Backend struct {
	db *sql.DB
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// New creates a new SQLite backend.
func New(cfg Config) (*Backend, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, stepflowerrors.Wrap(err, "failed to open database")
	}

	// SQLite serializes writes, so only 1 connection
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, stepflowerrors.Wrap(err, "failed to connect to database")
	}

	b := &Backend{db: db}

	if err := b.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, stepflowerrors.Wrap(err, "failed to configure pragmas")
	}

	if err := b.migrate(ctx); err != nil {
		db.Close()
		return nil, stepflowerrors.Wrap(err, "failed to run migrations")
	}

	return b, nil
}

// configurePragmas sets SQLite configuration options.
func (b *Backend) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA auto_vacuum=INCREMENTAL",
		"PRAGMA synchronous=NORMAL",
	}

	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}

	for _, pragma := range pragmas {
		if _, err := b.db.ExecContext(ctx, pragma); err != nil {
			return stepflowerrors.Wrapf(err, "failed to execute %s", pragma)
		}
	}

	return nil
}

// migrate runs database migrations.
func (b *Backend) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TEXT,
			completed_at TEXT,
			steps_completed INTEGER NOT NULL DEFAULT 0,
			total_steps INTEGER NOT NULL DEFAULT 0,
			step_order TEXT,
			replay_of TEXT,
			input_snapshot TEXT,
			error TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_workflow_id ON executions(workflow_id)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_started_at ON executions(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_replay_of ON executions(replay_of)`,
		`CREATE TABLE IF NOT EXISTS step_states (
			execution_id TEXT NOT NULL,
			step_name TEXT NOT NULL,
			executor TEXT NOT NULL,
			depends_on TEXT,
			status TEXT NOT NULL,
			started_at TEXT,
			completed_at TEXT,
			error TEXT,
			PRIMARY KEY (execution_id, step_name),
			FOREIGN KEY (execution_id) REFERENCES executions(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS workflow_definitions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			parallel INTEGER NOT NULL DEFAULT 0,
			steps TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}

	for _, migration := range migrations {
		if _, err := b.db.ExecContext(ctx, migration); err != nil {
			return stepflowerrors.Wrap(err, "migration failed")
		}
	}

	return nil
}

const executionColumns = `id, workflow_id, status, started_at, completed_at, steps_completed,
	total_steps, step_order, replay_of, input_snapshot, error, created_at, updated_at`

// CreateExecution inserts or replaces an execution.
func (b *Backend) CreateExecution(ctx context.Context, exec *workflow.Execution) error {
	return b.upsertExecution(ctx, exec)
}

// UpdateExecution inserts or replaces an execution.
func (b *Backend) UpdateExecution(ctx context.Context, exec *workflow.Execution) error {
	return b.upsertExecution(ctx, exec)
}

func (b *Backend) upsertExecution(ctx context.Context, exec *workflow.Execution) error {
	stepOrder, err := json.Marshal(exec.StepOrder)
	if err != nil {
		return stepflowerrors.Wrap(err, "failed to marshal step_order")
	}
	snapshot, err := json.Marshal(exec.InputSnapshot)
	if err != nil {
		return stepflowerrors.Wrap(err, "failed to marshal input_snapshot")
	}

	query := `
		INSERT INTO executions (` + executionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			workflow_id = excluded.workflow_id,
			status = excluded.status,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			steps_completed = excluded.steps_completed,
			total_steps = excluded.total_steps,
			step_order = excluded.step_order,
			replay_of = excluded.replay_of,
			input_snapshot = excluded.input_snapshot,
			error = excluded.error,
			updated_at = excluded.updated_at
	`

	now := time.Now()
	createdAt := exec.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := exec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	_, err = b.db.ExecContext(ctx, query,
		exec.ID, exec.WorkflowID, string(exec.Status),
		formatTime(exec.StartedAt), formatTime(exec.CompletedAt),
		exec.StepsCompleted, exec.TotalSteps, string(stepOrder),
		nullString(exec.ReplayOf), string(snapshot), nullString(exec.Error),
		createdAt.UTC().Format(timeLayout), updatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return stepflowerrors.Wrap(err, "failed to upsert execution")
	}
	return nil
}

// GetExecution retrieves an execution by ID.
func (b *Backend) GetExecution(ctx context.Context, id string) (*workflow.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = ?`

	exec, err := scanExecution(b.db.QueryRowContext(ctx, query, id))
	if stepflowerrors.Is(err, sql.ErrNoRows) {
		return nil, &stepflowerrors.NotFoundError{Resource: "execution", ID: id}
	}
	if err != nil {
		return nil, stepflowerrors.Wrap(err, "failed to get execution")
	}
	return exec, nil
}

// ListExecutions lists executions newest-first by start time.
func (b *Backend) ListExecutions(ctx context.Context, filter backend.ExecutionFilter) ([]*workflow.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE 1=1`
	args := []any{}

	if filter.WorkflowID != "" {
		query += " AND workflow_id = ?"
		args = append(args, filter.WorkflowID)
	}

	query += " ORDER BY started_at IS NULL, started_at DESC, created_at DESC, id DESC"

	// SQLite only accepts OFFSET after LIMIT; -1 means unbounded.
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := -1
		if filter.Limit > 0 {
			limit = filter.Limit
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, stepflowerrors.Wrap(err, "failed to list executions")
	}
	defer rows.Close()

	var execs []*workflow.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, stepflowerrors.Wrap(err, "failed to scan execution")
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

// DeleteExecution removes an execution. Step states cascade.
func (b *Backend) DeleteExecution(ctx context.Context, id string) error {
	result, err := b.db.ExecContext(ctx, "DELETE FROM executions WHERE id = ?", id)
	if err != nil {
		return stepflowerrors.Wrap(err, "failed to delete execution")
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return &stepflowerrors.NotFoundError{Resource: "execution", ID: id}
	}
	return nil
}

// PruneExecutions deletes the oldest executions beyond maxEntries.
func (b *Backend) PruneExecutions(ctx context.Context, maxEntries int) (int, error) {
	if maxEntries <= 0 {
		return 0, nil
	}

	query := `
		DELETE FROM executions WHERE id IN (
			SELECT id FROM executions
			ORDER BY started_at IS NULL, started_at DESC, created_at DESC, id DESC
			LIMIT -1 OFFSET ?
		)
	`
	result, err := b.db.ExecContext(ctx, query, maxEntries)
	if err != nil {
		return 0, stepflowerrors.Wrap(err, "failed to prune executions")
	}

	deleted, _ := result.RowsAffected()
	return int(deleted), nil
}

// UpsertStepState inserts or updates a step state.
func (b *Backend) UpsertStepState(ctx context.Context, executionID string, state *workflow.StepState) error {
	dependsOn, err := json.Marshal(state.DependsOn)
	if err != nil {
		return stepflowerrors.Wrap(err, "failed to marshal depends_on")
	}

	query := `
		INSERT INTO step_states (execution_id, step_name, executor, depends_on, status, started_at, completed_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (execution_id, step_name) DO UPDATE SET
			executor = excluded.executor,
			depends_on = excluded.depends_on,
			status = excluded.status,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			error = excluded.error
	`

	_, err = b.db.ExecContext(ctx, query,
		executionID, state.Name, state.Executor, string(dependsOn), string(state.Status),
		formatTime(state.StartedAt), formatTime(state.CompletedAt), nullString(state.Error),
	)
	if err != nil {
		return stepflowerrors.Wrap(err, "failed to upsert step state")
	}
	return nil
}

// ListStepStates returns the step states of an execution in insertion order.
// An upsert keeps the original rowid, so rowid order is first-insert order.
func (b *Backend) ListStepStates(ctx context.Context, executionID string) ([]*workflow.StepState, error) {
	query := `
		SELECT step_name, executor, depends_on, status, started_at, completed_at, error
		FROM step_states WHERE execution_id = ? ORDER BY rowid
	`

	rows, err := b.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, stepflowerrors.Wrap(err, "failed to list step states")
	}
	defer rows.Close()

	var states []*workflow.StepState
	for rows.Next() {
		var state workflow.StepState
		var status string
		var dependsOn, startedAt, completedAt, errorStr sql.NullString

		if err := rows.Scan(&state.Name, &state.Executor, &dependsOn, &status,
			&startedAt, &completedAt, &errorStr); err != nil {
			return nil, stepflowerrors.Wrap(err, "failed to scan step state")
		}

		state.Status = workflow.StepStatus(status)
		state.Error = errorStr.String
		state.StartedAt = parseTime(startedAt)
		state.CompletedAt = parseTime(completedAt)
		if dependsOn.Valid && dependsOn.String != "" {
			if err := json.Unmarshal([]byte(dependsOn.String), &state.DependsOn); err != nil {
				return nil, stepflowerrors.Wrap(err, "failed to unmarshal depends_on")
			}
		}
		states = append(states, &state)
	}
	return states, rows.Err()
}

// SaveDefinition creates or replaces a workflow definition.
func (b *Backend) SaveDefinition(ctx context.Context, def *workflow.Definition) error {
	steps, err := json.Marshal(def.Steps)
	if err != nil {
		return stepflowerrors.Wrap(err, "failed to marshal steps")
	}

	query := `
		INSERT INTO workflow_definitions (id, name, description, parallel, steps, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			parallel = excluded.parallel,
			steps = excluded.steps,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(timeLayout)
	_, err = b.db.ExecContext(ctx, query,
		def.ID, def.Name, nullString(def.Description), def.Parallel, string(steps), now, now,
	)
	if err != nil {
		return stepflowerrors.Wrap(err, "failed to save workflow definition")
	}
	return nil
}

// GetDefinition retrieves a workflow definition by ID.
func (b *Backend) GetDefinition(ctx context.Context, id string) (*workflow.Definition, error) {
	query := `SELECT id, name, description, parallel, steps FROM workflow_definitions WHERE id = ?`

	def, err := scanDefinition(b.db.QueryRowContext(ctx, query, id))
	if stepflowerrors.Is(err, sql.ErrNoRows) {
		return nil, &stepflowerrors.NotFoundError{Resource: "workflow", ID: id}
	}
	if err != nil {
		return nil, stepflowerrors.Wrap(err, "failed to get workflow definition")
	}
	return def, nil
}

// ListDefinitions returns all workflow definitions ordered by ID.
func (b *Backend) ListDefinitions(ctx context.Context) ([]*workflow.Definition, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, name, description, parallel, steps FROM workflow_definitions ORDER BY id`)
	if err != nil {
		return nil, stepflowerrors.Wrap(err, "failed to list workflow definitions")
	}
	defer rows.Close()

	var defs []*workflow.Definition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, stepflowerrors.Wrap(err, "failed to scan workflow definition")
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// DeleteDefinition removes a workflow definition.
func (b *Backend) DeleteDefinition(ctx context.Context, id string) error {
	result, err := b.db.ExecContext(ctx, "DELETE FROM workflow_definitions WHERE id = ?", id)
	if err != nil {
		return stepflowerrors.Wrap(err, "failed to delete workflow definition")
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return &stepflowerrors.NotFoundError{Resource: "workflow", ID: id}
	}
	return nil
}

// Close closes the database connection.
func (b *Backend) Close() error {
	return b.db.Close()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*workflow.Execution, error) {
	var exec workflow.Execution
	var status string
	var startedAt, completedAt, stepOrder, replayOf, snapshot, errorStr sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&exec.ID, &exec.WorkflowID, &status, &startedAt, &completedAt,
		&exec.StepsCompleted, &exec.TotalSteps, &stepOrder, &replayOf,
		&snapshot, &errorStr, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	exec.Status = workflow.ExecutionStatus(status)
	exec.ReplayOf = replayOf.String
	exec.Error = errorStr.String
	exec.StartedAt = parseTime(startedAt)
	exec.CompletedAt = parseTime(completedAt)
	exec.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	exec.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)

	if stepOrder.Valid && stepOrder.String != "" {
		if err := json.Unmarshal([]byte(stepOrder.String), &exec.StepOrder); err != nil {
			return nil, stepflowerrors.Wrap(err, "failed to unmarshal step_order")
		}
	}
	if snapshot.Valid && snapshot.String != "" {
		if err := json.Unmarshal([]byte(snapshot.String), &exec.InputSnapshot); err != nil {
			return nil, stepflowerrors.Wrap(err, "failed to unmarshal input_snapshot")
		}
	}
	return &exec, nil
}

func scanDefinition(row rowScanner) (*workflow.Definition, error) {
	var def workflow.Definition
	var description sql.NullString
	var steps string

	if err := row.Scan(&def.ID, &def.Name, &description, &def.Parallel, &steps); err != nil {
		return nil, err
	}
	def.Description = description.String
	if err := json.Unmarshal([]byte(steps), &def.Steps); err != nil {
		return nil, stepflowerrors.Wrap(err, "failed to unmarshal steps")
	}
	return &def, nil
}

// Helper functions

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
