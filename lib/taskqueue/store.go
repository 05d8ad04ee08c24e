// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/lanternguild/gcbridge/lib/clock"
	"github.com/lanternguild/gcbridge/lib/sqlitepool"
)

// Schema creates the task table. Times are unix milliseconds.
const Schema = `
CREATE TABLE IF NOT EXISTS gc_tasks (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	type        TEXT    NOT NULL,
	payload     TEXT    NOT NULL DEFAULT '{}',
	status      TEXT    NOT NULL DEFAULT 'pending',
	attempts    INTEGER NOT NULL DEFAULT 0,
	worker      TEXT,
	created_at  INTEGER NOT NULL,
	started_at  INTEGER,
	finished_at INTEGER,
	result      TEXT,
	error       TEXT
);
CREATE INDEX IF NOT EXISTS gc_tasks_status_created ON gc_tasks (status, created_at, id);
`

// Store is the task persistence the Processor needs.
type Store interface {
	// Pending returns up to limit pending tasks, oldest first.
	Pending(ctx context.Context, limit int) ([]Task, error)

	// MarkRunning claims a pending task for worker. It reports false
	// when the task was no longer pending.
	MarkRunning(ctx context.Context, id int64, worker string) (bool, error)

	// Complete marks a task done with its serialized result.
	Complete(ctx context.Context, id int64, result json.RawMessage) error

	// Fail marks a task failed, records message and counts an attempt.
	Fail(ctx context.Context, id int64, message string) error
}

// SQLStore keeps tasks in the shared SQLite database. The table must
// exist; see Schema.
type SQLStore struct {
	pool  *sqlitepool.Pool
	clock clock.Clock
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore returns a store on pool. A nil clk uses the real clock.
func NewSQLStore(pool *sqlitepool.Pool, clk clock.Clock) *SQLStore {
	if clk == nil {
		clk = clock.Real()
	}
	return &SQLStore{pool: pool, clock: clk}
}

const taskColumns = "id, type, payload, status, attempts, worker, created_at, started_at, finished_at, result, error"

// Enqueue inserts a pending task and returns its id. An empty payload
// is stored as an empty object.
func (s *SQLStore) Enqueue(ctx context.Context, taskType string, payload json.RawMessage) (int64, error) {
	if strings.TrimSpace(taskType) == "" {
		return 0, fmt.Errorf("taskqueue: task type is required")
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if !json.Valid(payload) {
		return 0, fmt.Errorf("taskqueue: payload for %s is not valid JSON", taskType)
	}

	var id int64
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			"INSERT INTO gc_tasks (type, payload, status, created_at) VALUES (?, ?, ?, ?)",
			&sqlitex.ExecOptions{
				Args: []any{taskType, string(payload), string(StatusPending), s.clock.Now().UnixMilli()},
			})
		if err != nil {
			return err
		}
		id = conn.LastInsertRowID()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("taskqueue: enqueue %s: %w", taskType, err)
	}
	return id, nil
}

// Pending implements Store.
func (s *SQLStore) Pending(ctx context.Context, limit int) ([]Task, error) {
	tasks, err := s.List(ctx, ListFilter{Status: StatusPending, Limit: limit, OldestFirst: true})
	if err != nil {
		return nil, fmt.Errorf("taskqueue: pending: %w", err)
	}
	return tasks, nil
}

// MarkRunning implements Store.
func (s *SQLStore) MarkRunning(ctx context.Context, id int64, worker string) (bool, error) {
	changed, err := s.update(ctx,
		"UPDATE gc_tasks SET status = ?, worker = ?, started_at = ? WHERE id = ? AND status = ?",
		string(StatusRunning), worker, s.clock.Now().UnixMilli(), id, string(StatusPending))
	if err != nil {
		return false, fmt.Errorf("taskqueue: claiming task %d: %w", id, err)
	}
	return changed == 1, nil
}

// Complete implements Store.
func (s *SQLStore) Complete(ctx context.Context, id int64, result json.RawMessage) error {
	var resultArg any
	if len(result) > 0 {
		resultArg = string(result)
	}
	_, err := s.update(ctx,
		"UPDATE gc_tasks SET status = ?, result = ?, error = NULL, finished_at = ? WHERE id = ?",
		string(StatusDone), resultArg, s.clock.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("taskqueue: completing task %d: %w", id, err)
	}
	return nil
}

// Fail implements Store.
func (s *SQLStore) Fail(ctx context.Context, id int64, message string) error {
	_, err := s.update(ctx,
		"UPDATE gc_tasks SET status = ?, attempts = attempts + 1, error = ?, finished_at = ? WHERE id = ?",
		string(StatusFailed), message, s.clock.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("taskqueue: failing task %d: %w", id, err)
	}
	return nil
}

func (s *SQLStore) update(ctx context.Context, query string, args ...any) (int, error) {
	var changed int
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
			return err
		}
		changed = conn.Changes()
		return nil
	})
	return changed, err
}

// Get returns one task, or ErrNotFound.
func (s *SQLStore) Get(ctx context.Context, id int64) (Task, error) {
	var (
		task  Task
		found bool
	)
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT "+taskColumns+" FROM gc_tasks WHERE id = ?", &sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				task = scanTask(stmt)
				found = true
				return nil
			},
		})
	})
	if err != nil {
		return Task{}, fmt.Errorf("taskqueue: get %d: %w", id, err)
	}
	if !found {
		return Task{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return task, nil
}

// ListFilter selects tasks for List.
type ListFilter struct {
	Status Status // empty matches every status
	Type   string // empty matches every type
	Limit  int    // default 50

	// OldestFirst orders by creation ascending; the default is newest
	// first.
	OldestFirst bool
}

// List returns tasks matching filter.
func (s *SQLStore) List(ctx context.Context, filter ListFilter) ([]Task, error) {
	var conditions []string
	var args []any
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, filter.Type)
	}

	query := "SELECT " + taskColumns + " FROM gc_tasks"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	if filter.OldestFirst {
		query += " ORDER BY created_at ASC, id ASC"
	} else {
		query += " ORDER BY created_at DESC, id DESC"
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ?"
	args = append(args, limit)

	var tasks []Task
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				tasks = append(tasks, scanTask(stmt))
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("taskqueue: list: %w", err)
	}
	return tasks, nil
}

// Counts returns the number of tasks per status.
func (s *SQLStore) Counts(ctx context.Context) (map[Status]int, error) {
	counts := make(map[Status]int)
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT status, COUNT(*) FROM gc_tasks GROUP BY status", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				counts[Status(stmt.ColumnText(0))] = stmt.ColumnInt(1)
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("taskqueue: counts: %w", err)
	}
	return counts, nil
}

func scanTask(stmt *sqlite.Stmt) Task {
	task := Task{
		ID:        stmt.ColumnInt64(0),
		Type:      stmt.ColumnText(1),
		Payload:   json.RawMessage(stmt.ColumnText(2)),
		Status:    Status(stmt.ColumnText(3)),
		Attempts:  stmt.ColumnInt(4),
		Worker:    stmt.ColumnText(5),
		CreatedAt: time.UnixMilli(stmt.ColumnInt64(6)),
		Error:     stmt.ColumnText(10),
	}
	task.StartedAt = optionalTime(stmt, 7)
	task.FinishedAt = optionalTime(stmt, 8)
	if !stmt.ColumnIsNull(9) {
		task.Result = json.RawMessage(stmt.ColumnText(9))
	}
	return task
}

func optionalTime(stmt *sqlite.Stmt, column int) *time.Time {
	if stmt.ColumnIsNull(column) {
		return nil
	}
	at := time.UnixMilli(stmt.ColumnInt64(column))
	return &at
}
