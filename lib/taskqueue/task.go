// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned by Get for an unknown id.
	ErrNotFound = errors.New("taskqueue: task not found")

	// ErrUnknownType is recorded on tasks whose type has no handler.
	ErrUnknownType = errors.New("taskqueue: unknown task type")
)

// Status is a task's lifecycle position.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// ParseStatus validates a status name.
func ParseStatus(name string) (Status, error) {
	switch status := Status(name); status {
	case StatusPending, StatusRunning, StatusDone, StatusFailed:
		return status, nil
	default:
		return "", fmt.Errorf("taskqueue: unknown status %q", name)
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Task is one row of gc_tasks.
type Task struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Status     Status          `json:"status"`
	Attempts   int             `json:"attempts"`
	Worker     string          `json:"worker,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	StartedAt  *time.Time      `json:"startedAt,omitempty"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}
