// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
)

// Handler runs one task. The returned value is stored as the task's
// JSON result; an error fails the task with its message.
type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

// Registry maps task types to handlers. Safe for concurrent use, so
// features may register handlers while the processor runs.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds handler for taskType. Registering a type twice is an
// error.
func (r *Registry) Register(taskType string, handler Handler) error {
	if taskType == "" || handler == nil {
		return fmt.Errorf("taskqueue: register needs a type and a handler")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[taskType]; exists {
		return fmt.Errorf("taskqueue: handler for %s already registered", taskType)
	}
	r.handlers[taskType] = handler
	return nil
}

// Lookup returns the handler for taskType.
func (r *Registry) Lookup(taskType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[taskType]
	return handler, ok
}

// Types returns the registered types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for taskType := range r.handlers {
		types = append(types, taskType)
	}
	slices.Sort(types)
	return types
}

// DecodePayload unmarshals payload into a T. An empty payload yields
// the zero T.
func DecodePayload[T any](payload json.RawMessage) (T, error) {
	var value T
	if len(payload) == 0 {
		return value, nil
	}
	if err := json.Unmarshal(payload, &value); err != nil {
		return value, fmt.Errorf("taskqueue: decoding payload: %w", err)
	}
	return value, nil
}
