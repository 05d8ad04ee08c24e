// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lanternguild/gcbridge/lib/clock"
	"github.com/lanternguild/gcbridge/lib/taskqueue"
	"github.com/lanternguild/gcbridge/lib/testutil"
)

type processorHarness struct {
	clock     *clock.FakeClock
	store     *taskqueue.SQLStore
	registry  *taskqueue.Registry
	processor *taskqueue.Processor
}

func newProcessor(t *testing.T, configure func(*taskqueue.Config)) *processorHarness {
	t.Helper()
	fake := clock.Fake(testEpoch)
	h := &processorHarness{
		clock:    fake,
		store:    openStore(t, fake),
		registry: taskqueue.NewRegistry(),
	}
	cfg := taskqueue.Config{
		Store:    h.store,
		Registry: h.registry,
		Breaker:  taskqueue.NewBreaker(5*time.Minute, 5),
		Clock:    fake,
		Logger:   testutil.Logger(t),
		WorkerID: "test-worker",
	}
	if configure != nil {
		configure(&cfg)
	}
	processor, err := taskqueue.NewProcessor(cfg)
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	h.processor = processor
	return h
}

func (h *processorHarness) register(t *testing.T, taskType string, handler taskqueue.Handler) {
	t.Helper()
	if err := h.registry.Register(taskType, handler); err != nil {
		t.Fatalf("Register(%s): %v", taskType, err)
	}
}

func (h *processorHarness) poll(t *testing.T) int {
	t.Helper()
	n, err := h.processor.PollOnce(context.Background())
	if err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	return n
}

func (h *processorHarness) get(t *testing.T, id int64) taskqueue.Task {
	t.Helper()
	task, err := h.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%d): %v", id, err)
	}
	return task
}

var errHandler = errors.New("session disconnected")

func failing(context.Context, json.RawMessage) (any, error) { return nil, errHandler }

func TestProcessStoresResult(t *testing.T) {
	h := newProcessor(t, nil)
	h.register(t, "ECHO", func(_ context.Context, payload json.RawMessage) (any, error) {
		request, err := taskqueue.DecodePayload[struct{ Name string }](payload)
		if err != nil {
			return nil, err
		}
		return map[string]string{"hello": request.Name}, nil
	})
	id := enqueue(t, h.store, "ECHO", `{"Name":"bot"}`)

	if n := h.poll(t); n != 1 {
		t.Fatalf("PollOnce = %d, want 1", n)
	}
	task := h.get(t, id)
	if task.Status != taskqueue.StatusDone || task.Attempts != 0 || task.Worker != "test-worker" {
		t.Errorf("task = %+v", task)
	}
	if string(task.Result) != `{"hello":"bot"}` {
		t.Errorf("result = %s", task.Result)
	}
	stats := h.processor.Stats()
	if stats.Processed != 1 || stats.Successful != 1 || stats.Failed != 0 || stats.LastProcessedAt == nil {
		t.Errorf("stats = %+v", stats)
	}
}

func TestHandlerErrorFailsTask(t *testing.T) {
	h := newProcessor(t, nil)
	h.register(t, "AUTH_LOGIN", failing)
	id := enqueue(t, h.store, "AUTH_LOGIN", "{}")

	h.poll(t)
	task := h.get(t, id)
	if task.Status != taskqueue.StatusFailed || task.Attempts != 1 || task.Error != errHandler.Error() {
		t.Errorf("task = %+v", task)
	}
	stats := h.processor.Stats()
	if stats.Failed != 1 || stats.RecentErrors != 1 || stats.ErrorRate != 1 || stats.LastError != errHandler.Error() {
		t.Errorf("stats = %+v", stats)
	}

	// Failed tasks are not re-queued.
	if n := h.poll(t); n != 0 {
		t.Fatalf("second PollOnce = %d, want 0", n)
	}
}

func TestUnknownTypeFailsOnceWithoutTrippingBreaker(t *testing.T) {
	h := newProcessor(t, func(cfg *taskqueue.Config) { cfg.Breaker = taskqueue.NewBreaker(time.Minute, 1) })
	id := enqueue(t, h.store, "UNKNOWN_TYPE", "{}")

	if n := h.poll(t); n != 1 {
		t.Fatalf("PollOnce = %d, want 1", n)
	}
	task := h.get(t, id)
	if task.Status != taskqueue.StatusFailed || task.Attempts != 1 {
		t.Fatalf("task = %+v, want failed after one attempt", task)
	}
	if !strings.Contains(task.Error, "unknown task type") || !strings.Contains(task.Error, "UNKNOWN_TYPE") {
		t.Errorf("error = %q", task.Error)
	}
	stats := h.processor.Stats()
	if stats.RecentErrors != 0 || stats.CircuitBreakerOpen {
		t.Errorf("unknown type counted toward the breaker: %+v", stats)
	}

	// A threshold of one would have opened; the next task still runs.
	h.register(t, "AUTH_STATUS", func(context.Context, json.RawMessage) (any, error) { return "ok", nil })
	next := enqueue(t, h.store, "AUTH_STATUS", "{}")
	h.poll(t)
	if task := h.get(t, next); task.Status != taskqueue.StatusDone {
		t.Fatalf("follow-up task = %+v", task)
	}
}

func TestBatchRunsOldestFirstAndBounded(t *testing.T) {
	h := newProcessor(t, func(cfg *taskqueue.Config) { cfg.BatchSize = 2 })
	var (
		mu    sync.Mutex
		order []string
	)
	h.register(t, "STEP", func(_ context.Context, payload json.RawMessage) (any, error) {
		step, err := taskqueue.DecodePayload[struct{ Step string }](payload)
		if err != nil {
			return nil, err
		}
		mu.Lock()
		order = append(order, step.Step)
		mu.Unlock()
		return nil, nil
	})
	for _, step := range []string{"a", "b", "c"} {
		enqueue(t, h.store, "STEP", `{"Step":"`+step+`"}`)
		h.clock.Advance(time.Millisecond)
	}

	if n := h.poll(t); n != 2 {
		t.Fatalf("first PollOnce = %d, want 2", n)
	}
	if n := h.poll(t); n != 1 {
		t.Fatalf("second PollOnce = %d, want 1", n)
	}
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(order, "") != "abc" {
		t.Fatalf("order = %v, want a b c", order)
	}
}

func TestBreakerSkipsPollsUntilWindowAgesOut(t *testing.T) {
	h := newProcessor(t, nil)
	h.register(t, "AUTH_LOGIN", failing)
	h.register(t, "AUTH_STATUS", func(context.Context, json.RawMessage) (any, error) { return "ok", nil })

	var failingIDs []int64
	for range 5 {
		failingIDs = append(failingIDs, enqueue(t, h.store, "AUTH_LOGIN", "{}"))
	}
	spare := enqueue(t, h.store, "AUTH_LOGIN", "{}")
	healthy := enqueue(t, h.store, "AUTH_STATUS", "{}")

	// The fifth error opens the breaker and stops the batch.
	if n := h.poll(t); n != 5 {
		t.Fatalf("PollOnce = %d, want 5", n)
	}
	for _, id := range failingIDs {
		if task := h.get(t, id); task.Status != taskqueue.StatusFailed {
			t.Fatalf("task %d = %s, want failed", id, task.Status)
		}
	}
	if task := h.get(t, spare); task.Status != taskqueue.StatusPending {
		t.Fatalf("task after the breaker opened = %s, want pending", task.Status)
	}
	if !h.processor.Stats().CircuitBreakerOpen {
		t.Fatal("stats report the breaker closed")
	}

	// Open breaker: nothing is claimed.
	h.clock.Advance(4 * time.Minute)
	if n := h.poll(t); n != 0 {
		t.Fatalf("PollOnce while open = %d, want 0", n)
	}
	if task := h.get(t, healthy); task.Status != taskqueue.StatusPending {
		t.Fatalf("healthy task ran while the breaker was open: %s", task.Status)
	}

	// Five minutes after the errors the window is clear again.
	h.clock.Advance(time.Minute)
	h.poll(t)
	if task := h.get(t, healthy); task.Status != taskqueue.StatusDone {
		t.Fatalf("healthy task = %s, want done", task.Status)
	}
	if h.processor.Stats().CircuitBreakerOpen {
		t.Fatal("breaker still open after the window")
	}
}

func TestHandlerPanicFailsTask(t *testing.T) {
	h := newProcessor(t, nil)
	h.register(t, "BROKEN", func(context.Context, json.RawMessage) (any, error) { panic("nil session") })
	id := enqueue(t, h.store, "BROKEN", "{}")

	h.poll(t)
	task := h.get(t, id)
	if task.Status != taskqueue.StatusFailed || !strings.Contains(task.Error, "nil session") {
		t.Fatalf("task = %+v", task)
	}
}

func TestUnencodableResultFailsTask(t *testing.T) {
	h := newProcessor(t, nil)
	h.register(t, "CHAN", func(context.Context, json.RawMessage) (any, error) { return make(chan int), nil })
	id := enqueue(t, h.store, "CHAN", "{}")

	h.poll(t)
	if task := h.get(t, id); task.Status != taskqueue.StatusFailed {
		t.Fatalf("task = %+v, want failed", task)
	}
}

func TestRunPollsOnInterval(t *testing.T) {
	h := newProcessor(t, nil)
	handled := make(chan string, 4)
	h.register(t, "NOTE", func(_ context.Context, payload json.RawMessage) (any, error) {
		handled <- string(payload)
		return nil, nil
	})
	enqueue(t, h.store, "NOTE", `"first"`)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- h.processor.Run(ctx) }()

	if got := testutil.RequireReceive(t, handled, testutil.DefaultTimeout, "first task"); got != `"first"` {
		t.Fatalf("handled %s", got)
	}
	enqueue(t, h.store, "NOTE", `"second"`)
	h.clock.WaitForTimers(1)
	h.clock.Advance(5 * time.Second)
	if got := testutil.RequireReceive(t, handled, testutil.DefaultTimeout, "second task"); got != `"second"` {
		t.Fatalf("handled %s", got)
	}

	cancel()
	if err := testutil.RequireReceive(t, stopped, testutil.DefaultTimeout, "Run return"); err != nil {
		t.Fatalf("Run = %v", err)
	}
}

func TestRegistry(t *testing.T) {
	registry := taskqueue.NewRegistry()
	handler := func(context.Context, json.RawMessage) (any, error) { return nil, nil }
	for _, taskType := range []string{"B", "A"} {
		if err := registry.Register(taskType, handler); err != nil {
			t.Fatalf("Register(%s): %v", taskType, err)
		}
	}
	if err := registry.Register("A", handler); err == nil {
		t.Error("duplicate registration accepted")
	}
	if err := registry.Register("C", nil); err == nil {
		t.Error("nil handler accepted")
	}
	if _, ok := registry.Lookup("Z"); ok {
		t.Error("Lookup found an unregistered type")
	}
	if got := strings.Join(registry.Types(), ","); got != "A,B" {
		t.Errorf("Types = %s", got)
	}
}

func TestDecodePayload(t *testing.T) {
	type request struct {
		Code string `json:"code"`
	}
	value, err := taskqueue.DecodePayload[request](json.RawMessage(`{"code":"R5BQ4"}`))
	if err != nil || value.Code != "R5BQ4" {
		t.Fatalf("DecodePayload = %+v, %v", value, err)
	}
	if value, err := taskqueue.DecodePayload[request](nil); err != nil || value.Code != "" {
		t.Fatalf("empty payload = %+v, %v", value, err)
	}
	if _, err := taskqueue.DecodePayload[request](json.RawMessage(`[1]`)); err == nil {
		t.Fatal("mismatched payload decoded")
	}
}
