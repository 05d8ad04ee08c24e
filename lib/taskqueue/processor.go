// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lanternguild/gcbridge/lib/clock"
)

// Config configures a Processor.
type Config struct {
	Store    Store
	Registry *Registry

	// Breaker defaults to NewBreaker(0, 0).
	Breaker *Breaker

	Clock  clock.Clock
	Logger *slog.Logger

	// PollInterval is the period of Run (5s).
	PollInterval time.Duration

	// BatchSize bounds the tasks claimed per poll (10).
	BatchSize int

	// TaskTimeout bounds one handler call (2m).
	TaskTimeout time.Duration

	// WorkerID is written to claimed rows. Defaults to a random id so
	// two bridges on one database are told apart.
	WorkerID string
}

// Stats summarizes the processor's work since start.
type Stats struct {
	WorkerID           string     `json:"workerId"`
	Processed          int64      `json:"processed"`
	Successful         int64      `json:"successful"`
	Failed             int64      `json:"failed"`
	ErrorRate          float64    `json:"errorRate"`
	CircuitBreakerOpen bool       `json:"circuitBreakerOpen"`
	RecentErrors       int        `json:"recentErrors"`
	LastProcessedAt    *time.Time `json:"lastProcessedAt,omitempty"`
	LastError          string     `json:"lastError,omitempty"`
}

// Processor claims pending tasks and runs them sequentially.
type Processor struct {
	store        Store
	registry     *Registry
	breaker      *Breaker
	clock        clock.Clock
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int
	taskTimeout  time.Duration
	workerID     string

	mu              sync.Mutex
	processed       int64
	successful      int64
	failed          int64
	lastProcessedAt time.Time
	lastError       string
	skipping        bool
}

// NewProcessor validates cfg and returns a Processor.
func NewProcessor(cfg Config) (*Processor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("taskqueue: Store is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("taskqueue: Registry is required")
	}
	if cfg.Breaker == nil {
		cfg.Breaker = NewBreaker(0, 0)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 2 * time.Minute
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = "gcbridge-" + uuid.NewString()
	}
	return &Processor{
		store:        cfg.Store,
		registry:     cfg.Registry,
		breaker:      cfg.Breaker,
		clock:        cfg.Clock,
		logger:       cfg.Logger.With("worker", cfg.WorkerID),
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		taskTimeout:  cfg.TaskTimeout,
		workerID:     cfg.WorkerID,
	}, nil
}

// Run polls immediately and then every PollInterval until ctx ends.
// Poll errors are logged and the loop continues.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info("task processor started", "poll_interval", p.pollInterval, "batch_size", p.batchSize)
	ticker := p.clock.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("task poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			p.logger.Info("task processor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// PollOnce runs one poll cycle and returns how many tasks reached a
// terminal state. While the breaker is open nothing is claimed. A
// batch stops early when the breaker opens part way through; the rest
// of its tasks stay pending.
func (p *Processor) PollOnce(ctx context.Context) (int, error) {
	if p.breakerOpen() {
		return 0, nil
	}

	tasks, err := p.store.Pending(ctx, p.batchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for index, task := range tasks {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		ran, err := p.process(ctx, task)
		if err != nil {
			return processed, err
		}
		if ran {
			processed++
		}
		if p.breaker.Open(p.clock.Now()) {
			p.logger.Warn("circuit breaker opened mid-batch",
				"recent_errors", p.breaker.Count(p.clock.Now()),
				"left_pending", len(tasks)-index-1,
			)
			break
		}
	}
	return processed, nil
}

// breakerOpen checks the breaker and logs transitions.
func (p *Processor) breakerOpen() bool {
	open := p.breaker.Open(p.clock.Now())
	p.mu.Lock()
	defer p.mu.Unlock()
	if open != p.skipping {
		if open {
			p.logger.Warn("circuit breaker open, skipping task polls",
				"threshold", p.breaker.Threshold())
		} else {
			p.logger.Info("circuit breaker closed, resuming task polls")
		}
		p.skipping = open
	}
	return open
}

// process runs one task. It reports false when another worker claimed
// the task first. Only store failures are returned as errors.
func (p *Processor) process(ctx context.Context, task Task) (bool, error) {
	logger := p.logger.With("task_id", task.ID, "task_type", task.Type)

	claimed, err := p.store.MarkRunning(ctx, task.ID, p.workerID)
	if err != nil {
		return false, err
	}
	if !claimed {
		logger.Debug("task already claimed")
		return false, nil
	}

	// Bookkeeping outlives cancellation so a claimed row never stays
	// running.
	bookkeeping := context.WithoutCancel(ctx)

	handler, ok := p.registry.Lookup(task.Type)
	if !ok {
		message := fmt.Sprintf("%v: %s", ErrUnknownType, task.Type)
		logger.Warn("task has no handler")
		if err := p.store.Fail(bookkeeping, task.ID, message); err != nil {
			return false, err
		}
		p.recordOutcome(false, message)
		return true, nil
	}

	started := p.clock.Now()
	result, err := p.invoke(ctx, handler, task.Payload)
	var encoded json.RawMessage
	if err == nil && result != nil {
		encoded, err = json.Marshal(result)
		if err != nil {
			err = fmt.Errorf("encoding result: %w", err)
		}
	}

	if err != nil {
		logger.Warn("task failed", "error", err, "attempt", task.Attempts+1)
		p.breaker.Record(p.clock.Now())
		if storeErr := p.store.Fail(bookkeeping, task.ID, err.Error()); storeErr != nil {
			return false, storeErr
		}
		p.recordOutcome(false, err.Error())
		return true, nil
	}

	if err := p.store.Complete(bookkeeping, task.ID, encoded); err != nil {
		return false, err
	}
	logger.Info("task done", "duration", p.clock.Now().Sub(started))
	p.recordOutcome(true, "")
	return true, nil
}

// invoke calls handler under TaskTimeout and turns a panic into an
// error.
func (p *Processor) invoke(ctx context.Context, handler Handler, payload json.RawMessage) (result any, err error) {
	ctx, cancel := context.WithTimeout(ctx, p.taskTimeout)
	defer cancel()
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("handler panicked: %v", recovered)
		}
	}()
	return handler(ctx, payload)
}

func (p *Processor) recordOutcome(success bool, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed++
	if success {
		p.successful++
	} else {
		p.failed++
		p.lastError = message
	}
	p.lastProcessedAt = p.clock.Now()
}

// Stats returns a snapshot of the counters.
func (p *Processor) Stats() Stats {
	now := p.clock.Now()
	recent := p.breaker.Count(now)

	p.mu.Lock()
	defer p.mu.Unlock()
	stats := Stats{
		WorkerID:           p.workerID,
		Processed:          p.processed,
		Successful:         p.successful,
		Failed:             p.failed,
		CircuitBreakerOpen: recent >= p.breaker.Threshold(),
		RecentErrors:       recent,
		LastError:          p.lastError,
	}
	if p.processed > 0 {
		stats.ErrorRate = float64(p.failed) / float64(p.processed)
	}
	if !p.lastProcessedAt.IsZero() {
		at := p.lastProcessedAt
		stats.LastProcessedAt = &at
	}
	return stats
}
