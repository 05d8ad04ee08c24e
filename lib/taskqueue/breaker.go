// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"sync"
	"time"
)

// Breaker counts errors over a rolling window. It is open while the
// count of errors younger than the window is at or above the
// threshold, and closes again on its own as they age out.
type Breaker struct {
	window    time.Duration
	threshold int

	mu     sync.Mutex
	errors []time.Time
}

// NewBreaker returns a closed breaker. Non-positive arguments take
// the defaults of five minutes and five errors.
func NewBreaker(window time.Duration, threshold int) *Breaker {
	if window <= 0 {
		window = 5 * time.Minute
	}
	if threshold <= 0 {
		threshold = 5
	}
	return &Breaker{window: window, threshold: threshold}
}

// Record counts one error at time at.
func (b *Breaker) Record(at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errors = append(b.errors, at)
}

// Open reports whether the breaker is open at now.
func (b *Breaker) Open(now time.Time) bool {
	return b.Count(now) >= b.threshold
}

// Count returns the errors still inside the window at now, dropping
// the older ones.
func (b *Breaker) Count(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	cutoff := now.Add(-b.window)
	kept := b.errors[:0]
	for _, at := range b.errors {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	b.errors = kept
	return len(b.errors)
}

// Threshold returns the error count that opens the breaker.
func (b *Breaker) Threshold() int { return b.threshold }
