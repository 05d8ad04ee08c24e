// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package steamsession

import "time"

// ReconnectPolicy schedules reconnects after unexpected disconnects.
type ReconnectPolicy struct {
	// Base is the first delay. Each further attempt multiplies it by
	// 1.5 up to Max.
	Base time.Duration
	Max  time.Duration

	// Jitter spreads each delay uniformly over ±Jitter.
	Jitter time.Duration

	// RateLimitDelay replaces the schedule after a rate-limit failure.
	RateLimitDelay time.Duration
}

// DefaultReconnectPolicy starts at 5s, caps at 5m and jitters by 1s.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Base:           5 * time.Second,
		Max:            5 * time.Minute,
		Jitter:         time.Second,
		RateLimitDelay: 60 * time.Second,
	}
}

const backoffFactor = 1.5

// Backoff returns the delay before reconnect attempt number attempt
// (0-based). random is a uniform sample in [0, 1) that places the
// jitter.
func (p ReconnectPolicy) Backoff(attempt int, random float64) time.Duration {
	delay := float64(p.Base)
	for range attempt {
		delay *= backoffFactor
		if delay >= float64(p.Max) {
			break
		}
	}
	if delay > float64(p.Max) {
		delay = float64(p.Max)
	}
	delay += float64(p.Jitter) * (2*random - 1)
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Delay returns the wait before reconnecting after an error of class.
// ok is false for ClassAuth, which is never retried.
func (p ReconnectPolicy) Delay(class Class, attempt int, random float64) (delay time.Duration, ok bool) {
	switch class {
	case ClassAuth:
		return 0, false
	case ClassRateLimit:
		return p.RateLimitDelay, true
	default:
		return p.Backoff(attempt, random), true
	}
}
