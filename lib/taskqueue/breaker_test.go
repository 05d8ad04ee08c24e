// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue_test

import (
	"testing"
	"time"

	"github.com/lanternguild/gcbridge/lib/taskqueue"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	breaker := taskqueue.NewBreaker(5*time.Minute, 3)
	for i := range 2 {
		breaker.Record(testEpoch.Add(time.Duration(i) * time.Second))
	}
	if breaker.Open(testEpoch.Add(time.Minute)) {
		t.Fatal("open below threshold")
	}
	breaker.Record(testEpoch.Add(time.Minute))
	if !breaker.Open(testEpoch.Add(time.Minute)) {
		t.Fatal("closed at threshold")
	}
}

func TestBreakerClosesAsErrorsAgeOut(t *testing.T) {
	breaker := taskqueue.NewBreaker(5*time.Minute, 2)
	breaker.Record(testEpoch)
	breaker.Record(testEpoch.Add(time.Minute))

	if !breaker.Open(testEpoch.Add(4 * time.Minute)) {
		t.Fatal("closed inside the window")
	}
	// The first error is exactly one window old and no longer counts.
	if breaker.Open(testEpoch.Add(5 * time.Minute)) {
		t.Fatal("open after the oldest error aged out")
	}
	if got := breaker.Count(testEpoch.Add(5 * time.Minute)); got != 1 {
		t.Fatalf("Count = %d, want 1", got)
	}
	if got := breaker.Count(testEpoch.Add(10 * time.Minute)); got != 0 {
		t.Fatalf("Count = %d, want 0", got)
	}
}

func TestBreakerDefaults(t *testing.T) {
	breaker := taskqueue.NewBreaker(0, 0)
	if breaker.Threshold() != 5 {
		t.Fatalf("Threshold = %d, want 5", breaker.Threshold())
	}
	for range 5 {
		breaker.Record(testEpoch)
	}
	if !breaker.Open(testEpoch.Add(4*time.Minute + 59*time.Second)) {
		t.Fatal("default window shorter than five minutes")
	}
	if breaker.Open(testEpoch.Add(5 * time.Minute)) {
		t.Fatal("default window longer than five minutes")
	}
}
