// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the single source of time for the bridge.
//
// Every timer in the bridge (reconnect backoff, the app-session settle
// and warm-up delays, the hello watchdog, task and presence tickers,
// circuit breaker windows) is created through a [Clock] instead of the
// time package. Production wiring passes [Real]; tests pass [Fake] and
// move time forward with [FakeClock.Advance], which fires due timers
// synchronously and in deadline order.
//
// A test that starts a goroutine which will register a timer calls
// [FakeClock.WaitForTimers] before advancing, so registration and
// advancement never race:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go processor.Run(ctx)
//	fake.WaitForTimers(1)
//	fake.Advance(5 * time.Second)
package clock
