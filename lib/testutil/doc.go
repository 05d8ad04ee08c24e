// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers shared by the bridge's tests.
//
// Timers in the code under test run on lib/clock's fake clock, so
// tests never sleep. The Require helpers here are the one place a
// real timeout appears: a bound on how long a test waits for a
// goroutine to make progress before failing instead of hanging.
package testutil
