// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package taskqueue runs commands that other processes queue in the
// shared database's gc_tasks table.
//
// A task moves pending -> running -> done or failed, and never leaves
// a terminal state. Producers insert rows; the [Processor] claims the
// oldest pending rows in batches and runs them one at a time through
// the [Registry] handler for their type. The processor never re-queues
// a failed task: whoever produced it decides whether to submit it
// again.
//
// A [Breaker] counts handler errors over a rolling window. While the
// count is at or above its threshold the processor claims nothing, so
// a systemic fault such as a lost Steam session does not burn through
// the queue with attempts that are certain to fail. A task whose type
// has no handler fails at once and does not count toward the breaker:
// it is a producer bug, not a fault of the bridge.
package taskqueue
