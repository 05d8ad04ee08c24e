// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens the bridge's SQLite database as a small
// pool of connections shared by the task store and the presence store.
//
// Connections come from zombiezen's sqlitex.Pool. Callers [Pool.Take]
// a connection, do their work and [Pool.Put] it back; [Pool.With]
// wraps that pair. A connection is never shared between goroutines.
//
// Every connection is prepared with WAL journaling, NORMAL
// synchronous and a five second busy timeout, so the task processor
// and the presence poller can write from separate goroutines without
// SQLITE_BUSY surfacing as task failures.
//
// Each store exports its schema script. Because user_version is one
// number per database, the scripts are ordered into a single migration
// list by the package that opens the database, and [Migrate] applies
// the steps newer than user_version inside one immediate transaction.
package sqlitepool
