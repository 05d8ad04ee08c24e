// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

// Gcbridge keeps one Steam account logged on and its game coordinator
// session ready, and executes tasks other services queue in a shared
// SQLite database.
//
// Usage:
//
//	gcbridge run                       start the bridge
//	gcbridge enqueue TYPE [--payload]  queue a task
//	gcbridge tasks                     list recent tasks
//	gcbridge status                    show a running bridge's status
//	gcbridge guard-code                print the current authenticator code
//	gcbridge version                   print build information
//
// Configuration is a YAML file named by --config or GCBRIDGE_CONFIG.
// See lib/config for the fields and their defaults.
package main
