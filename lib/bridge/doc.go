// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge ties the Steam session, the coordinator handshake,
// the task processor and the presence poller together.
//
// It owns the database schema of the whole process ([Migrations]), the
// built-in task handlers ([Handlers]) that turn queued commands into
// session and handshake operations, and the status snapshot
// ([Reporter]) other processes read to decide whether a command can be
// queued now.
package bridge
