// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret keeps the bridge account's password, authenticator
// shared secret and refresh token out of the Go heap while they are
// not being used.
//
// A [Buffer] is an anonymous mmap region excluded from core dumps and,
// when the process is allowed to, locked against swap. Close zeroes
// and unmaps it. Values are copied to the heap only at the moment they
// are handed to the Steam client, which takes strings.
package secret
