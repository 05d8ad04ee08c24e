// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package gcsession drives a game coordinator handshake on top of a
// logged-on Steam session.
//
// A coordinator only routes messages to clients that are playing its
// app, and only after it has answered a hello with a welcome. The
// [Machine] moves through four states:
//
//	Idle ──EnsureAppSession──▶ AppRequested ──warm-up──▶ HelloSent ──welcome──▶ Ready
//	  ▲                                                                          │
//	  └───────────────── CloseApp, disconnect, log off ──────────────────────────┘
//
// EnsureAppSession first reports "playing nothing" and then, after a
// short settle delay, "playing the app", because some coordinators
// only notice a fresh session when the previous one was clearly
// cleared. A warm-up delay later the hello goes out. Each hello arms a
// single watchdog slot; if no welcome arrives in time the next hello
// alternates between the legacy form and a rebuilt primary form, up to
// a bounded number of attempts.
//
// Every timer runs through a [clock.Clock] and carries a generation
// number, so a callback that lost a race with a state change does
// nothing. Callers blocked in [Machine.AwaitReady] are resolved or
// rejected exactly once: all succeed on the welcome, all fail with
// [ErrSessionDisconnected] or [ErrAppClosed] when the session goes
// away first.
//
// [HelloBuilder] encodes the hello payloads and caches each form until
// its inputs change or a rebuild is forced. [EncodeInvite] and
// [DecodeInviteResponse] handle the playtest invite exchange, whose
// decoder degrades to "no result" on anything unexpected.
package gcsession
