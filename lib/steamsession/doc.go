// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package steamsession owns the bridge's logged-in Steam connection.
//
// A [Manager] moves through four states:
//
//	LoggedOut -> LoggingIn -> LoggedOn
//	LoggingIn -> AwaitingGuard -> LoggingIn   (second factor demanded)
//	LoggedOn  -> LoggedOut                    (disconnect or Logout)
//
// The network sits behind the [Transport] interface. lib/steamclient
// implements it over go-steam; lib/steamtest provides a scripted fake
// so every transition can be driven from a test without a connection.
//
// [Manager.Run] is the event loop. It is the only goroutine that reads
// transport events, and it calls subscribed [Listener]s synchronously,
// one event at a time, after the manager has applied the event to its
// own state. Public methods take the manager's lock briefly and never
// wait on the network, except [Manager.Login] and
// [Manager.AwaitLoggedOn], which wait for the loop to report an
// outcome.
//
// # Guard challenges
//
// When Steam asks for a second factor the manager parks a single
// pending challenge and Login returns with [LoginResult.Guard] set.
// Further Login calls fail with [ErrGuardPending] until
// [Manager.SubmitGuardCode] resolves it. Authenticator challenges are
// answered automatically when a shared secret is configured, and a
// static guard code is tried once, but a challenge reporting that the
// previous code was wrong is never answered automatically twice.
//
// # Reconnects
//
// Unexpected disconnects are retried on an exponential schedule
// ([ReconnectPolicy]). Rate-limit failures wait a fixed, longer delay.
// Authentication failures are not retried: they need new credentials.
// See [Classify].
package steamsession
