// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package presence keeps rich presence snapshots for a watchlist of
// Steam accounts.
//
// The watchlist is the union of identity columns in tables other
// processes own (account links and an explicit watchlist by default).
// The [Poller] re-reads that union every refresh interval, requests
// presence for each watched account every poll interval in chunks
// paced by a token bucket, and stores each answer Steam pushes back as
// a row of steam_presence. Accounts that leave the union stop being
// polled; their rows stay.
//
// Presence values arrive as loosely typed key/value pairs. [Normalize]
// turns every value into a string, lifts the handful of keys features
// query on into typed columns, and keeps the full set as JSON.
package presence
