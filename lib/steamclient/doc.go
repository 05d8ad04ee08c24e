// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package steamclient is the production [steamsession.Transport],
// backed by a go-steam client.
//
// go-steam delivers its own event types on one channel and raw packets
// to registered handlers. A pump goroutine translates both into
// steamsession events on a single buffered channel, so the session
// manager sees the same event shapes it sees from the test transport.
//
// Coordinator messages travel inside ClientToGC / ClientFromGC
// envelopes. Outgoing bodies get the protobuf GC header (message type
// with the high bit set, then a zero header length); incoming bodies
// arrive with the header already removed by go-steam.
//
// Rich presence answers carry binary KeyValues, decoded by
// [DecodeKeyValues].
package steamclient
