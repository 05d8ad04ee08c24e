// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the bridge's CBOR configuration.
//
// CBOR is used for on-disk state the bridge writes for itself, such as
// the refresh token file. Everything an operator or a web service
// reads (task payloads, results, the HTTP API, CLI --json output)
// is JSON.
//
// The encoder uses Core Deterministic Encoding: the same value always
// produces the same bytes, so a token file only changes on disk when
// its contents change.
package codec
