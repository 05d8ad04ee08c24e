// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package gcwire encodes and decodes the subset of the Protocol Buffers
// wire format that game coordinator messages need, without generated
// message types.
//
// A field is a varint tag (number<<3 | wire type) followed by its
// payload. Three wire types are produced: [Varint] (base-128 little
// endian), [Fixed64] (eight little-endian bytes), and [Bytes] (varint
// length prefix then raw bytes). [Fixed32] is accepted when decoding so
// that responses using it can be skipped.
//
// Message types are assembled with [Builder]:
//
//	actor := gcwire.NewBuilder().Varint(1, kind).Varint(2, accountID)
//	payload := gcwire.NewBuilder().Message(1, actor).Encode()
//
// Decoding is tolerant by contract. Coordinator responses are not under
// our control, so [ParseVarint] stops at the end of a truncated buffer
// instead of failing, and [DecodeField] / [DecodeTopLevelField] report
// malformed input with ok=false. Callers treat a failed decode as "field
// not present".
package gcwire
