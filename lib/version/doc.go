// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the build of the running gcbridge binary.
//
//	go build -ldflags "-X github.com/lanternguild/gcbridge/lib/version.GitCommit=$(git rev-parse --short HEAD)" ./cmd/gcbridge
//
// Without ldflags the values read "unknown" and "0.1.0-dev".
package version
