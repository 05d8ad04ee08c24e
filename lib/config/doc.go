// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the bridge's YAML configuration.
//
// The file is named by the --config flag ([LoadFile]) or the
// GCBRIDGE_CONFIG environment variable ([Load]). There is no search
// path and no per-field environment override. Secrets are kept out of
// the file with ${VAR} and ${VAR:-default} references, which are
// expanded in every string field after the file is parsed. ${STATE_DIR}
// refers to the configured state_dir.
//
// Durations are written the way time.ParseDuration reads them ("5s",
// "1m30s"). [Config.Validate] reports every problem at once.
package config
