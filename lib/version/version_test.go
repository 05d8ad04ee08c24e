// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"strings"
	"testing"
)

func TestInfoUsesLinkerValues(t *testing.T) {
	savedCommit, savedDirty := GitCommit, GitDirty
	t.Cleanup(func() { GitCommit, GitDirty = savedCommit, savedDirty })

	GitCommit = "abc1234"
	GitDirty = "false"
	if got := Info(); !strings.Contains(got, "(abc1234, ") {
		t.Errorf("Info() = %q, want the linked commit", got)
	}
	GitDirty = "true"
	if got := Info(); !strings.Contains(got, "abc1234-dirty") {
		t.Errorf("dirty build not marked: %s", got)
	}
}

func TestInfoStartsWithVersion(t *testing.T) {
	if got := Info(); !strings.HasPrefix(got, Version+" (") {
		t.Errorf("Info() = %q", got)
	}
}

func TestFullIncludesPlatform(t *testing.T) {
	full := Full()
	if !strings.HasPrefix(full, Info()) || !strings.Contains(full, "Platform:") {
		t.Errorf("Full() = %q", full)
	}
}
