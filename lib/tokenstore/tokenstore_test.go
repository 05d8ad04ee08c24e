// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package tokenstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "refresh-token.cbor")
	state := State{
		AccountName:  "bridgebot",
		RefreshToken: "eyJhbGciOiJFZERTQSJ9.first",
		SteamID:      76561197960287930,
		UpdatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := Write(path, state); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.AccountName != state.AccountName || got.RefreshToken != state.RefreshToken || got.SteamID != state.SteamID {
		t.Errorf("Read = %+v, want %+v", got, state)
	}
	if !got.UpdatedAt.Equal(state.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, state.UpdatedAt)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temporary file left behind: %v", err)
	}
}

func TestWriteOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	for _, token := range []string{"first", "second"} {
		if err := Write(path, State{AccountName: "bot", RefreshToken: token}); err != nil {
			t.Fatalf("Write %s: %v", token, err)
		}
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.RefreshToken != "second" {
		t.Errorf("RefreshToken = %q, want second", got.RefreshToken)
	}
}

func TestWriteRejectsEmptyToken(t *testing.T) {
	if err := Write(filepath.Join(t.TempDir(), "token"), State{AccountName: "bot"}); err == nil {
		t.Fatal("Write accepted an empty token")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")

	if _, ok, err := Load(path, "bot"); ok || err != nil {
		t.Fatalf("Load on missing file = ok %v, err %v", ok, err)
	}

	if err := Write(path, State{AccountName: "bot", RefreshToken: "t"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if state, ok, err := Load(path, "bot"); !ok || err != nil || state.RefreshToken != "t" {
		t.Fatalf("Load(bot) = %+v, %v, %v", state, ok, err)
	}
	if _, ok, err := Load(path, "other"); ok || err != nil {
		t.Fatalf("Load(other) = ok %v, err %v; want a miss", ok, err)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte{0xff, 0x00, 0x13}, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, _, err := Load(path, "bot"); err == nil {
		t.Fatal("Load accepted a corrupt file")
	}
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := Clear(path); err != nil {
		t.Fatalf("Clear on missing file: %v", err)
	}
	if err := Write(path, State{RefreshToken: "t"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := Clear(path); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("file still present: %v", err)
	}
}
