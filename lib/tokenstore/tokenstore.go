// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package tokenstore persists the refresh token Steam issues on every
// login so the next run can log on without a password or guard code.
//
// The file is CBOR, mode 0600, and replaced atomically: written to a
// temporary file in the same directory, synced, then renamed over the
// old one. A crash mid-write leaves the previous token in place.
package tokenstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lanternguild/gcbridge/lib/codec"
)

// State is the persisted login state.
type State struct {
	AccountName  string    `cbor:"account_name"`
	RefreshToken string    `cbor:"refresh_token"`
	SteamID      uint64    `cbor:"steam_id,omitempty"`
	UpdatedAt    time.Time `cbor:"updated_at"`
}

// Write atomically replaces the file at path with state. The parent
// directory is created if missing.
func Write(path string, state State) error {
	if state.RefreshToken == "" {
		return fmt.Errorf("tokenstore: refusing to write an empty refresh token")
	}
	data, err := codec.Marshal(state)
	if err != nil {
		return fmt.Errorf("tokenstore: encoding state: %w", err)
	}

	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return fmt.Errorf("tokenstore: creating %s: %w", directory, err)
	}

	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("tokenstore: creating temporary file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("tokenstore: writing temporary file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("tokenstore: syncing temporary file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("tokenstore: closing temporary file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("tokenstore: renaming into place: %w", err)
	}

	// Make the rename durable.
	if parent, err := os.Open(directory); err == nil {
		parent.Sync()
		parent.Close()
	}
	return nil
}

// Read loads the state at path. A missing file wraps os.ErrNotExist.
func Read(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, err
	}
	var state State
	if err := codec.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("tokenstore: parsing %s: %w", path, err)
	}
	return state, nil
}

// Load returns the stored token for accountName. ok is false when no
// file exists or it belongs to another account, so switching the
// configured account never reuses a stale token.
func Load(path, accountName string) (State, bool, error) {
	state, err := Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, false, nil
		}
		return State{}, false, err
	}
	if accountName != "" && state.AccountName != "" && state.AccountName != accountName {
		return State{}, false, nil
	}
	if state.RefreshToken == "" {
		return State{}, false, nil
	}
	return state, true, nil
}

// Clear removes the file. A missing file is not an error.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("tokenstore: removing %s: %w", path, err)
	}
	return nil
}
