// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Migration is one schema step. Version numbers start at 1 and must
// be consecutive within a migration list.
type Migration struct {
	Version int
	Script  string
}

// Migrate applies every migration whose version is above the
// database's user_version, in order, and records the new version. The
// whole run is one immediate transaction so two processes racing on
// startup serialize instead of applying a step twice.
func Migrate(conn *sqlite.Conn, migrations []Migration) (err error) {
	for i, m := range migrations {
		if m.Version != i+1 {
			return fmt.Errorf("sqlitepool: migration %d has version %d", i, m.Version)
		}
	}

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sqlitepool: begin migration: %w", err)
	}
	defer endFn(&err)

	current, err := UserVersion(conn)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := sqlitex.ExecuteScript(conn, m.Script, nil); err != nil {
			return fmt.Errorf("sqlitepool: migration %d: %w", m.Version, err)
		}
		if err := sqlitex.ExecuteTransient(conn, fmt.Sprintf("PRAGMA user_version=%d", m.Version), nil); err != nil {
			return fmt.Errorf("sqlitepool: recording version %d: %w", m.Version, err)
		}
	}
	return nil
}

// UserVersion returns the database's user_version pragma.
func UserVersion(conn *sqlite.Conn) (int, error) {
	var version int
	err := sqlitex.ExecuteTransient(conn, "PRAGMA user_version", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			version = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("sqlitepool: reading user_version: %w", err)
	}
	return version, nil
}
