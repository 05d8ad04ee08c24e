// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/lanternguild/gcbridge/lib/sqlitepool"
)

func TestOpenAppliesPragmas(t *testing.T) {
	pool := openTestPool(t, nil)
	ctx := context.Background()

	err := pool.With(ctx, func(conn *sqlite.Conn) error {
		var journalMode string
		var busyTimeout int
		if err := sqlitex.Execute(conn, "PRAGMA journal_mode", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				journalMode = stmt.ColumnText(0)
				return nil
			},
		}); err != nil {
			return err
		}
		if err := sqlitex.Execute(conn, "PRAGMA busy_timeout", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				busyTimeout = stmt.ColumnInt(0)
				return nil
			},
		}); err != nil {
			return err
		}
		if journalMode != "wal" {
			t.Errorf("journal_mode = %q, want wal", journalMode)
		}
		if busyTimeout != 5000 {
			t.Errorf("busy_timeout = %d, want 5000", busyTimeout)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("With: %v", err)
	}
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "bridge.db")
	pool, err := sqlitepool.Open(sqlitepool.Config{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()
	if err := pool.With(context.Background(), func(*sqlite.Conn) error { return nil }); err != nil {
		t.Fatalf("With: %v", err)
	}
	if pool.Path() != path {
		t.Errorf("Path() = %q, want %q", pool.Path(), path)
	}
}

func TestOnConnectErrorSurfacesFromTake(t *testing.T) {
	failure := errors.New("no schema for you")
	pool := openTestPool(t, func(*sqlite.Conn) error { return failure })
	if _, err := pool.Take(context.Background()); !errors.Is(err, failure) {
		t.Fatalf("Take error = %v, want %v", err, failure)
	}
}

func TestEmptyPathRejected(t *testing.T) {
	if _, err := sqlitepool.Open(sqlitepool.Config{}); err == nil {
		t.Fatal("expected error for empty Path")
	}
}

func TestTakeHonoursCancelledContext(t *testing.T) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     filepath.Join(t.TempDir(), "cancel.db"),
		PoolSize: 1,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pool.Take(ctx); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestMigrateAppliesOnlyNewSteps(t *testing.T) {
	pool := openTestPool(t, nil)
	ctx := context.Background()

	first := []sqlitepool.Migration{
		{Version: 1, Script: `CREATE TABLE tasks (id TEXT PRIMARY KEY);`},
	}
	second := append(first, sqlitepool.Migration{
		Version: 2, Script: `ALTER TABLE tasks ADD COLUMN status TEXT NOT NULL DEFAULT 'PENDING';`,
	})

	err := pool.With(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitepool.Migrate(conn, first); err != nil {
			return err
		}
		// Running the same list again is a no-op.
		if err := sqlitepool.Migrate(conn, first); err != nil {
			return err
		}
		if err := sqlitepool.Migrate(conn, second); err != nil {
			return err
		}
		version, err := sqlitepool.UserVersion(conn)
		if err != nil {
			return err
		}
		if version != 2 {
			t.Errorf("user_version = %d, want 2", version)
		}
		return sqlitex.Execute(conn, "INSERT INTO tasks (id) VALUES ('a')", nil)
	})
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func TestMigrateRejectsGaps(t *testing.T) {
	pool := openTestPool(t, nil)
	err := pool.With(context.Background(), func(conn *sqlite.Conn) error {
		return sqlitepool.Migrate(conn, []sqlitepool.Migration{{Version: 2, Script: "SELECT 1"}})
	})
	if err == nil {
		t.Fatal("Migrate accepted a list starting at version 2")
	}
}

func openTestPool(t *testing.T, onConnect func(*sqlite.Conn) error) *sqlitepool.Pool {
	t.Helper()

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:      filepath.Join(t.TempDir(), "test.db"),
		PoolSize:  2,
		OnConnect: onConnect,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return pool
}
