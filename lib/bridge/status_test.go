// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/lanternguild/gcbridge/lib/gcsession"
	"github.com/lanternguild/gcbridge/lib/sqlitepool"
	"github.com/lanternguild/gcbridge/lib/steamsession"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

func TestPhaseOf(t *testing.T) {
	ready := &gcsession.Status{GCReady: true}
	waiting := &gcsession.Status{AppActive: true}
	tests := []struct {
		name    string
		session steamsession.Status
		gc      *gcsession.Status
		want    Phase
	}{
		{"logged out", steamsession.Status{}, nil, PhaseLoggedOut},
		{"logging in", steamsession.Status{LoggingIn: true}, nil, PhaseLoggingIn},
		{"guard wins over logging in", steamsession.Status{LoggingIn: true, HasPendingGuard: true}, nil, PhaseAwaitingGuard},
		{"logged on without coordinator", steamsession.Status{LoggedOn: true}, nil, PhaseGCNotReady},
		{"logged on, coordinator warming", steamsession.Status{LoggedOn: true}, waiting, PhaseGCNotReady},
		{"ready", steamsession.Status{LoggedOn: true}, ready, PhaseReady},
		{"stale coordinator after logout", steamsession.Status{}, ready, PhaseLoggedOut},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := phaseOf(test.session, test.gc); got != test.want {
				t.Errorf("phaseOf = %s, want %s", got, test.want)
			}
		})
	}
}

func TestMigrateCreatesEveryTable(t *testing.T) {
	pool, err := sqlitepool.Open(sqlitepool.Config{Path: filepath.Join(t.TempDir(), "bridge.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()
	ctx := context.Background()

	// Twice: the second run has nothing to apply.
	for range 2 {
		if err := Migrate(ctx, pool); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
	}

	err = pool.With(ctx, func(conn *sqlite.Conn) error {
		version, err := sqlitepool.UserVersion(conn)
		if err != nil {
			return err
		}
		if version != len(Migrations()) {
			t.Errorf("user_version = %d, want %d", version, len(Migrations()))
		}
		tables := map[string]bool{}
		err = sqlitex.Execute(conn, "SELECT name FROM sqlite_master WHERE type = 'table'", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				tables[stmt.ColumnText(0)] = true
				return nil
			},
		})
		if err != nil {
			return err
		}
		for _, name := range []string{"gc_tasks", "steam_presence", "steam_links", "steam_watchlist"} {
			if !tables[name] {
				t.Errorf("table %s missing after Migrate", name)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("inspecting schema: %v", err)
	}
}
