// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"

	"github.com/lanternguild/gcbridge/lib/presence"
	"github.com/lanternguild/gcbridge/lib/sqlitepool"
	"github.com/lanternguild/gcbridge/lib/taskqueue"
)

// Migrations is the ordered schema of the bridge's database. Append
// new steps; never edit applied ones.
func Migrations() []sqlitepool.Migration {
	return []sqlitepool.Migration{
		{Version: 1, Script: taskqueue.Schema},
		{Version: 2, Script: presence.Schema + presence.SourceSchema},
	}
}

// Migrate brings the database behind pool up to date.
func Migrate(ctx context.Context, pool *sqlitepool.Pool) error {
	err := pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitepool.Migrate(conn, Migrations())
	})
	if err != nil {
		return fmt.Errorf("bridge: migrating %s: %w", pool.Path(), err)
	}
	return nil
}
