// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/lanternguild/gcbridge/lib/sqlitepool"
	"github.com/lanternguild/gcbridge/lib/steamid"
)

// ErrNotFound is returned by Get for an account with no snapshot.
var ErrNotFound = errors.New("presence: no snapshot")

// Schema creates the presence table. last_update is unix
// milliseconds.
const Schema = `
CREATE TABLE IF NOT EXISTS steam_presence (
	steam_id    TEXT    PRIMARY KEY,
	app_id      INTEGER,
	status      TEXT,
	display     TEXT,
	group_id    TEXT,
	group_size  INTEGER,
	connect     TEXT,
	raw         TEXT    NOT NULL DEFAULT '{}',
	last_update INTEGER NOT NULL
);
`

// SourceSchema creates the default watchlist source tables. Other
// processes own and fill them; the bridge creates them only so a fresh
// database works.
const SourceSchema = `
CREATE TABLE IF NOT EXISTS steam_links (
	user_id    TEXT PRIMARY KEY,
	steam_id   TEXT NOT NULL,
	created_at INTEGER
);
CREATE TABLE IF NOT EXISTS steam_watchlist (
	steam_id TEXT PRIMARY KEY,
	added_by TEXT,
	added_at INTEGER
);
`

// Source is one table column holding watched identities.
type Source struct {
	Table  string
	Column string
}

// DefaultSources returns the account link and watchlist columns.
func DefaultSources() []Source {
	return []Source{
		{Table: "steam_links", Column: "steam_id"},
		{Table: "steam_watchlist", Column: "steam_id"},
	}
}

// Store is the persistence the Poller needs.
type Store interface {
	// WatchedIdentities returns the distinct raw identity strings of
	// every source. Values are not validated.
	WatchedIdentities(ctx context.Context) ([]string, error)

	// Upsert replaces the snapshot of s.SteamID.
	Upsert(ctx context.Context, s Snapshot) error
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLStore reads sources and writes snapshots in the shared database.
type SQLStore struct {
	pool       *sqlitepool.Pool
	unionQuery string
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore returns a store reading sources. Table and column names
// are interpolated into SQL, so they must be plain identifiers.
func NewSQLStore(pool *sqlitepool.Pool, sources []Source) (*SQLStore, error) {
	if len(sources) == 0 {
		sources = DefaultSources()
	}
	selects := make([]string, 0, len(sources))
	for _, source := range sources {
		if !identifierPattern.MatchString(source.Table) || !identifierPattern.MatchString(source.Column) {
			return nil, fmt.Errorf("presence: source %s.%s is not a plain identifier", source.Table, source.Column)
		}
		selects = append(selects, fmt.Sprintf(
			"SELECT CAST(%[2]s AS TEXT) FROM %[1]s WHERE %[2]s IS NOT NULL", source.Table, source.Column))
	}
	return &SQLStore{pool: pool, unionQuery: strings.Join(selects, " UNION ")}, nil
}

// WatchedIdentities implements Store.
func (s *SQLStore) WatchedIdentities(ctx context.Context) ([]string, error) {
	var identities []string
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, s.unionQuery, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				identities = append(identities, stmt.ColumnText(0))
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("presence: reading watchlist: %w", err)
	}
	return identities, nil
}

// Upsert implements Store.
func (s *SQLStore) Upsert(ctx context.Context, snapshot Snapshot) error {
	raw, err := json.Marshal(snapshot.Values)
	if err != nil {
		return fmt.Errorf("presence: encoding values of %s: %w", snapshot.SteamID, err)
	}
	if snapshot.Values == nil {
		raw = []byte("{}")
	}
	var groupSize any
	if snapshot.GroupSize != nil {
		groupSize = *snapshot.GroupSize
	}

	const query = `INSERT INTO steam_presence
		(steam_id, app_id, status, display, group_id, group_size, connect, raw, last_update)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (steam_id) DO UPDATE SET
			app_id = excluded.app_id,
			status = excluded.status,
			display = excluded.display,
			group_id = excluded.group_id,
			group_size = excluded.group_size,
			connect = excluded.connect,
			raw = excluded.raw,
			last_update = excluded.last_update`

	err = s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: []any{
				snapshot.SteamID.String(),
				int64(snapshot.AppID),
				snapshot.Status,
				snapshot.Display,
				snapshot.GroupID,
				groupSize,
				snapshot.Connect,
				string(raw),
				snapshot.UpdatedAt.UnixMilli(),
			},
		})
	})
	if err != nil {
		return fmt.Errorf("presence: upserting %s: %w", snapshot.SteamID, err)
	}
	return nil
}

// Get returns the stored snapshot of id.
func (s *SQLStore) Get(ctx context.Context, id steamid.ID) (Snapshot, error) {
	var (
		snapshot Snapshot
		found    bool
		scanErr  error
	)
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"SELECT app_id, status, display, group_id, group_size, connect, raw, last_update FROM steam_presence WHERE steam_id = ?",
			&sqlitex.ExecOptions{
				Args: []any{id.String()},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					found = true
					snapshot = Snapshot{
						SteamID:   id,
						AppID:     uint32(stmt.ColumnInt64(0)),
						Status:    stmt.ColumnText(1),
						Display:   stmt.ColumnText(2),
						GroupID:   stmt.ColumnText(3),
						Connect:   stmt.ColumnText(5),
						UpdatedAt: time.UnixMilli(stmt.ColumnInt64(7)),
					}
					if !stmt.ColumnIsNull(4) {
						size := stmt.ColumnInt(4)
						snapshot.GroupSize = &size
					}
					scanErr = json.Unmarshal([]byte(stmt.ColumnText(6)), &snapshot.Values)
					return nil
				},
			})
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("presence: get %s: %w", id, err)
	}
	if !found {
		return Snapshot{}, fmt.Errorf("%w for %s", ErrNotFound, id)
	}
	if scanErr != nil {
		return Snapshot{}, fmt.Errorf("presence: decoding values of %s: %w", id, scanErr)
	}
	return snapshot, nil
}
