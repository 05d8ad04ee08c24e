// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package presence

import (
	"fmt"
	"strconv"
	"time"

	"github.com/lanternguild/gcbridge/lib/steamid"
)

// Rich presence keys lifted into typed columns.
const (
	KeyStatus    = "status"
	KeyDisplay   = "steam_display"
	KeyGroupID   = "steam_player_group"
	KeyGroupSize = "steam_player_group_size"
	KeyConnect   = "connect"
)

// Snapshot is one account's latest presence.
type Snapshot struct {
	SteamID   steamid.ID        `json:"steamId,string"`
	AppID     uint32            `json:"appId,omitempty"`
	Status    string            `json:"status,omitempty"`
	Display   string            `json:"display,omitempty"`
	GroupID   string            `json:"groupId,omitempty"`
	GroupSize *int              `json:"groupSize,omitempty"`
	Connect   string            `json:"connect,omitempty"`
	Values    map[string]string `json:"values"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Normalize builds a snapshot from raw presence values. Every value
// becomes a string; a group size that is not an integer is left out of
// the typed column but kept in Values.
func Normalize(id steamid.ID, appID uint32, raw map[string]any, at time.Time) Snapshot {
	values := make(map[string]string, len(raw))
	for key, value := range raw {
		values[key] = normalizeValue(value)
	}
	snapshot := Snapshot{
		SteamID:   id,
		AppID:     appID,
		Status:    values[KeyStatus],
		Display:   values[KeyDisplay],
		GroupID:   values[KeyGroupID],
		Connect:   values[KeyConnect],
		Values:    values,
		UpdatedAt: at,
	}
	if size, err := strconv.Atoi(values[KeyGroupSize]); err == nil {
		snapshot.GroupSize = &size
	}
	return snapshot
}

func normalizeValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
