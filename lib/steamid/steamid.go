// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package steamid parses and validates 64-bit Steam identities.
//
// The bit layout is go-steam's [gosteamid.SteamId]. Watchlists and
// presence rows only ever hold individual accounts in the public
// universe, so [Parse] rejects everything else.
package steamid

import (
	"fmt"
	"strconv"
	"strings"

	gosteamid "github.com/Philipp15b/go-steam/v3/steamid"
)

// ID is a SteamID64.
type ID uint64

const (
	universePublic        int32  = 1
	accountTypeIndividual int32  = 1
	desktopInstance       uint32 = 1
)

// FromAccountID builds the individual public-universe ID for a 32-bit
// account id.
func FromAccountID(accountID uint32) ID {
	return FromSteamID(gosteamid.NewIdAdv(accountID, desktopInstance, universePublic, accountTypeIndividual))
}

// FromSteamID converts go-steam's representation.
func FromSteamID(id gosteamid.SteamId) ID { return ID(id.ToUint64()) }

// SteamID returns go-steam's representation.
func (id ID) SteamID() gosteamid.SteamId { return gosteamid.SteamId(id) }

// Parse accepts a decimal SteamID64 and validates that it names an
// individual account in the public universe. The legacy STEAM_X:Y:Z
// form is not accepted.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("steamid: empty identity")
	}
	value, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("steamid: %q is not a 64-bit decimal: %w", s, err)
	}
	id := ID(value)
	if err := id.Validate(); err != nil {
		return 0, err
	}
	return id, nil
}

// Validate reports whether id is an individual public-universe account
// with a non-zero account id. Bits above the universe field must be
// clear.
func (id ID) Validate() error {
	steam := id.SteamID()
	if uint64(id)>>60 != 0 || steam.GetAccountUniverse() != universePublic {
		return fmt.Errorf("steamid: %d is not in the public universe", uint64(id))
	}
	if steam.GetAccountType() != accountTypeIndividual {
		return fmt.Errorf("steamid: %d has account type %d, want individual", uint64(id), steam.GetAccountType())
	}
	if steam.GetAccountId() == 0 {
		return fmt.Errorf("steamid: %d has a zero account id", uint64(id))
	}
	return nil
}

// AccountID returns the 32-bit account id.
func (id ID) AccountID() uint32 { return id.SteamID().GetAccountId() }

// Universe returns the universe field.
func (id ID) Universe() int32 { return id.SteamID().GetAccountUniverse() }

// AccountType returns the account type field.
func (id ID) AccountType() int32 { return id.SteamID().GetAccountType() }

// String is the decimal SteamID64. go-steam's String renders the
// legacy STEAM_0:Y:Z form instead.
func (id ID) String() string { return id.SteamID().ToString() }
