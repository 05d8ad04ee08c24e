// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package steamid

import (
	"testing"

	gosteamid "github.com/Philipp15b/go-steam/v3/steamid"
)

func TestParseIndividual(t *testing.T) {
	id, err := Parse(" 76561197960287930 ")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if id.AccountID() != 22202 {
		t.Errorf("AccountID = %d, want 22202", id.AccountID())
	}
	if id.String() != "76561197960287930" {
		t.Errorf("String = %s", id)
	}
	if FromAccountID(22202) != id {
		t.Errorf("FromAccountID(22202) = %d, want %d", FromAccountID(22202), id)
	}
}

func TestParseRejects(t *testing.T) {
	for _, input := range []string{
		"",
		"abc",
		"-1",
		"12345",                 // universe 0
		"103582791429521412",    // clan account type
		"76561197960265728",     // account id zero
		"999999999999999999999", // overflow
		"1229482702567134906",   // universe 17 (0x11) in the high bits
	} {
		if _, err := Parse(input); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", input)
		}
	}
}

func TestSteamIDConversion(t *testing.T) {
	id := FromAccountID(22202)
	steam := id.SteamID()
	if steam.GetAccountInstance() != 1 || steam.GetAccountUniverse() != 1 || steam.GetAccountType() != 1 {
		t.Errorf("fields = instance %d universe %d type %d", steam.GetAccountInstance(), steam.GetAccountUniverse(), steam.GetAccountType())
	}
	if FromSteamID(gosteamid.SteamId(76561197960287930)) != id {
		t.Errorf("FromSteamID mismatch")
	}
	if id.Universe() != 1 || id.AccountType() != 1 {
		t.Errorf("Universe = %d, AccountType = %d", id.Universe(), id.AccountType())
	}
}
