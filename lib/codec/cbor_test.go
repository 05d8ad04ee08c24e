// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
	"time"
)

type sampleState struct {
	AccountName string `cbor:"account_name"`
	SteamID     uint64 `cbor:"steam_id"`
	Token       string `cbor:"token,omitempty"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleState{AccountName: "bridgebot", SteamID: 76561197960287930, Token: "eyJ"}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sampleState
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	value := map[string]any{"zeta": 1, "alpha": 2, "mid": []int{3, 4}}
	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 20 {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding changed between calls: % x vs % x", first, again)
		}
	}
}

func TestUnmarshalAnyUsesStringKeys(t *testing.T) {
	data, err := Marshal(sampleState{AccountName: "bridgebot"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	fields, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded %T, want map[string]any", decoded)
	}
	if fields["account_name"] != "bridgebot" {
		t.Errorf("account_name = %v", fields["account_name"])
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	data, err := Marshal(map[string]any{"account_name": "x", "added_later": true})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sampleState
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.AccountName != "x" {
		t.Errorf("AccountName = %q", decoded.AccountName)
	}
}

func TestUnmarshalRejectsDuplicateKeys(t *testing.T) {
	// {"account_name": "a", "account_name": "b"}
	data := []byte{0xa2,
		0x6c, 'a', 'c', 'c', 'o', 'u', 'n', 't', '_', 'n', 'a', 'm', 'e', 0x61, 'a',
		0x6c, 'a', 'c', 'c', 'o', 'u', 'n', 't', '_', 'n', 'a', 'm', 'e', 0x61, 'b',
	}
	var decoded sampleState
	if err := Unmarshal(data, &decoded); err == nil {
		t.Fatalf("Unmarshal accepted a duplicate key: %+v", decoded)
	}
}

func TestTimeKeepsNanoseconds(t *testing.T) {
	type stamped struct {
		UpdatedAt time.Time `cbor:"updated_at"`
	}
	original := stamped{UpdatedAt: time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)}
	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Contains(data, []byte("2026-03-01T12:00:00.123456789Z")) {
		t.Errorf("encoded time is not RFC 3339: % x", data)
	}
	var decoded stamped
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !decoded.UpdatedAt.Equal(original.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", decoded.UpdatedAt, original.UpdatedAt)
	}
}
