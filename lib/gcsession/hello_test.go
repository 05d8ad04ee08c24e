// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package gcsession_test

import (
	"bytes"
	"testing"

	"github.com/lanternguild/gcbridge/lib/gcsession"
	"github.com/lanternguild/gcbridge/lib/gcwire"
)

var (
	tokenA = []byte{0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18}
	tokenB = []byte{0x21, 0x22, 0x23, 0x24, 0x25, 0x26, 0x27, 0x28}
	tokenC = []byte{0x31, 0x32, 0x33}
)

// fields returns the top-level fields of buf in order.
func fields(t *testing.T, buf []byte) []gcwire.Field {
	t.Helper()
	var out []gcwire.Field
	if !gcwire.Scan(buf, func(f gcwire.Field) bool {
		out = append(out, f)
		return true
	}) {
		t.Fatalf("malformed message % x", buf)
	}
	return out
}

func TestBuildReturnsCachedPayload(t *testing.T) {
	builder := gcsession.NewHelloBuilder(gcsession.DefaultHelloProfile())
	inputs := gcsession.HelloInputs{AccountID: 77, Tokens: [][]byte{tokenA, tokenB}}

	first := builder.Build(inputs, false)
	second := builder.Build(inputs, false)
	if first.Cached || !second.Cached {
		t.Fatalf("Cached flags = %v, %v; want false, true", first.Cached, second.Cached)
	}
	if &first.Payload[0] != &second.Payload[0] {
		t.Fatal("second Build did not return the cached buffer")
	}
	if first.Digest != second.Digest || len(first.Digest) != 16 {
		t.Fatalf("digests = %q, %q", first.Digest, second.Digest)
	}

	forced := builder.Build(inputs, true)
	if forced.Cached {
		t.Fatal("forced Build reported a cached payload")
	}
	if &forced.Payload[0] == &first.Payload[0] {
		t.Fatal("forced Build reused the cached buffer")
	}
	if !bytes.Equal(forced.Payload, first.Payload) {
		t.Fatal("forced Build changed the content for the same inputs")
	}
}

func TestBuildRebuildsWhenInputsChange(t *testing.T) {
	builder := gcsession.NewHelloBuilder(gcsession.DefaultHelloProfile())
	first := builder.Build(gcsession.HelloInputs{AccountID: 77, Tokens: [][]byte{tokenA}}, false)
	second := builder.Build(gcsession.HelloInputs{AccountID: 77, Tokens: [][]byte{tokenB}}, false)
	if second.Cached || bytes.Equal(first.Payload, second.Payload) {
		t.Fatal("new token did not produce a new payload")
	}
}

func TestBuildFallsBackToLegacy(t *testing.T) {
	builder := gcsession.NewHelloBuilder(gcsession.DefaultHelloProfile())
	cases := map[string]gcsession.HelloInputs{
		"no tokens":     {AccountID: 77},
		"no account id": {Tokens: [][]byte{tokenA}},
		"nothing":       {},
	}
	for name, inputs := range cases {
		hello := builder.Build(inputs, false)
		if !hello.Legacy || len(hello.Payload) == 0 {
			t.Errorf("%s: Build = %+v, want a non-empty legacy payload", name, hello)
			continue
		}
		top := fields(t, hello.Payload)
		if len(top) != 1 || top[0].Number != 1 || top[0].Type != gcwire.Bytes {
			t.Errorf("%s: legacy payload fields = %+v, want only the actor", name, top)
			continue
		}
		actor := fields(t, top[0].Bytes)
		if actor[0].Number != 1 || actor[0].Uint != 1 {
			t.Errorf("%s: actor kind field = %+v", name, actor[0])
		}
		wantFields := 1
		if inputs.AccountID != 0 {
			wantFields = 2
		}
		if len(actor) != wantFields {
			t.Errorf("%s: actor has %d fields, want %d", name, len(actor), wantFields)
		}
	}
}

func TestBuildLegacyIsCachedSeparately(t *testing.T) {
	builder := gcsession.NewHelloBuilder(gcsession.DefaultHelloProfile())
	inputs := gcsession.HelloInputs{AccountID: 77, Tokens: [][]byte{tokenA}}

	primary := builder.Build(inputs, false)
	legacy := builder.BuildLegacy(inputs, false)
	again := builder.Build(inputs, false)
	if primary.Legacy || !legacy.Legacy {
		t.Fatalf("Legacy flags = %v, %v", primary.Legacy, legacy.Legacy)
	}
	if !again.Cached {
		t.Fatal("building the legacy form evicted the primary cache")
	}
	if cached := builder.BuildLegacy(inputs, false); !cached.Cached {
		t.Fatal("legacy payload was not cached")
	}

	builder.Invalidate()
	if builder.Build(inputs, false).Cached || builder.BuildLegacy(inputs, false).Cached {
		t.Fatal("Invalidate kept a cached payload")
	}
}

func TestPrimaryHelloLayout(t *testing.T) {
	profile := gcsession.DefaultHelloProfile()
	builder := gcsession.NewHelloBuilder(profile)
	hello := builder.Build(gcsession.HelloInputs{AccountID: 77, Tokens: [][]byte{tokenA, tokenB, tokenC}}, false)

	top := fields(t, hello.Payload)
	var entries []gcwire.Field
	scalars := map[int]uint64{}
	var hints []gcwire.Field
	for _, field := range top {
		switch field.Number {
		case 1:
			entries = append(entries, field)
		case 4:
			hints = fields(t, field.Bytes)
		default:
			scalars[field.Number] = field.Uint
		}
	}

	if len(entries) != profile.MaxTokens {
		t.Fatalf("entries = %d, want %d", len(entries), profile.MaxTokens)
	}
	for i, token := range [][]byte{tokenA, tokenB} {
		entry := fields(t, entries[i].Bytes)
		if len(entry) != 3 {
			t.Fatalf("entry %d fields = %+v", i, entry)
		}
		actor := fields(t, entry[0].Bytes)
		if len(actor) != 2 || actor[0].Uint != profile.ActorKind || actor[1].Uint != 77 {
			t.Errorf("entry %d actor = %+v", i, actor)
		}
		if entry[1].Type != gcwire.Fixed64 || entry[1].Uint != gcwire.Fixed64FromBytes(token) {
			t.Errorf("entry %d token field = %+v", i, entry[1])
		}
		wantPrimary := uint64(0)
		if i == 0 {
			wantPrimary = 1
		}
		if entry[2].Uint != wantPrimary {
			t.Errorf("entry %d primary flag = %d, want %d", i, entry[2].Uint, wantPrimary)
		}
	}

	if scalars[2] != profile.SessionNeed || scalars[3] != profile.EntryFlags {
		t.Errorf("scalar fields = %v", scalars)
	}
	wantHints := []uint64{profile.ScreenWidth, profile.ScreenHeight, profile.MinFrameRate, profile.MaxFrameRate}
	if len(hints) != len(wantHints) {
		t.Fatalf("hints = %+v", hints)
	}
	for i, want := range wantHints {
		if hints[i].Number != i+1 || hints[i].Uint != want {
			t.Errorf("hint %d = %+v, want %d", i+1, hints[i], want)
		}
	}
}

func TestShortTokenIsPadded(t *testing.T) {
	builder := gcsession.NewHelloBuilder(gcsession.DefaultHelloProfile())
	hello := builder.Build(gcsession.HelloInputs{AccountID: 5, Tokens: [][]byte{tokenC}}, false)
	entry := fields(t, fields(t, hello.Payload)[0].Bytes)
	if got := gcwire.EncodeFixed64LE(entry[1].Uint); !bytes.Equal(got, []byte{0x31, 0x32, 0x33, 0, 0, 0, 0, 0}) {
		t.Fatalf("token bytes = % x", got)
	}
}
