// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package gcsession

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"

	"github.com/lanternguild/gcbridge/lib/gcwire"
)

// HelloProfile holds the constants the hello payload carries. They
// were read off captured traffic, not a published schema, so they come
// from configuration and may need updating when the game changes.
type HelloProfile struct {
	ActorKind    uint64
	SessionNeed  uint64
	EntryFlags   uint64
	ScreenWidth  uint64
	ScreenHeight uint64
	MinFrameRate uint64
	MaxFrameRate uint64

	// MaxTokens caps the entries in the primary payload.
	MaxTokens int
}

// DefaultHelloProfile returns the values observed for the current
// client build.
func DefaultHelloProfile() HelloProfile {
	return HelloProfile{
		ActorKind:    1,
		SessionNeed:  104,
		EntryFlags:   1,
		ScreenWidth:  1920,
		ScreenHeight: 1080,
		MinFrameRate: 30,
		MaxFrameRate: 144,
		MaxTokens:    2,
	}
}

// Field numbers of the hello message.
//
//	Hello       { 1: Entry (repeated), 2: session need, 3: entry flags, 4: Hints }
//	Entry       { 1: Actor, 2: token (fixed64), 3: primary (bool) }
//	Actor       { 1: actor kind, 2: account id }
//	Hints       { 1: width, 2: height, 3: min fps, 4: max fps }
//	LegacyHello { 1: Actor }
const (
	helloEntryField       = 1
	helloSessionNeedField = 2
	helloEntryFlagsField  = 3
	helloHintsField       = 4

	entryActorField   = 1
	entryTokenField   = 2
	entryPrimaryField = 3

	actorKindField    = 1
	actorAccountField = 2

	hintsWidthField        = 1
	hintsHeightField       = 2
	hintsMinFrameRateField = 3
	hintsMaxFrameRateField = 4
)

// HelloInputs is the session material a hello is built from.
type HelloInputs struct {
	AccountID uint32
	Tokens    [][]byte
}

// canBuildPrimary reports whether the full form can be built.
func (in HelloInputs) canBuildPrimary() bool {
	return in.AccountID != 0 && len(in.Tokens) > 0
}

// Hello is one built payload.
type Hello struct {
	Payload []byte

	// Legacy is set for the reduced form.
	Legacy bool

	// Cached is set when Payload came from the cache rather than a
	// fresh build.
	Cached bool

	// Digest identifies the payload in logs and status without
	// exposing token bytes.
	Digest string
}

type cachedHello struct {
	key     [32]byte
	payload []byte
	digest  string
}

// HelloBuilder builds hello payloads and caches the primary and legacy
// forms separately. A cache entry is reused while the inputs it was
// built from are unchanged. Not safe for concurrent use; the Machine
// serializes access.
type HelloBuilder struct {
	profile HelloProfile
	primary *cachedHello
	legacy  *cachedHello
}

// NewHelloBuilder returns a builder for profile.
func NewHelloBuilder(profile HelloProfile) *HelloBuilder {
	if profile.MaxTokens <= 0 {
		profile.MaxTokens = DefaultHelloProfile().MaxTokens
	}
	return &HelloBuilder{profile: profile}
}

// Build returns the primary hello, or the legacy one when in lacks a
// token or an account id. force bypasses the cache.
func (b *HelloBuilder) Build(in HelloInputs, force bool) Hello {
	if !in.canBuildPrimary() {
		return b.BuildLegacy(in, force)
	}
	in.Tokens = in.Tokens[:min(len(in.Tokens), b.profile.MaxTokens)]
	key := inputKey(in)
	if !force && b.primary != nil && b.primary.key == key {
		return Hello{Payload: b.primary.payload, Cached: true, Digest: b.primary.digest}
	}
	payload := b.encodePrimary(in)
	b.primary = &cachedHello{key: key, payload: payload, digest: payloadDigest(payload)}
	return Hello{Payload: payload, Digest: b.primary.digest}
}

// BuildLegacy returns the legacy hello, which never fails: with no
// account id the actor carries only its kind.
func (b *HelloBuilder) BuildLegacy(in HelloInputs, force bool) Hello {
	key := inputKey(HelloInputs{AccountID: in.AccountID})
	if !force && b.legacy != nil && b.legacy.key == key {
		return Hello{Payload: b.legacy.payload, Legacy: true, Cached: true, Digest: b.legacy.digest}
	}
	payload := gcwire.NewBuilder().Message(helloEntryField, b.actor(in.AccountID)).Encode()
	b.legacy = &cachedHello{key: key, payload: payload, digest: payloadDigest(payload)}
	return Hello{Payload: payload, Legacy: true, Digest: b.legacy.digest}
}

// Invalidate drops both cached payloads.
func (b *HelloBuilder) Invalidate() {
	b.primary = nil
	b.legacy = nil
}

func (b *HelloBuilder) actor(accountID uint32) *gcwire.Builder {
	actor := gcwire.NewBuilder().Varint(actorKindField, b.profile.ActorKind)
	if accountID != 0 {
		actor.Varint(actorAccountField, uint64(accountID))
	}
	return actor
}

func (b *HelloBuilder) encodePrimary(in HelloInputs) []byte {
	hello := gcwire.NewBuilder()
	for i, token := range in.Tokens {
		entry := gcwire.NewBuilder().
			Message(entryActorField, b.actor(in.AccountID)).
			Fixed64Bytes(entryTokenField, token).
			Bool(entryPrimaryField, i == 0)
		hello.Message(helloEntryField, entry)
	}
	hints := gcwire.NewBuilder().
		Varint(hintsWidthField, b.profile.ScreenWidth).
		Varint(hintsHeightField, b.profile.ScreenHeight).
		Varint(hintsMinFrameRateField, b.profile.MinFrameRate).
		Varint(hintsMaxFrameRateField, b.profile.MaxFrameRate)
	return hello.
		Varint(helloSessionNeedField, b.profile.SessionNeed).
		Varint(helloEntryFlagsField, b.profile.EntryFlags).
		Message(helloHintsField, hints).
		Encode()
}

// helloDomainKey separates hello digests from any other BLAKE3 use.
var helloDomainKey = [32]byte{
	'g', 'c', 'b', 'r', 'i', 'd', 'g', 'e', '.', 'h', 'e', 'l', 'l', 'o',
}

func keyedHasher() *blake3.Hasher {
	hasher, err := blake3.NewKeyed(helloDomainKey[:])
	if err != nil {
		panic("gcsession: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return hasher
}

// inputKey identifies the inputs a cached payload was built from.
func inputKey(in HelloInputs) [32]byte {
	hasher := keyedHasher()
	var scratch [8]byte
	binary.LittleEndian.PutUint32(scratch[:4], in.AccountID)
	hasher.Write(scratch[:4])
	for _, token := range in.Tokens {
		binary.LittleEndian.PutUint64(scratch[:], uint64(len(token)))
		hasher.Write(scratch[:])
		hasher.Write(token)
	}
	var key [32]byte
	copy(key[:], hasher.Sum(nil))
	return key
}

// payloadDigest is the first eight bytes of the payload's keyed hash,
// in hex.
func payloadDigest(payload []byte) string {
	hasher := keyedHasher()
	hasher.Write(payload)
	return hex.EncodeToString(hasher.Sum(nil)[:8])
}
