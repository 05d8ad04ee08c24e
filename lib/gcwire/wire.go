// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package gcwire

import (
	"encoding/binary"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// WireType is the low three bits of a field tag.
type WireType uint8

const (
	Varint  WireType = 0
	Fixed64 WireType = 1
	Bytes   WireType = 2
	Fixed32 WireType = 5
)

func (t WireType) String() string {
	switch t {
	case Varint:
		return "varint"
	case Fixed64:
		return "fixed64"
	case Bytes:
		return "bytes"
	case Fixed32:
		return "fixed32"
	default:
		return fmt.Sprintf("wiretype(%d)", uint8(t))
	}
}

// Field is one decoded or to-be-encoded field.
type Field struct {
	Number int
	Type   WireType

	// Uint holds the value of Varint, Fixed64 and Fixed32 fields.
	Uint uint64

	// Bytes holds the payload of a Bytes field. Decoded fields alias
	// the input buffer.
	Bytes []byte
}

// AppendVarint appends v as a base-128 varint: seven value bits per
// byte, least significant group first, high bit set on every byte but
// the last.
func AppendVarint(b []byte, v uint64) []byte {
	return protowire.AppendVarint(b, v)
}

// EncodeVarint returns v as a varint. Zero encodes as a single 0x00.
func EncodeVarint(v uint64) []byte {
	return protowire.AppendVarint(nil, v)
}

// EncodeFixed64LE returns v as eight little-endian bytes.
func EncodeFixed64LE(v uint64) []byte {
	return protowire.AppendFixed64(nil, v)
}

// Fixed64Bytes returns raw truncated or zero-padded to exactly eight
// bytes, the form a byte buffer takes in a fixed64 field.
func Fixed64Bytes(raw []byte) []byte {
	out := make([]byte, 8)
	copy(out, raw)
	return out
}

// Fixed64FromBytes interprets raw (truncated or padded to eight bytes)
// as a little-endian uint64.
func Fixed64FromBytes(raw []byte) uint64 {
	return binary.LittleEndian.Uint64(Fixed64Bytes(raw))
}

// AppendTag appends the varint tag for a field.
func AppendTag(b []byte, number int, wireType WireType) []byte {
	return protowire.AppendTag(b, protowire.Number(number), protowire.Type(wireType))
}

// AppendField appends the tag and payload of f. Fixed32 fields are
// written as four little-endian bytes of the low half of Uint.
func AppendField(b []byte, f Field) []byte {
	b = AppendTag(b, f.Number, f.Type)
	switch f.Type {
	case Varint:
		return protowire.AppendVarint(b, f.Uint)
	case Fixed64:
		return protowire.AppendFixed64(b, f.Uint)
	case Fixed32:
		return protowire.AppendFixed32(b, uint32(f.Uint))
	case Bytes:
		return protowire.AppendBytes(b, f.Bytes)
	default:
		panic(fmt.Sprintf("gcwire: cannot encode %s field %d", f.Type, f.Number))
	}
}

// EncodeField returns the encoding of a single field.
func EncodeField(f Field) []byte {
	return AppendField(nil, f)
}

// ParseVarint reads a varint starting at offset and returns its value
// and the offset just past it. A buffer that ends before a terminating
// byte (high bit clear) yields the bits read so far and len(buf); the
// caller sees a short parse, not an error. Bits beyond 64 are dropped.
func ParseVarint(buf []byte, offset int) (value uint64, next int) {
	var shift uint
	next = offset
	for next < len(buf) {
		c := buf[next]
		next++
		if shift < 64 {
			value |= uint64(c&0x7f) << shift
		}
		if c < 0x80 {
			return value, next
		}
		shift += 7
	}
	return value, next
}

// DecodeField decodes the field starting at offset. ok is false at the
// end of the buffer, on a malformed tag or payload, and on group wire
// types, which coordinator messages never use.
func DecodeField(buf []byte, offset int) (field Field, next int, ok bool) {
	if offset < 0 || offset >= len(buf) {
		return Field{}, offset, false
	}
	rest := buf[offset:]

	number, wireType, n := protowire.ConsumeTag(rest)
	if n < 0 {
		return Field{}, offset, false
	}
	rest = rest[n:]
	field = Field{Number: int(number), Type: WireType(wireType)}

	var m int
	switch wireType {
	case protowire.VarintType:
		field.Uint, m = protowire.ConsumeVarint(rest)
	case protowire.Fixed64Type:
		field.Uint, m = protowire.ConsumeFixed64(rest)
	case protowire.Fixed32Type:
		var v uint32
		v, m = protowire.ConsumeFixed32(rest)
		field.Uint = uint64(v)
	case protowire.BytesType:
		field.Bytes, m = protowire.ConsumeBytes(rest)
	default:
		return Field{}, offset, false
	}
	if m < 0 {
		return Field{}, offset, false
	}
	return field, offset + n + m, true
}

// Scan calls fn for each top-level field in buf until fn returns false.
// Group-encoded fields are skipped without being reported. Scan returns
// false if the buffer is malformed before it was fully consumed.
func Scan(buf []byte, fn func(Field) bool) bool {
	offset := 0
	for offset < len(buf) {
		number, wireType, n := protowire.ConsumeTag(buf[offset:])
		if n < 0 {
			return false
		}
		if wireType == protowire.StartGroupType {
			m := protowire.ConsumeFieldValue(number, wireType, buf[offset+n:])
			if m < 0 {
				return false
			}
			offset += n + m
			continue
		}

		field, next, ok := DecodeField(buf, offset)
		if !ok {
			return false
		}
		offset = next
		if !fn(field) {
			return true
		}
	}
	return true
}

// DecodeTopLevelField returns the first top-level field with the given
// number. Fields before it are skipped by their wire-type length. ok is
// false when the field is absent or the buffer is malformed before it.
func DecodeTopLevelField(buf []byte, number int) (Field, bool) {
	var found Field
	var ok bool
	Scan(buf, func(f Field) bool {
		if f.Number == number {
			found, ok = f, true
			return false
		}
		return true
	})
	return found, ok
}
