// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package gcwire

// Builder accumulates the fields of one message. The zero value is
// ready to use. Methods return the Builder so calls chain.
type Builder struct {
	buf []byte
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Varint appends a varint field.
func (b *Builder) Varint(number int, v uint64) *Builder {
	b.buf = AppendField(b.buf, Field{Number: number, Type: Varint, Uint: v})
	return b
}

// Bool appends a varint field holding 0 or 1.
func (b *Builder) Bool(number int, v bool) *Builder {
	var u uint64
	if v {
		u = 1
	}
	return b.Varint(number, u)
}

// Fixed64 appends a fixed64 field.
func (b *Builder) Fixed64(number int, v uint64) *Builder {
	b.buf = AppendField(b.buf, Field{Number: number, Type: Fixed64, Uint: v})
	return b
}

// Fixed64Bytes appends a fixed64 field whose eight bytes are raw,
// truncated or zero-padded.
func (b *Builder) Fixed64Bytes(number int, raw []byte) *Builder {
	return b.Fixed64(number, Fixed64FromBytes(raw))
}

// Bytes appends a length-delimited field.
func (b *Builder) Bytes(number int, v []byte) *Builder {
	b.buf = AppendField(b.buf, Field{Number: number, Type: Bytes, Bytes: v})
	return b
}

// String appends a length-delimited field holding s.
func (b *Builder) String(number int, s string) *Builder {
	return b.Bytes(number, []byte(s))
}

// Message appends m's encoding as a length-delimited field.
func (b *Builder) Message(number int, m *Builder) *Builder {
	return b.Bytes(number, m.buf)
}

// Len returns the encoded size so far.
func (b *Builder) Len() int { return len(b.buf) }

// Encode returns a copy of the encoded message.
func (b *Builder) Encode() []byte {
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}
