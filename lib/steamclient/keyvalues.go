// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package steamclient

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Binary KeyValues type bytes.
const (
	kvSubtree  = 0
	kvString   = 1
	kvInt32    = 2
	kvFloat32  = 3
	kvPointer  = 4
	kvColor    = 6
	kvUint64   = 7
	kvEnd      = 8
	kvInt64    = 10
	kvAltEnd   = 11
	kvMaxDepth = 32
)

var errTruncated = errors.New("steamclient: truncated keyvalues")

// DecodeKeyValues decodes a binary KeyValues document into nested
// maps. Strings stay strings, integers become int64 or uint64, floats
// float64, and subtrees map[string]any.
func DecodeKeyValues(buf []byte) (map[string]any, error) {
	values, _, err := decodeKeyValues(buf, 0)
	return values, err
}

func decodeKeyValues(buf []byte, depth int) (map[string]any, []byte, error) {
	if depth > kvMaxDepth {
		return nil, nil, fmt.Errorf("steamclient: keyvalues nested deeper than %d", kvMaxDepth)
	}
	values := make(map[string]any)
	for len(buf) > 0 {
		kind := buf[0]
		buf = buf[1:]
		if kind == kvEnd || kind == kvAltEnd {
			return values, buf, nil
		}
		name, rest, err := cstring(buf)
		if err != nil {
			return nil, nil, err
		}
		buf = rest

		switch kind {
		case kvSubtree:
			child, rest, err := decodeKeyValues(buf, depth+1)
			if err != nil {
				return nil, nil, err
			}
			values[name], buf = child, rest
		case kvString:
			value, rest, err := cstring(buf)
			if err != nil {
				return nil, nil, err
			}
			values[name], buf = value, rest
		case kvInt32, kvPointer:
			v, n := protowire.ConsumeFixed32(buf)
			if n < 0 {
				return nil, nil, errTruncated
			}
			values[name], buf = int64(int32(v)), buf[n:]
		case kvColor:
			v, n := protowire.ConsumeFixed32(buf)
			if n < 0 {
				return nil, nil, errTruncated
			}
			values[name], buf = uint64(v), buf[n:]
		case kvFloat32:
			v, n := protowire.ConsumeFixed32(buf)
			if n < 0 {
				return nil, nil, errTruncated
			}
			values[name], buf = float64(math.Float32frombits(v)), buf[n:]
		case kvUint64:
			v, n := protowire.ConsumeFixed64(buf)
			if n < 0 {
				return nil, nil, errTruncated
			}
			values[name], buf = v, buf[n:]
		case kvInt64:
			v, n := protowire.ConsumeFixed64(buf)
			if n < 0 {
				return nil, nil, errTruncated
			}
			values[name], buf = int64(v), buf[n:]
		default:
			return nil, nil, fmt.Errorf("steamclient: keyvalues type %d for %q not supported", kind, name)
		}
	}
	// Rich presence blobs often omit the final end marker.
	return values, nil, nil
}

func cstring(buf []byte) (string, []byte, error) {
	end := bytes.IndexByte(buf, 0)
	if end < 0 {
		return "", nil, errTruncated
	}
	return string(buf[:end]), buf[end+1:], nil
}

// DecodeRichPresence decodes one user's rich presence blob. Steam wraps
// the pairs in a single root subtree ("RP"); that level is removed.
func DecodeRichPresence(buf []byte) (map[string]any, error) {
	if len(buf) == 0 {
		return map[string]any{}, nil
	}
	values, err := DecodeKeyValues(buf)
	if err != nil {
		return nil, err
	}
	if len(values) == 1 {
		for _, root := range values {
			if inner, ok := root.(map[string]any); ok {
				return inner, nil
			}
		}
	}
	return values, nil
}
