// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package gcsession_test

import (
	"bytes"
	"testing"

	"github.com/lanternguild/gcbridge/lib/gcsession"
)

func TestEncodeInvite(t *testing.T) {
	cases := []struct {
		name string
		req  gcsession.InviteRequest
		want []byte
	}{
		{"both fields", gcsession.InviteRequest{Location: "eu", AccountID: 300}, []byte{0x1a, 0x02, 'e', 'u', 0x20, 0xac, 0x02}},
		{"account only", gcsession.InviteRequest{AccountID: 1}, []byte{0x20, 0x01}},
		{"location only", gcsession.InviteRequest{Location: "na"}, []byte{0x1a, 0x02, 'n', 'a'}},
		{"empty", gcsession.InviteRequest{}, []byte{}},
	}
	for _, tc := range cases {
		if got := gcsession.EncodeInvite(tc.req); !bytes.Equal(got, tc.want) {
			t.Errorf("%s: EncodeInvite = % x, want % x", tc.name, got, tc.want)
		}
	}
}

func TestDecodeInviteResponse(t *testing.T) {
	code := func(v uint64) *uint64 { return &v }
	cases := []struct {
		name        string
		buf         []byte
		wantCode    *uint64
		wantSuccess bool
	}{
		{"accepted", []byte{0x08, 0x01}, code(1), true},
		{"refused", []byte{0x08, 0x05}, code(5), false},
		{"zero code", []byte{0x08, 0x00}, code(0), false},
		{"after other fields", []byte{0x12, 0x01, 'x', 0x19, 1, 2, 3, 4, 5, 6, 7, 8, 0x08, 0x01}, code(1), true},
		{"empty", []byte{}, nil, false},
		{"nil", nil, nil, false},
		{"wrong wire type", []byte{0x0a, 0x01, 0x01}, nil, false},
		{"truncated", []byte{0x08}, nil, false},
		{"absent", []byte{0x10, 0x01}, nil, false},
		{"garbage", []byte{0xff, 0xff, 0xff}, nil, false},
	}
	for _, tc := range cases {
		got := gcsession.DecodeInviteResponse(tc.buf)
		if got.Success != tc.wantSuccess {
			t.Errorf("%s: Success = %v, want %v", tc.name, got.Success, tc.wantSuccess)
		}
		switch {
		case tc.wantCode == nil && got.Code != nil:
			t.Errorf("%s: Code = %d, want nil", tc.name, *got.Code)
		case tc.wantCode != nil && (got.Code == nil || *got.Code != *tc.wantCode):
			t.Errorf("%s: Code = %v, want %d", tc.name, got.Code, *tc.wantCode)
		}
	}
}
