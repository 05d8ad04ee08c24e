// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package gcsession

import "github.com/lanternguild/gcbridge/lib/gcwire"

const (
	inviteLocationField  = 3
	inviteAccountIDField = 4

	inviteResultField = 1
)

// InviteResultOK is the result code of an accepted invite.
const InviteResultOK = 1

// InviteRequest asks the coordinator to grant playtest access. Zero
// fields are left out of the encoding.
type InviteRequest struct {
	Location  string `json:"location,omitempty"`
	AccountID uint32 `json:"accountId,omitempty"`
}

// EncodeInvite returns the wire form of req.
func EncodeInvite(req InviteRequest) []byte {
	message := gcwire.NewBuilder()
	if req.Location != "" {
		message.String(inviteLocationField, req.Location)
	}
	if req.AccountID != 0 {
		message.Varint(inviteAccountIDField, uint64(req.AccountID))
	}
	return message.Encode()
}

// InviteResult is the decoded coordinator answer. Code is nil when the
// response carried no usable result field.
type InviteResult struct {
	Code    *uint64 `json:"code"`
	Success bool    `json:"success"`
}

// DecodeInviteResponse extracts the result code from a response. A
// missing field, a field of the wrong wire type and malformed input
// all yield a nil Code and Success false.
func DecodeInviteResponse(buf []byte) InviteResult {
	field, ok := gcwire.DecodeTopLevelField(buf, inviteResultField)
	if !ok || field.Type != gcwire.Varint {
		return InviteResult{}
	}
	code := field.Uint
	return InviteResult{Code: &code, Success: code == InviteResultOK}
}
