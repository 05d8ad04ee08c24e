// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package steamclient

import (
	"github.com/Philipp15b/go-steam/v3"
	"github.com/Philipp15b/go-steam/v3/protocol/steamlang"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/lanternguild/gcbridge/lib/steamid"
	"github.com/lanternguild/gcbridge/lib/steamsession"
)

// protoMask marks a coordinator message type as protobuf-encoded.
const protoMask = 0x80000000

// Challenge markers passed as GuardRequiredEvent.Domain. Steam does not
// repeat the mail domain on a failed logon.
const (
	emailMarker     = "email"
	twoFactorMarker = "two-factor"
)

// frameGC prepends the protobuf GC header: the message type with the
// proto bit set, then a zero header length.
func frameGC(msgType uint32, body []byte) []byte {
	buf := make([]byte, 0, 8+len(body))
	buf = protowire.AppendFixed32(buf, msgType|protoMask)
	buf = protowire.AppendFixed32(buf, 0)
	return append(buf, body...)
}

// logOnFailure maps a rejected logon to a guard challenge when Steam
// is asking for a second factor, and to a LogOnFailedEvent otherwise.
func logOnFailure(result steamlang.EResult) steamsession.Event {
	switch steamsession.Result(result) {
	case steamsession.ResultAccountLogonDenied:
		return steamsession.GuardRequiredEvent{Domain: emailMarker}
	case steamsession.ResultInvalidLoginAuthCode:
		return steamsession.GuardRequiredEvent{Domain: emailMarker, LastCodeWrong: true}
	case steamsession.ResultAccountLoginDeniedTwoFact:
		return steamsession.GuardRequiredEvent{Domain: twoFactorMarker}
	case steamsession.ResultTwoFactorCodeMismatch:
		return steamsession.GuardRequiredEvent{Domain: twoFactorMarker, LastCodeWrong: true}
	}
	return steamsession.LogOnFailedEvent{Err: &steamsession.ResultError{
		Result:  steamsession.Result(result),
		Message: result.String(),
	}}
}

// translate maps the go-steam events with a direct equivalent.
// Disconnects, fatal errors and login keys need transport state and
// are handled by the pump.
func translate(ev any) (steamsession.Event, bool) {
	switch ev := ev.(type) {
	case *steam.ConnectedEvent:
		return steamsession.ConnectedEvent{}, true
	case *steam.LoggedOnEvent:
		return steamsession.LoggedOnEvent{SteamID: steamid.FromSteamID(ev.ClientSteamId)}, true
	case *steam.LogOnFailedEvent:
		return logOnFailure(ev.Result), true
	case *steam.LoggedOffEvent:
		return steamsession.LoggedOffEvent{Err: &steamsession.ResultError{
			Result:  steamsession.Result(ev.Result),
			Message: ev.Result.String(),
		}}, true
	}
	return nil, false
}
