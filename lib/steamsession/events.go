// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package steamsession

import "github.com/lanternguild/gcbridge/lib/steamid"

// Event is anything a Transport reports, plus LoggedOffEvent, which
// the manager also raises itself on Logout.
type Event interface {
	sessionEvent()
}

// ConnectedEvent reports an established connection, before logon.
type ConnectedEvent struct{}

// ConnectFailedEvent reports that a Connect which returned nil could
// not reach Steam.
type ConnectFailedEvent struct {
	Err error
}

// LoggedOnEvent reports a successful logon.
type LoggedOnEvent struct {
	SteamID steamid.ID
}

// LogOnFailedEvent reports a rejected logon that is not a guard
// challenge.
type LogOnFailedEvent struct {
	Err error
}

// GuardRequiredEvent reports that Steam wants a second factor.
type GuardRequiredEvent struct {
	// Domain is the mail domain for email codes, or a marker such as
	// "two-factor" for authenticator codes.
	Domain string

	// LastCodeWrong is set when the challenge follows a rejected code.
	LastCodeWrong bool
}

// DisconnectedEvent reports a lost connection. Err is nil for a clean
// close.
type DisconnectedEvent struct {
	Err error
}

// LoggedOffEvent reports the end of a logon. Requested is set when
// Logout caused it.
type LoggedOffEvent struct {
	Requested bool
	Err       error
}

// RefreshTokenEvent carries a new refresh token issued by Steam.
type RefreshTokenEvent struct {
	Token string
}

// GCMessageEvent carries one coordinator message, header removed.
type GCMessageEvent struct {
	AppID   uint32
	MsgType uint32
	Payload []byte
}

// GameConnectTokensEvent carries tokens Steam issues for game session
// handshakes. Max is how many the client should keep.
type GameConnectTokensEvent struct {
	Tokens [][]byte
	Max    int
}

// RichPresenceEvent carries one user's rich presence key/values.
type RichPresenceEvent struct {
	SteamID steamid.ID
	AppID   uint32
	Values  map[string]any
}

func (ConnectedEvent) sessionEvent() {}
func (ConnectFailedEvent) sessionEvent() {}
func (LoggedOnEvent) sessionEvent() {}
func (LogOnFailedEvent) sessionEvent() {}
func (GuardRequiredEvent) sessionEvent() {}
func (DisconnectedEvent) sessionEvent() {}
func (LoggedOffEvent) sessionEvent() {}
func (RefreshTokenEvent) sessionEvent() {}
func (GCMessageEvent) sessionEvent() {}
func (GameConnectTokensEvent) sessionEvent() {}
func (RichPresenceEvent) sessionEvent() {}

// Listener receives session events on the manager's event loop. It
// must return quickly and must not call Manager.Login or
// Manager.AwaitLoggedOn, which wait on that same loop.
type Listener interface {
	HandleSessionEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) HandleSessionEvent(ev Event) { f(ev) }
