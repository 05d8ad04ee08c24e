// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package steamsession

import "github.com/lanternguild/gcbridge/lib/steamid"

// LogOnDetails is what a Transport needs to log on. Exactly one of
// Password and RefreshToken is set.
type LogOnDetails struct {
	AccountName   string
	Password      string
	RefreshToken  string
	AuthCode      string
	TwoFactorCode string
}

// Transport is the connection to Steam. Methods start an operation and
// return; outcomes arrive on Events. Methods must not block on the
// Events channel, since the manager may call them while its event
// loop is delivering.
type Transport interface {
	Connect() error
	Disconnect()
	LogOn(details LogOnDetails) error
	LogOff()

	SetPersonaOnline() error

	// SetGamesPlayed replaces the set of running games. No arguments
	// means none.
	SetGamesPlayed(appIDs ...uint32) error

	// SendGC sends payload to appID's coordinator as msgType.
	SendGC(appID, msgType uint32, payload []byte) error

	// RequestRichPresence asks for the rich presence of ids in appID.
	RequestRichPresence(appID uint32, ids []steamid.ID) error

	// Events is closed when the transport shuts down.
	Events() <-chan Event
}
