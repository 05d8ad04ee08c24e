// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package steamtest provides an in-memory [steamsession.Transport] for
// tests. It records every call, and scripted hooks decide which events
// a logon or a coordinator send produces, so session and handshake
// logic runs without a network.
package steamtest

import (
	"slices"
	"sync"

	"github.com/lanternguild/gcbridge/lib/steamid"
	"github.com/lanternguild/gcbridge/lib/steamsession"
)

// eventBuffer is large enough that no test blocks on delivery.
const eventBuffer = 256

// SentGC is one recorded coordinator send.
type SentGC struct {
	AppID   uint32
	MsgType uint32
	Payload []byte
}

// PresenceRequest is one recorded rich presence request.
type PresenceRequest struct {
	AppID uint32
	IDs   []steamid.ID
}

// Transport is a scripted fake. The zero value is not usable; call
// NewTransport.
type Transport struct {
	events chan steamsession.Event

	mu         sync.Mutex
	closed     bool
	connected  bool
	connectErr error
	dialErr    error
	onLogOn    func(steamsession.LogOnDetails) []steamsession.Event
	onSendGC   func(SentGC) []steamsession.Event

	connects      int
	disconnects   int
	logOffs       int
	personaOnline int
	logOns        []steamsession.LogOnDetails
	gamesPlayed   [][]uint32
	sent          []SentGC
	presence      []PresenceRequest
	sentNotify    chan SentGC
}

var _ steamsession.Transport = (*Transport)(nil)

// NewTransport returns a transport that connects successfully and
// ignores logons until OnLogOn or AcceptLogOn scripts a response.
func NewTransport() *Transport {
	return &Transport{
		events:     make(chan steamsession.Event, eventBuffer),
		sentNotify: make(chan SentGC, eventBuffer),
	}
}

// OnLogOn sets the hook that answers each LogOn call. The returned
// events are delivered in order.
func (f *Transport) OnLogOn(fn func(steamsession.LogOnDetails) []steamsession.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onLogOn = fn
}

// AcceptLogOn answers every logon with success as id.
func (f *Transport) AcceptLogOn(id steamid.ID) {
	f.OnLogOn(func(steamsession.LogOnDetails) []steamsession.Event {
		return []steamsession.Event{steamsession.LoggedOnEvent{SteamID: id}}
	})
}

// OnSendGC sets the hook that answers each coordinator send.
func (f *Transport) OnSendGC(fn func(SentGC) []steamsession.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSendGC = fn
}

// FailConnect makes Connect return err. Nil restores success.
func (f *Transport) FailConnect(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = err
}

// FailDial makes Connect succeed and then report err with a
// ConnectFailedEvent, as a transport that dials in the background
// does. Nil restores success.
func (f *Transport) FailDial(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dialErr = err
}

// Emit delivers ev as if Steam had sent it.
func (f *Transport) Emit(ev steamsession.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitLocked(ev)
}

func (f *Transport) emitLocked(events ...steamsession.Event) {
	if f.closed {
		return
	}
	for _, ev := range events {
		f.events <- ev
	}
}

// Close closes the event channel, which ends the manager's Run loop.
func (f *Transport) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
}

func (f *Transport) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	if f.dialErr != nil {
		f.emitLocked(steamsession.ConnectFailedEvent{Err: f.dialErr})
		return nil
	}
	if f.connected {
		f.emitLocked(steamsession.DisconnectedEvent{})
	}
	f.connected = true
	f.emitLocked(steamsession.ConnectedEvent{})
	return nil
}

func (f *Transport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	if f.connected {
		f.connected = false
		f.emitLocked(steamsession.DisconnectedEvent{})
	}
}

func (f *Transport) LogOn(details steamsession.LogOnDetails) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logOns = append(f.logOns, details)
	if f.onLogOn != nil {
		f.emitLocked(f.onLogOn(details)...)
	}
	return nil
}

func (f *Transport) LogOff() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logOffs++
}

func (f *Transport) SetPersonaOnline() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.personaOnline++
	return nil
}

func (f *Transport) SetGamesPlayed(appIDs ...uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gamesPlayed = append(f.gamesPlayed, slices.Clone(appIDs))
	return nil
}

func (f *Transport) SendGC(appID, msgType uint32, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sent := SentGC{AppID: appID, MsgType: msgType, Payload: slices.Clone(payload)}
	f.sent = append(f.sent, sent)
	select {
	case f.sentNotify <- sent:
	default:
	}
	if f.onSendGC != nil {
		f.emitLocked(f.onSendGC(sent)...)
	}
	return nil
}

func (f *Transport) RequestRichPresence(appID uint32, ids []steamid.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presence = append(f.presence, PresenceRequest{AppID: appID, IDs: slices.Clone(ids)})
	return nil
}

func (f *Transport) Events() <-chan steamsession.Event { return f.events }

// Sent delivers each coordinator send as it happens.
func (f *Transport) Sent() <-chan SentGC { return f.sentNotify }

// Connects returns how many times Connect was called.
func (f *Transport) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

// Disconnects returns how many times Disconnect was called.
func (f *Transport) Disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

// LogOffs returns how many times LogOff was called.
func (f *Transport) LogOffs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logOffs
}

// PersonaOnline returns how many times SetPersonaOnline was called.
func (f *Transport) PersonaOnline() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.personaOnline
}

// LogOns returns the details of every LogOn call.
func (f *Transport) LogOns() []steamsession.LogOnDetails {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.logOns)
}

// GamesPlayed returns the argument of every SetGamesPlayed call.
func (f *Transport) GamesPlayed() [][]uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.gamesPlayed)
}

// SentGC returns every coordinator send.
func (f *Transport) SentGC() []SentGC {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.sent)
}

// PresenceRequests returns every rich presence request.
func (f *Transport) PresenceRequests() []PresenceRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.presence)
}
