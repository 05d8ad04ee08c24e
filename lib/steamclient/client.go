// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package steamclient

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Philipp15b/go-steam/v3"
	"github.com/Philipp15b/go-steam/v3/protocol"
	"github.com/Philipp15b/go-steam/v3/protocol/gamecoordinator"
	"github.com/Philipp15b/go-steam/v3/protocol/protobuf"
	"github.com/Philipp15b/go-steam/v3/protocol/steamlang"
	"google.golang.org/protobuf/proto"

	"github.com/lanternguild/gcbridge/lib/steamid"
	"github.com/lanternguild/gcbridge/lib/steamsession"
)

// eventBuffer bounds translated events waiting for the session loop.
const eventBuffer = 256

var errNotConnected = errors.New("steamclient: not connected")

// Transport is a steamsession.Transport over a go-steam client.
type Transport struct {
	client *steam.Client
	logger *slog.Logger

	events chan steamsession.Event
	done   chan struct{}

	// sendMu orders emits against closing the event channel.
	sendMu    sync.RWMutex
	stopped   bool
	closeDone sync.Once

	mu    sync.Mutex
	fatal error
}

var _ steamsession.Transport = (*Transport)(nil)

// New creates a Transport and starts translating go-steam events. Call
// Close to stop it. A nil logger discards.
func New(logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	t := &Transport{
		client: steam.NewClient(),
		logger: logger,
		events: make(chan steamsession.Event, eventBuffer),
		done:   make(chan struct{}),
	}
	t.client.RegisterPacketHandler(t)
	t.client.GC.RegisterPacketHandler(t)
	go t.pump()
	return t
}

// pump forwards go-steam's event channel until Close.
func (t *Transport) pump() {
	for {
		select {
		case <-t.done:
			return
		case raw := <-t.client.Events():
			t.handleClientEvent(raw)
		}
	}
}

func (t *Transport) handleClientEvent(raw any) {
	if ev, ok := translate(raw); ok {
		t.emit(ev)
		return
	}
	switch ev := raw.(type) {
	case steam.FatalErrorEvent:
		t.mu.Lock()
		t.fatal = ev
		t.mu.Unlock()
		t.logger.Warn("steam connection failed", "error", error(ev))
	case *steam.DisconnectedEvent:
		t.mu.Lock()
		err := t.fatal
		t.fatal = nil
		t.mu.Unlock()
		t.emit(steamsession.DisconnectedEvent{Err: err})
	case *steam.LoginKeyEvent:
		t.emit(steamsession.RefreshTokenEvent{Token: ev.LoginKey})
	case *steam.MachineAuthUpdateEvent:
		t.logger.Debug("steam sentry updated")
	}
}

func (t *Transport) emit(ev steamsession.Event) {
	t.sendMu.RLock()
	defer t.sendMu.RUnlock()
	if t.stopped {
		return
	}
	select {
	case t.events <- ev:
	case <-t.done:
	}
}

// Connect dials a Steam server in the background. Success is reported
// by a ConnectedEvent, failure by a ConnectFailedEvent.
func (t *Transport) Connect() error {
	t.sendMu.RLock()
	stopped := t.stopped
	t.sendMu.RUnlock()
	if stopped {
		return steamsession.ErrClosed
	}
	go func() {
		if _, err := t.client.Connect(); err != nil {
			t.emit(steamsession.ConnectFailedEvent{Err: fmt.Errorf("steamclient: %w", err)})
		}
	}()
	return nil
}

func (t *Transport) Disconnect() {
	t.client.Disconnect()
}

// LogOn sends the logon. go-steam needs the account name even when a
// refresh token is used; the token travels as the login key.
func (t *Transport) LogOn(details steamsession.LogOnDetails) error {
	if details.AccountName == "" {
		return fmt.Errorf("steamclient: account name is required")
	}
	if details.Password == "" && details.RefreshToken == "" {
		return fmt.Errorf("steamclient: a password or refresh token is required")
	}
	if !t.client.Connected() {
		return errNotConnected
	}
	t.client.Auth.LogOn(&steam.LogOnDetails{
		Username:               details.AccountName,
		Password:               details.Password,
		LoginKey:               details.RefreshToken,
		AuthCode:               details.AuthCode,
		TwoFactorCode:          details.TwoFactorCode,
		ShouldRememberPassword: true,
	})
	return nil
}

func (t *Transport) LogOff() {
	if t.client.Connected() {
		t.client.Write(protocol.NewClientMsgProtobuf(steamlang.EMsg_ClientLogOff, &protobuf.CMsgClientLogOff{}))
	}
}

func (t *Transport) SetPersonaOnline() error {
	if !t.client.Connected() {
		return errNotConnected
	}
	t.client.Social.SetPersonaState(steamlang.EPersonaState_Online)
	return nil
}

func (t *Transport) SetGamesPlayed(appIDs ...uint32) error {
	if !t.client.Connected() {
		return errNotConnected
	}
	ids := make([]uint64, len(appIDs))
	for i, id := range appIDs {
		ids[i] = uint64(id)
	}
	t.client.GC.SetGamesPlayed(ids...)
	return nil
}

func (t *Transport) SendGC(appID, msgType uint32, payload []byte) error {
	if !t.client.Connected() {
		return errNotConnected
	}
	t.client.Write(protocol.NewClientMsgProtobuf(steamlang.EMsg_ClientToGC, &protobuf.CMsgGCClient{
		Msgtype: proto.Uint32(msgType | protoMask),
		Appid:   proto.Uint32(appID),
		Payload: frameGC(msgType, payload),
	}))
	return nil
}

func (t *Transport) RequestRichPresence(appID uint32, ids []steamid.ID) error {
	if !t.client.Connected() {
		return errNotConnected
	}
	request := &protobuf.CMsgClientRichPresenceRequest{SteamidRequest: make([]uint64, len(ids))}
	for i, id := range ids {
		request.SteamidRequest[i] = id.SteamID().ToUint64()
	}
	msg := protocol.NewClientMsgProtobuf(steamlang.EMsg_ClientRichPresenceRequest, request)
	msg.Header.Proto.RoutingAppid = proto.Uint32(appID)
	t.client.Write(msg)
	return nil
}

func (t *Transport) Events() <-chan steamsession.Event { return t.events }

// HandlePacket picks the raw packets go-steam does not surface as
// events: game connect tokens and rich presence answers.
func (t *Transport) HandlePacket(packet *protocol.Packet) {
	switch packet.EMsg {
	case steamlang.EMsg_ClientGameConnectTokens:
		body := new(protobuf.CMsgClientGameConnectTokens)
		packet.ReadProtoMsg(body)
		t.emit(steamsession.GameConnectTokensEvent{
			Tokens: body.GetTokens(),
			Max:    int(body.GetMaxTokensToKeep()),
		})
	case steamlang.EMsg_ClientRichPresenceInfo:
		body := new(protobuf.CMsgClientRichPresenceInfo)
		packet.ReadProtoMsg(body)
		for _, entry := range body.GetRichPresence() {
			id := steamid.ID(entry.GetSteamidUser())
			values, err := DecodeRichPresence(entry.GetRichPresenceKv())
			if err != nil {
				t.logger.Warn("undecodable rich presence", "steam_id", id, "error", err)
				continue
			}
			// The routing app id is not echoed; the poller fills in its own.
			t.emit(steamsession.RichPresenceEvent{SteamID: id, Values: values})
		}
	}
}

// HandleGCPacket forwards coordinator messages. go-steam has already
// removed the GC header.
func (t *Transport) HandleGCPacket(packet *gamecoordinator.GCPacket) {
	t.emit(steamsession.GCMessageEvent{
		AppID:   packet.AppId,
		MsgType: packet.MsgType &^ protoMask,
		Payload: packet.Body,
	})
}

// Close disconnects, stops the pump and closes the event channel.
func (t *Transport) Close() {
	t.sendMu.RLock()
	stopped := t.stopped
	t.sendMu.RUnlock()
	if stopped {
		return
	}
	t.client.Disconnect()
	// Wake blocked emits before waiting for them.
	t.closeDone.Do(func() { close(t.done) })

	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	if !t.stopped {
		t.stopped = true
		close(t.events)
	}
}
