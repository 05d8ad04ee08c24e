// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lanternguild/gcbridge/lib/gcsession"
	"github.com/lanternguild/gcbridge/lib/steamid"
	"github.com/lanternguild/gcbridge/lib/steamsession"
	"github.com/lanternguild/gcbridge/lib/taskqueue"
)

// Built-in task types.
const (
	TaskAuthStatus      = "AUTH_STATUS"
	TaskAuthLogin       = "AUTH_LOGIN"
	TaskAuthLogout      = "AUTH_LOGOUT"
	TaskAuthGuardCode   = "AUTH_GUARD_CODE"
	TaskGCEnsureSession = "GC_ENSURE_SESSION"
	TaskPlaytestInvite  = "PLAYTEST_INVITE"
)

// Session is the part of *steamsession.Manager the handlers use.
type Session interface {
	Login(ctx context.Context, creds steamsession.Credentials) (steamsession.LoginResult, error)
	AwaitLoggedOn(ctx context.Context) (steamsession.LoginResult, error)
	Logout(ctx context.Context) error
	SubmitGuardCode(code string) error
	Status() steamsession.Status
}

// Coordinator is the part of *gcsession.Machine the handlers use.
type Coordinator interface {
	EnsureAppSession(force bool) error
	AwaitReady(ctx context.Context, timeout time.Duration) error
	Call(ctx context.Context, req gcsession.Request) ([]byte, error)
	Status() gcsession.Status
}

// InviteMessages are the coordinator message ids of a playtest invite.
type InviteMessages struct {
	Request  uint32
	Response uint32
}

// Handlers implements the built-in task types.
type Handlers struct {
	Session     Session
	Coordinator Coordinator

	// Credentials are used by AUTH_LOGIN tasks that carry none.
	Credentials steamsession.Credentials

	Invite InviteMessages

	// ReadyTimeout bounds the wait for the coordinator in
	// GC_ENSURE_SESSION and PLAYTEST_INVITE. Zero uses the machine's
	// default.
	ReadyTimeout time.Duration

	Logger *slog.Logger
}

// Register adds the built-in handlers to registry. PLAYTEST_INVITE is
// registered only when its message ids are configured.
func (h *Handlers) Register(registry *taskqueue.Registry) error {
	if h.Session == nil || h.Coordinator == nil {
		return fmt.Errorf("bridge: handlers need a session and a coordinator")
	}
	if h.Logger == nil {
		h.Logger = slog.New(slog.DiscardHandler)
	}
	handlers := map[string]taskqueue.Handler{
		TaskAuthStatus:      h.authStatus,
		TaskAuthLogin:       h.authLogin,
		TaskAuthLogout:      h.authLogout,
		TaskAuthGuardCode:   h.authGuardCode,
		TaskGCEnsureSession: h.ensureSession,
	}
	if h.Invite.Request != 0 && h.Invite.Response != 0 {
		handlers[TaskPlaytestInvite] = h.playtestInvite
	}
	for taskType, handler := range handlers {
		if err := registry.Register(taskType, handler); err != nil {
			return err
		}
	}
	return nil
}

// SessionReport is the result of the authentication tasks.
type SessionReport struct {
	Session steamsession.Status `json:"session"`
	GC      gcsession.Status    `json:"gc"`
}

func (h *Handlers) report() SessionReport {
	return SessionReport{Session: h.Session.Status(), GC: h.Coordinator.Status()}
}

func (h *Handlers) authStatus(context.Context, json.RawMessage) (any, error) {
	return h.report(), nil
}

// LoginRequest is the AUTH_LOGIN payload. Every field is optional;
// an empty payload uses the configured credentials.
type LoginRequest struct {
	AccountName  string `json:"accountName,omitempty"`
	Password     string `json:"password,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	SharedSecret string `json:"sharedSecret,omitempty"`
	GuardCode    string `json:"guardCode,omitempty"`
}

func (h *Handlers) authLogin(ctx context.Context, payload json.RawMessage) (any, error) {
	request, err := taskqueue.DecodePayload[LoginRequest](payload)
	if err != nil {
		return nil, err
	}
	creds := steamsession.Credentials(request)
	if creds.IsZero() {
		creds = h.Credentials
	}
	result, err := h.Session.Login(ctx, creds)
	if err != nil {
		return nil, err
	}
	if result.Guard != nil {
		h.Logger.Info("login waiting for a guard code", "kind", result.Guard.Kind)
	}
	return result, nil
}

func (h *Handlers) authLogout(ctx context.Context, _ json.RawMessage) (any, error) {
	if err := h.Session.Logout(ctx); err != nil {
		return nil, err
	}
	return h.report(), nil
}

// GuardCodeRequest is the AUTH_GUARD_CODE payload.
type GuardCodeRequest struct {
	Code string `json:"code"`
}

// authGuardCode submits the code and waits for the logon it resumes.
func (h *Handlers) authGuardCode(ctx context.Context, payload json.RawMessage) (any, error) {
	request, err := taskqueue.DecodePayload[GuardCodeRequest](payload)
	if err != nil {
		return nil, err
	}
	if request.Code == "" {
		return nil, fmt.Errorf("bridge: guard code is required")
	}
	if err := h.Session.SubmitGuardCode(request.Code); err != nil {
		return nil, err
	}
	return h.Session.AwaitLoggedOn(ctx)
}

// EnsureSessionRequest is the GC_ENSURE_SESSION payload.
type EnsureSessionRequest struct {
	Force bool `json:"force,omitempty"`

	// Wait makes the task finish only once the coordinator is ready.
	Wait bool `json:"wait,omitempty"`

	TimeoutSeconds int `json:"timeoutSeconds,omitempty"`
}

func (h *Handlers) ensureSession(ctx context.Context, payload json.RawMessage) (any, error) {
	request, err := taskqueue.DecodePayload[EnsureSessionRequest](payload)
	if err != nil {
		return nil, err
	}
	if err := h.Coordinator.EnsureAppSession(request.Force); err != nil {
		return nil, err
	}
	if request.Wait {
		timeout := h.ReadyTimeout
		if request.TimeoutSeconds > 0 {
			timeout = time.Duration(request.TimeoutSeconds) * time.Second
		}
		if err := h.Coordinator.AwaitReady(ctx, timeout); err != nil {
			return nil, err
		}
	}
	return h.Coordinator.Status(), nil
}

// InviteTaskRequest is the PLAYTEST_INVITE payload. SteamID, when
// set, supplies the account id.
type InviteTaskRequest struct {
	SteamID   string `json:"steamId,omitempty"`
	AccountID uint32 `json:"accountId,omitempty"`
	Location  string `json:"location,omitempty"`
}

// InviteReport is the PLAYTEST_INVITE result. A declined invite is a
// result, not a task failure.
type InviteReport struct {
	AccountID uint32 `json:"accountId"`
	gcsession.InviteResult
}

func (h *Handlers) playtestInvite(ctx context.Context, payload json.RawMessage) (any, error) {
	request, err := taskqueue.DecodePayload[InviteTaskRequest](payload)
	if err != nil {
		return nil, err
	}
	accountID := request.AccountID
	if request.SteamID != "" {
		id, err := steamid.Parse(request.SteamID)
		if err != nil {
			return nil, err
		}
		accountID = id.AccountID()
	}
	if accountID == 0 {
		return nil, fmt.Errorf("bridge: invite needs a steamId or accountId")
	}

	if err := h.awaitCoordinator(ctx); err != nil {
		return nil, err
	}
	response, err := h.Coordinator.Call(ctx, gcsession.Request{
		MsgType:      h.Invite.Request,
		Payload:      gcsession.EncodeInvite(gcsession.InviteRequest{Location: request.Location, AccountID: accountID}),
		ResponseType: h.Invite.Response,
	})
	if err != nil {
		return nil, err
	}
	result := gcsession.DecodeInviteResponse(response)
	h.Logger.Info("playtest invite answered", "account_id", accountID, "success", result.Success)
	return InviteReport{AccountID: accountID, InviteResult: result}, nil
}

// awaitCoordinator starts the app session when none is active and
// waits for the welcome.
func (h *Handlers) awaitCoordinator(ctx context.Context) error {
	err := h.Coordinator.AwaitReady(ctx, h.ReadyTimeout)
	if !errors.Is(err, gcsession.ErrAppNotActive) {
		return err
	}
	if err := h.Coordinator.EnsureAppSession(false); err != nil {
		return err
	}
	return h.Coordinator.AwaitReady(ctx, h.ReadyTimeout)
}
