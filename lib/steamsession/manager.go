// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package steamsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/lanternguild/gcbridge/lib/clock"
	"github.com/lanternguild/gcbridge/lib/steamguard"
	"github.com/lanternguild/gcbridge/lib/steamid"
)

// ErrLogonTimeout is recorded when Steam neither accepts nor rejects a
// logon within Config.LogonTimeout.
var ErrLogonTimeout = errors.New("steamsession: logon timed out")

// Config configures a Manager.
type Config struct {
	Transport Transport
	Clock     clock.Clock
	Logger    *slog.Logger

	// MaxLoginAttempts caps consecutive logons Steam rejects. Once
	// reached, reconnects stop and Login fails with ErrTooManyAttempts
	// until a Logout or a successful logon resets the count. Defaults
	// to 5.
	MaxLoginAttempts int

	// LogonTimeout bounds one attempt from connect to logon result.
	// Defaults to 30s.
	LogonTimeout time.Duration

	Reconnect ReconnectPolicy

	// Random returns samples in [0, 1) for reconnect jitter. Defaults
	// to math/rand/v2.
	Random func() float64

	// OnRefreshToken is called on the event loop each time Steam
	// issues a refresh token.
	OnRefreshToken func(accountName, token string, id steamid.ID)

	// OnRefreshTokenRejected is called on the event loop when Steam
	// rejects the refresh token, which is then dropped from memory.
	OnRefreshTokenRejected func(accountName string)
}

type pendingGuard struct {
	info   GuardInfo
	submit func(code string)
}

type outcome struct {
	result LoginResult
	err    error
}

// Manager owns the Steam logon. Create one with New, start Run, then
// call Login.
type Manager struct {
	transport      Transport
	clock          clock.Clock
	logger         *slog.Logger
	maxAttempts    int
	logonTimeout   time.Duration
	policy         ReconnectPolicy
	random         func() float64
	onRefreshToken func(string, string, steamid.ID)
	onTokenReject  func(string)

	internal chan Event

	mu        sync.Mutex
	listeners []Listener
	closed    bool

	state       State
	connected   bool
	wantOnline  bool
	accountID   steamid.ID
	lastError   *ErrorInfo
	attempts    int
	credentials *vault
	codes       LogOnDetails

	// awaitingConnect is set between calling Transport.Connect and the
	// next ConnectedEvent. Disconnects seen meanwhile belong to the
	// previous connection.
	awaitingConnect bool
	attemptGen      uint64
	logonTimer      *clock.Timer

	// tokenRejected is set by the event that made Steam reject the
	// refresh token, for dispatch to report outside the lock.
	tokenRejected bool

	guard             *pendingGuard
	guardAutoAnswered bool
	staticCodeUsed    bool

	reconnectTimer   *clock.Timer
	reconnectGen     uint64
	reconnectAttempt int
	reconnectAt      time.Time

	waiters []chan outcome
}

// New returns a Manager in the LoggedOut state.
func New(cfg Config) (*Manager, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("steamsession: Transport is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.MaxLoginAttempts <= 0 {
		cfg.MaxLoginAttempts = 5
	}
	if cfg.LogonTimeout <= 0 {
		cfg.LogonTimeout = 30 * time.Second
	}
	if cfg.Reconnect == (ReconnectPolicy{}) {
		cfg.Reconnect = DefaultReconnectPolicy()
	}
	if cfg.Random == nil {
		cfg.Random = rand.Float64
	}
	return &Manager{
		transport:      cfg.Transport,
		clock:          cfg.Clock,
		logger:         cfg.Logger,
		maxAttempts:    cfg.MaxLoginAttempts,
		logonTimeout:   cfg.LogonTimeout,
		policy:         cfg.Reconnect,
		random:         cfg.Random,
		onRefreshToken: cfg.OnRefreshToken,
		onTokenReject:  cfg.OnRefreshTokenRejected,
		internal:       make(chan Event, 16),
	}, nil
}

// Subscribe registers l for every event the loop delivers from now on.
func (m *Manager) Subscribe(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Run reads transport events until ctx ends or the transport closes
// its event channel.
func (m *Manager) Run(ctx context.Context) error {
	events := m.transport.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			m.dispatch(ev)
		case ev := <-m.internal:
			m.dispatch(ev)
		}
	}
}

func (m *Manager) dispatch(ev Event) {
	m.mu.Lock()
	forward := m.handleLocked(ev)
	listeners := slices.Clone(m.listeners)
	accountName, accountID := "", m.accountID
	if m.credentials != nil {
		accountName = m.credentials.accountName
	}
	tokenRejected := m.tokenRejected
	m.tokenRejected = false
	m.mu.Unlock()

	if token, ok := ev.(RefreshTokenEvent); ok && m.onRefreshToken != nil {
		m.onRefreshToken(accountName, token.Token, accountID)
	}
	if tokenRejected && m.onTokenReject != nil {
		m.onTokenReject(accountName)
	}
	if !forward {
		return
	}
	for _, l := range listeners {
		l.HandleSessionEvent(ev)
	}
}

// Login starts a logon and waits for its outcome: logged on, stopped at
// a guard challenge that needs an operator, or failed. Zero
// credentials reuse the ones from the previous Login. If ctx ends
// first, Login returns ctx.Err() and the attempt continues.
func (m *Manager) Login(ctx context.Context, creds Credentials) (LoginResult, error) {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return LoginResult{}, ErrClosed
	case m.state == LoggingIn:
		m.mu.Unlock()
		return LoginResult{}, ErrAlreadyLoggingIn
	case m.state == LoggedOn:
		status := m.statusLocked()
		m.mu.Unlock()
		return LoginResult{AlreadyLoggedOn: true, Status: status}, nil
	case m.state == AwaitingGuard:
		m.mu.Unlock()
		return LoginResult{}, ErrGuardPending
	}

	if !creds.IsZero() {
		v, err := newVault(creds)
		if err != nil {
			m.mu.Unlock()
			return LoginResult{}, err
		}
		if !v.usable() {
			v.close()
			m.mu.Unlock()
			return LoginResult{}, ErrMissingCredentials
		}
		m.credentials.close()
		m.credentials = v
		m.staticCodeUsed = false
	} else if !m.credentials.usable() {
		m.mu.Unlock()
		return LoginResult{}, ErrMissingCredentials
	}
	if m.attempts >= m.maxAttempts {
		m.mu.Unlock()
		return LoginResult{}, ErrTooManyAttempts
	}

	m.wantOnline = true
	m.cancelReconnectLocked()
	waiter := m.addWaiterLocked()
	m.beginAttemptLocked()
	m.mu.Unlock()

	return m.await(ctx, waiter)
}

// AwaitLoggedOn waits for the current logon to finish. It returns at
// once when logged on, and fails with ErrNotLoggedOn when no logon is
// in progress or scheduled.
func (m *Manager) AwaitLoggedOn(ctx context.Context) (LoginResult, error) {
	m.mu.Lock()
	switch {
	case m.state == LoggedOn:
		status := m.statusLocked()
		m.mu.Unlock()
		return LoginResult{AlreadyLoggedOn: true, Status: status}, nil
	case m.state == AwaitingGuard:
		info := m.guard.info
		result := LoginResult{Guard: &info, Status: m.statusLocked()}
		m.mu.Unlock()
		return result, nil
	case m.state == LoggedOut && !m.wantOnline:
		m.mu.Unlock()
		return LoginResult{}, ErrNotLoggedOn
	}
	waiter := m.addWaiterLocked()
	m.mu.Unlock()
	return m.await(ctx, waiter)
}

func (m *Manager) addWaiterLocked() chan outcome {
	waiter := make(chan outcome, 1)
	m.waiters = append(m.waiters, waiter)
	return waiter
}

func (m *Manager) await(ctx context.Context, waiter chan outcome) (LoginResult, error) {
	select {
	case o := <-waiter:
		return o.result, o.err
	case <-ctx.Done():
		m.mu.Lock()
		m.waiters = slices.DeleteFunc(m.waiters, func(w chan outcome) bool { return w == waiter })
		m.mu.Unlock()
		return LoginResult{}, ctx.Err()
	}
}

func (m *Manager) publishLocked(err error) {
	o := outcome{err: err}
	if err == nil {
		o.result.Status = m.statusLocked()
		if m.guard != nil {
			info := m.guard.info
			o.result.Guard = &info
		}
	}
	for _, waiter := range m.waiters {
		waiter <- o
	}
	m.waiters = nil
}

// Logout ends the session and stops any reconnect. It succeeds when
// already logged out.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	previous := m.state
	m.wantOnline = false
	m.attempts = 0
	m.guard = nil
	m.codes = LogOnDetails{}
	m.cancelReconnectLocked()
	m.cancelAttemptLocked()

	if previous == LoggedOut && !m.connected {
		m.mu.Unlock()
		return nil
	}

	m.setStateLocked(LoggedOut)
	m.accountID = 0
	if previous == LoggingIn || previous == AwaitingGuard {
		m.publishLocked(ErrLoggedOut)
	}
	if previous == LoggedOn {
		m.transport.LogOff()
	}
	m.transport.Disconnect()
	m.connected = false
	m.mu.Unlock()

	m.logger.Info("steam session logged out", "previous_state", previous)
	if previous != LoggedOn {
		return nil
	}
	select {
	case m.internal <- LoggedOffEvent{Requested: true}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitGuardCode answers the pending challenge and resumes the logon.
// The outcome is reported through AwaitLoggedOn and Status.
func (m *Manager) SubmitGuardCode(code string) error {
	if code == "" {
		return fmt.Errorf("steamsession: guard code is empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.guard == nil {
		return ErrNoPendingChallenge
	}
	m.resolveGuardLocked(code)
	return nil
}

// resolveGuardLocked hands code to the pending challenge exactly once.
func (m *Manager) resolveGuardLocked(code string) {
	pending := m.guard
	m.guard = nil
	pending.submit(code)
}

// Status returns a snapshot of the session.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Manager) statusLocked() Status {
	status := Status{
		State:           m.state,
		LoggedOn:        m.state == LoggedOn,
		LoggingIn:       m.state == LoggingIn,
		Connected:       m.connected,
		LastError:       m.lastError,
		LoginAttempts:   m.attempts,
		HasPendingGuard: m.guard != nil,
	}
	if m.state == LoggedOn {
		status.AccountID = m.accountID.String()
	}
	if m.credentials != nil {
		status.AccountName = m.credentials.accountName
	}
	if m.guard != nil {
		info := m.guard.info
		status.GuardInfo = &info
	}
	if m.reconnectTimer != nil {
		at := m.reconnectAt
		status.ReconnectAt = &at
	}
	return status
}

// LoggedOn reports whether the session is up.
func (m *Manager) LoggedOn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == LoggedOn
}

// AccountID returns the logged-on account, or zero.
func (m *Manager) AccountID() steamid.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != LoggedOn {
		return 0
	}
	return m.accountID
}

// SetGamesPlayed forwards to the transport while logged on.
func (m *Manager) SetGamesPlayed(appIDs ...uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != LoggedOn {
		return ErrNotLoggedOn
	}
	return m.transport.SetGamesPlayed(appIDs...)
}

// SendGC forwards a coordinator message while logged on.
func (m *Manager) SendGC(appID, msgType uint32, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != LoggedOn {
		return ErrNotLoggedOn
	}
	return m.transport.SendGC(appID, msgType, payload)
}

// RequestRichPresence forwards a presence request while logged on.
func (m *Manager) RequestRichPresence(appID uint32, ids []steamid.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != LoggedOn {
		return ErrNotLoggedOn
	}
	return m.transport.RequestRichPresence(appID, ids)
}

// Close stops timers and releases stored credentials. The manager
// cannot log on again afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.wantOnline = false
	m.cancelReconnectLocked()
	m.cancelAttemptLocked()
	m.credentials.close()
	m.credentials = nil
}

func (m *Manager) setStateLocked(state State) {
	if m.state == state {
		return
	}
	m.logger.Debug("steam session state", "from", m.state, "to", state)
	m.state = state
}

func (m *Manager) recordErrorLocked(err error, class Class) {
	info := &ErrorInfo{Message: err.Error(), Class: class.String(), At: m.clock.Now()}
	var resultError *ResultError
	if errors.As(err, &resultError) {
		info.Code = resultError.Result
	}
	m.lastError = info
}

// beginAttemptLocked starts one logon attempt on a fresh connection.
func (m *Manager) beginAttemptLocked() {
	m.setStateLocked(LoggingIn)
	m.attemptGen++
	generation := m.attemptGen
	m.logonTimer.Stop()
	m.logonTimer = m.clock.AfterFunc(m.logonTimeout, func() { m.logonTimedOut(generation) })

	m.logger.Info("steam logon attempt", "rejections", m.attempts, "max_attempts", m.maxAttempts)
	m.awaitingConnect = true
	if err := m.transport.Connect(); err != nil {
		m.failAttemptLocked(fmt.Errorf("connecting: %w", err), ClassTransient, true)
	}
}

func (m *Manager) cancelAttemptLocked() {
	m.attemptGen++
	m.logonTimer.Stop()
	m.logonTimer = nil
	m.awaitingConnect = false
}

func (m *Manager) logonTimedOut(generation uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if generation != m.attemptGen || m.state != LoggingIn {
		return
	}
	m.logger.Warn("steam logon timed out", "timeout", m.logonTimeout)
	m.transport.Disconnect()
	m.connected = false
	m.failAttemptLocked(ErrLogonTimeout, ClassTransient, true)
}

// failAttemptLocked ends the session or the current attempt and
// reconnects if retry is set, the class allows it and a session is
// still wanted.
func (m *Manager) failAttemptLocked(err error, class Class, retry bool) {
	previous := m.state
	m.cancelAttemptLocked()
	m.recordErrorLocked(err, class)
	m.setStateLocked(LoggedOut)
	m.accountID = 0
	m.publishLocked(err)
	m.logger.Warn("steam session failed", "error", err, "class", class,
		"previous_state", previous, "rejections", m.attempts)

	if class == ClassAuth || !retry {
		m.wantOnline = false
		return
	}
	if m.wantOnline {
		m.scheduleReconnectLocked(class)
	}
}

func (m *Manager) scheduleReconnectLocked(class Class) {
	delay, ok := m.policy.Delay(class, m.reconnectAttempt, m.random())
	if !ok {
		return
	}
	// A non-positive delay would run the callback under our lock.
	delay = max(delay, time.Millisecond)
	m.reconnectAttempt++
	m.reconnectGen++
	generation := m.reconnectGen
	m.reconnectTimer.Stop()
	m.reconnectAt = m.clock.Now().Add(delay)
	m.reconnectTimer = m.clock.AfterFunc(delay, func() { m.reconnect(generation) })
	m.logger.Info("steam reconnect scheduled", "delay", delay, "class", class, "attempt", m.reconnectAttempt)
}

func (m *Manager) cancelReconnectLocked() {
	m.reconnectGen++
	m.reconnectTimer.Stop()
	m.reconnectTimer = nil
	m.reconnectAt = time.Time{}
}

func (m *Manager) reconnect(generation uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if generation != m.reconnectGen {
		return
	}
	m.reconnectTimer = nil
	m.reconnectAt = time.Time{}
	if !m.wantOnline || m.state != LoggedOut || m.closed {
		return
	}
	if !m.credentials.usable() {
		m.wantOnline = false
		m.recordErrorLocked(ErrMissingCredentials, ClassAuth)
		return
	}
	m.beginAttemptLocked()
}

// handleLocked applies ev and reports whether listeners should see it.
func (m *Manager) handleLocked(ev Event) bool {
	switch ev := ev.(type) {
	case ConnectedEvent:
		m.connected = true
		if m.state == LoggingIn && m.awaitingConnect {
			m.awaitingConnect = false
			details := m.credentials.details()
			details.AuthCode = m.codes.AuthCode
			details.TwoFactorCode = m.codes.TwoFactorCode
			if err := m.transport.LogOn(details); err != nil {
				m.failAttemptLocked(fmt.Errorf("logging on: %w", err), ClassTransient, true)
			}
		}

	case ConnectFailedEvent:
		if m.state == LoggingIn && m.awaitingConnect {
			m.failAttemptLocked(fmt.Errorf("connecting: %w", ev.Err), ClassTransient, true)
		}

	case LoggedOnEvent:
		if !m.attemptLiveLocked() {
			m.dropStaleLogonLocked("logged on")
			return false
		}
		m.cancelAttemptLocked()
		m.cancelReconnectLocked()
		m.setStateLocked(LoggedOn)
		m.connected = true
		m.accountID = ev.SteamID
		m.attempts = 0
		m.reconnectAttempt = 0
		m.lastError = nil
		m.guard = nil
		m.guardAutoAnswered = false
		m.codes = LogOnDetails{}
		if err := m.transport.SetPersonaOnline(); err != nil {
			m.logger.Warn("setting persona online failed", "error", err)
		}
		m.logger.Info("steam session logged on", "steam_id", ev.SteamID.String())
		m.publishLocked(nil)

	case GuardRequiredEvent:
		if !m.attemptLiveLocked() {
			m.dropStaleLogonLocked("guard challenge")
			return false
		}
		m.handleGuardLocked(ev)

	case LogOnFailedEvent:
		if !m.attemptLiveLocked() {
			return true
		}
		// Only rejections count toward the cap. A connection that keeps
		// dropping is retried on the backoff schedule indefinitely.
		m.attempts++
		class := Classify(ev.Err)
		if class == ClassAuth && m.credentials != nil && m.credentials.refreshToken != nil {
			m.logger.Warn("steam rejected the refresh token; the next login will use the password")
			m.credentials.dropRefreshToken()
			m.tokenRejected = true
		}
		m.failAttemptLocked(ev.Err, class, m.attempts < m.maxAttempts)

	case DisconnectedEvent:
		m.connected = false
		switch m.state {
		case LoggingIn:
			if m.awaitingConnect {
				return true
			}
			err := ev.Err
			if err == nil {
				err = ErrDisconnected
			}
			m.failAttemptLocked(err, Classify(ev.Err), true)
		case LoggedOn:
			err := ev.Err
			if err == nil {
				err = ErrDisconnected
			}
			m.logger.Warn("steam session disconnected", "error", err)
			m.failAttemptLocked(err, Classify(ev.Err), true)
		}

	case LoggedOffEvent:
		if ev.Requested {
			return true
		}
		if m.state == LoggedOn {
			m.connected = false
			err := ev.Err
			if err == nil {
				err = ErrDisconnected
			}
			m.failAttemptLocked(err, Classify(ev.Err), true)
		}

	case RefreshTokenEvent:
		if m.credentials != nil && ev.Token != "" {
			if err := m.credentials.setRefreshToken(ev.Token); err != nil {
				m.logger.Error("storing refresh token failed", "error", err)
			}
		}
		m.logger.Info("steam refresh token rotated")
	}
	return true
}

// attemptLiveLocked reports whether a logon result belongs to the
// current attempt: one is in progress and its LogOn has been sent.
func (m *Manager) attemptLiveLocked() bool {
	return m.state == LoggingIn && !m.awaitingConnect
}

// dropStaleLogonLocked discards a logon answer that outlived its
// attempt. A session Steam opened after a Logout is closed again.
func (m *Manager) dropStaleLogonLocked(what string) {
	m.logger.Warn("ignoring steam "+what+" outside a logon attempt", "state", m.state)
	if m.state == LoggedOut {
		m.transport.LogOff()
	}
}

func (m *Manager) handleGuardLocked(ev GuardRequiredEvent) {
	kind := steamguard.Classify(ev.Domain)
	info := GuardInfo{Kind: kind, Domain: ev.Domain, LastCodeWrong: ev.LastCodeWrong}
	m.cancelAttemptLocked()
	m.setStateLocked(AwaitingGuard)
	m.guard = &pendingGuard{
		info: info,
		submit: func(code string) {
			if kind == steamguard.KindTOTP {
				m.codes = LogOnDetails{TwoFactorCode: code}
			} else {
				m.codes = LogOnDetails{AuthCode: code}
			}
			m.beginAttemptLocked()
		},
	}
	m.logger.Info("steam guard challenge", "kind", kind, "domain", ev.Domain, "last_code_wrong", ev.LastCodeWrong)

	if ev.LastCodeWrong && m.guardAutoAnswered {
		m.publishLocked(nil)
		return
	}
	if kind == steamguard.KindTOTP && m.credentials != nil && m.credentials.sharedKey != nil {
		m.guardAutoAnswered = true
		m.logger.Info("answering authenticator challenge from shared secret")
		m.resolveGuardLocked(steamguard.CodeAt(m.credentials.sharedKey.Bytes(), m.clock.Now()))
		return
	}
	if m.credentials != nil && m.credentials.guardCode != "" && !m.staticCodeUsed {
		m.staticCodeUsed = true
		m.guardAutoAnswered = true
		m.logger.Info("answering guard challenge with configured code")
		m.resolveGuardLocked(m.credentials.guardCode)
		return
	}
	m.publishLocked(nil)
}
