// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package gcsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/lanternguild/gcbridge/lib/clock"
	"github.com/lanternguild/gcbridge/lib/gcwire"
	"github.com/lanternguild/gcbridge/lib/steamid"
	"github.com/lanternguild/gcbridge/lib/steamsession"
)

var (
	ErrNotLoggedOn         = errors.New("gcsession: steam session is not logged on")
	ErrAppNotActive        = errors.New("gcsession: app session is not active")
	ErrSessionDisconnected = errors.New("gcsession: steam session disconnected")
	ErrAppClosed           = errors.New("gcsession: app session closed")
	ErrReadyTimeout        = errors.New("gcsession: coordinator not ready before timeout")
	ErrNoWelcome           = errors.New("gcsession: coordinator never answered hello")
	ErrNotReady            = errors.New("gcsession: coordinator is not ready")
	ErrRequestTimeout      = errors.New("gcsession: coordinator request timed out")
)

// State is the handshake's position.
type State int

const (
	Idle State = iota
	AppRequested
	HelloSent
	Ready
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AppRequested:
		return "app_requested"
	case HelloSent:
		return "hello_sent"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state by name in JSON snapshots.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for candidate := Idle; candidate <= Ready; candidate++ {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("gcsession: unknown state %q", text)
}

// Session is what the handshake needs from the Steam logon.
// *steamsession.Manager implements it.
type Session interface {
	LoggedOn() bool
	AccountID() steamid.ID
	SetGamesPlayed(appIDs ...uint32) error
	SendGC(appID, msgType uint32, payload []byte) error
}

// Messages holds the coordinator message ids the handshake uses.
type Messages struct {
	Hello   uint32
	Welcome uint32

	// ConnectionStatus is optional. A status other than "have
	// session" drops readiness and re-sends the hello.
	ConnectionStatus uint32
}

// Config configures a Machine. Zero durations take the defaults noted.
type Config struct {
	Session  Session
	AppID    uint32
	Messages Messages
	Profile  HelloProfile
	Clock    clock.Clock
	Logger   *slog.Logger

	// AppDebounce skips repeated EnsureAppSession calls (15s).
	AppDebounce time.Duration
	// QuitSettle separates "playing nothing" from "playing the app" (1s).
	QuitSettle time.Duration
	// Warmup is the wait between the play signal and the hello (5s).
	Warmup time.Duration
	// HelloDebounce skips repeated unforced hellos (2s).
	HelloDebounce time.Duration
	// HelloTimeout is the watchdog on each hello (5s).
	HelloTimeout time.Duration
	// MaxHelloAttempts bounds hellos per app session (6).
	MaxHelloAttempts int
	// ReadyTimeout is AwaitReady's default timeout (30s).
	ReadyTimeout time.Duration
	// RequestTimeout is Call's default timeout (15s).
	RequestTimeout time.Duration

	// AutoStart requests the app session each time Steam logs on.
	AutoStart bool
}

type callResult struct {
	payload []byte
	err     error
}

type pendingCall struct {
	responseType uint32
	response     chan callResult
}

// Machine drives the coordinator handshake. It implements
// steamsession.Listener; subscribe it to the manager so it sees
// logons, disconnects, tokens and coordinator messages.
type Machine struct {
	session          Session
	appID            uint32
	messages         Messages
	clock            clock.Clock
	logger           *slog.Logger
	appDebounce      time.Duration
	quitSettle       time.Duration
	warmup           time.Duration
	helloDebounce    time.Duration
	helloTimeout     time.Duration
	maxHelloAttempts int
	readyTimeout     time.Duration
	requestTimeout   time.Duration
	autoStart        bool

	// calls admits one Call at a time.
	calls chan struct{}

	mu              sync.Mutex
	builder         *HelloBuilder
	state           State
	appActive       bool
	gcReady         bool
	lastAppRequest  time.Time
	lastHelloSentAt time.Time
	helloAttempts   int
	lastHello       Hello
	tokens          [][]byte

	// appGen invalidates the settle and warm-up callbacks of an
	// earlier app session; watchdogGen does the same for hellos.
	appGen      uint64
	appTimer    *clock.Timer
	watchdogGen uint64
	watchdog    *clock.Timer

	waiters []chan error
	pending *pendingCall
}

var _ steamsession.Listener = (*Machine)(nil)

// New returns an idle Machine.
func New(cfg Config) (*Machine, error) {
	if cfg.Session == nil {
		return nil, fmt.Errorf("gcsession: Session is required")
	}
	if cfg.AppID == 0 {
		return nil, fmt.Errorf("gcsession: AppID is required")
	}
	if cfg.Messages.Hello == 0 || cfg.Messages.Welcome == 0 {
		return nil, fmt.Errorf("gcsession: hello and welcome message ids are required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Profile == (HelloProfile{}) {
		cfg.Profile = DefaultHelloProfile()
	}
	orDefault := func(d *time.Duration, fallback time.Duration) {
		if *d <= 0 {
			*d = fallback
		}
	}
	orDefault(&cfg.AppDebounce, 15*time.Second)
	orDefault(&cfg.QuitSettle, time.Second)
	orDefault(&cfg.Warmup, 5*time.Second)
	orDefault(&cfg.HelloDebounce, 2*time.Second)
	orDefault(&cfg.HelloTimeout, 5*time.Second)
	orDefault(&cfg.ReadyTimeout, 30*time.Second)
	orDefault(&cfg.RequestTimeout, 15*time.Second)
	if cfg.MaxHelloAttempts <= 0 {
		cfg.MaxHelloAttempts = 6
	}

	return &Machine{
		session:          cfg.Session,
		appID:            cfg.AppID,
		messages:         cfg.Messages,
		clock:            cfg.Clock,
		logger:           cfg.Logger.With("app_id", cfg.AppID),
		appDebounce:      cfg.AppDebounce,
		quitSettle:       cfg.QuitSettle,
		warmup:           cfg.Warmup,
		helloDebounce:    cfg.HelloDebounce,
		helloTimeout:     cfg.HelloTimeout,
		maxHelloAttempts: cfg.MaxHelloAttempts,
		readyTimeout:     cfg.ReadyTimeout,
		requestTimeout:   cfg.RequestTimeout,
		autoStart:        cfg.AutoStart,
		calls:            make(chan struct{}, 1),
		builder:          NewHelloBuilder(cfg.Profile),
	}, nil
}

// EnsureAppSession tells Steam the bot is playing the app: first
// "playing nothing", then after QuitSettle "playing the app", then
// after Warmup a hello. Calls within AppDebounce of the last request
// do nothing unless force is set. Readiness is reset either way the
// request goes through.
func (m *Machine) EnsureAppSession(force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.session.LoggedOn() {
		return ErrNotLoggedOn
	}
	now := m.clock.Now()
	if !force && m.appActive && now.Sub(m.lastAppRequest) < m.appDebounce {
		m.logger.Debug("app session request debounced", "since_last", now.Sub(m.lastAppRequest))
		return nil
	}

	m.stopTimersLocked()
	m.lastAppRequest = now
	m.appActive = true
	m.gcReady = false
	m.helloAttempts = 0
	m.lastHelloSentAt = time.Time{}
	m.state = AppRequested

	if err := m.session.SetGamesPlayed(); err != nil {
		err = fmt.Errorf("gcsession: clearing games played: %w", err)
		m.resetLocked(err)
		return err
	}
	generation := m.appGen
	m.appTimer = m.scheduleLocked(m.quitSettle, func() { m.playLocked(generation) })
	return nil
}

func (m *Machine) playLocked(generation uint64) {
	if generation != m.appGen || !m.appActive {
		return
	}
	if err := m.session.SetGamesPlayed(m.appID); err != nil {
		m.logger.Warn("signalling app session failed", "error", err)
		m.resetLocked(fmt.Errorf("gcsession: starting app %d: %w", m.appID, err))
		return
	}
	m.logger.Info("app session requested", "warmup", m.warmup)
	m.appTimer = m.scheduleLocked(m.warmup, func() { m.warmedUpLocked(generation) })
}

func (m *Machine) warmedUpLocked(generation uint64) {
	if generation != m.appGen || !m.appActive {
		return
	}
	m.appTimer = nil
	if err := m.sendHelloLocked(helloPrimary, false); err != nil {
		m.logger.Warn("sending hello after warm-up failed", "error", err)
	}
}

type helloMode int

const (
	helloPrimary helloMode = iota // primary form, cache allowed
	helloRebuild                  // primary form, cache bypassed
	helloLegacy                   // legacy form
)

// SendHello sends the hello now. It does nothing while no app session
// is active, and an unforced call within HelloDebounce of the last
// hello is skipped. force also rebuilds the payload and restarts the
// attempt count.
func (m *Machine) SendHello(force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mode := helloPrimary
	if force {
		mode = helloRebuild
		m.helloAttempts = 0
	}
	return m.sendHelloLocked(mode, force)
}

func (m *Machine) sendHelloLocked(mode helloMode, force bool) error {
	if !m.appActive {
		return ErrAppNotActive
	}
	if !m.session.LoggedOn() {
		return ErrNotLoggedOn
	}
	now := m.clock.Now()
	if !force && !m.lastHelloSentAt.IsZero() && now.Sub(m.lastHelloSentAt) < m.helloDebounce {
		m.logger.Debug("hello debounced", "since_last", now.Sub(m.lastHelloSentAt))
		return nil
	}

	inputs := HelloInputs{AccountID: m.session.AccountID().AccountID(), Tokens: m.tokens}
	var hello Hello
	switch mode {
	case helloLegacy:
		hello = m.builder.BuildLegacy(inputs, false)
	case helloRebuild:
		hello = m.builder.Build(inputs, true)
	default:
		hello = m.builder.Build(inputs, false)
	}
	if err := m.session.SendGC(m.appID, m.messages.Hello, hello.Payload); err != nil {
		return fmt.Errorf("gcsession: sending hello: %w", err)
	}

	m.lastHello = hello
	m.lastHelloSentAt = now
	m.helloAttempts++
	if !m.gcReady {
		m.state = HelloSent
	}
	m.logger.Info("hello sent",
		"attempt", m.helloAttempts,
		"legacy", hello.Legacy,
		"cached", hello.Cached,
		"digest", hello.Digest,
		"bytes", len(hello.Payload),
		"tokens", len(m.tokens),
	)
	m.armWatchdogLocked()
	return nil
}

// armWatchdogLocked replaces the single watchdog slot.
func (m *Machine) armWatchdogLocked() {
	m.watchdogGen++
	generation := m.watchdogGen
	m.watchdog.Stop()
	m.watchdog = m.scheduleLocked(m.helloTimeout, func() { m.helloTimedOutLocked(generation) })
}

func (m *Machine) helloTimedOutLocked(generation uint64) {
	if generation != m.watchdogGen || m.gcReady || !m.appActive {
		return
	}
	m.watchdog = nil
	if m.helloAttempts >= m.maxHelloAttempts {
		m.logger.Error("coordinator never answered hello", "attempts", m.helloAttempts)
		m.rejectWaitersLocked(ErrNoWelcome)
		return
	}

	// Alternate: a primary hello falls back to the legacy form, and a
	// legacy hello is followed by a rebuilt primary one.
	mode := helloLegacy
	if m.lastHello.Legacy {
		mode = helloRebuild
	}
	m.logger.Warn("no welcome before hello timeout",
		"timeout", m.helloTimeout,
		"attempt", m.helloAttempts,
		"next_legacy", mode == helloLegacy,
	)
	if err := m.sendHelloLocked(mode, true); err != nil {
		m.logger.Warn("retrying hello failed", "error", err)
	}
}

// AwaitReady waits until the coordinator has welcomed the session. It
// returns at once when already ready, and fails at once when no app
// session is active. A non-positive timeout means ReadyTimeout. A
// timeout or cancellation gives up this caller only.
func (m *Machine) AwaitReady(ctx context.Context, timeout time.Duration) error {
	m.mu.Lock()
	if m.gcReady {
		m.mu.Unlock()
		return nil
	}
	if !m.appActive {
		m.mu.Unlock()
		return ErrAppNotActive
	}
	if timeout <= 0 {
		timeout = m.readyTimeout
	}
	waiter := make(chan error, 1)
	m.waiters = append(m.waiters, waiter)
	m.mu.Unlock()

	expired := m.clock.After(timeout)
	select {
	case err := <-waiter:
		return err
	case <-expired:
		return m.abandonWaiter(waiter, ErrReadyTimeout)
	case <-ctx.Done():
		return m.abandonWaiter(waiter, ctx.Err())
	}
}

// abandonWaiter removes waiter. If it was resolved in the meantime,
// that outcome wins over err.
func (m *Machine) abandonWaiter(waiter chan error, err error) error {
	m.mu.Lock()
	m.waiters = slices.DeleteFunc(m.waiters, func(w chan error) bool { return w == waiter })
	m.mu.Unlock()
	select {
	case result := <-waiter:
		return result
	default:
		return err
	}
}

func (m *Machine) resolveWaitersLocked() {
	for _, waiter := range m.waiters {
		waiter <- nil
	}
	m.waiters = nil
}

func (m *Machine) rejectWaitersLocked(err error) {
	for _, waiter := range m.waiters {
		waiter <- err
	}
	m.waiters = nil
}

// CloseApp stops playing the app and rejects waiters with
// ErrAppClosed.
func (m *Machine) CloseApp() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.appActive {
		return nil
	}
	var err error
	if m.session.LoggedOn() {
		if clearErr := m.session.SetGamesPlayed(); clearErr != nil {
			err = fmt.Errorf("gcsession: clearing games played: %w", clearErr)
		}
	}
	m.resetLocked(ErrAppClosed)
	return err
}

// Request is one coordinator round trip.
type Request struct {
	MsgType      uint32
	Payload      []byte
	ResponseType uint32

	// Timeout overrides RequestTimeout when positive.
	Timeout time.Duration
}

// Call sends req and waits for the next message of req.ResponseType.
// Calls are serialized. The coordinator must be ready.
func (m *Machine) Call(ctx context.Context, req Request) ([]byte, error) {
	select {
	case m.calls <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-m.calls }()

	m.mu.Lock()
	if !m.gcReady {
		m.mu.Unlock()
		return nil, ErrNotReady
	}
	call := &pendingCall{responseType: req.ResponseType, response: make(chan callResult, 1)}
	m.pending = call
	if err := m.session.SendGC(m.appID, req.MsgType, req.Payload); err != nil {
		m.pending = nil
		m.mu.Unlock()
		return nil, fmt.Errorf("gcsession: sending message %d: %w", req.MsgType, err)
	}
	m.mu.Unlock()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = m.requestTimeout
	}
	expired := m.clock.After(timeout)
	select {
	case result := <-call.response:
		return result.payload, result.err
	case <-expired:
		m.clearCall(call)
		return nil, ErrRequestTimeout
	case <-ctx.Done():
		m.clearCall(call)
		return nil, ctx.Err()
	}
}

func (m *Machine) clearCall(call *pendingCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == call {
		m.pending = nil
	}
}

func (m *Machine) failCallLocked(err error) {
	if m.pending != nil {
		m.pending.response <- callResult{err: err}
		m.pending = nil
	}
}

// HandleSessionEvent feeds a session event into the handshake.
func (m *Machine) HandleSessionEvent(ev steamsession.Event) {
	switch ev := ev.(type) {
	case steamsession.LoggedOnEvent:
		if m.autoStart {
			if err := m.EnsureAppSession(true); err != nil {
				m.logger.Warn("starting app session after logon failed", "error", err)
			}
		}

	case steamsession.DisconnectedEvent, steamsession.LoggedOffEvent:
		m.mu.Lock()
		m.resetLocked(ErrSessionDisconnected)
		m.tokens = nil
		m.builder.Invalidate()
		m.mu.Unlock()

	case steamsession.GameConnectTokensEvent:
		m.mu.Lock()
		m.addTokensLocked(ev)
		m.mu.Unlock()

	case steamsession.GCMessageEvent:
		if ev.AppID != m.appID {
			return
		}
		m.mu.Lock()
		m.handleMessageLocked(ev)
		m.mu.Unlock()
	}
}

// defaultTokenLimit applies when Steam does not say how many tokens
// to keep.
const defaultTokenLimit = 10

func (m *Machine) addTokensLocked(ev steamsession.GameConnectTokensEvent) {
	limit := ev.Max
	if limit <= 0 {
		limit = defaultTokenLimit
	}
	for _, token := range ev.Tokens {
		m.tokens = append(m.tokens, slices.Clone(token))
	}
	if len(m.tokens) > limit {
		m.tokens = m.tokens[len(m.tokens)-limit:]
	}
	m.logger.Debug("game connect tokens received", "received", len(ev.Tokens), "held", len(m.tokens))
}

// haveSessionStatus is the connection status meaning the coordinator
// holds a session for us.
const haveSessionStatus = 0

func (m *Machine) handleMessageLocked(ev steamsession.GCMessageEvent) {
	switch {
	case ev.MsgType == m.messages.Welcome:
		m.handleWelcomeLocked()
	case m.messages.ConnectionStatus != 0 && ev.MsgType == m.messages.ConnectionStatus:
		m.handleConnectionStatusLocked(ev.Payload)
	}
	if m.pending != nil && m.pending.responseType == ev.MsgType {
		m.pending.response <- callResult{payload: slices.Clone(ev.Payload)}
		m.pending = nil
	}
}

func (m *Machine) handleWelcomeLocked() {
	if !m.appActive {
		m.logger.Debug("welcome without an app session ignored")
		return
	}
	m.watchdogGen++
	m.watchdog.Stop()
	m.watchdog = nil
	if !m.gcReady {
		m.logger.Info("coordinator ready",
			"hello_attempts", m.helloAttempts,
			"legacy", m.lastHello.Legacy,
			"digest", m.lastHello.Digest,
		)
	}
	m.gcReady = true
	m.state = Ready
	m.resolveWaitersLocked()
}

func (m *Machine) handleConnectionStatusLocked(payload []byte) {
	var status uint64 = haveSessionStatus
	if field, ok := gcwire.DecodeTopLevelField(payload, 1); ok && field.Type == gcwire.Varint {
		status = field.Uint
	}
	if status == haveSessionStatus || !m.appActive {
		return
	}
	m.logger.Warn("coordinator dropped the session", "status", status)
	m.gcReady = false
	m.state = HelloSent
	if err := m.sendHelloLocked(helloRebuild, true); err != nil {
		m.logger.Warn("re-sending hello failed", "error", err)
	}
}

// stopTimersLocked cancels the settle, warm-up and watchdog callbacks.
func (m *Machine) stopTimersLocked() {
	m.appGen++
	m.appTimer.Stop()
	m.appTimer = nil
	m.watchdogGen++
	m.watchdog.Stop()
	m.watchdog = nil
}

// resetLocked returns to Idle and rejects everyone waiting with cause.
func (m *Machine) resetLocked(cause error) {
	wasActive := m.appActive
	m.stopTimersLocked()
	m.appActive = false
	m.gcReady = false
	m.state = Idle
	m.helloAttempts = 0
	m.lastAppRequest = time.Time{}
	m.lastHelloSentAt = time.Time{}
	m.lastHello = Hello{}
	m.rejectWaitersLocked(cause)
	m.failCallLocked(cause)
	if wasActive {
		m.logger.Info("app session reset", "reason", cause)
	}
}

// scheduleLocked runs fn with the lock held after d. A non-positive d
// runs it immediately, on the caller's hold of the lock.
func (m *Machine) scheduleLocked(d time.Duration, fn func()) *clock.Timer {
	if d <= 0 {
		fn()
		return nil
	}
	return m.clock.AfterFunc(d, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		fn()
	})
}

// Status is a point-in-time copy of the handshake state.
type Status struct {
	State           State      `json:"state"`
	AppActive       bool       `json:"appActive"`
	GCReady         bool       `json:"gcReady"`
	LastHelloSentAt *time.Time `json:"lastHelloSentAt,omitempty"`
	HelloAttempts   int        `json:"helloAttempts"`
	LegacyHello     bool       `json:"legacyHello"`
	HelloDigest     string     `json:"helloDigest,omitempty"`
	Tokens          int        `json:"tokens"`
	Waiters         int        `json:"waiters"`
}

// Status returns a snapshot.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := Status{
		State:         m.state,
		AppActive:     m.appActive,
		GCReady:       m.gcReady,
		HelloAttempts: m.helloAttempts,
		LegacyHello:   m.lastHello.Legacy,
		HelloDigest:   m.lastHello.Digest,
		Tokens:        len(m.tokens),
		Waiters:       len(m.waiters),
	}
	if !m.lastHelloSentAt.IsZero() {
		at := m.lastHelloSentAt
		status.LastHelloSentAt = &at
	}
	return status
}
