// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package steamsession

import (
	"fmt"
	"time"

	"github.com/lanternguild/gcbridge/lib/steamguard"
)

// State is the manager's position in the logon lifecycle.
type State int

const (
	LoggedOut State = iota
	LoggingIn
	AwaitingGuard
	LoggedOn
)

func (s State) String() string {
	switch s {
	case LoggedOut:
		return "logged_out"
	case LoggingIn:
		return "logging_in"
	case AwaitingGuard:
		return "awaiting_guard"
	case LoggedOn:
		return "logged_on"
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
	for candidate := LoggedOut; candidate <= LoggedOn; candidate++ {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("steamsession: unknown state %q", text)
}

// GuardInfo describes a pending second-factor challenge.
type GuardInfo struct {
	Kind          steamguard.Kind `json:"kind"`
	Domain        string          `json:"domain,omitempty"`
	LastCodeWrong bool            `json:"lastCodeWrong,omitempty"`
}

// ErrorInfo is the last failure, as shown in the status snapshot.
type ErrorInfo struct {
	Message string    `json:"message"`
	Code    Result    `json:"code,omitempty"`
	Class   string    `json:"class"`
	At      time.Time `json:"at"`
}

// Status is a point-in-time copy of the manager's state.
type Status struct {
	State           State      `json:"state"`
	LoggedOn        bool       `json:"loggedOn"`
	LoggingIn       bool       `json:"loggingIn"`
	Connected       bool       `json:"connected"`
	AccountID       string     `json:"accountId,omitempty"`
	AccountName     string     `json:"accountName,omitempty"`
	LastError       *ErrorInfo `json:"lastError,omitempty"`
	LoginAttempts   int        `json:"loginAttempts"`
	HasPendingGuard bool       `json:"hasPendingGuard"`
	GuardInfo       *GuardInfo `json:"guardInfo,omitempty"`
	ReconnectAt     *time.Time `json:"reconnectAt,omitempty"`
}

// LoginResult is the outcome of Login or AwaitLoggedOn that did not
// fail.
type LoginResult struct {
	// AlreadyLoggedOn is set when Login found the session up.
	AlreadyLoggedOn bool `json:"alreadyLoggedOn,omitempty"`

	// Guard is set when Login stopped at a challenge that needs a
	// code from an operator.
	Guard *GuardInfo `json:"guard,omitempty"`

	Status Status `json:"status"`
}
