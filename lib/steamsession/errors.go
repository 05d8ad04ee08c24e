// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package steamsession

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAlreadyLoggingIn   = errors.New("steamsession: login already in progress")
	ErrMissingCredentials = errors.New("steamsession: a refresh token or account name and password is required")
	ErrGuardPending       = errors.New("steamsession: a guard code must be submitted before logging in again")
	ErrNoPendingChallenge = errors.New("steamsession: no guard challenge is pending")
	ErrTooManyAttempts    = errors.New("steamsession: login attempt limit reached")
	ErrNotLoggedOn        = errors.New("steamsession: not logged on")
	ErrLoggedOut          = errors.New("steamsession: logged out")
	ErrDisconnected       = errors.New("steamsession: disconnected")
	ErrClosed             = errors.New("steamsession: manager closed")
)

// Result is a Steam EResult code.
type Result int32

// The EResult values the bridge distinguishes. The numbering is
// Steam's.
const (
	ResultOK                         Result = 1
	ResultFail                       Result = 2
	ResultNoConnection               Result = 3
	ResultInvalidPassword            Result = 5
	ResultBusy                       Result = 10
	ResultAccessDenied               Result = 15
	ResultTimeout                    Result = 16
	ResultAccountNotFound            Result = 18
	ResultServiceUnavailable         Result = 20
	ResultLimitExceeded              Result = 25
	ResultRevoked                    Result = 26
	ResultExpired                    Result = 27
	ResultAccountDisabled            Result = 43
	ResultTryAnotherCM               Result = 48
	ResultAccountLogonDenied         Result = 63
	ResultInvalidLoginAuthCode       Result = 65
	ResultRateLimitExceeded          Result = 84
	ResultAccountLoginDeniedTwoFact  Result = 85
	ResultAccountLoginDeniedThrottle Result = 87
	ResultTwoFactorCodeMismatch      Result = 88
)

// ResultError is a failure Steam reported with an EResult code.
type ResultError struct {
	Result  Result
	Message string
}

func (e *ResultError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("steam result %d: %s", e.Result, e.Message)
	}
	return fmt.Sprintf("steam result %d", e.Result)
}

// Class says how the manager recovers from an error.
type Class int

const (
	// ClassTransient errors are retried with exponential backoff.
	ClassTransient Class = iota
	// ClassRateLimit errors are retried after a fixed longer delay.
	ClassRateLimit
	// ClassAuth errors are not retried.
	ClassAuth
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassRateLimit:
		return "rate_limit"
	case ClassAuth:
		return "auth"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Classify sorts err into a recovery class. A *ResultError is judged
// by its code; anything else by its message, since transports surface
// some failures only as text.
func Classify(err error) Class {
	if err == nil {
		return ClassTransient
	}
	var resultError *ResultError
	if errors.As(err, &resultError) {
		switch resultError.Result {
		case ResultRateLimitExceeded, ResultAccountLoginDeniedThrottle, ResultLimitExceeded:
			return ClassRateLimit
		case ResultInvalidPassword, ResultAccessDenied, ResultAccountNotFound,
			ResultRevoked, ResultExpired, ResultAccountDisabled,
			ResultInvalidLoginAuthCode, ResultTwoFactorCodeMismatch:
			return ClassAuth
		}
	}

	message := strings.ToLower(err.Error())
	for _, marker := range []string{"ratelimit", "rate limit", "rate_limit", "too many", "throttle"} {
		if strings.Contains(message, marker) {
			return ClassRateLimit
		}
	}
	for _, marker := range []string{
		"invalidpassword", "invalid password", "expired", "revoked",
		"invalid token", "accessdenied", "access denied", "unauthorized",
	} {
		if strings.Contains(message, marker) {
			return ClassAuth
		}
	}
	return ClassTransient
}
