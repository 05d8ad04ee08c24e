// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package steamsession_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lanternguild/gcbridge/lib/steamsession"
)

func TestClassify(t *testing.T) {
	result := func(code steamsession.Result) error {
		return &steamsession.ResultError{Result: code}
	}
	cases := []struct {
		name string
		err  error
		want steamsession.Class
	}{
		{"nil", nil, steamsession.ClassTransient},
		{"plain disconnect", errors.New("connection reset by peer"), steamsession.ClassTransient},
		{"timeout result", result(steamsession.ResultTimeout), steamsession.ClassTransient},
		{"try another server", result(steamsession.ResultTryAnotherCM), steamsession.ClassTransient},
		{"rate limit result", result(steamsession.ResultRateLimitExceeded), steamsession.ClassRateLimit},
		{"throttle result", result(steamsession.ResultAccountLoginDeniedThrottle), steamsession.ClassRateLimit},
		{"rate limit text", errors.New("RateLimitExceeded"), steamsession.ClassRateLimit},
		{"too many text", errors.New("too many requests"), steamsession.ClassRateLimit},
		{"invalid password", result(steamsession.ResultInvalidPassword), steamsession.ClassAuth},
		{"expired", result(steamsession.ResultExpired), steamsession.ClassAuth},
		{"revoked", result(steamsession.ResultRevoked), steamsession.ClassAuth},
		{"wrapped result", fmt.Errorf("logon: %w", result(steamsession.ResultAccessDenied)), steamsession.ClassAuth},
		{"expired text", errors.New("refresh token Expired"), steamsession.ClassAuth},
		{"invalid password text", errors.New("InvalidPassword"), steamsession.ClassAuth},
	}
	for _, tc := range cases {
		if got := steamsession.Classify(tc.err); got != tc.want {
			t.Errorf("%s: Classify = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestResultErrorMessage(t *testing.T) {
	err := &steamsession.ResultError{Result: steamsession.ResultInvalidPassword, Message: "InvalidPassword"}
	if got := err.Error(); got != "steam result 5: InvalidPassword" {
		t.Fatalf("Error() = %q", got)
	}
	bare := &steamsession.ResultError{Result: steamsession.ResultFail}
	if got := bare.Error(); got != "steam result 2" {
		t.Fatalf("Error() = %q", got)
	}
}
