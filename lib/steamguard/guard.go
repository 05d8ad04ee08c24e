// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package steamguard classifies second-factor challenges and generates
// the five-character codes of the Steam mobile authenticator.
//
// Classification is for display only. Every challenge is answered the
// same way, by submitting a code to the session; the kind tells an
// operator where to look for that code.
package steamguard

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/Philipp15b/go-steam/v3/totp"
)

// Kind is the operator-facing category of a guard challenge.
type Kind string

const (
	KindEmail              Kind = "email"
	KindTOTP               Kind = "totp"
	KindDeviceConfirmation Kind = "device_confirmation"
	KindUnknown            Kind = "unknown"
)

// Classify maps the domain or metadata string attached to a challenge
// to a Kind. An email challenge carries the mail domain the code was
// sent to; authenticator challenges carry a marker such as
// "two-factor"; device confirmations mention the device or a
// confirmation.
func Classify(domain string) Kind {
	normalized := strings.ToLower(strings.TrimSpace(domain))
	switch {
	case normalized == "":
		return KindUnknown
	case strings.Contains(normalized, "device"), strings.Contains(normalized, "confirm"):
		return KindDeviceConfirmation
	case strings.Contains(normalized, "two-factor"),
		strings.Contains(normalized, "twofactor"),
		strings.Contains(normalized, "totp"),
		strings.Contains(normalized, "mobile"),
		strings.Contains(normalized, "authenticator"):
		return KindTOTP
	case strings.Contains(normalized, "email"),
		strings.Contains(normalized, "@"),
		strings.Contains(normalized, "."):
		return KindEmail
	default:
		return KindUnknown
	}
}

// codePeriod is how long one authenticator code stays current.
const codePeriod = 30

// DecodeSharedSecret decodes the base64 shared secret exported from an
// authenticator.
func DecodeSharedSecret(secret string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(secret))
	if err != nil {
		return nil, fmt.Errorf("steamguard: shared secret is not base64: %w", err)
	}
	if len(decoded) == 0 {
		return nil, fmt.Errorf("steamguard: shared secret is empty")
	}
	return decoded, nil
}

// CodeAt returns the authenticator code for the decoded shared secret
// key at the given time.
func CodeAt(key []byte, at time.Time) string {
	code, err := totp.GenerateTotpCode(base64.StdEncoding.EncodeToString(key), at)
	if err != nil {
		// Unreachable: the secret was encoded just above.
		return ""
	}
	return code
}

// Code validates secret and returns the code for at.
func Code(secret string, at time.Time) (string, error) {
	if _, err := DecodeSharedSecret(secret); err != nil {
		return "", err
	}
	code, err := totp.GenerateTotpCode(strings.TrimSpace(secret), at)
	if err != nil {
		return "", fmt.Errorf("steamguard: %w", err)
	}
	return code, nil
}

// RemainingValidity returns how long the code for at stays current.
func RemainingValidity(at time.Time) time.Duration {
	elapsed := at.Unix() % codePeriod
	return time.Duration(codePeriod-elapsed) * time.Second
}
