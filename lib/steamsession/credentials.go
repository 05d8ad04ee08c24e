// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package steamsession

import (
	"fmt"

	"github.com/lanternguild/gcbridge/lib/secret"
	"github.com/lanternguild/gcbridge/lib/steamguard"
)

// Credentials are the inputs to Login. A refresh token is preferred;
// otherwise AccountName and Password are required. SharedSecret and
// GuardCode are optional answers to guard challenges.
type Credentials struct {
	AccountName  string
	Password     string
	RefreshToken string
	SharedSecret string
	GuardCode    string
}

// IsZero reports whether no field is set.
func (c Credentials) IsZero() bool {
	return c == Credentials{}
}

// vault holds credentials between logon attempts. Secret material is
// kept in mmap-backed buffers and copied out only to build
// LogOnDetails.
type vault struct {
	accountName  string
	password     *secret.Buffer
	refreshToken *secret.Buffer
	sharedKey    *secret.Buffer
	guardCode    string
}

func newVault(c Credentials) (*vault, error) {
	v := &vault{accountName: c.AccountName, guardCode: c.GuardCode}
	var err error
	if c.Password != "" {
		if v.password, err = secret.NewFromString(c.Password); err != nil {
			return nil, err
		}
	}
	if c.RefreshToken != "" {
		if v.refreshToken, err = secret.NewFromString(c.RefreshToken); err != nil {
			v.close()
			return nil, err
		}
	}
	if c.SharedSecret != "" {
		key, err := steamguard.DecodeSharedSecret(c.SharedSecret)
		if err != nil {
			v.close()
			return nil, fmt.Errorf("steamsession: %w", err)
		}
		if v.sharedKey, err = secret.NewFromBytes(key); err != nil {
			v.close()
			return nil, err
		}
	}
	return v, nil
}

func (v *vault) usable() bool {
	if v == nil {
		return false
	}
	return v.refreshToken != nil || (v.accountName != "" && v.password != nil)
}

func (v *vault) details() LogOnDetails {
	details := LogOnDetails{AccountName: v.accountName}
	if v.refreshToken != nil {
		details.RefreshToken = v.refreshToken.String()
	} else if v.password != nil {
		details.Password = v.password.String()
	}
	return details
}

func (v *vault) setRefreshToken(token string) error {
	buffer, err := secret.NewFromString(token)
	if err != nil {
		return err
	}
	v.refreshToken.Close()
	v.refreshToken = buffer
	return nil
}

func (v *vault) dropRefreshToken() {
	v.refreshToken.Close()
	v.refreshToken = nil
}

func (v *vault) close() {
	if v == nil {
		return
	}
	v.password.Close()
	v.refreshToken.Close()
	v.sharedKey.Close()
	v.password, v.refreshToken, v.sharedKey = nil, nil, nil
}
