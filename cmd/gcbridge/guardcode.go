// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lanternguild/gcbridge/lib/secret"
	"github.com/lanternguild/gcbridge/lib/steamguard"
)

func newGuardCodeCommand(options *globalOptions) *cobra.Command {
	var secretFile string
	command := &cobra.Command{
		Use:   "guard-code",
		Short: "Print the current authenticator code",
		Long: "Print the Steam Guard authenticator code for the shared secret in\n" +
			"--secret-file, $GCBRIDGE_SHARED_SECRET, or account.shared_secret.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sharedSecret, err := resolveSharedSecret(secretFile, options)
			if err != nil {
				return err
			}
			now := time.Now()
			code, err := steamguard.Code(sharedSecret, now)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), code)
			fmt.Fprintln(cmd.ErrOrStderr(), faintStyle.Render("valid for "+steamguard.RemainingValidity(now).String()))
			return nil
		},
	}
	command.Flags().StringVar(&secretFile, "secret-file", "", "file holding the base64 shared secret")
	return command
}

func resolveSharedSecret(secretFile string, options *globalOptions) (string, error) {
	if secretFile != "" {
		buffer, err := secret.ReadFile(secretFile)
		if err != nil {
			return "", err
		}
		defer buffer.Close()
		return buffer.String(), nil
	}
	if value := os.Getenv("GCBRIDGE_SHARED_SECRET"); value != "" {
		return value, nil
	}
	cfg, err := options.loadConfig()
	if err != nil {
		return "", fmt.Errorf("no shared secret: pass --secret-file or set GCBRIDGE_SHARED_SECRET (%w)", err)
	}
	if cfg.Account.SharedSecret == "" {
		return "", fmt.Errorf("account.shared_secret is not configured")
	}
	return cfg.Account.SharedSecret, nil
}
