// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.AppID != 1422450 {
		t.Errorf("app_id = %d", cfg.AppID)
	}
	if cfg.Intervals.TaskPoll != 5*time.Second || cfg.Intervals.PresencePoll != 15*time.Second {
		t.Errorf("intervals = %+v", cfg.Intervals)
	}
	if cfg.Account.TokenFile != "data/refresh-token.cbor" && cfg.Account.TokenFile != "./data/refresh-token.cbor" {
		t.Errorf("token_file = %q", cfg.Account.TokenFile)
	}
}

func TestLoadRequiresEnvironmentVariable(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), EnvConfigPath) {
		t.Fatalf("Load() error = %v, want mention of %s", err, EnvConfigPath)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
app_id: 730
database: /srv/bot/bot.db
log_level: debug
intervals:
  task_poll: 2s
tasks:
  breaker_threshold: 3
presence:
  sources:
    - table: members
      column: steam64
gc:
  hello:
    session_need: 200
`)
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.AppID != 730 || cfg.Database != "/srv/bot/bot.db" || cfg.LogLevel != "debug" {
		t.Errorf("top-level fields not loaded: %+v", cfg)
	}
	if cfg.Intervals.TaskPoll != 2*time.Second {
		t.Errorf("task_poll = %s, want 2s", cfg.Intervals.TaskPoll)
	}
	if cfg.Intervals.WatchlistRefresh != 30*time.Second {
		t.Errorf("watchlist_refresh lost its default: %s", cfg.Intervals.WatchlistRefresh)
	}
	if cfg.Tasks.BreakerThreshold != 3 || cfg.Tasks.BatchSize != 10 {
		t.Errorf("tasks = %+v", cfg.Tasks)
	}
	if len(cfg.Presence.Sources) != 1 || cfg.Presence.Sources[0].Table != "members" {
		t.Errorf("sources = %+v, want only members", cfg.Presence.Sources)
	}
	if cfg.GC.Hello.SessionNeed != 200 || cfg.GC.Hello.MaxTokens != 2 {
		t.Errorf("hello = %+v", cfg.GC.Hello)
	}
}

func TestLoadFileExpandsVariables(t *testing.T) {
	t.Setenv("GCBRIDGE_TEST_TOKEN", "eyJ-token")
	path := writeConfig(t, `
state_dir: /var/lib/gcbridge
account:
  name: ${GCBRIDGE_TEST_NAME:-bridgebot}
  refresh_token: ${GCBRIDGE_TEST_TOKEN}
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Account.Name != "bridgebot" {
		t.Errorf("name = %q, want default bridgebot", cfg.Account.Name)
	}
	if cfg.Account.RefreshToken != "eyJ-token" {
		t.Errorf("refresh_token = %q", cfg.Account.RefreshToken)
	}
	if cfg.Account.TokenFile != "/var/lib/gcbridge/refresh-token.cbor" {
		t.Errorf("token_file = %q", cfg.Account.TokenFile)
	}
	if !cfg.Account.HasCredentials() {
		t.Error("HasCredentials = false with a refresh token")
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{"${STATE_DIR}/token", map[string]string{"STATE_DIR": "/state"}, "/state/token"},
		{"${GCBRIDGE_UNSET_VAR:-fallback}", nil, "fallback"},
		{"${A}:${B}", map[string]string{"A": "1", "B": "2"}, "1:2"},
		{"plain", nil, "plain"},
	}
	for _, test := range tests {
		if got := expandVars(test.input, test.vars); got != test.expected {
			t.Errorf("expandVars(%q) = %q, want %q", test.input, got, test.expected)
		}
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.AppID = 0
	cfg.LogLevel = "chatty"
	cfg.Tasks.BatchSize = 0
	cfg.Session.ReconnectMax = time.Second
	cfg.Presence.Sources = []SourceConfig{{Table: "links; DROP TABLE x", Column: "steam_id"}}
	cfg.Account.Password = "a"
	cfg.Account.PasswordFile = "/b"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted an invalid config")
	}
	for _, want := range []string{
		"app_id",
		"log_level",
		"tasks.batch_size",
		"reconnect_max",
		"presence.sources[0]",
		"mutually exclusive",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %q:\n%v", want, err)
		}
	}
}

func TestHasCredentials(t *testing.T) {
	cases := []struct {
		account AccountConfig
		want    bool
	}{
		{AccountConfig{}, false},
		{AccountConfig{Name: "bot"}, false},
		{AccountConfig{Name: "bot", Password: "pw"}, true},
		{AccountConfig{Name: "bot", PasswordFile: "/pw"}, true},
		{AccountConfig{RefreshToken: "t"}, true},
	}
	for _, c := range cases {
		if got := c.account.HasCredentials(); got != c.want {
			t.Errorf("%+v.HasCredentials() = %v, want %v", c.account, got, c.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("warn")
	if err != nil || level != slog.LevelWarn {
		t.Fatalf("ParseLevel(warn) = %v, %v", level, err)
	}
	if _, err := ParseLevel(""); err == nil {
		t.Error("ParseLevel accepted an empty level")
	}
}

func TestEnsureDirs(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.StateDir = filepath.Join(root, "state")
	cfg.Database = filepath.Join(root, "db", "bridge.db")
	if err := cfg.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	for _, dir := range []string{cfg.StateDir, filepath.Dir(cfg.Database)} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("%s not created: %v", dir, err)
		}
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gcbridge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}
