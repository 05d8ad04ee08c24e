// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable Load reads.
const EnvConfigPath = "GCBRIDGE_CONFIG"

// Config is the complete bridge configuration.
type Config struct {
	// AppID is the game whose coordinator the bridge talks to.
	AppID uint32 `yaml:"app_id"`

	// Database is the SQLite file shared with the bot.
	Database string `yaml:"database"`

	// StateDir holds files the bridge owns, such as the refresh token.
	StateDir string `yaml:"state_dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// Listen is the address of the status endpoint. Empty disables it.
	Listen string `yaml:"listen"`

	Account   AccountConfig   `yaml:"account"`
	Intervals IntervalsConfig `yaml:"intervals"`
	Tasks     TasksConfig     `yaml:"tasks"`
	Presence  PresenceConfig  `yaml:"presence"`
	Session   SessionConfig   `yaml:"session"`
	GC        GCConfig        `yaml:"gc"`
}

// AccountConfig holds the bot account's credentials. A refresh token
// is preferred; name plus password (or password_file) is the fallback.
type AccountConfig struct {
	Name         string `yaml:"name"`
	Password     string `yaml:"password"`
	PasswordFile string `yaml:"password_file"`
	RefreshToken string `yaml:"refresh_token"`

	// TokenFile persists rotated refresh tokens across restarts.
	TokenFile string `yaml:"token_file"`

	// SharedSecret is the authenticator's base64 shared secret. When
	// set, authenticator challenges are answered automatically.
	SharedSecret string `yaml:"shared_secret"`

	// GuardCode is submitted once for the first challenge of a run.
	GuardCode string `yaml:"guard_code"`
}

// HasCredentials reports whether any login path is configured.
func (a AccountConfig) HasCredentials() bool {
	if a.RefreshToken != "" {
		return true
	}
	return a.Name != "" && (a.Password != "" || a.PasswordFile != "")
}

// IntervalsConfig sets the background loop periods.
type IntervalsConfig struct {
	TaskPoll         time.Duration `yaml:"task_poll"`
	WatchlistRefresh time.Duration `yaml:"watchlist_refresh"`
	PresencePoll     time.Duration `yaml:"presence_poll"`
}

// TasksConfig tunes the task processor.
type TasksConfig struct {
	BatchSize        int           `yaml:"batch_size"`
	BreakerWindow    time.Duration `yaml:"breaker_window"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
}

// SourceConfig names one table column holding watched identities.
type SourceConfig struct {
	Table  string `yaml:"table"`
	Column string `yaml:"column"`
}

// PresenceConfig tunes the presence poller.
type PresenceConfig struct {
	ChunkSize     int            `yaml:"chunk_size"`
	ChunkInterval time.Duration  `yaml:"chunk_interval"`
	Sources       []SourceConfig `yaml:"sources"`
}

// SessionConfig tunes login and reconnect behaviour.
type SessionConfig struct {
	MaxLoginAttempts int           `yaml:"max_login_attempts"`
	ReconnectBase    time.Duration `yaml:"reconnect_base"`
	ReconnectMax     time.Duration `yaml:"reconnect_max"`
	ReconnectJitter  time.Duration `yaml:"reconnect_jitter"`
	RateLimitDelay   time.Duration `yaml:"rate_limit_delay"`
	LogonTimeout     time.Duration `yaml:"logon_timeout"`
}

// GCConfig tunes the coordinator handshake.
type GCConfig struct {
	AppDebounce      time.Duration `yaml:"app_debounce"`
	QuitSettle       time.Duration `yaml:"quit_settle"`
	Warmup           time.Duration `yaml:"warmup"`
	HelloDebounce    time.Duration `yaml:"hello_debounce"`
	HelloTimeout     time.Duration `yaml:"hello_timeout"`
	MaxHelloAttempts int           `yaml:"max_hello_attempts"`
	ReadyTimeout     time.Duration `yaml:"ready_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`

	Hello    HelloConfig    `yaml:"hello"`
	Messages MessagesConfig `yaml:"messages"`
}

// HelloConfig holds the constants carried by the hello payload. They
// were taken from captured traffic and are expected to change with
// game updates, so they live in configuration.
type HelloConfig struct {
	ActorKind    uint64 `yaml:"actor_kind"`
	SessionNeed  uint64 `yaml:"session_need"`
	EntryFlags   uint64 `yaml:"entry_flags"`
	ScreenWidth  uint64 `yaml:"screen_width"`
	ScreenHeight uint64 `yaml:"screen_height"`
	MinFrameRate uint64 `yaml:"min_frame_rate"`
	MaxFrameRate uint64 `yaml:"max_frame_rate"`
	MaxTokens    int    `yaml:"max_tokens"`
}

// MessagesConfig holds coordinator message type ids.
type MessagesConfig struct {
	Hello            uint32 `yaml:"hello"`
	Welcome          uint32 `yaml:"welcome"`
	ConnectionStatus uint32 `yaml:"connection_status"`
	InviteRequest    uint32 `yaml:"invite_request"`
	InviteResponse   uint32 `yaml:"invite_response"`
}

// Default returns the configuration used for every field the file
// leaves unset.
func Default() *Config {
	return &Config{
		AppID:    1422450,
		Database: "./data/gcbridge.db",
		StateDir: "./data",
		LogLevel: "info",
		Listen:   "127.0.0.1:8733",
		Account: AccountConfig{
			TokenFile: "${STATE_DIR}/refresh-token.cbor",
		},
		Intervals: IntervalsConfig{
			TaskPoll:         5 * time.Second,
			WatchlistRefresh: 30 * time.Second,
			PresencePoll:     15 * time.Second,
		},
		Tasks: TasksConfig{
			BatchSize:        10,
			BreakerWindow:    5 * time.Minute,
			BreakerThreshold: 5,
		},
		Presence: PresenceConfig{
			ChunkSize:     25,
			ChunkInterval: time.Second,
			Sources: []SourceConfig{
				{Table: "steam_links", Column: "steam_id"},
				{Table: "steam_watchlist", Column: "steam_id"},
			},
		},
		Session: SessionConfig{
			MaxLoginAttempts: 5,
			ReconnectBase:    5 * time.Second,
			ReconnectMax:     5 * time.Minute,
			ReconnectJitter:  time.Second,
			RateLimitDelay:   60 * time.Second,
			LogonTimeout:     30 * time.Second,
		},
		GC: GCConfig{
			AppDebounce:      15 * time.Second,
			QuitSettle:       time.Second,
			Warmup:           5 * time.Second,
			HelloDebounce:    2 * time.Second,
			HelloTimeout:     5 * time.Second,
			MaxHelloAttempts: 6,
			ReadyTimeout:     30 * time.Second,
			RequestTimeout:   15 * time.Second,
			Hello: HelloConfig{
				ActorKind:    1,
				SessionNeed:  104,
				EntryFlags:   1,
				ScreenWidth:  1920,
				ScreenHeight: 1080,
				MinFrameRate: 30,
				MaxFrameRate: 144,
				MaxTokens:    2,
			},
			Messages: MessagesConfig{
				Hello:            4006,
				Welcome:          4004,
				ConnectionStatus: 4009,
				InviteRequest:    9189,
				InviteResponse:   9190,
			},
		},
	}
}

// Load reads the file named by GCBRIDGE_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your gcbridge.yaml, or use --config", EnvConfigPath)
	}
	return LoadFile(path)
}

// LoadFile reads path over the defaults and expands variables. It does
// not validate; callers run Validate once flags have been applied.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and expands variables.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.StateDir = expandVars(c.StateDir, vars)
	vars["STATE_DIR"] = c.StateDir

	for _, field := range []*string{
		&c.Database,
		&c.LogLevel,
		&c.Listen,
		&c.Account.Name,
		&c.Account.Password,
		&c.Account.PasswordFile,
		&c.Account.RefreshToken,
		&c.Account.TokenFile,
		&c.Account.SharedSecret,
		&c.Account.GuardCode,
	} {
		*field = expandVars(*field, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars replaces ${VAR} and ${VAR:-default}. vars is consulted
// before the environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}

	if c.AppID == 0 {
		errs = append(errs, fmt.Errorf("app_id is required"))
	}
	if c.Database == "" {
		errs = append(errs, fmt.Errorf("database is required"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Account.Password != "" && c.Account.PasswordFile != "" {
		errs = append(errs, fmt.Errorf("account.password and account.password_file are mutually exclusive"))
	}

	positive("intervals.task_poll", c.Intervals.TaskPoll)
	positive("intervals.watchlist_refresh", c.Intervals.WatchlistRefresh)
	positive("intervals.presence_poll", c.Intervals.PresencePoll)

	if c.Tasks.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("tasks.batch_size must be positive"))
	}
	positive("tasks.breaker_window", c.Tasks.BreakerWindow)
	if c.Tasks.BreakerThreshold <= 0 {
		errs = append(errs, fmt.Errorf("tasks.breaker_threshold must be positive"))
	}

	if c.Presence.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("presence.chunk_size must be positive"))
	}
	if c.Presence.ChunkInterval < 0 {
		errs = append(errs, fmt.Errorf("presence.chunk_interval must not be negative"))
	}
	for i, source := range c.Presence.Sources {
		if !identifierPattern.MatchString(source.Table) || !identifierPattern.MatchString(source.Column) {
			errs = append(errs, fmt.Errorf("presence.sources[%d]: %q.%q is not a plain SQL identifier",
				i, source.Table, source.Column))
		}
	}

	if c.Session.MaxLoginAttempts <= 0 {
		errs = append(errs, fmt.Errorf("session.max_login_attempts must be positive"))
	}
	positive("session.reconnect_base", c.Session.ReconnectBase)
	if c.Session.ReconnectMax < c.Session.ReconnectBase {
		errs = append(errs, fmt.Errorf("session.reconnect_max must not be below reconnect_base"))
	}
	if c.Session.ReconnectJitter < 0 {
		errs = append(errs, fmt.Errorf("session.reconnect_jitter must not be negative"))
	}
	positive("session.rate_limit_delay", c.Session.RateLimitDelay)
	positive("session.logon_timeout", c.Session.LogonTimeout)

	positive("gc.hello_timeout", c.GC.HelloTimeout)
	positive("gc.ready_timeout", c.GC.ReadyTimeout)
	positive("gc.request_timeout", c.GC.RequestTimeout)
	if c.GC.MaxHelloAttempts <= 0 {
		errs = append(errs, fmt.Errorf("gc.max_hello_attempts must be positive"))
	}
	if c.GC.Hello.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("gc.hello.max_tokens must be positive"))
	}
	messages := c.GC.Messages
	if messages.Hello == 0 || messages.Welcome == 0 || messages.InviteRequest == 0 || messages.InviteResponse == 0 {
		errs = append(errs, fmt.Errorf("gc.messages: hello, welcome, invite_request and invite_response are required"))
	}

	return errors.Join(errs...)
}

// ParseLevel maps log_level to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("log_level %q: want debug, info, warn or error", name)
	}
	return level, nil
}

// EnsureDirs creates the state directory and the database's parent.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.StateDir, filepath.Dir(c.Database)} {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}
