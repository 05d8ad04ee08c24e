// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lanternguild/gcbridge/lib/bridge"
	"github.com/lanternguild/gcbridge/lib/clock"
	"github.com/lanternguild/gcbridge/lib/config"
	"github.com/lanternguild/gcbridge/lib/gcsession"
	"github.com/lanternguild/gcbridge/lib/presence"
	"github.com/lanternguild/gcbridge/lib/secret"
	"github.com/lanternguild/gcbridge/lib/sqlitepool"
	"github.com/lanternguild/gcbridge/lib/steamclient"
	"github.com/lanternguild/gcbridge/lib/steamid"
	"github.com/lanternguild/gcbridge/lib/steamsession"
	"github.com/lanternguild/gcbridge/lib/taskqueue"
	"github.com/lanternguild/gcbridge/lib/tokenstore"
	"github.com/lanternguild/gcbridge/lib/version"
)

func newRunCommand(options *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := options.loadConfig()
			if err != nil {
				return err
			}
			logger, levelVar, err := options.newLogger(os.Stderr, cfg.LogLevel)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go reloadLogLevelOnHangup(ctx, options, levelVar, logger)

			return runBridge(ctx, cfg, logger)
		},
	}
}

// reloadLogLevelOnHangup re-reads log_level from the configuration file
// on SIGHUP. Nothing else is reloaded.
func reloadLogLevelOnHangup(ctx context.Context, options *globalOptions, levelVar *slog.LevelVar, logger *slog.Logger) {
	hangup := make(chan os.Signal, 1)
	signal.Notify(hangup, syscall.SIGHUP)
	defer signal.Stop(hangup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hangup:
			cfg, err := options.loadConfig()
			if err != nil {
				logger.Error("reloading configuration failed", "error", err)
				continue
			}
			level, _ := config.ParseLevel(cfg.LogLevel)
			levelVar.Set(level)
			logger.Info("log level reloaded", "level", level)
		}
	}
}

// runBridge wires every component and supervises them until ctx ends
// or one of them fails.
func runBridge(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("gcbridge starting", "version", version.Info(), "app_id", cfg.AppID, "database", cfg.Database)
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{Path: cfg.Database, Logger: logger.With("component", "sqlite")})
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := bridge.Migrate(ctx, pool); err != nil {
		return err
	}

	creds, err := loadCredentials(cfg, logger)
	if err != nil {
		return err
	}

	transport := steamclient.New(logger.With("component", "steam"))
	defer transport.Close()

	manager, err := steamsession.New(steamsession.Config{
		Transport:        transport,
		Logger:           logger.With("component", "session"),
		MaxLoginAttempts: cfg.Session.MaxLoginAttempts,
		LogonTimeout:     cfg.Session.LogonTimeout,
		Reconnect: steamsession.ReconnectPolicy{
			Base:           cfg.Session.ReconnectBase,
			Max:            cfg.Session.ReconnectMax,
			Jitter:         cfg.Session.ReconnectJitter,
			RateLimitDelay: cfg.Session.RateLimitDelay,
		},
		OnRefreshToken:         persistRefreshToken(cfg.Account.TokenFile, logger),
		OnRefreshTokenRejected: forgetRefreshToken(cfg.Account.TokenFile, logger),
	})
	if err != nil {
		return err
	}
	defer manager.Close()

	messages := cfg.GC.Messages
	machine, err := gcsession.New(gcsession.Config{
		Session: manager,
		AppID:   cfg.AppID,
		Messages: gcsession.Messages{
			Hello:            messages.Hello,
			Welcome:          messages.Welcome,
			ConnectionStatus: messages.ConnectionStatus,
		},
		Profile:          helloProfile(cfg.GC.Hello),
		Logger:           logger.With("component", "gc"),
		AppDebounce:      cfg.GC.AppDebounce,
		QuitSettle:       cfg.GC.QuitSettle,
		Warmup:           cfg.GC.Warmup,
		HelloDebounce:    cfg.GC.HelloDebounce,
		HelloTimeout:     cfg.GC.HelloTimeout,
		MaxHelloAttempts: cfg.GC.MaxHelloAttempts,
		ReadyTimeout:     cfg.GC.ReadyTimeout,
		RequestTimeout:   cfg.GC.RequestTimeout,
		AutoStart:        true,
	})
	if err != nil {
		return err
	}
	manager.Subscribe(machine)

	taskStore := taskqueue.NewSQLStore(pool, clock.Real())
	registry := taskqueue.NewRegistry()
	handlers := &bridge.Handlers{
		Session:      manager,
		Coordinator:  machine,
		Credentials:  creds,
		Invite:       bridge.InviteMessages{Request: messages.InviteRequest, Response: messages.InviteResponse},
		ReadyTimeout: cfg.GC.ReadyTimeout,
		Logger:       logger.With("component", "tasks"),
	}
	if err := handlers.Register(registry); err != nil {
		return err
	}
	processor, err := taskqueue.NewProcessor(taskqueue.Config{
		Store:        taskStore,
		Registry:     registry,
		Breaker:      taskqueue.NewBreaker(cfg.Tasks.BreakerWindow, cfg.Tasks.BreakerThreshold),
		Logger:       logger.With("component", "tasks"),
		PollInterval: cfg.Intervals.TaskPoll,
		BatchSize:    cfg.Tasks.BatchSize,
	})
	if err != nil {
		return err
	}

	sources := make([]presence.Source, len(cfg.Presence.Sources))
	for i, source := range cfg.Presence.Sources {
		sources[i] = presence.Source{Table: source.Table, Column: source.Column}
	}
	presenceStore, err := presence.NewSQLStore(pool, sources)
	if err != nil {
		return err
	}
	poller, err := presence.NewPoller(presence.Config{
		Store:           presenceStore,
		Session:         manager,
		AppID:           cfg.AppID,
		Logger:          logger.With("component", "presence"),
		RefreshInterval: cfg.Intervals.WatchlistRefresh,
		PollInterval:    cfg.Intervals.PresencePoll,
		ChunkSize:       cfg.Presence.ChunkSize,
		ChunkInterval:   cfg.Presence.ChunkInterval,
	})
	if err != nil {
		return err
	}
	manager.Subscribe(poller)

	reporter := &bridge.Reporter{
		Session:   manager,
		GC:        machine,
		Tasks:     processor,
		Presence:  poller,
		StartedAt: time.Now(),
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return manager.Run(groupCtx) })
	group.Go(func() error { return processor.Run(groupCtx) })
	group.Go(func() error { return poller.Run(groupCtx) })
	if cfg.Listen != "" {
		router := newRouter(reporter, taskStore, logger.With("component", "http"))
		group.Go(func() error { return serveHTTP(groupCtx, cfg.Listen, router, logger) })
	}
	if !creds.IsZero() {
		group.Go(func() error {
			autoLogin(groupCtx, manager, creds, logger)
			return nil
		})
	} else {
		logger.Warn("no credentials configured; waiting for an AUTH_LOGIN task")
	}

	err = group.Wait()
	if ctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled)) {
		logger.Info("gcbridge stopped")
		return nil
	}
	return err
}

// autoLogin logs on at startup. Failures are logged: the manager keeps
// retrying transient ones, and tasks can log on later.
func autoLogin(ctx context.Context, manager *steamsession.Manager, creds steamsession.Credentials, logger *slog.Logger) {
	result, err := manager.Login(ctx, creds)
	switch {
	case err != nil && ctx.Err() == nil:
		logger.Error("initial login failed", "error", err)
	case result.Guard != nil:
		logger.Warn("initial login needs a guard code; queue an AUTH_GUARD_CODE task",
			"kind", result.Guard.Kind, "domain", result.Guard.Domain)
	case err == nil:
		logger.Info("initial login complete", "account_id", result.Status.AccountID)
	}
}

// loadCredentials assembles credentials from the configuration, the
// password file and the stored refresh token. A stored token for the
// same account wins over the configured one, since Steam rotates it.
func loadCredentials(cfg *config.Config, logger *slog.Logger) (steamsession.Credentials, error) {
	account := cfg.Account
	creds := steamsession.Credentials{
		AccountName:  account.Name,
		Password:     account.Password,
		RefreshToken: account.RefreshToken,
		SharedSecret: account.SharedSecret,
		GuardCode:    account.GuardCode,
	}
	if account.PasswordFile != "" {
		buffer, err := secret.ReadFile(account.PasswordFile)
		if err != nil {
			return steamsession.Credentials{}, err
		}
		creds.Password = buffer.String()
		buffer.Close()
	}
	if account.TokenFile != "" {
		state, ok, err := tokenstore.Load(account.TokenFile, account.Name)
		if err != nil {
			logger.Warn("ignoring unreadable token file", "path", account.TokenFile, "error", err)
		} else if ok {
			creds.RefreshToken = state.RefreshToken
			if creds.AccountName == "" {
				creds.AccountName = state.AccountName
			}
			logger.Info("using stored refresh token", "account", state.AccountName, "updated_at", state.UpdatedAt)
		}
	}
	return creds, nil
}

// persistRefreshToken returns the OnRefreshToken hook writing each new
// token to path.
func persistRefreshToken(path string, logger *slog.Logger) func(string, string, steamid.ID) {
	if path == "" {
		return nil
	}
	return func(accountName, token string, id steamid.ID) {
		err := tokenstore.Write(path, tokenstore.State{
			AccountName:  accountName,
			RefreshToken: token,
			SteamID:      uint64(id),
			UpdatedAt:    time.Now().UTC(),
		})
		if err != nil {
			logger.Error("persisting refresh token failed", "path", path, "error", err)
			return
		}
		logger.Info("refresh token persisted", "path", path)
	}
}

// forgetRefreshToken returns the OnRefreshTokenRejected hook removing
// the stored token, so the next start does not offer it again.
func forgetRefreshToken(path string, logger *slog.Logger) func(string) {
	if path == "" {
		return nil
	}
	return func(accountName string) {
		state, ok, err := tokenstore.Load(path, accountName)
		if err != nil || !ok {
			return
		}
		if err := tokenstore.Clear(path); err != nil {
			logger.Error("removing rejected refresh token failed", "path", path, "error", err)
			return
		}
		logger.Info("rejected refresh token removed", "path", path, "account", state.AccountName)
	}
}

func helloProfile(hello config.HelloConfig) gcsession.HelloProfile {
	return gcsession.HelloProfile{
		ActorKind:    hello.ActorKind,
		SessionNeed:  hello.SessionNeed,
		EntryFlags:   hello.EntryFlags,
		ScreenWidth:  hello.ScreenWidth,
		ScreenHeight: hello.ScreenHeight,
		MinFrameRate: hello.MinFrameRate,
		MaxFrameRate: hello.MaxFrameRate,
		MaxTokens:    hello.MaxTokens,
	}
}

// serveHTTP runs the status server until ctx ends.
func serveHTTP(ctx context.Context, address string, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	failed := make(chan error, 1)
	go func() {
		logger.Info("status server listening", "address", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			failed <- fmt.Errorf("status server: %w", err)
		}
		close(failed)
	}()

	select {
	case err := <-failed:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	return nil
}
