// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/lanternguild/gcbridge/lib/bridge"
	"github.com/lanternguild/gcbridge/lib/config"
)

func newStatusCommand(options *globalOptions) *cobra.Command {
	var (
		address string
		asJSON  bool
		timeout time.Duration
	)
	command := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if address == "" {
				address = config.Default().Listen
				if cfg, err := options.loadConfig(); err == nil && cfg.Listen != "" {
					address = cfg.Listen
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			raw, err := fetchStatus(ctx, http.DefaultClient, address)
			if err != nil {
				return err
			}
			if asJSON {
				_, err := cmd.OutOrStdout().Write(raw)
				return err
			}
			var status bridge.Status
			if err := json.Unmarshal(raw, &status); err != nil {
				return fmt.Errorf("decoding status: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderStatus(status, time.Now()))
			return nil
		},
	}
	flags := command.Flags()
	flags.StringVar(&address, "addr", "", "status server address (default: listen from the configuration)")
	flags.BoolVar(&asJSON, "json", false, "print the raw JSON snapshot")
	flags.DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	return command
}

// fetchStatus GETs /status from the bridge at address.
func fetchStatus(ctx context.Context, client *http.Client, address string) ([]byte, error) {
	url := address
	if !strings.Contains(url, "://") {
		url = "http://" + url
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(url, "/")+"/status", nil)
	if err != nil {
		return nil, err
	}
	response, err := client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("bridge not reachable at %s: %w", address, err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("reading status: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status request failed: %s", response.Status)
	}
	return body, nil
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(18)
	phaseStyle = map[bridge.Phase]lipgloss.Style{
		bridge.PhaseReady:         lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		bridge.PhaseGCNotReady:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		bridge.PhaseAwaitingGuard: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		bridge.PhaseLoggingIn:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		bridge.PhaseLoggedOut:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
	}
	sectionStyle = lipgloss.NewStyle().MarginTop(1)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// renderStatus formats a snapshot for a terminal.
func renderStatus(status bridge.Status, now time.Time) string {
	var sections []string

	header := titleStyle.Render("gcbridge "+status.Version) + "  " +
		phaseStyle[status.Phase].Render(string(status.Phase))
	if !status.StartedAt.IsZero() {
		header += faintStyle.Render("  up " + now.Sub(status.StartedAt).Truncate(time.Second).String())
	}
	sections = append(sections, header)

	session := status.Session
	lines := []string{
		field("state", session.State.String()),
		field("account", fallback(session.AccountName, "-")),
	}
	if session.AccountID != "" {
		lines = append(lines, field("steam id", session.AccountID))
	}
	lines = append(lines, field("login attempts", fmt.Sprint(session.LoginAttempts)))
	if status.Guard != nil {
		guard := string(status.Guard.Kind)
		if status.Guard.LastCodeWrong {
			guard += " (last code rejected)"
		}
		lines = append(lines, field("guard", warnStyle.Render(guard)))
	}
	if session.LastError != nil {
		lines = append(lines, field("last error", warnStyle.Render(session.LastError.Message)))
	}
	if session.ReconnectAt != nil {
		lines = append(lines, field("reconnect in", session.ReconnectAt.Sub(now).Truncate(time.Second).String()))
	}
	sections = append(sections, section("Session", lines))

	if gc := status.GC; gc != nil {
		lines := []string{
			field("state", gc.State.String()),
			field("app active", yesNo(gc.AppActive)),
			field("ready", yesNo(gc.GCReady)),
			field("hello attempts", fmt.Sprint(gc.HelloAttempts)),
			field("tokens", fmt.Sprint(gc.Tokens)),
		}
		if gc.LastHelloSentAt != nil {
			lines = append(lines, field("last hello", ago(now, *gc.LastHelloSentAt)))
		}
		sections = append(sections, section("Coordinator", lines))
	}

	if tasks := status.Tasks; tasks != nil {
		lines := []string{
			field("processed", fmt.Sprintf("%d (%d ok, %d failed)", tasks.Processed, tasks.Successful, tasks.Failed)),
			field("recent errors", fmt.Sprint(tasks.RecentErrors)),
		}
		if tasks.CircuitBreakerOpen {
			lines = append(lines, field("breaker", warnStyle.Render("open")))
		}
		if tasks.LastError != "" {
			lines = append(lines, field("last error", warnStyle.Render(tasks.LastError)))
		}
		sections = append(sections, section("Tasks", lines))
	}

	if watch := status.Presence; watch != nil {
		lines := []string{
			field("watched", fmt.Sprint(watch.Watched)),
			field("updates", fmt.Sprint(watch.Updates)),
		}
		if watch.Invalid > 0 {
			lines = append(lines, field("invalid ids", warnStyle.Render(fmt.Sprint(watch.Invalid))))
		}
		if watch.LastPollAt != nil {
			lines = append(lines, field("last poll", ago(now, *watch.LastPollAt)))
		}
		sections = append(sections, section("Presence", lines))
	}

	return strings.Join(sections, "\n") + "\n"
}

func section(title string, lines []string) string {
	return sectionStyle.Render(titleStyle.Render(title) + "\n" + strings.Join(lines, "\n"))
}

func field(label, value string) string {
	return "  " + labelStyle.Render(label) + value
}

func fallback(s, otherwise string) string {
	if s == "" {
		return otherwise
	}
	return s
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func ago(now, at time.Time) string {
	return now.Sub(at).Truncate(time.Second).String() + " ago"
}
