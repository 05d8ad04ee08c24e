// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/tidwall/jsonc"

	"github.com/lanternguild/gcbridge/lib/bridge"
	"github.com/lanternguild/gcbridge/lib/clock"
	"github.com/lanternguild/gcbridge/lib/config"
	"github.com/lanternguild/gcbridge/lib/sqlitepool"
	"github.com/lanternguild/gcbridge/lib/taskqueue"
)

// builtinTaskTypes are the types a running bridge registers.
var builtinTaskTypes = []string{
	bridge.TaskAuthStatus,
	bridge.TaskAuthLogin,
	bridge.TaskAuthLogout,
	bridge.TaskAuthGuardCode,
	bridge.TaskGCEnsureSession,
	bridge.TaskPlaytestInvite,
}

// openTaskStore opens the configured database, migrated, for the
// offline task commands.
func openTaskStore(ctx context.Context, cfg *config.Config) (*taskqueue.SQLStore, func(), error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, nil, err
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{Path: cfg.Database, PoolSize: 1})
	if err != nil {
		return nil, nil, err
	}
	if err := bridge.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return taskqueue.NewSQLStore(pool, clock.Real()), func() { pool.Close() }, nil
}

// readPayload returns the task payload from --payload or
// --payload-file. Files may contain comments and trailing commas.
func readPayload(inline, file string, stdin io.Reader) (json.RawMessage, error) {
	switch {
	case inline != "" && file != "":
		return nil, fmt.Errorf("--payload and --payload-file are mutually exclusive")
	case file == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading payload from stdin: %w", err)
		}
		return json.RawMessage(jsonc.ToJSON(data)), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading payload: %w", err)
		}
		return json.RawMessage(jsonc.ToJSON(data)), nil
	case inline != "":
		return json.RawMessage(inline), nil
	default:
		return json.RawMessage("{}"), nil
	}
}

func newEnqueueCommand(options *globalOptions) *cobra.Command {
	var payload, payloadFile string
	command := &cobra.Command{
		Use:   "enqueue TYPE",
		Short: "Queue a task for the bridge",
		Long: "Queue a task for the bridge. Built-in types: " + strings.Join(builtinTaskTypes, ", ") + ".\n" +
			"The payload is JSON; --payload-file also accepts comments and trailing commas, and - reads stdin.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := options.loadConfig()
			if err != nil {
				return err
			}
			body, err := readPayload(payload, payloadFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			taskType := args[0]
			if !slices.Contains(builtinTaskTypes, taskType) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s is not a built-in task type\n", taskType)
			}

			store, closeStore, err := openTaskStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()
			id, err := store.Enqueue(cmd.Context(), taskType, body)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	command.Flags().StringVarP(&payload, "payload", "p", "", "task payload as JSON")
	command.Flags().StringVarP(&payloadFile, "payload-file", "f", "", "read the payload from a JSON or JSONC file (- for stdin)")
	return command
}

func newTasksCommand(options *globalOptions) *cobra.Command {
	var (
		status   string
		taskType string
		limit    int
		asJSON   bool
	)
	command := &cobra.Command{
		Use:   "tasks",
		Short: "List recent tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := taskqueue.ListFilter{Type: taskType, Limit: limit}
			if status != "" {
				parsed, err := taskqueue.ParseStatus(status)
				if err != nil {
					return err
				}
				filter.Status = parsed
			}
			cfg, err := options.loadConfig()
			if err != nil {
				return err
			}
			store, closeStore, err := openTaskStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			tasks, err := store.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if asJSON {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(tasks)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTasks(tasks, time.Now()))
			return nil
		},
	}
	flags := command.Flags()
	flags.StringVar(&status, "status", "", "only tasks in this status (pending, running, done, failed)")
	flags.StringVar(&taskType, "type", "", "only tasks of this type")
	flags.IntVarP(&limit, "limit", "n", 20, "maximum number of tasks")
	flags.BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return command
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("241"))
	faintStyle  = lipgloss.NewStyle().Faint(true)
	statusStyle = map[taskqueue.Status]lipgloss.Style{
		taskqueue.StatusPending: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		taskqueue.StatusRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		taskqueue.StatusDone:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		taskqueue.StatusFailed:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
	}
)

// renderTasks lays tasks out as aligned columns.
func renderTasks(tasks []taskqueue.Task, now time.Time) string {
	if len(tasks) == 0 {
		return faintStyle.Render("no tasks") + "\n"
	}
	rows := [][]string{{"ID", "TYPE", "STATUS", "ATTEMPTS", "AGE", "DETAIL"}}
	for _, task := range tasks {
		detail := task.Error
		if detail == "" && len(task.Result) > 0 {
			detail = string(task.Result)
		}
		rows = append(rows, []string{
			fmt.Sprint(task.ID),
			task.Type,
			string(task.Status),
			fmt.Sprint(task.Attempts),
			now.Sub(task.CreatedAt).Truncate(time.Second).String(),
			truncate(detail, 60),
		})
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}
	var out strings.Builder
	for r, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			style := lipgloss.NewStyle().Width(widths[i] + 2)
			switch {
			case r == 0:
				style = style.Inherit(headerStyle)
			case i == 2:
				style = style.Inherit(statusStyle[tasks[r-1].Status])
			}
			cells[i] = style.Render(cell)
		}
		out.WriteString(strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, cells...), " "))
		out.WriteString("\n")
	}
	return out.String()
}

func truncate(s string, limit int) string {
	runes := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit-1]) + "…"
}
