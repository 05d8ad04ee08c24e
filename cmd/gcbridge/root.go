// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lanternguild/gcbridge/lib/config"
	"github.com/lanternguild/gcbridge/lib/version"
)

// globalOptions are the flags every subcommand shares.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCommand() *cobra.Command {
	options := &globalOptions{}
	root := &cobra.Command{
		Use:           "gcbridge",
		Short:         "Steam game coordinator bridge",
		Long:          "Keeps a Steam account logged on with its game coordinator session ready\nand runs tasks queued in the shared SQLite database.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	options.bind(root.PersistentFlags())

	root.AddCommand(
		newRunCommand(options),
		newEnqueueCommand(options),
		newTasksCommand(options),
		newStatusCommand(options),
		newGuardCodeCommand(options),
		newVersionCommand(),
	)
	return root
}

func (o *globalOptions) bind(flags *pflag.FlagSet) {
	flags.StringVarP(&o.configPath, "config", "c", "", "path to gcbridge.yaml (default $"+config.EnvConfigPath+")")
	flags.StringVar(&o.logLevel, "log-level", "", "override log_level (debug, info, warn, error)")
	flags.StringVar(&o.logFormat, "log-format", "json", "log output format: json or text")
}

// loadConfig reads the configuration file, applies flag overrides and
// validates the result.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFile(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. The returned LevelVar lets the
// level change at runtime.
func (o *globalOptions) newLogger(w io.Writer, levelName string) (*slog.Logger, *slog.LevelVar, error) {
	level, err := config.ParseLevel(levelName)
	if err != nil {
		return nil, nil, err
	}
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)
	handlerOptions := &slog.HandlerOptions{Level: levelVar}

	var handler slog.Handler
	switch o.logFormat {
	case "json":
		handler = slog.NewJSONHandler(w, handlerOptions)
	case "text":
		handler = slog.NewTextHandler(w, handlerOptions)
	default:
		return nil, nil, fmt.Errorf("--log-format %q: want json or text", o.logFormat)
	}
	return slog.New(handler), levelVar, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "gcbridge", version.Full())
		},
	}
}
