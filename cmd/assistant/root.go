// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/FrameworkAssistant/services/assistant/config"
	"github.com/AleutianAI/FrameworkAssistant/services/telemetry"
)

// cli carries flag values and the state PersistentPreRunE prepares for
// subcommands.
type cli struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	configPath    string
	envFile       string
	logLevel      string
	logJSON       bool
	provider      string
	catalogPath   string
	traceStdout   bool
	metricsStdout bool
	color         bool

	// registerer receives OTel instruments. Nil uses the Prometheus
	// default registerer; tests pass a fresh registry.
	registerer prometheus.Registerer

	cfg      config.Config
	logger   *slog.Logger
	shutdown telemetry.Shutdown
}

// newRootCmd builds the command tree around the given streams.
func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	return newCLI(in, out, errOut).rootCmd()
}

func newCLI(in io.Reader, out, errOut io.Writer) *cli {
	return &cli{in: in, out: out, errOut: errOut}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "assistant",
		Short:         "Find, compare and apply business frameworks",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return c.teardown(cmd.Context())
		},
	}
	root.SetIn(c.in)
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", os.Getenv("FA_CONFIG"), "YAML config file (env FA_CONFIG)")
	pf.StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	pf.StringVar(&c.logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "debug, info, warn or error (env LOG_LEVEL)")
	pf.BoolVar(&c.logJSON, "log-json", false, "write logs as JSON")
	pf.StringVar(&c.provider, "provider", "", "model backend: openai, ollama or static (env LLM_PROVIDER)")
	pf.StringVar(&c.catalogPath, "catalog", "", "framework catalog, .db or .csv (env DATABASE_PATH)")
	pf.BoolVar(&c.traceStdout, "trace-stdout", false, "write spans to stderr")
	pf.BoolVar(&c.metricsStdout, "metrics-stdout", false, "write OTel metrics to stderr periodically")

	root.AddCommand(
		c.chatCmd(),
		c.askCmd(),
		c.serveCmd(),
		c.catalogCmd(),
		c.embedCmd(),
	)
	return root
}

// setup loads the env file, configures logging, reads the config and
// installs telemetry.
func (c *cli) setup(cmd *cobra.Command) error {
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("env file %s: %w", c.envFile, err)
		}
	}

	level, err := parseLevel(c.logLevel)
	if err != nil {
		return err
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(c.errOut, opts)
	if c.logJSON {
		handler = slog.NewJSONHandler(c.errOut, opts)
	}
	c.logger = slog.New(handler)
	slog.SetDefault(c.logger)

	flags := cmd.Flags()
	cfg, err := config.LoadWith(c.configPath, func(cfg *config.Config) {
		if flags.Changed("provider") {
			cfg.Provider = c.provider
		}
		if flags.Changed("catalog") {
			cfg.CatalogPath = c.catalogPath
		}
	})
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.color = isTerminal(c.out)

	shutdown, err := telemetry.Setup(telemetry.Options{
		ServiceName:   "framework-assistant",
		TraceStdout:   c.traceStdout,
		MetricsStdout: c.metricsStdout,
		Writer:        c.errOut,
		Registerer:    c.registerer,
	})
	if err != nil {
		return err
	}
	c.shutdown = shutdown
	return nil
}

func (c *cli) teardown(ctx context.Context) error {
	if c.shutdown == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := c.shutdown(ctx)
	c.shutdown = nil
	return err
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning", "":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
