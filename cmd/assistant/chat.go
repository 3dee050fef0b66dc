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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/FrameworkAssistant/services/assistant"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/catalog"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/index"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/router"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/session"
	"github.com/AleutianAI/FrameworkAssistant/services/llm"
)

const chatHelp = `Commands:
  /filter domain=a,b difficulty=x type=y   narrow results
  /filter clear                            drop all filters
  /rate <id> up|down                       rate a framework (no id rates the first one shown)
  /summary                                 session activity
  /usage                                   token usage and estimated cost
  /reset                                   start the conversation over
  /help                                    this text
  /quit                                    leave`

func (c *cli) chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			a, err := openLoadedApp(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			runner, err := newChatRunner(ctx, a, c.printer(), cmd.InOrStdin())
			if err != nil {
				return err
			}
			if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func (c *cli) askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question...>",
		Short: "Ask a single question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			a, err := openLoadedApp(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			sess, err := a.engine.NewSession(ctx)
			if err != nil {
				return err
			}
			p := c.printer()
			resp, err := a.engine.Send(ctx, sess.ID, strings.Join(args, " "), index.Filters{})
			if err != nil {
				if isProviderFailure(err) {
					p.println(p.warn(router.Apology))
				}
				return err
			}
			printResponse(p, resp)
			return nil
		},
	}
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func isProviderFailure(err error) bool {
	return errors.Is(err, llm.ErrRetryExhausted) || errors.Is(err, llm.ErrProviderUnavailable)
}

// =============================================================================
// Chat Runner
// =============================================================================

// chatRunner drives one in-process session from a line-oriented reader.
//
// Description:
//
//	Lines starting with "/" are commands; everything else is sent to the
//	engine with the current filters. A provider failure prints the apology
//	and keeps the session going. EOF ends the loop without error.
type chatRunner struct {
	engine  *assistant.Engine
	usage   *llm.UsageTracker
	p       printer
	scanner *bufio.Scanner

	sessionID string
	filters   index.Filters
	lastShown []catalog.Framework
}

func newChatRunner(ctx context.Context, a *app, p printer, in io.Reader) (*chatRunner, error) {
	sess, err := a.engine.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	return &chatRunner{
		engine:    a.engine,
		usage:     a.usage,
		p:         p,
		scanner:   bufio.NewScanner(in),
		sessionID: sess.ID,
	}, nil
}

// Run reads lines until EOF, /quit or ctx is done.
func (r *chatRunner) Run(ctx context.Context) error {
	cat, err := r.engine.Catalog()
	if err != nil {
		return err
	}
	r.p.printf("%s %s\n", r.p.bold("Framework assistant"),
		r.p.dim(fmt.Sprintf("(%d frameworks, %s backend). Type /help for commands.", cat.Len(), r.engine.Backend().Name)))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.p.printf("\n%s ", r.p.label(">"))
		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			r.p.println()
			return nil
		}
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := r.command(ctx, line)
			if err != nil {
				r.p.println(r.p.fail("error: " + err.Error()))
			}
			if quit {
				r.p.println("Goodbye.")
				return nil
			}
			continue
		}

		resp, err := r.engine.Send(ctx, r.sessionID, line, r.filters)
		if err != nil {
			if isProviderFailure(err) {
				r.p.println(r.p.warn(router.Apology))
				continue
			}
			if errors.Is(err, context.Canceled) {
				return err
			}
			r.p.println(r.p.fail("error: " + err.Error()))
			continue
		}
		if len(resp.Frameworks) > 0 {
			r.lastShown = resp.Frameworks
		}
		printResponse(r.p, resp)
	}
}

// command executes one slash command. quit is true for /quit.
func (r *chatRunner) command(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	name, args := strings.ToLower(fields[0]), fields[1:]
	switch name {
	case "/quit", "/exit", "/q":
		return true, nil
	case "/help":
		r.p.println(chatHelp)
	case "/reset":
		if _, err := r.engine.Reset(ctx, r.sessionID); err != nil {
			return false, err
		}
		r.filters = index.Filters{}
		r.lastShown = nil
		r.p.println(r.p.ok("Conversation reset."))
	case "/filter":
		f, err := parseFilters(args)
		if err != nil {
			return false, err
		}
		r.filters = f
		if f.IsZero() {
			r.p.println(r.p.ok("Filters cleared."))
		} else {
			r.p.println(r.p.ok("Filters: " + router.FilterSummary(f)))
		}
	case "/rate":
		return false, r.rate(ctx, args)
	case "/summary":
		sess, err := r.engine.Session(ctx, r.sessionID)
		if err != nil {
			return false, err
		}
		s := sess.Summary()
		r.p.printf("%s %s\n", r.p.label("Session:"), s.ID)
		r.p.printf("%s %s\n", r.p.label("Stage:"), s.Stage)
		r.p.printf("%s %d queries, %d messages, %d frameworks viewed, %d rated\n",
			r.p.label("Activity:"), s.QueryCount, s.MessagesCount, s.FrameworksViewed, s.Ratings)
	case "/usage":
		u := r.usage.Snapshot()
		r.p.printf("%s %d calls, %d prompt + %d completion tokens, ~$%.4f\n",
			r.p.label("Usage:"), u.Calls, u.PromptTokens, u.CompletionTokens, u.EstimatedCostUSD)
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", name)
	}
	return false, nil
}

func (r *chatRunner) rate(ctx context.Context, args []string) error {
	var id int
	var verdict string
	switch len(args) {
	case 1:
		if len(r.lastShown) == 0 {
			return errors.New("no framework shown yet; use /rate <id> up|down")
		}
		id, verdict = r.lastShown[0].ID, args[0]
	case 2:
		n, err := strconv.Atoi(strings.TrimPrefix(args[0], "#"))
		if err != nil {
			return fmt.Errorf("framework id %q is not a number", args[0])
		}
		id, verdict = n, args[1]
	default:
		return errors.New("usage: /rate <id> up|down")
	}

	var rating session.Rating
	switch strings.ToLower(verdict) {
	case "up", "+1", "+", "yes":
		rating = session.RatingUp
	case "down", "-1", "-", "no":
		rating = session.RatingDown
	default:
		return fmt.Errorf("rating %q must be up or down", verdict)
	}
	if err := r.engine.Rate(ctx, r.sessionID, id, rating); err != nil {
		return err
	}
	r.p.println(r.p.ok(fmt.Sprintf("Thanks, feedback recorded for #%d.", id)))
	return nil
}

// parseFilters reads "domain=a,b difficulty=x type=y" or "clear".
func parseFilters(args []string) (index.Filters, error) {
	var f index.Filters
	if len(args) == 1 && strings.EqualFold(args[0], "clear") {
		return f, nil
	}
	if len(args) == 0 {
		return f, errors.New("usage: /filter domain=a,b difficulty=x type=y | /filter clear")
	}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(value) == "" {
			return index.Filters{}, fmt.Errorf("filter %q must be key=value", arg)
		}
		switch strings.ToLower(key) {
		case "domain", "domains":
			for _, d := range strings.Split(value, ",") {
				if d = strings.TrimSpace(d); d != "" {
					f.Domains = append(f.Domains, d)
				}
			}
		case "difficulty":
			f.Difficulty = value
		case "type":
			f.Type = value
		default:
			return index.Filters{}, fmt.Errorf("unknown filter %q", key)
		}
	}
	return f, nil
}

// printResponse writes the assistant text and the frameworks it showed.
func printResponse(p printer, resp router.Response) {
	p.println(resp.Text)
	if len(resp.Frameworks) > 0 {
		p.println()
		for _, f := range resp.Frameworks {
			p.println(p.frameworkLine(f))
		}
	}
	meta := fmt.Sprintf("%s %.2f · %s", resp.Intent, resp.Confidence, resp.Stage)
	if resp.EnhancedQuery != "" {
		meta += " · searched: " + resp.EnhancedQuery
	}
	p.println(p.dim(meta))
}
