// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routing

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/FrameworkAssistant/services/assistant/config"
)

// Enhancement is the result of follow-up rewriting.
type Enhancement struct {
	// Query is the text to route: the rewritten query, or the input unchanged.
	Query string

	// Enhanced is true when Query was rewritten.
	Enhanced bool

	// Context is the earlier user turn that was reattached.
	Context string

	// Trigger names what made the query a follow-up ("indicator:<phrase>"
	// or "short"). Empty when the query is not a follow-up.
	Trigger string
}

// Enhancer reattaches conversational context to short follow-up replies.
//
// Description:
//
//	A query is a follow-up when it contains a continuation phrase ("what
//	else", "not that one", a standalone "no") or when it is short (fewer
//	than MaxWords words and MaxChars characters) and carries no marker of a
//	specific request. A follow-up is rewritten to the most recent earlier
//	user turn longer than MinContextChars that differs from the query,
//	marked so downstream stages know alternatives were requested.
//
// Limitations:
//
//	The short-query rule also fires on terse standalone questions. That is
//	the accepted precision/recall trade-off; the rewrite keeps the user's
//	words so nothing is lost.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type Enhancer struct {
	rules      config.FollowupRules
	indicators []compiledPattern
	specific   []compiledPattern
}

// NewEnhancer compiles the follow-up tables in rules.
func NewEnhancer(rules config.FollowupRules, logger *slog.Logger) *Enhancer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enhancer{
		rules:      rules,
		indicators: compilePatterns(rules.Indicators, logger),
		specific:   compilePatterns(rules.SpecificMarkers, logger),
	}
}

// IsFollowup reports whether query should be treated as a follow-up, and why.
func (e *Enhancer) IsFollowup(query string) (bool, string) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return false, ""
	}
	lower := strings.ToLower(trimmed)
	padded := pad(normalizeText(trimmed))

	if phrase, ok := firstMatch(lower, padded, e.indicators); ok {
		return true, "indicator:" + phrase
	}
	short := len(strings.Fields(trimmed)) < e.rules.MaxWords && len([]rune(trimmed)) < e.rules.MaxChars
	if short {
		if _, specific := firstMatch(lower, padded, e.specific); !specific {
			return true, "short"
		}
	}
	return false, ""
}

// Enhance rewrites query when it is a follow-up and usable context exists.
//
// Inputs:
//   - query: The raw user message.
//   - history: Earlier turns, oldest first. The current message may or may
//     not already be present; it never qualifies as context.
func (e *Enhancer) Enhance(query string, history []Turn) Enhancement {
	result := Enhancement{Query: query}
	followup, trigger := e.IsFollowup(query)
	if !followup {
		return result
	}
	result.Trigger = trigger

	current := strings.ToLower(strings.TrimSpace(query))
	for i := len(history) - 1; i >= 0; i-- {
		t := history[i]
		if t.Role != RoleUser {
			continue
		}
		content := strings.TrimSpace(t.Content)
		if len([]rune(content)) <= e.rules.MinContextChars {
			continue
		}
		if strings.ToLower(content) == current {
			continue
		}
		result.Query = FormatAlternatives(content, strings.TrimSpace(query))
		result.Enhanced = true
		result.Context = content
		return result
	}
	return result
}

// FormatAlternatives marks original as the context for a request for
// alternatives phrased as followup.
func FormatAlternatives(original, followup string) string {
	return fmt.Sprintf("%s (user wants alternatives: %s)", original, followup)
}
