// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routing turns a raw user message into a routing decision: it
// rewrites context-free follow-ups, extracts framework names and classifies
// intent.
package routing

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"
)

// Intent is the closed set of conversational goals.
type Intent string

const (
	IntentDiagnostic Intent = "DIAGNOSTIC"
	IntentDiscovery  Intent = "DISCOVERY"
	IntentDetails    Intent = "DETAILS"
	IntentSequencing Intent = "SEQUENCING"
	IntentComparison Intent = "COMPARISON"
	IntentUnknown    Intent = "UNKNOWN"
)

// Valid reports whether i is one of the defined intents.
func (i Intent) Valid() bool {
	switch i {
	case IntentDiagnostic, IntentDiscovery, IntentDetails, IntentSequencing, IntentComparison, IntentUnknown:
		return true
	}
	return false
}

// Role identifies the speaker of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is the routing view of one conversation turn. Assistant turns carry
// the intent and confidence the router decided for them.
type Turn struct {
	Role       Role
	Content    string
	Intent     Intent
	Confidence float64
}

// =============================================================================
// Phrase Matching
// =============================================================================

// normalizeText lowercases s, maps every rune that is not a letter, digit or
// apostrophe to a space and collapses runs of spaces.
func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r == '’' || r == '\'':
			b.WriteRune('\'')
			space = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		default:
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// pad surrounds normalized text with single spaces so whole-word phrases can
// be found with a plain substring search.
func pad(normalized string) string {
	return " " + normalized + " "
}

// compiledPattern holds a cue alongside its pre-compiled regex (if applicable).
type compiledPattern struct {
	raw   string
	word  string         // padded normalized phrase for word-boundary matching
	regex *regexp.Regexp // nil for plain phrases
}

// compilePatterns prepares cue phrases. Phrases containing ".*" become
// case-insensitive regular expressions; invalid ones are logged and skipped.
func compilePatterns(patterns []string, logger *slog.Logger) []compiledPattern {
	result := make([]compiledPattern, 0, len(patterns))
	for _, pattern := range patterns {
		patternLower := strings.ToLower(strings.TrimSpace(pattern))
		if patternLower == "" {
			continue
		}
		cp := compiledPattern{raw: patternLower}
		if strings.Contains(patternLower, ".*") {
			re, err := regexp.Compile("(?i)" + patternLower)
			if err != nil {
				logger.Warn("routing: invalid regex pattern, will skip",
					slog.String("pattern", pattern),
					slog.String("error", err.Error()),
				)
				continue
			}
			cp.regex = re
		} else {
			cp.word = pad(normalizeText(patternLower))
		}
		result = append(result, cp)
	}
	return result
}

// matchCompiledPattern checks a query against one pattern. lower is the
// lowercased raw query, padded is its padded normalized form.
func matchCompiledPattern(lower, padded string, cp compiledPattern) bool {
	if cp.regex != nil {
		return cp.regex.MatchString(lower)
	}
	return cp.word != "  " && strings.Contains(padded, cp.word)
}

// firstMatch returns the raw text of the first matching pattern.
func firstMatch(lower, padded string, patterns []compiledPattern) (string, bool) {
	for _, cp := range patterns {
		if matchCompiledPattern(lower, padded, cp) {
			return cp.raw, true
		}
	}
	return "", false
}

// truncateForLog shortens user text for log attributes.
func truncateForLog(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
