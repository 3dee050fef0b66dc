// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	trailingNumber   = regexp.MustCompile(`\s+\d+$`)
	genericNumbered  = regexp.MustCompile(`^Framework \d+$`)
	collapseSpaces   = regexp.MustCompile(`\s+`)
	maxClauseRunes   = 60
	minUseCaseLength = 15
)

// CanonicalName strips a trailing numeric token and collapses whitespace.
//
// Description:
//
//	"Attribution Framework 4" becomes "Attribution Framework". Every
//	trailing numeric token is removed, so CanonicalName is idempotent.
func CanonicalName(name string) string {
	s := strings.TrimSpace(collapseSpaces.ReplaceAllString(name, " "))
	for {
		stripped := trailingNumber.ReplaceAllString(s, "")
		if stripped == s {
			return s
		}
		s = stripped
	}
}

// CanonicalKey is the case-folded CanonicalName used for matching and dedup.
func CanonicalKey(name string) string {
	return strings.ToLower(CanonicalName(name))
}

// IsGenericName reports whether name is a structural placeholder such as
// "Framework" or "Framework 12".
func IsGenericName(name string) bool {
	trimmed := strings.TrimSpace(name)
	return strings.EqualFold(CanonicalName(trimmed), "framework") || genericNumbered.MatchString(trimmed)
}

// DisplayName returns the human-facing name of f.
//
// Description:
//
//	Trailing numbers are stripped. Generic placeholders get a label derived
//	from, in order: the first clause of the use case (when it is longer
//	than 15 characters), the first business domain, the type, or the id.
//
// Examples:
//
//	"Layer 3: IT Strategy Framework 4" -> "Layer 3: IT Strategy Framework"
//	"Framework 7" with use case "Reduce churn, fast." -> "Reduce churn..."
//	"Framework 7" with domain "Sales, Ops" -> "Sales Framework"
func DisplayName(f Framework) string {
	cleaned := CanonicalName(f.Name)
	if !IsGenericName(f.Name) {
		if cleaned == "" {
			return fmt.Sprintf("Framework #%d", f.ID)
		}
		return cleaned
	}

	useCase := strings.TrimSpace(f.UseCase)
	if len(useCase) > minUseCaseLength {
		clause := strings.SplitN(useCase, ".", 2)[0]
		clause = strings.TrimSpace(strings.SplitN(clause, ",", 2)[0])
		if r := []rune(clause); len(r) > maxClauseRunes {
			clause = strings.TrimSpace(string(r[:maxClauseRunes]))
		}
		if clause != "" {
			return clause + "..."
		}
	}
	if domains := f.Domains(); len(domains) > 0 {
		return domains[0] + " Framework"
	}
	if t := strings.TrimSpace(f.Type); t != "" {
		return fmt.Sprintf("%s Framework #%d", t, f.ID)
	}
	return fmt.Sprintf("Framework #%d", f.ID)
}

// DedupByDisplayName keeps the first framework for each display name,
// preserving input order.
func DedupByDisplayName(frameworks []Framework) []Framework {
	seen := make(map[string]struct{}, len(frameworks))
	out := make([]Framework, 0, len(frameworks))
	for _, f := range frameworks {
		key := strings.ToLower(DisplayName(f))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}
	return out
}
