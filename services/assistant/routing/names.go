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
	"sort"
	"strings"

	"github.com/AleutianAI/FrameworkAssistant/services/assistant/catalog"
)

type knownName struct {
	raw   string
	key   string // normalized canonical form
	order int
}

// NameExtractor finds known framework names mentioned in free text.
//
// # Description
//
// Both the query and the known names are canonicalized (trailing number
// stripped, whitespace collapsed, case folded, punctuation treated as
// spacing) before matching. Names must sit on word boundaries. Longer names
// are tried first and claim their span, so "SPIN Selling" is never also
// reported as "SPIN". Generic placeholders such as "Framework 7" are not
// matchable.
//
// # Thread Safety
//
// Immutable after construction; safe for concurrent use.
type NameExtractor struct {
	names []knownName
}

// NewNameExtractor indexes knownNames. When several raw names share a
// canonical form, the first one is returned for matches.
func NewNameExtractor(knownNames []string) *NameExtractor {
	seen := make(map[string]bool, len(knownNames))
	names := make([]knownName, 0, len(knownNames))
	for i, raw := range knownNames {
		if catalog.IsGenericName(raw) {
			continue
		}
		key := normalizeText(catalog.CanonicalName(raw))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, knownName{raw: raw, key: key, order: i})
	}
	sort.SliceStable(names, func(i, j int) bool {
		if len(names[i].key) != len(names[j].key) {
			return len(names[i].key) > len(names[j].key)
		}
		return names[i].order < names[j].order
	})
	return &NameExtractor{names: names}
}

// Len returns the number of matchable names.
func (e *NameExtractor) Len() int { return len(e.names) }

type span struct{ start, end int }

// Extract returns the known names mentioned in query, ordered by first
// appearance, without duplicates.
func (e *NameExtractor) Extract(query string) []string {
	padded := pad(normalizeText(catalog.CanonicalName(query)))
	if strings.TrimSpace(padded) == "" {
		return nil
	}

	type hit struct {
		raw string
		pos int
	}
	var claimed []span
	var hits []hit
	overlaps := func(s span) bool {
		for _, c := range claimed {
			if s.start < c.end && c.start < s.end {
				return true
			}
		}
		return false
	}

	for _, n := range e.names {
		needle := " " + n.key + " "
		first := -1
		for from := 0; from < len(padded); {
			idx := strings.Index(padded[from:], needle)
			if idx < 0 {
				break
			}
			start := from + idx + 1
			s := span{start: start, end: start + len(n.key)}
			if !overlaps(s) {
				claimed = append(claimed, s)
				if first < 0 {
					first = start
				}
			}
			from = s.end
		}
		if first >= 0 {
			hits = append(hits, hit{raw: n.raw, pos: first})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.raw
	}
	return out
}

// ExtractNames is a convenience wrapper for one-off extraction.
func ExtractNames(query string, knownNames []string) []string {
	return NewNameExtractor(knownNames).Extract(query)
}
