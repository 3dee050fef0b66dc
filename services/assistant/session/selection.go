// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"strconv"
	"strings"

	"github.com/AleutianAI/FrameworkAssistant/services/assistant/catalog"
)

// minSubstringLength is the shortest input accepted as a partial name.
const minSubstringLength = 3

// ResolveSelection interprets input as a choice from offered.
//
// # Description
//
// Accepted forms, in order:
//  1. A bare integer, as a 1-based position in offered.
//  2. A name equal, ignoring case and trailing numbering, to an offered
//     framework's raw or display name.
//  3. Text of at least three characters found inside exactly one offered
//     display name.
//
// Anything else, including ambiguous partial names and sentences that
// merely mention a framework, does not resolve. Failure is not an error;
// the caller routes the input as a new query.
func ResolveSelection(input string, offered []catalog.Framework) (catalog.Framework, bool) {
	text := strings.TrimSpace(input)
	if text == "" || len(offered) == 0 {
		return catalog.Framework{}, false
	}

	if n, err := strconv.Atoi(text); err == nil {
		if n >= 1 && n <= len(offered) {
			return offered[n-1], true
		}
		return catalog.Framework{}, false
	}

	key := catalog.CanonicalKey(text)
	for _, f := range offered {
		if key == catalog.CanonicalKey(f.Name) || key == catalog.CanonicalKey(catalog.DisplayName(f)) {
			return f, true
		}
	}

	if len([]rune(key)) < minSubstringLength {
		return catalog.Framework{}, false
	}
	var match catalog.Framework
	matches := 0
	for _, f := range offered {
		if strings.Contains(catalog.CanonicalKey(catalog.DisplayName(f)), key) {
			match = f
			matches++
		}
	}
	if matches == 1 {
		return match, true
	}
	return catalog.Framework{}, false
}
