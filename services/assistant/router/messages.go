// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package router

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/FrameworkAssistant/services/assistant/index"
)

// Clarifying replies for queries that name no resolvable framework.
const (
	clarifyDetails    = "I couldn't identify which framework you're asking about. Could you specify the name?"
	clarifySequencing = "Please specify which framework you'd like to see the sequence for."
	clarifyComparison = "Please specify two frameworks to compare (e.g., 'Compare SPIN Selling vs MEDDIC')."
)

// FilterSummary renders active filters as "domain: Sales, Marketing;
// difficulty: beginner". The zero value renders as "".
func FilterSummary(f index.Filters) string {
	var parts []string
	if len(f.Domains) > 0 {
		parts = append(parts, "domain: "+strings.Join(f.Domains, ", "))
	}
	if f.Difficulty != "" {
		parts = append(parts, "difficulty: "+f.Difficulty)
	}
	if f.Type != "" {
		parts = append(parts, "type: "+f.Type)
	}
	return strings.Join(parts, "; ")
}

func nothingMatched(f index.Filters) string {
	if f.IsZero() {
		return "Nothing in the framework library matched that. Try describing the problem differently."
	}
	return fmt.Sprintf("Nothing matched with the current filters (%s). Try loosening them.", FilterSummary(f))
}
