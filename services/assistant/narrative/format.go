// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package narrative

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/FrameworkAssistant/services/assistant/catalog"
)

// useCasePromptRunes bounds the use case text per framework in lists.
const useCasePromptRunes = 200

// FormatFrameworkList renders a numbered list of frameworks for prompts.
//
// Generic placeholders are labelled by purpose rather than by domain, since
// their display name is already derived from the use case.
func FormatFrameworkList(frameworks []catalog.Framework) string {
	var b strings.Builder
	for i, f := range frameworks {
		fmt.Fprintf(&b, "%d. **%s** (%s)\n", i+1, catalog.DisplayName(f), f.Difficulty())
		useCase := truncate(f.UseCase, useCasePromptRunes)
		if catalog.IsGenericName(f.Name) {
			fmt.Fprintf(&b, "   Domain: %s\n", f.BusinessDomains)
			fmt.Fprintf(&b, "   Purpose: %s\n", useCase)
		} else {
			fmt.Fprintf(&b, "   Domains: %s\n", f.BusinessDomains)
			fmt.Fprintf(&b, "   Use Case: %s\n", useCase)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatFrameworkDetails renders every populated field of f. related
// replaces the raw related-framework references when non-nil.
func FormatFrameworkDetails(f catalog.Framework, related []string) string {
	var lines []string
	add := func(label, value string) {
		if v := strings.TrimSpace(value); v != "" {
			lines = append(lines, fmt.Sprintf("**%s:** %s", label, v))
		}
	}
	orNA := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "N/A"
		}
		return s
	}

	add("Name", catalog.DisplayName(f))
	add("Type", orNA(f.Type))
	add("Difficulty", f.Difficulty())
	lines = append(lines, "")
	add("Business Domains", orNA(f.BusinessDomains))
	add("Problem Symptoms", orNA(f.ProblemSymptoms))
	add("Use Case", orNA(f.UseCase))
	add("Inputs Required", f.InputsRequired)
	add("Outputs/Artifacts", f.OutputsArtifacts)
	add("Skills Required", f.SkillsRequired)
	add("Lifecycle Stages", f.LifecycleStages)
	add("Diagnostic Questions", strings.Join(f.DiagnosticPrompts(), " | "))
	add("Red Flags", f.RedFlagIndicators)
	add("Levers", f.Levers)
	if related == nil {
		related = f.RelatedRefs()
	}
	add("Related Frameworks", strings.Join(related, ", "))
	return strings.Join(lines, "\n")
}
