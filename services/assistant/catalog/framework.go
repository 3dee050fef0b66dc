// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog holds the read-only framework catalog: the Framework
// record, its loaders, display-name canonicalization and library browsing.
package catalog

import (
	"strings"
)

// Difficulty levels used by the catalog.
const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

// Framework is one catalog entry.
//
// Description:
//
//	Every field except ID and Name is optional; absent values are empty
//	strings. Multi-valued fields keep their raw delimited form and are
//	split by the accessor methods below.
//
// Thread Safety: Framework values are immutable after load.
type Framework struct {
	ID                  int    `json:"id" yaml:"id"`
	Name                string `json:"name" yaml:"name"`
	Type                string `json:"type,omitempty" yaml:"type"`
	DifficultyLevel     string `json:"difficulty_level,omitempty" yaml:"difficulty_level"`
	BusinessDomains     string `json:"business_domains,omitempty" yaml:"business_domains"`
	UseCase             string `json:"use_case,omitempty" yaml:"use_case"`
	ProblemSymptoms     string `json:"problem_symptoms,omitempty" yaml:"problem_symptoms"`
	DiagnosticQuestions string `json:"diagnostic_questions,omitempty" yaml:"diagnostic_questions"`
	RedFlagIndicators   string `json:"red_flag_indicators,omitempty" yaml:"red_flag_indicators"`
	Levers              string `json:"levers,omitempty" yaml:"levers"`
	RelatedFrameworks   string `json:"related_frameworks,omitempty" yaml:"related_frameworks"`
	RelatedCanon        string `json:"related_canon,omitempty" yaml:"related_canon"`
	SkillsRequired      string `json:"skills_required,omitempty" yaml:"skills_required"`
	LifecycleStages     string `json:"lifecycle_stages,omitempty" yaml:"lifecycle_stages"`
	InputsRequired      string `json:"inputs_required,omitempty" yaml:"inputs_required"`
	OutputsArtifacts    string `json:"outputs_artifacts,omitempty" yaml:"outputs_artifacts"`
	PriorityLevel       string `json:"priority_level,omitempty" yaml:"priority_level"`
	Notes               string `json:"notes,omitempty" yaml:"notes"`
}

// Domains returns the trimmed, non-empty business domains.
func (f Framework) Domains() []string {
	return splitList(f.BusinessDomains, ",")
}

// Difficulty returns the difficulty level, defaulting to intermediate.
func (f Framework) Difficulty() string {
	if d := strings.TrimSpace(f.DifficultyLevel); d != "" {
		return d
	}
	return DifficultyIntermediate
}

// DiagnosticPrompts splits the diagnostic questions on "|".
//
// This is the form used when building analysis prompts.
func (f Framework) DiagnosticPrompts() []string {
	return splitList(f.DiagnosticQuestions, "|")
}

// DisplayQuestions returns up to limit questions for showing to a user.
//
// Description:
//
//	Pipe-delimited data is split on "|". Data without pipes is split on "?"
//	and the question mark is restored on each piece.
func (f Framework) DisplayQuestions(limit int) []string {
	var qs []string
	if strings.Contains(f.DiagnosticQuestions, "|") {
		qs = splitList(f.DiagnosticQuestions, "|")
	} else {
		for _, q := range splitList(f.DiagnosticQuestions, "?") {
			qs = append(qs, q+"?")
		}
	}
	if limit > 0 && len(qs) > limit {
		qs = qs[:limit]
	}
	return qs
}

// RelatedRefs returns the related framework references, preferring the
// canonicalized list over the raw one.
func (f Framework) RelatedRefs() []string {
	raw := f.RelatedCanon
	if strings.TrimSpace(raw) == "" {
		raw = f.RelatedFrameworks
	}
	sep := ","
	if strings.Contains(raw, "|") {
		sep = "|"
	} else if strings.Contains(raw, ";") {
		sep = ";"
	}
	return splitList(raw, sep)
}

func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
