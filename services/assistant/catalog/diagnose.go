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
	"regexp"
	"sort"
	"strings"
)

var genericStructural = regexp.MustCompile(`(?i)layer|framework \d+|module|component`)

// NameIssue points at one record with a questionable name.
type NameIssue struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// UseCaseGroup lists frameworks sharing an identical use case.
type UseCaseGroup struct {
	UseCase    string      `json:"use_case"`
	Frameworks []NameIssue `json:"frameworks"`
}

// QualityReport summarizes catalog data problems.
type QualityReport struct {
	Total          int              `json:"total"`
	DuplicateIDs   map[int][]string `json:"duplicate_ids,omitempty"`
	NumberedNames  []NameIssue      `json:"numbered_names,omitempty"`
	GenericNames   []NameIssue      `json:"generic_names,omitempty"`
	SharedUseCases []UseCaseGroup   `json:"shared_use_cases,omitempty"`
}

// Clean reports whether no issue was found.
func (r QualityReport) Clean() bool {
	return len(r.DuplicateIDs) == 0 && len(r.NumberedNames) == 0 &&
		len(r.GenericNames) == 0 && len(r.SharedUseCases) == 0
}

// Diagnose inspects raw records for duplicate ids, names carrying a trailing
// number, generic structural names and use cases shared between records.
//
// Run it on ReadFrameworks output; a Catalog already rejects duplicate ids.
func Diagnose(frameworks []Framework) QualityReport {
	report := QualityReport{Total: len(frameworks)}

	byID := map[int][]string{}
	byUseCase := map[string][]NameIssue{}
	var useCaseOrder []string
	for _, f := range frameworks {
		byID[f.ID] = append(byID[f.ID], f.Name)
		issue := NameIssue{ID: f.ID, Name: f.Name}
		if trailingNumber.MatchString(f.Name) {
			report.NumberedNames = append(report.NumberedNames, issue)
		}
		if genericStructural.MatchString(f.Name) {
			report.GenericNames = append(report.GenericNames, issue)
		}
		if uc := strings.TrimSpace(f.UseCase); uc != "" {
			if _, seen := byUseCase[uc]; !seen {
				useCaseOrder = append(useCaseOrder, uc)
			}
			byUseCase[uc] = append(byUseCase[uc], issue)
		}
	}

	for id, names := range byID {
		if len(names) > 1 {
			if report.DuplicateIDs == nil {
				report.DuplicateIDs = map[int][]string{}
			}
			report.DuplicateIDs[id] = names
		}
	}
	for _, uc := range useCaseOrder {
		if group := byUseCase[uc]; len(group) > 1 {
			report.SharedUseCases = append(report.SharedUseCases, UseCaseGroup{UseCase: uc, Frameworks: group})
		}
	}
	sort.SliceStable(report.SharedUseCases, func(i, j int) bool {
		return len(report.SharedUseCases[i].Frameworks) > len(report.SharedUseCases[j].Frameworks)
	})
	return report
}
