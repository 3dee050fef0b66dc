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
	"sort"
	"strings"
	"unicode"
)

// MinNameQueryLength is the shortest query SearchByName will score.
const MinNameQueryLength = 2

// NameMatch is a library search hit.
type NameMatch struct {
	Framework   Framework `json:"framework"`
	DisplayName string    `json:"display_name"`
	Score       float64   `json:"score"`
}

// SearchByName scores frameworks whose display name contains query.
//
// Description:
//
//	Score is 10 for a match at position 0, plus 5 times the query/name
//	length ratio, minus 0.1 per character of offset. Results are sorted by
//	score (ties by id) and deduplicated by display name, keeping at most
//	maxResults entries.
//
// Inputs:
//   - frameworks: Candidates, typically Catalog.All().
//   - query: Substring to find. Shorter than MinNameQueryLength yields nil.
//   - maxResults: Cap on results. Non-positive means 10.
func SearchByName(frameworks []Framework, query string, maxResults int) []NameMatch {
	q := strings.ToLower(strings.TrimSpace(query))
	if len(q) < MinNameQueryLength {
		return nil
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	var matches []NameMatch
	for _, f := range frameworks {
		display := DisplayName(f)
		lower := strings.ToLower(display)
		pos := strings.Index(lower, q)
		if pos < 0 {
			continue
		}
		score := float64(len(q)) / float64(len(lower)) * 5
		if pos == 0 {
			score += 10
		}
		score -= float64(pos) * 0.1
		matches = append(matches, NameMatch{Framework: f, DisplayName: display, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Framework.ID < matches[j].Framework.ID
	})

	seen := make(map[string]struct{})
	out := make([]NameMatch, 0, maxResults)
	for _, m := range matches {
		key := strings.ToLower(m.DisplayName)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m)
		if len(out) >= maxResults {
			break
		}
	}
	return out
}

// UniqueSorted deduplicates by display name (first wins) and sorts the
// survivors alphabetically, case-insensitively.
func UniqueSorted(frameworks []Framework) []Framework {
	unique := DedupByDisplayName(frameworks)
	sort.SliceStable(unique, func(i, j int) bool {
		return strings.ToUpper(DisplayName(unique[i])) < strings.ToUpper(DisplayName(unique[j]))
	})
	return unique
}

// LetterGroup is one alphabetical section of the library.
type LetterGroup struct {
	Letter     string      `json:"letter"`
	Frameworks []Framework `json:"frameworks"`
}

// GroupAlphabetically buckets unique frameworks by the first letter of their
// display name. Names not starting with a letter go to "#", which sorts first.
func GroupAlphabetically(frameworks []Framework) []LetterGroup {
	var groups []LetterGroup
	index := map[string]int{}
	for _, f := range UniqueSorted(frameworks) {
		letter := "#"
		for _, r := range DisplayName(f) {
			if unicode.IsLetter(r) {
				letter = string(unicode.ToUpper(r))
			}
			break
		}
		i, ok := index[letter]
		if !ok {
			i = len(groups)
			index[letter] = i
			groups = append(groups, LetterGroup{Letter: letter})
		}
		groups[i].Frameworks = append(groups[i].Frameworks, f)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Letter == "#" {
			return groups[j].Letter != "#"
		}
		if groups[j].Letter == "#" {
			return false
		}
		return groups[i].Letter < groups[j].Letter
	})
	return groups
}

// Neighbors returns the frameworks before and after id in the sorted,
// deduplicated library order. Either may be nil at the ends or when id is
// not part of the unique list.
func Neighbors(frameworks []Framework, id int) (prev, next *Framework) {
	unique := UniqueSorted(frameworks)
	for i, f := range unique {
		if f.ID != id {
			continue
		}
		if i > 0 {
			p := unique[i-1]
			prev = &p
		}
		if i < len(unique)-1 {
			n := unique[i+1]
			next = &n
		}
		return prev, next
	}
	return nil, nil
}
