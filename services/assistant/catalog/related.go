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
	"strconv"
	"strings"
)

// ResolveRef finds the framework a related reference points at. A reference
// is a framework id ("12", "#12", "12.0") or a name.
func ResolveRef(s Store, ref string) (Framework, bool) {
	if s == nil {
		return Framework{}, false
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Framework{}, false
	}
	if id, ok := refID(ref); ok {
		return s.Get(id)
	}
	return s.GetByName(ref)
}

// ResolveRelated returns the frameworks f refers to that exist in s, in
// reference order, without f itself and without duplicates.
func ResolveRelated(s Store, f Framework) []Framework {
	var out []Framework
	seen := map[int]bool{f.ID: true}
	for _, ref := range f.RelatedRefs() {
		rf, ok := ResolveRef(s, ref)
		if !ok || seen[rf.ID] {
			continue
		}
		seen[rf.ID] = true
		out = append(out, rf)
	}
	return out
}

// RelatedLabels returns display labels for f's related references.
//
// Resolvable references become display names. Unknown names are kept as
// written; unknown ids are dropped. With a nil store every reference is
// returned as written.
func RelatedLabels(s Store, f Framework) []string {
	refs := f.RelatedRefs()
	if s == nil {
		return refs
	}
	var out []string
	seen := map[string]bool{}
	add := func(label string) {
		if key := strings.ToLower(label); !seen[key] {
			seen[key] = true
			out = append(out, label)
		}
	}
	for _, ref := range refs {
		if rf, ok := ResolveRef(s, ref); ok {
			if rf.ID != f.ID {
				add(DisplayName(rf))
			}
			continue
		}
		if _, numeric := refID(ref); !numeric {
			add(ref)
		}
	}
	return out
}

// refID parses an id-shaped reference.
func refID(ref string) (int, bool) {
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "#")
	if id, err := strconv.Atoi(ref); err == nil {
		return id, true
	}
	if f, err := strconv.ParseFloat(ref, 64); err == nil && f == float64(int(f)) {
		return int(f), true
	}
	return 0, false
}
