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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameExtractor_Extract(t *testing.T) {
	known := []string{"SPIN", "SPIN Selling", "MEDDIC", "Value Selling Framework 2", "Framework 4", "Challenger Sale"}
	ex := NewNameExtractor(known)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"two names in order", "Compare SPIN Selling vs MEDDIC", []string{"SPIN Selling", "MEDDIC"}},
		{"order of appearance", "MEDDIC or SPIN Selling?", []string{"MEDDIC", "SPIN Selling"}},
		{"longer name claims span", "SPIN Selling tips", []string{"SPIN Selling"}},
		{"shorter name elsewhere", "SPIN Selling and plain SPIN", []string{"SPIN Selling", "SPIN"}},
		{"case insensitive", "what is meddic", []string{"MEDDIC"}},
		{"duplicates removed", "MEDDIC, MEDDIC and MEDDIC", []string{"MEDDIC"}},
		{"numbered name matches canonical form", "explain the value selling framework", []string{"Value Selling Framework 2"}},
		{"punctuation is spacing", "challenger-sale or spin-selling", []string{"Challenger Sale", "SPIN Selling"}},
		{"word boundaries", "spinning wheels on meddicine", nil},
		{"generic placeholder not matchable", "Framework 4 details", nil},
		{"empty query", "   ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ex.Extract(tt.query)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNameExtractor_SkipsGenericAndDuplicateCanonicals(t *testing.T) {
	ex := NewNameExtractor([]string{"Framework 7", "Framework", "Attribution Framework 4", "Attribution Framework 5"})
	assert.Equal(t, 1, ex.Len())
	assert.Equal(t, []string{"Attribution Framework 4"}, ex.Extract("attribution framework please"))
}

func TestExtractNames(t *testing.T) {
	assert.Equal(t, []string{"MEDDIC"}, ExtractNames("Is MEDDIC any good", []string{"MEDDIC"}))
}
