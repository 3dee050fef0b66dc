// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/FrameworkAssistant/services/assistant/catalog"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/catalog/catalogtest"
)

func TestCanonicalName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Attribution Framework 4", "Attribution Framework"},
		{"Layer 3: IT Strategy Framework 4", "Layer 3: IT Strategy Framework"},
		{"  SPIN   Selling ", "SPIN Selling"},
		{"Framework 4 5", "Framework"},
		{"MEDDIC", "MEDDIC"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := catalog.CanonicalName(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, catalog.CanonicalName(got), "must be idempotent")
		})
	}
}

func TestIsGenericName(t *testing.T) {
	assert.True(t, catalog.IsGenericName("Framework"))
	assert.True(t, catalog.IsGenericName("Framework 12"))
	assert.True(t, catalog.IsGenericName("framework 3"))
	assert.False(t, catalog.IsGenericName("Attribution Framework 4"))
	assert.False(t, catalog.IsGenericName("MEDDIC"))
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		f    catalog.Framework
		want string
	}{
		{"strips number", catalog.Framework{ID: 1, Name: "Attribution Framework 4"}, "Attribution Framework"},
		{"use case clause", catalog.Framework{ID: 2, Name: "Framework 4", UseCase: "Reduce onboarding churn for new customers, quickly."}, "Reduce onboarding churn for new customers..."},
		{"short use case falls to domain", catalog.Framework{ID: 3, Name: "Framework 9", UseCase: "Too short", BusinessDomains: "Sales, Ops"}, "Sales Framework"},
		{"type fallback", catalog.Framework{ID: 4, Name: "Framework", Type: "Process"}, "Process Framework #4"},
		{"id fallback", catalog.Framework{ID: 5, Name: "Framework 2"}, "Framework #5"},
		{
			"long clause truncated",
			catalog.Framework{ID: 6, Name: "Framework 1", UseCase: "Align every function of the enterprise operating model with the quarterly strategy narrative"},
			"Align every function of the enterprise operating model with...",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, catalog.DisplayName(tt.f))
		})
	}
}

func TestDedupByDisplayName_FirstWins(t *testing.T) {
	in := []catalog.Framework{
		{ID: 30, Name: "Attribution Framework 5"},
		{ID: 22, Name: "Attribution Framework 4"},
		{ID: 9, Name: "MEDDIC"},
	}
	out := catalog.DedupByDisplayName(in)
	require.Len(t, out, 2)
	assert.Equal(t, 30, out[0].ID)
	assert.Equal(t, 9, out[1].ID)
}

func TestFrameworkAccessors(t *testing.T) {
	c := catalogtest.Catalog()

	meddic, ok := c.Get(9)
	require.True(t, ok)
	assert.Equal(t, []string{"Sales", "Forecasting"}, meddic.Domains())
	assert.Len(t, meddic.DiagnosticPrompts(), 3)
	assert.Equal(t, []string{"SPIN Selling", "Value Selling Framework"}, meddic.RelatedRefs(), "related_canon preferred")

	challenger, _ := c.Get(7)
	qs := challenger.DisplayQuestions(5)
	assert.Equal(t, []string{"Do reps bring commercial insight?", "Do they tailor messages per stakeholder?"}, qs)

	spin, _ := c.Get(3)
	assert.Len(t, spin.DisplayQuestions(2), 2)
	assert.Equal(t, []string{"MEDDIC", "Challenger Sale"}, spin.RelatedRefs())

	generic, _ := c.Get(21)
	assert.Equal(t, "beginner", generic.Difficulty())
	assert.Equal(t, "intermediate", catalog.Framework{}.Difficulty())
}

func TestNew_RejectsDuplicateIDs(t *testing.T) {
	_, err := catalog.New([]catalog.Framework{{ID: 1, Name: "A"}, {ID: 1, Name: "B"}})
	require.ErrorIs(t, err, catalog.ErrCatalogMalformed)

	_, err = catalog.New([]catalog.Framework{{ID: 1, Name: " "}})
	require.ErrorIs(t, err, catalog.ErrCatalogMalformed)
}

func TestCatalog_Lookups(t *testing.T) {
	c := catalogtest.Catalog()
	assert.Equal(t, 8, c.Len())

	f, ok := c.GetByName("meddic")
	require.True(t, ok)
	assert.Equal(t, 9, f.ID)

	f, ok = c.GetByName("Attribution Framework")
	require.True(t, ok, "canonical name resolves to first raw record")
	assert.Equal(t, 22, f.ID)

	_, ok = c.GetByName("Framework")
	assert.False(t, ok, "generic placeholder is not resolvable by canonical name")

	_, ok = c.Get(999)
	assert.False(t, ok)

	assert.Equal(t, []int{3, 7, 9, 12, 15, 21, 22, 30}, c.IDs())

	domains, types, levels := c.Facets()
	assert.Contains(t, domains, "Forecasting")
	assert.Contains(t, types, "Qualification")
	assert.Equal(t, []string{"advanced", "beginner", "intermediate"}, levels)

	all := c.All()
	all[0].Name = "mutated"
	again, _ := c.Get(3)
	assert.Equal(t, "SPIN Selling", again.Name, "All returns a copy")
}
