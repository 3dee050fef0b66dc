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

// idLinked is a catalog whose related references are framework ids.
func idLinked(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]catalog.Framework{
		{ID: 1, Name: "SPIN Selling", RelatedFrameworks: "2, 3, 1, 2, 99"},
		{ID: 2, Name: "MEDDIC", RelatedFrameworks: "#3; SPIN Selling"},
		{ID: 3, Name: "Challenger Sale", RelatedFrameworks: "Sandler, 1.0"},
	})
	require.NoError(t, err)
	return c
}

func TestResolveRef(t *testing.T) {
	c := idLinked(t)
	tests := []struct {
		ref    string
		wantID int
		wantOK bool
	}{
		{"2", 2, true},
		{" #3 ", 3, true},
		{"1.0", 1, true},
		{"meddic", 2, true},
		{"99", 0, false},
		{"Sandler", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			f, ok := catalog.ResolveRef(c, tt.ref)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, f.ID)
		})
	}

	_, ok := catalog.ResolveRef(nil, "2")
	assert.False(t, ok)
}

func TestResolveRelated_IDsAndNames(t *testing.T) {
	c := idLinked(t)
	spin, _ := c.Get(1)
	got := catalog.ResolveRelated(c, spin)
	require.Len(t, got, 2, "self, duplicates and unknown ids are skipped")
	assert.Equal(t, 2, got[0].ID)
	assert.Equal(t, 3, got[1].ID)

	meddic, _ := c.Get(2)
	got = catalog.ResolveRelated(c, meddic)
	require.Len(t, got, 2)
	assert.Equal(t, "Challenger Sale", got[0].Name)
	assert.Equal(t, "SPIN Selling", got[1].Name)
}

func TestRelatedLabels(t *testing.T) {
	c := idLinked(t)
	spin, _ := c.Get(1)
	assert.Equal(t, []string{"MEDDIC", "Challenger Sale"}, catalog.RelatedLabels(c, spin))

	challenger, _ := c.Get(3)
	assert.Equal(t, []string{"Sandler", "SPIN Selling"}, catalog.RelatedLabels(c, challenger),
		"unknown names are kept as written")

	assert.Equal(t, []string{"2", "3", "1", "2", "99"}, catalog.RelatedLabels(nil, spin),
		"without a catalog references are returned raw")

	fixture := catalogtest.Catalog()
	meddic, ok := fixture.Get(9)
	require.True(t, ok)
	assert.Equal(t, []string{"SPIN Selling", "Value Selling Framework"}, catalog.RelatedLabels(fixture, meddic))
}
