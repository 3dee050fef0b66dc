// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/FrameworkAssistant/services/assistant/catalog/catalogtest"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/embedding"
)

// fixedSnapshot gives every fixture a hand-picked 2-d vector. 9 and 3 tie.
func fixedSnapshot() *embedding.Snapshot {
	raw := map[int][]float32{
		3:  {1, 0},
		7:  {0.8, 0.6},
		9:  {1, 0},
		12: {0.6, 0.8},
		15: {0, 1},
		21: {-1, 0},
		22: {0.2, 0.98},
		30: {0, -1},
	}
	vecs := make(map[int][]float32, len(raw))
	for id, v := range raw {
		vecs[id] = embedding.Normalize(v)
	}
	return &embedding.Snapshot{Model: "fixed", Dimensions: 2, Vectors: vecs}
}

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := New(catalogtest.Catalog(), fixedSnapshot())
	require.NoError(t, err)
	return ix
}

func ids(results []SearchResult) []int {
	out := make([]int, len(results))
	for i, r := range results {
		out[i] = r.ID()
	}
	return out
}

func TestSearch_OrderAndTies(t *testing.T) {
	ix := newTestIndex(t)
	results, err := ix.Search(context.Background(), []float32{1, 0}, Filters{}, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 9, 7, 12}, ids(results), "3 and 9 tie; lower id first")
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
	assert.InDelta(t, 0.8, results[2].Similarity, 1e-6)

	for range 5 {
		again, err := ix.Search(context.Background(), []float32{1, 0}, Filters{}, 4)
		require.NoError(t, err)
		assert.Equal(t, results, again)
	}
}

func TestSearch_DefaultTopK(t *testing.T) {
	ix := newTestIndex(t)
	results, err := ix.Search(context.Background(), []float32{0, 1}, Filters{}, 0)
	require.NoError(t, err)
	assert.Len(t, results, DefaultTopK)
	assert.Equal(t, 15, results[0].ID())
}

func TestSearch_Filters(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()
	q := []float32{1, 0}

	tests := []struct {
		name    string
		filters Filters
		want    []int
	}{
		{"domain", Filters{Domains: []string{"forecasting"}}, []int{9}},
		{"domain any of", Filters{Domains: []string{" Forecasting ", "Customer Success"}}, []int{9, 15, 21}},
		{"difficulty", Filters{Difficulty: "Beginner"}, []int{12, 15, 21}},
		{"type", Filters{Type: "analysis"}, []int{22, 15, 30}},
		{"combined", Filters{Domains: []string{"Sales"}, Difficulty: "intermediate"}, []int{3, 9}},
		{"nothing matches", Filters{Type: "Astrology"}, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := ix.Search(ctx, q, tt.filters, 10)
			require.NoError(t, err)
			require.NotNil(t, results)
			assert.Equal(t, tt.want, ids(results))
		})
	}
}

func TestSearch_FilterMonotonicity(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()
	q := []float32{0.5, 0.5}

	chain := []Filters{
		{},
		{Domains: []string{"Sales", "Marketing"}},
		{Domains: []string{"Sales", "Marketing"}, Type: "Sales Methodology"},
		{Domains: []string{"Sales", "Marketing"}, Type: "Sales Methodology", Difficulty: "beginner"},
	}
	prev := -1
	for _, f := range chain {
		results, err := ix.Search(ctx, q, f, 100)
		require.NoError(t, err)
		if prev >= 0 {
			assert.LessOrEqual(t, len(results), prev)
		}
		prev = len(results)
	}
	assert.Equal(t, 1, prev)
}

func TestSearch_FiltersDoNotChangeScores(t *testing.T) {
	ix := newTestIndex(t)
	all, err := ix.Search(context.Background(), []float32{0.6, 0.8}, Filters{}, 100)
	require.NoError(t, err)
	filtered, err := ix.Search(context.Background(), []float32{0.6, 0.8}, Filters{Type: "Analysis"}, 100)
	require.NoError(t, err)

	byID := map[int]float64{}
	for _, r := range all {
		byID[r.ID()] = r.Similarity
	}
	for _, r := range filtered {
		assert.Equal(t, byID[r.ID()], r.Similarity)
	}
}

func TestSearch_DimensionMismatch(t *testing.T) {
	ix := newTestIndex(t)
	_, err := ix.Search(context.Background(), []float32{1, 0, 0}, Filters{}, 5)
	assert.ErrorIs(t, err, embedding.ErrDimensionMismatch)
}

func TestNew_Validation(t *testing.T) {
	snap := fixedSnapshot()
	delete(snap.Vectors, 30)
	_, err := New(catalogtest.Catalog(), snap)
	assert.ErrorIs(t, err, ErrVectorsIncomplete)

	snap = fixedSnapshot()
	delete(snap.Vectors, 30)
	snap.Vectors[99] = []float32{1, 0}
	_, err = New(catalogtest.Catalog(), snap)
	assert.ErrorIs(t, err, ErrVectorsIncomplete)

	snap = fixedSnapshot()
	snap.Vectors[30] = []float32{1, 0, 0}
	_, err = New(catalogtest.Catalog(), snap)
	assert.ErrorIs(t, err, embedding.ErrDimensionMismatch)

	_, err = New(nil, snap)
	assert.Error(t, err)
}

func TestLookups(t *testing.T) {
	ix := newTestIndex(t)
	fw, ok := ix.GetFrameworkByID(9)
	require.True(t, ok)
	assert.Equal(t, "MEDDIC", fw.Name)

	fw, ok = ix.GetFrameworkByName("meddic")
	require.True(t, ok)
	assert.Equal(t, 9, fw.ID)

	_, ok = ix.GetFrameworkByName("medd")
	assert.False(t, ok, "name lookup is exact, not fuzzy")
	_, ok = ix.GetFrameworkByID(1000)
	assert.False(t, ok)
	assert.Equal(t, 8, ix.Len())
	assert.Equal(t, 2, ix.Dimensions())
}

func TestFilters_IsZero(t *testing.T) {
	assert.True(t, Filters{}.IsZero())
	assert.True(t, Filters{Domains: []string{" "}}.IsZero())
	assert.False(t, Filters{Type: "x"}.IsZero())
}
