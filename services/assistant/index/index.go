// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package index provides cosine-similarity search over framework vectors
// with metadata filters.
package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/FrameworkAssistant/services/assistant/catalog"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/embedding"
)

// DefaultTopK is used when Search is called with topK <= 0.
const DefaultTopK = 5

// ErrVectorsIncomplete is returned by New when the vector set does not
// match the catalog one to one.
var ErrVectorsIncomplete = errors.New("index: vectors do not cover the catalog")

var tracer = otel.Tracer("assistant.index")

var (
	searchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "assistant",
			Subsystem: "index",
			Name:      "search_duration_seconds",
			Help:      "Duration of similarity searches in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
	)

	searchResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "assistant",
			Subsystem: "index",
			Name:      "search_results",
			Help:      "Number of results returned per search.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
		},
	)
)

// Filters narrow the eligible frameworks before scoring. Empty fields do
// not filter. Matching is case-insensitive on trimmed values.
type Filters struct {
	// Domains keeps frameworks sharing at least one business domain.
	Domains    []string `json:"domains,omitempty" form:"domain"`
	Difficulty string   `json:"difficulty,omitempty" form:"difficulty"`
	Type       string   `json:"type,omitempty" form:"type"`
}

// IsZero reports whether no filter is active.
func (f Filters) IsZero() bool {
	for _, d := range f.Domains {
		if strings.TrimSpace(d) != "" {
			return false
		}
	}
	return strings.TrimSpace(f.Difficulty) == "" && strings.TrimSpace(f.Type) == ""
}

// Matches reports whether fw passes every active filter.
func (f Filters) Matches(fw catalog.Framework) bool {
	if want := fold(f.Difficulty); want != "" && fold(fw.DifficultyLevel) != want {
		return false
	}
	if want := fold(f.Type); want != "" && fold(fw.Type) != want {
		return false
	}
	wanted := make(map[string]struct{}, len(f.Domains))
	for _, d := range f.Domains {
		if k := fold(d); k != "" {
			wanted[k] = struct{}{}
		}
	}
	if len(wanted) == 0 {
		return true
	}
	for _, d := range fw.Domains() {
		if _, ok := wanted[fold(d)]; ok {
			return true
		}
	}
	return false
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// SearchResult is one scored framework.
type SearchResult struct {
	Framework  catalog.Framework `json:"framework"`
	Similarity float64           `json:"similarity"`
}

// ID returns the framework id.
func (r SearchResult) ID() int { return r.Framework.ID }

// Index holds one unit vector per catalog framework.
//
// # Description
//
// Vectors are unit-normalized, so cosine similarity is a dot product.
// Search is exhaustive: every eligible framework is scored, which keeps
// results exact and deterministic for catalogs of this size.
//
// # Thread Safety
//
// Immutable after New; safe for concurrent use.
type Index struct {
	catalog *catalog.Catalog
	order   []catalog.Framework // ascending id
	vectors map[int][]float32
	dims    int
}

// New builds an index over cat using the vectors in snap.
//
// Returns ErrVectorsIncomplete unless snap holds exactly one vector per
// catalog id, and embedding.ErrDimensionMismatch when vector lengths
// disagree.
func New(cat *catalog.Catalog, snap *embedding.Snapshot) (*Index, error) {
	if cat == nil || snap == nil {
		return nil, fmt.Errorf("index: catalog and snapshot are required")
	}
	if len(snap.Vectors) != cat.Len() {
		return nil, fmt.Errorf("%w: %d vectors for %d frameworks", ErrVectorsIncomplete, len(snap.Vectors), cat.Len())
	}
	ix := &Index{
		catalog: cat,
		vectors: make(map[int][]float32, cat.Len()),
		dims:    snap.Dimensions,
	}
	for _, id := range cat.IDs() {
		vec, ok := snap.Vectors[id]
		if !ok {
			return nil, fmt.Errorf("%w: no vector for framework %d", ErrVectorsIncomplete, id)
		}
		if ix.dims == 0 {
			ix.dims = len(vec)
		}
		if len(vec) != ix.dims {
			return nil, fmt.Errorf("%w: framework %d has %d dimensions, expected %d", embedding.ErrDimensionMismatch, id, len(vec), ix.dims)
		}
		fw, _ := cat.Get(id)
		ix.order = append(ix.order, fw)
		ix.vectors[id] = vec
	}
	return ix, nil
}

// Len returns the number of indexed frameworks.
func (ix *Index) Len() int { return len(ix.order) }

// Dimensions returns the vector length.
func (ix *Index) Dimensions() int { return ix.dims }

// Catalog returns the catalog the index was built over.
func (ix *Index) Catalog() *catalog.Catalog { return ix.catalog }

// Search returns up to topK eligible frameworks by descending similarity.
//
// # Description
//
// Filters select membership only; they never change scores. Ties are
// broken by ascending id, so repeated calls with the same inputs return
// identical results. An empty eligible set yields an empty, non-nil slice.
//
// # Inputs
//
//   - ctx: Context for tracing.
//   - query: Unit-normalized query vector.
//   - filters: Metadata filters; the zero value matches everything.
//   - topK: Result limit; <= 0 uses DefaultTopK.
//
// # Outputs
//
//   - []SearchResult: Ordered results.
//   - error: embedding.ErrDimensionMismatch when len(query) differs from
//     the index dimensions.
func (ix *Index) Search(ctx context.Context, query []float32, filters Filters, topK int) ([]SearchResult, error) {
	_, span := tracer.Start(ctx, "index.Search")
	defer span.End()
	start := time.Now()

	if len(query) != ix.dims {
		err := fmt.Errorf("%w: query has %d dimensions, index has %d", embedding.ErrDimensionMismatch, len(query), ix.dims)
		span.RecordError(err)
		return nil, err
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	results := make([]SearchResult, 0, len(ix.order))
	for _, fw := range ix.order {
		if !filters.Matches(fw) {
			continue
		}
		results = append(results, SearchResult{
			Framework:  fw,
			Similarity: embedding.Dot(query, ix.vectors[fw.ID]),
		})
	}
	eligible := len(results)

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Framework.ID < results[j].Framework.ID
	})
	if len(results) > topK {
		results = results[:topK]
	}

	searchDuration.Observe(time.Since(start).Seconds())
	searchResults.Observe(float64(len(results)))
	span.SetAttributes(
		attribute.Int("index.eligible", eligible),
		attribute.Int("index.results", len(results)),
		attribute.Bool("index.filtered", !filters.IsZero()),
	)
	return results, nil
}

// GetFrameworkByID looks a framework up by id.
func (ix *Index) GetFrameworkByID(id int) (catalog.Framework, bool) {
	return ix.catalog.Get(id)
}

// GetFrameworkByName looks a framework up by case-insensitive name.
func (ix *Index) GetFrameworkByName(name string) (catalog.Framework, bool) {
	return ix.catalog.GetByName(name)
}
