// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// DefaultHashDimensions is the vector size of a zero-value HashEmbedder.
const DefaultHashDimensions = 384

// HashEmbedder is an offline embedding client based on feature hashing.
//
// # Description
//
// Each lowercased word and each adjacent word pair is hashed (FNV-1a) into
// one of Dimensions buckets with a hash-derived sign. Texts sharing
// vocabulary get positive cosine similarity. It needs no network, which
// makes it the embedder for the static provider and for tests.
//
// # Thread Safety
//
// Stateless; safe for concurrent use.
type HashEmbedder struct {
	Dimensions int
}

// NewHashEmbedder creates a hashing embedder. dims <= 0 uses the default.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultHashDimensions
	}
	return &HashEmbedder{Dimensions: dims}
}

// Name identifies the embedder in cache keys.
func (h *HashEmbedder) Name() string { return "hash" }

// EmbedBatch returns one unit-normalized vector per text.
func (h *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.embed(t)
	}
	return out, nil
}

func (h *HashEmbedder) embed(text string) []float32 {
	dims := h.Dimensions
	if dims <= 0 {
		dims = DefaultHashDimensions
	}
	vec := make([]float32, dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, w := range words {
		h.addFeature(vec, w, 1)
		if i > 0 {
			h.addFeature(vec, words[i-1]+" "+w, 0.5)
		}
	}
	return Normalize(vec)
}

func (h *HashEmbedder) addFeature(vec []float32, feature string, weight float32) {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(feature))
	sum := hasher.Sum64()
	bucket := int(sum % uint64(len(vec)))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[bucket] += weight
}
