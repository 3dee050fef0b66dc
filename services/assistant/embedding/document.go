// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package embedding owns per-framework vectors: the text each framework is
// embedded from, the offline hashing embedder, BadgerDB persistence and the
// freshness-checked vector cache.
package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/AleutianAI/FrameworkAssistant/services/assistant/catalog"
)

// ErrDimensionMismatch is returned when a vector's length differs from the
// configured or previously stored dimensionality.
var ErrDimensionMismatch = errors.New("embedding: dimension mismatch")

// Document builds the text a framework is embedded from.
//
// Only descriptive fields are included. Diagnostic questions, red flags and
// levers describe how to run the framework, not which problems it fits, so
// they are left out.
func Document(f catalog.Framework) string {
	parts := []string{"Name: " + catalog.DisplayName(f)}
	add := func(label, value string) {
		if v := strings.TrimSpace(value); v != "" {
			parts = append(parts, label+": "+v)
		}
	}
	add("Type", f.Type)
	add("Domains", strings.Join(f.Domains(), ", "))
	add("Use case", f.UseCase)
	add("Problem symptoms", f.ProblemSymptoms)
	add("Lifecycle stages", f.LifecycleStages)
	add("Skills", f.SkillsRequired)
	return strings.Join(parts, "\n")
}

// CorpusHash is a deterministic digest of the documents for frameworks and
// the embedding model. Any change to a document, the id set or the model
// produces a different hash.
func CorpusHash(frameworks []catalog.Framework, model string) string {
	sorted := make([]catalog.Framework, len(frameworks))
	copy(sorted, frameworks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	h := sha256.New()
	for _, f := range sorted {
		fmt.Fprintf(h, "%d\t%s\n", f.ID, Document(f))
	}
	fmt.Fprintf(h, "model=%s\n", model)
	return hex.EncodeToString(h.Sum(nil))
}

// shortHash returns the first 8 characters of a hash for log display.
func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8] + "..."
	}
	return h
}

// L2Norm computes the Euclidean norm of v.
func L2Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of v so cosine similarity reduces to
// a dot product. A zero vector is returned as a zero copy.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	norm := L2Norm(v)
	if norm == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Dot computes the dot product of two equal-length vectors.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
