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
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/FrameworkAssistant/services/assistant/catalog"
	"github.com/AleutianAI/FrameworkAssistant/services/llm"
)

var tracer = otel.Tracer("assistant.embedding")

var (
	regenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "embedding",
			Name:      "regenerations_total",
			Help:      "Full vector regenerations, by staleness reason.",
		},
		[]string{"reason"},
	)

	cachedVectors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "assistant",
			Subsystem: "embedding",
			Name:      "cached_vectors",
			Help:      "Framework vectors currently held by the cache.",
		},
	)
)

// Staleness reasons reported by Check and in regeneration metrics.
const (
	ReasonFresh             = ""
	ReasonMissing           = "missing"
	ReasonCountMismatch     = "count_mismatch"
	ReasonIDMismatch        = "id_mismatch"
	ReasonContentChanged    = "content_changed"
	ReasonDimensionMismatch = "dimension_mismatch"
)

// Default batching used when CacheConfig leaves them unset.
const (
	DefaultBatchSize   = 64
	DefaultConcurrency = 4
)

// CacheConfig configures a Cache.
type CacheConfig struct {
	// Model keys the persisted snapshot. Include the provider so two
	// providers never share vectors ("openai:text-embedding-3-small").
	Model string

	// Dimensions is the expected vector length. Zero accepts whatever the
	// provider returns on first use.
	Dimensions int

	BatchSize   int
	Concurrency int
}

// Cache owns the framework vectors and decides when they must be rebuilt.
//
// # Description
//
// EnsureFresh is the single entry point: it returns vectors in 1:1
// correspondence with the given catalog, reusing the in-memory snapshot,
// then the persisted one, and embedding the whole catalog only when both
// are absent or stale. There is no partial update and no eviction; a
// stale snapshot is replaced as a whole. Invalidate forces the next
// EnsureFresh to rebuild.
//
// # Thread Safety
//
// Safe for concurrent use. EnsureFresh and Invalidate serialize on an
// internal lock.
type Cache struct {
	client llm.EmbeddingClient
	store  VectorStore
	cfg    CacheConfig
	logger *slog.Logger

	mu   sync.RWMutex
	snap *Snapshot
}

// NewCache creates a cache. A nil store keeps vectors in memory only.
func NewCache(client llm.EmbeddingClient, store VectorStore, cfg CacheConfig, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = NewMemoryVectorStore()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Model == "" {
		cfg.Model = "default"
	}
	return &Cache{client: client, store: store, cfg: cfg, logger: logger}
}

// Model returns the key the cache persists under.
func (c *Cache) Model() string { return c.cfg.Model }

// Check reports why snap cannot serve frameworks, or ReasonFresh.
func (c *Cache) Check(snap *Snapshot, frameworks []catalog.Framework, corpusHash string) string {
	if snap == nil || len(snap.Vectors) == 0 {
		return ReasonMissing
	}
	if len(snap.Vectors) != len(frameworks) {
		return ReasonCountMismatch
	}
	for _, f := range frameworks {
		if _, ok := snap.Vectors[f.ID]; !ok {
			return ReasonIDMismatch
		}
	}
	if c.cfg.Dimensions > 0 && snap.Dimensions != c.cfg.Dimensions {
		return ReasonDimensionMismatch
	}
	if snap.CorpusHash != corpusHash {
		return ReasonContentChanged
	}
	return ReasonFresh
}

// EnsureFresh returns a snapshot covering exactly frameworks.
//
// # Inputs
//
//   - ctx: Cancels provider calls.
//   - frameworks: The live catalog.
//
// # Outputs
//
//   - *Snapshot: Unit-normalized vectors keyed by framework id. Callers
//     must not modify it.
//   - error: Provider failure, or ErrDimensionMismatch when the provider
//     returns vectors of the wrong length. Both are fatal at startup.
func (c *Cache) EnsureFresh(ctx context.Context, frameworks []catalog.Framework) (*Snapshot, error) {
	ctx, span := tracer.Start(ctx, "embedding.Cache.EnsureFresh")
	defer span.End()

	hash := CorpusHash(frameworks, c.cfg.Model)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Check(c.snap, frameworks, hash) == ReasonFresh {
		span.SetAttributes(attribute.String("embedding.source", "memory"))
		return c.snap, nil
	}

	stored, err := c.store.Load(ctx, c.cfg.Model)
	if err != nil {
		c.logger.Warn("embedding cache: store load failed, regenerating",
			slog.String("error", err.Error()),
		)
	}
	reason := c.Check(stored, frameworks, hash)
	if reason == ReasonFresh {
		c.setSnapshot(stored)
		span.SetAttributes(attribute.String("embedding.source", "store"))
		c.logger.Info("embedding cache: loaded persisted vectors",
			slog.Int("vectors", len(stored.Vectors)),
			slog.String("corpus_hash", shortHash(hash)),
		)
		return stored, nil
	}

	span.SetAttributes(
		attribute.String("embedding.source", "provider"),
		attribute.String("embedding.stale_reason", reason),
	)
	c.logger.Info("embedding cache: regenerating vectors",
		slog.String("reason", reason),
		slog.Int("frameworks", len(frameworks)),
		slog.String("model", c.cfg.Model),
	)

	snap, err := c.generate(ctx, frameworks, hash)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	regenerationsTotal.WithLabelValues(reason).Inc()
	c.setSnapshot(snap)

	if err := c.store.Save(ctx, snap); err != nil {
		c.logger.Warn("embedding cache: failed to persist vectors",
			slog.String("error", err.Error()),
			slog.String("corpus_hash", shortHash(hash)),
		)
	}
	return snap, nil
}

// Invalidate drops the in-memory and persisted snapshots.
func (c *Cache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = nil
	cachedVectors.Set(0)
	if err := c.store.Delete(ctx, c.cfg.Model); err != nil {
		return fmt.Errorf("embedding cache: invalidate: %w", err)
	}
	c.logger.Info("embedding cache: invalidated", slog.String("model", c.cfg.Model))
	return nil
}

// Current returns the snapshot in memory, or nil before EnsureFresh.
func (c *Cache) Current() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// EmbedQuery embeds one query and normalizes it.
//
// Returns ErrDimensionMismatch when the vector length differs from the
// current snapshot or the configured dimensions.
func (c *Cache) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.client.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embedding: query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedding: query: provider returned %d vectors", len(vecs))
	}
	want := c.cfg.Dimensions
	if snap := c.Current(); snap != nil {
		want = snap.Dimensions
	}
	if want > 0 && len(vecs[0]) != want {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, expected %d", ErrDimensionMismatch, len(vecs[0]), want)
	}
	return Normalize(vecs[0]), nil
}

func (c *Cache) setSnapshot(snap *Snapshot) {
	c.snap = snap
	cachedVectors.Set(float64(len(snap.Vectors)))
}

// generate embeds every framework in batches, up to Concurrency batches
// in flight.
func (c *Cache) generate(ctx context.Context, frameworks []catalog.Framework, hash string) (*Snapshot, error) {
	if len(frameworks) == 0 {
		return &Snapshot{Model: c.cfg.Model, CorpusHash: hash, Dimensions: c.cfg.Dimensions, Vectors: map[int][]float32{}, CreatedAt: time.Now().UTC()}, nil
	}

	docs := make([]string, len(frameworks))
	for i, f := range frameworks {
		docs[i] = Document(f)
	}
	results := make([][]float32, len(frameworks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for start := 0; start < len(docs); start += c.cfg.BatchSize {
		end := min(start+c.cfg.BatchSize, len(docs))
		g.Go(func() error {
			vecs, err := c.client.EmbedBatch(gctx, docs[start:end])
			if err != nil {
				return fmt.Errorf("embedding: batch %d-%d: %w", start, end, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embedding: batch %d-%d: provider returned %d vectors", start, end, len(vecs))
			}
			copy(results[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dims := c.cfg.Dimensions
	if dims <= 0 {
		dims = len(results[0])
	}
	vectors := make(map[int][]float32, len(frameworks))
	for i, f := range frameworks {
		if len(results[i]) != dims {
			return nil, fmt.Errorf("%w: framework %d has %d dimensions, expected %d", ErrDimensionMismatch, f.ID, len(results[i]), dims)
		}
		vectors[f.ID] = Normalize(results[i])
	}
	return &Snapshot{
		Model:      c.cfg.Model,
		CorpusHash: hash,
		Dimensions: dims,
		Vectors:    vectors,
		CreatedAt:  time.Now().UTC(),
	}, nil
}
