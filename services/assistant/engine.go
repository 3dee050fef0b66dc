// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/FrameworkAssistant/services/assistant/catalog"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/config"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/embedding"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/feedback"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/index"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/router"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/routing"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/session"
)

const tracerName = "assistant.engine"

var (
	// ErrNotReady is returned until the first catalog load succeeds.
	ErrNotReady = errors.New("assistant: catalog not loaded")

	// ErrFrameworkNotFound is returned when rating an unknown framework id.
	ErrFrameworkNotFound = errors.New("assistant: framework not found")
)

var (
	feedbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Name:      "feedback_total",
			Help:      "Framework ratings accepted, by rating.",
		},
		[]string{"rating"},
	)

	catalogReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Name:      "catalog_reloads_total",
			Help:      "Catalog loads by outcome.",
		},
		[]string{"outcome"},
	)

	catalogSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "assistant",
		Name:      "catalog_frameworks",
		Help:      "Frameworks in the active catalog.",
	})
)

// Options configures an Engine.
type Options struct {
	Config  config.Config
	Backend Backend

	// Rules are the routing rules. Nil uses the embedded defaults.
	Rules *config.RoutingRules

	// VectorStore persists framework vectors. Nil keeps them in memory.
	VectorStore embedding.VectorStore

	// Sessions stores conversations. Nil uses an in-memory store.
	Sessions session.Store

	// Feedback receives ratings. Nil discards them.
	Feedback feedback.Log

	Logger *slog.Logger
}

// Engine is the running assistant.
//
// # Description
//
// Load reads the catalog, makes sure the vectors are fresh and swaps in a
// new router; requests in flight keep the router they started with. Session
// operations lock per session id, load the session from the store, apply
// the change and save it back.
//
// # Thread Safety
//
// Safe for concurrent use.
type Engine struct {
	cfg      config.Config
	backend  Backend
	rules    *config.RoutingRules
	cache    *embedding.Cache
	sessions session.Store
	feedback feedback.Log
	locks    *keyedMutex
	logger   *slog.Logger
	current  atomic.Pointer[router.Router]
	loadedAt atomic.Int64

	sessionsCreated metric.Int64Counter
}

// NewEngine creates an engine. Call Load before routing messages.
func NewEngine(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Backend.Embedder == nil || opts.Backend.Generator == nil {
		return nil, fmt.Errorf("assistant: backend is incomplete")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Rules == nil {
		rules, err := config.LoadRoutingRulesFile(ctx, opts.Config.RoutingRules)
		if err != nil {
			return nil, fmt.Errorf("assistant: routing rules: %w", err)
		}
		opts.Rules = rules
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewMemoryStore(opts.Config.Session.TTL)
	}
	if opts.Feedback == nil {
		opts.Feedback = feedback.Discard{}
	}
	cache := embedding.NewCache(opts.Backend.Embedder, opts.VectorStore, embedding.CacheConfig{
		Model:       opts.Backend.EmbeddingModel,
		Dimensions:  opts.Config.Embedding.Dimensions,
		BatchSize:   opts.Config.Embedding.BatchSize,
		Concurrency: opts.Config.Embedding.Concurrency,
	}, opts.Logger)

	created, err := otel.Meter(tracerName).Int64Counter("assistant.sessions.created",
		metric.WithDescription("Sessions created."))
	if err != nil {
		return nil, fmt.Errorf("assistant: meter: %w", err)
	}

	return &Engine{
		sessionsCreated: created,
		cfg:             opts.Config,
		backend:         opts.Backend,
		rules:           opts.Rules,
		cache:           cache,
		sessions:        opts.Sessions,
		feedback:        opts.Feedback,
		locks:           newKeyedMutex(),
		logger:          opts.Logger,
	}, nil
}

// =============================================================================
// Catalog Lifecycle
// =============================================================================

// Load reads the configured catalog and installs it.
func (e *Engine) Load(ctx context.Context) error {
	cat, err := catalog.Load(ctx, e.cfg.CatalogPath)
	if err != nil {
		catalogReloadsTotal.WithLabelValues("error").Inc()
		return err
	}
	return e.Install(ctx, cat)
}

// Install builds a router over cat and makes it current.
//
// # Description
//
// Vectors are reused when the persisted snapshot still matches cat and
// recomputed otherwise. On error the previous router stays active.
func (e *Engine) Install(ctx context.Context, cat *catalog.Catalog) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "assistant.Engine.Install")
	defer span.End()
	start := time.Now()

	snap, err := e.cache.EnsureFresh(ctx, cat.All())
	if err != nil {
		catalogReloadsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		return fmt.Errorf("assistant: vectors: %w", err)
	}
	ix, err := index.New(cat, snap)
	if err != nil {
		catalogReloadsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("assistant: index: %w", err)
	}
	cls, err := routing.NewClassifier(e.rules, routing.NewNameExtractor(cat.Names()), e.logger)
	if err != nil {
		catalogReloadsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("assistant: classifier: %w", err)
	}
	r, err := router.New(router.Deps{
		Index:      ix,
		Embedder:   e.cache,
		Classifier: cls,
		Enhancer:   routing.NewEnhancer(e.rules.Followup, e.logger),
		Generator:  e.backend.Generator,
		TopK:       e.cfg.TopK,
	}, e.logger)
	if err != nil {
		catalogReloadsTotal.WithLabelValues("error").Inc()
		return err
	}

	e.current.Store(r)
	e.loadedAt.Store(time.Now().UnixMilli())
	catalogReloadsTotal.WithLabelValues("ok").Inc()
	catalogSize.Set(float64(cat.Len()))
	span.SetAttributes(
		attribute.Int("catalog.frameworks", cat.Len()),
		attribute.Int("embedding.dimensions", snap.Dimensions),
	)
	e.logger.Info("assistant: catalog installed",
		slog.String("source", cat.Source()),
		slog.Int("frameworks", cat.Len()),
		slog.Int("dimensions", snap.Dimensions),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// Watch reloads the catalog whenever its file changes, until ctx is done.
// Reloads run one at a time on the watcher's goroutine. Failed reloads are
// logged and the previous catalog stays active.
func (e *Engine) Watch(ctx context.Context) error {
	return embedding.WatchCatalog(ctx, e.cfg.CatalogPath, 0, e.logger, func(path string) {
		if err := e.Load(ctx); err != nil {
			e.logger.Warn("assistant: catalog reload failed, keeping previous catalog",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	})
}

// Ready reports whether a catalog is installed.
func (e *Engine) Ready() bool { return e.current.Load() != nil }

// LoadedAt returns when the current catalog was installed.
func (e *Engine) LoadedAt() time.Time {
	ms := e.loadedAt.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Router returns the current router.
func (e *Engine) Router() (*router.Router, error) {
	r := e.current.Load()
	if r == nil {
		return nil, ErrNotReady
	}
	return r, nil
}

// Catalog returns the current catalog.
func (e *Engine) Catalog() (*catalog.Catalog, error) {
	r, err := e.Router()
	if err != nil {
		return nil, err
	}
	return r.Index().Catalog(), nil
}

// Cache returns the vector cache.
func (e *Engine) Cache() *embedding.Cache { return e.cache }

// Backend returns the model backend.
func (e *Engine) Backend() Backend { return e.backend }

// =============================================================================
// Sessions
// =============================================================================

// NewSession creates and stores an empty session.
func (e *Engine) NewSession(ctx context.Context) (*session.Session, error) {
	s := session.New()
	if err := e.sessions.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("assistant: save session: %w", err)
	}
	e.sessionsCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", e.backend.Name)))
	e.logger.Debug("assistant: session created", slog.String("session_id", s.ID))
	return s, nil
}

// Session returns a copy of the stored session.
func (e *Engine) Session(ctx context.Context, id string) (*session.Session, error) {
	return e.sessions.Get(ctx, id)
}

// Send routes query within the session and stores the result.
//
// # Outputs
//
//   - router.Response: The reply; the apology when a provider failed.
//   - error: session.ErrSessionNotFound, ErrNotReady, router.ErrEmptyQuery
//     or a wrapped provider error. After a provider error the session is
//     still saved with the apology turn.
func (e *Engine) Send(ctx context.Context, id, query string, filters index.Filters) (router.Response, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	r, err := e.Router()
	if err != nil {
		return router.Response{}, err
	}
	sess, err := e.sessions.Get(ctx, id)
	if err != nil {
		return router.Response{}, err
	}
	resp, routeErr := r.Route(ctx, sess, query, filters)
	if errors.Is(routeErr, router.ErrEmptyQuery) {
		return resp, routeErr
	}
	if err := e.sessions.Save(ctx, sess); err != nil {
		return resp, fmt.Errorf("assistant: save session: %w", err)
	}
	return resp, routeErr
}

// Reset clears the session's conversation and diagnostic state.
func (e *Engine) Reset(ctx context.Context, id string) (*session.Session, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	sess, err := e.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Reset()
	if err := e.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("assistant: save session: %w", err)
	}
	e.logger.Info("assistant: session reset", slog.String("session_id", id))
	return sess, nil
}

// Rate records a rating for a framework and appends it to the feedback log.
//
// Returns session.ErrAlreadyRated when the framework was rated before in
// this session; the first rating is kept and nothing is logged.
func (e *Engine) Rate(ctx context.Context, id string, frameworkID int, rating session.Rating) error {
	unlock := e.locks.Lock(id)
	defer unlock()

	cat, err := e.Catalog()
	if err != nil {
		return err
	}
	if _, ok := cat.Get(frameworkID); !ok {
		return fmt.Errorf("%w: %d", ErrFrameworkNotFound, frameworkID)
	}
	sess, err := e.sessions.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := sess.RecordFeedback(frameworkID, rating); err != nil {
		return err
	}
	// Save only after the log accepted the record; a failed append must
	// leave the framework rateable.
	err = e.feedback.Append(ctx, feedback.Record{
		SessionID:   sess.ID,
		Query:       sess.LastQuery,
		FrameworkID: frameworkID,
		Rating:      int(rating),
	})
	if err != nil {
		return err
	}
	if err := e.sessions.Save(ctx, sess); err != nil {
		return fmt.Errorf("assistant: save session: %w", err)
	}
	label := "up"
	if rating == session.RatingDown {
		label = "down"
	}
	feedbackTotal.WithLabelValues(label).Inc()
	e.logger.Info("assistant: feedback recorded",
		slog.String("session_id", id),
		slog.Int("framework_id", frameworkID),
		slog.Int("rating", int(rating)),
	)
	return nil
}

// Close releases the session store and the feedback log.
func (e *Engine) Close() error {
	return errors.Join(e.sessions.Close(), e.feedback.Close())
}
