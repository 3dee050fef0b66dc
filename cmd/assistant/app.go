// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/FrameworkAssistant/services/assistant"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/config"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/embedding"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/feedback"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/session"
	"github.com/AleutianAI/FrameworkAssistant/services/llm"
)

// app is a wired engine plus the resources it owns.
type app struct {
	engine *assistant.Engine
	usage  *llm.UsageTracker
	db     *embedding.DB
}

// openApp wires the configured stores and backend into an engine. The
// catalog is not loaded; call engine.Load.
//
// Description:
//
//	Vectors persist in BadgerDB under cfg.VectorCacheDir. When the
//	directory cannot be opened the engine keeps vectors in memory, the
//	same degradation the HTTP server applies to its embedding cache.
func openApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{usage: llm.NewUsageTracker(0, 0)}

	var vectors embedding.VectorStore
	if cfg.VectorCacheDir != "" {
		db, err := embedding.OpenDB(cfg.VectorCacheDir)
		if err != nil {
			logger.Warn("vector cache unavailable, keeping vectors in memory",
				slog.String("path", cfg.VectorCacheDir),
				slog.String("error", err.Error()),
			)
		} else {
			a.db = db
			vectors = embedding.NewBadgerVectorStore(db, logger)
		}
	}

	var sessions session.Store
	if cfg.Session.Store == config.SessionStoreRedis {
		rs, err := session.DialRedis(ctx, cfg.Session.RedisAddr, cfg.Session.RedisDB, cfg.Session.TTL)
		if err != nil {
			a.closeDB()
			return nil, err
		}
		sessions = rs
	}

	var fb feedback.Log = feedback.Discard{}
	if cfg.FeedbackLogPath != "" {
		fl, err := feedback.NewFileLog(cfg.FeedbackLogPath, feedback.DefaultRotation())
		if err != nil {
			a.closeDB()
			return nil, err
		}
		fb = fl
	}

	backend, err := assistant.NewBackend(cfg, a.usage, logger)
	if err != nil {
		a.closeDB()
		return nil, err
	}

	engine, err := assistant.NewEngine(ctx, assistant.Options{
		Config:      cfg,
		Backend:     backend,
		VectorStore: vectors,
		Sessions:    sessions,
		Feedback:    fb,
		Logger:      logger,
	})
	if err != nil {
		a.closeDB()
		return nil, fmt.Errorf("engine: %w", err)
	}
	a.engine = engine
	return a, nil
}

// openLoadedApp is openApp followed by a catalog load.
func openLoadedApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := a.engine.Load(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) closeDB() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// Close releases the engine and the vector database.
func (a *app) Close() error {
	var errs []error
	if a.engine != nil {
		errs = append(errs, a.engine.Close())
	}
	errs = append(errs, a.closeDB())
	return errors.Join(errs...)
}
