// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assistant wires the catalog, vector cache, router and session
// store into one Engine and exposes it over HTTP.
package assistant

import (
	"fmt"
	"log/slog"

	"github.com/AleutianAI/FrameworkAssistant/services/assistant/config"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/embedding"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/narrative"
	"github.com/AleutianAI/FrameworkAssistant/services/llm"
)

// Backend is the model side of the assistant: one embedding client and
// one narrative generator.
type Backend struct {
	// Name is the configured provider.
	Name string

	Embedder llm.EmbeddingClient

	// EmbeddingModel keys persisted vectors, "<provider>:<model>".
	EmbeddingModel string

	Generator narrative.Generator
}

// NewBackend builds the provider named by cfg.Provider.
//
// # Description
//
// Remote providers are wrapped with llm.WithRetry using cfg.Retry, so
// transient failures are retried and exhaustion surfaces as
// llm.ErrRetryExhausted. The static provider needs no network: it embeds
// with feature hashing and renders responses from templates.
//
// # Inputs
//
//   - cfg: Validated configuration.
//   - usage: Token accounting for remote providers. May be nil.
//   - logger: May be nil.
//
// # Outputs
//
//   - Backend: Ready to use.
//   - error: Wraps llm.ErrProviderUnavailable when the provider cannot be
//     configured.
func NewBackend(cfg config.Config, usage *llm.UsageTracker, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	gen := narrative.GenerationConfig{
		Temperature:    cfg.Generation.Temperature,
		MaxTokensShort: cfg.Generation.MaxTokensShort,
		MaxTokensLong:  cfg.Generation.MaxTokensLong,
	}

	var provider llm.Provider
	var model string
	switch cfg.Provider {
	case config.ProviderStatic:
		return Backend{
			Name:           config.ProviderStatic,
			Embedder:       embedding.NewHashEmbedder(cfg.Embedding.Dimensions),
			EmbeddingModel: "static:hash",
			Generator:      narrative.StaticGenerator{},
		}, nil
	case config.ProviderOpenAI:
		c, err := llm.NewOpenAIClientWithConfig(llm.OpenAIConfig{
			APIKey:            cfg.OpenAI.APIKey,
			Model:             cfg.OpenAI.Model,
			EmbeddingModel:    cfg.OpenAI.EmbeddingModel,
			Dimensions:        cfg.Embedding.Dimensions,
			BaseURL:           cfg.OpenAI.BaseURL,
			RequestsPerSecond: cfg.OpenAI.RequestsPerSecond,
			Usage:             usage,
		})
		if err != nil {
			return Backend{}, err
		}
		provider, model = c, cfg.OpenAI.EmbeddingModel
	case config.ProviderOllama:
		c, err := llm.NewOllamaClient(llm.OllamaConfig{
			BaseURL:           cfg.Ollama.BaseURL,
			Model:             cfg.Ollama.Model,
			EmbeddingModel:    cfg.Ollama.EmbeddingModel,
			RequestsPerSecond: cfg.Ollama.RequestsPerSecond,
			Usage:             usage,
		})
		if err != nil {
			return Backend{}, err
		}
		provider, model = c, cfg.Ollama.EmbeddingModel
	default:
		return Backend{}, fmt.Errorf("assistant: unknown provider %q: %w", cfg.Provider, llm.ErrProviderUnavailable)
	}

	provider = llm.WithRetry(provider, cfg.Retry)
	logger.Info("assistant: backend ready",
		slog.String("provider", cfg.Provider),
		slog.String("embedding_model", model),
		slog.Int("max_attempts", cfg.Retry.MaxAttempts),
	)
	return Backend{
		Name:           cfg.Provider,
		Embedder:       provider,
		EmbeddingModel: cfg.Provider + ":" + model,
		Generator:      narrative.NewLLMGenerator(provider, gen, logger),
	}, nil
}
