// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package narrative

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/FrameworkAssistant/services/llm"
)

var tracer = otel.Tracer("assistant.narrative")

// Generator renders a prompt into response text.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// GenerationConfig holds model settings shared by every prompt.
type GenerationConfig struct {
	Temperature    float32
	MaxTokensShort int
	MaxTokensLong  int
}

// DefaultGenerationConfig matches the catalog assistant's tuning.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{Temperature: 0.3, MaxTokensShort: 500, MaxTokensLong: 1000}
}

// LLMGenerator sends prompts to a chat model.
//
// Retries are the client's concern; wrap the provider with llm.WithRetry.
type LLMGenerator struct {
	client llm.ChatClient
	cfg    GenerationConfig
	logger *slog.Logger
}

// NewLLMGenerator creates a generator over client.
func NewLLMGenerator(client llm.ChatClient, cfg GenerationConfig, logger *slog.Logger) *LLMGenerator {
	def := DefaultGenerationConfig()
	if cfg.MaxTokensShort <= 0 {
		cfg.MaxTokensShort = def.MaxTokensShort
	}
	if cfg.MaxTokensLong <= 0 {
		cfg.MaxTokensLong = def.MaxTokensLong
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMGenerator{client: client, cfg: cfg, logger: logger}
}

// Generate calls the chat model with the system and user prompts.
func (g *LLMGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	ctx, span := tracer.Start(ctx, "narrative.LLMGenerator.Generate")
	defer span.End()

	maxTokens := g.cfg.MaxTokensShort
	if p.Kind.Long() {
		maxTokens = g.cfg.MaxTokensLong
	}
	span.SetAttributes(
		attribute.String("narrative.kind", string(p.Kind)),
		attribute.Int("narrative.max_tokens", maxTokens),
		attribute.Int("narrative.history_turns", len(p.History)),
	)

	text, err := g.client.Chat(ctx, Messages(p), llm.GenerationParams{
		Temperature: llm.Float32Ptr(g.cfg.Temperature),
		MaxTokens:   llm.IntPtr(maxTokens),
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("narrative: generate %s: %w", p.Kind, err)
	}
	g.logger.Debug("narrative: generated",
		slog.String("kind", string(p.Kind)),
		slog.Int("chars", len(text)),
	)
	return text, nil
}

// Messages lays p out as a chat request: the system prompt, the earlier
// turns, then the user prompt.
func Messages(p Prompt) []llm.Message {
	msgs := make([]llm.Message, 0, len(p.History)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: p.System})
	msgs = append(msgs, p.History...)
	return append(msgs, llm.Message{Role: "user", Content: p.User})
}

// StaticGenerator renders responses locally from the prompt's data. It
// never fails transiently and needs no network.
type StaticGenerator struct{}

// Generate renders the static template for p.Kind.
func (StaticGenerator) Generate(_ context.Context, p Prompt) (string, error) {
	return RenderStatic(p.Kind, p.Data)
}
