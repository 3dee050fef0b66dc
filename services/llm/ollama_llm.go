// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

const defaultOllamaURL = "http://localhost:11434"

// ollamaModel is the subset of the langchaingo Ollama LLM used here.
type ollamaModel interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
	CreateEmbedding(ctx context.Context, inputTexts []string) ([][]float32, error)
}

// OllamaConfig configures an OllamaClient.
type OllamaConfig struct {
	BaseURL           string
	Model             string
	EmbeddingModel    string
	Timeout           time.Duration
	RequestsPerSecond float64
	Usage             *UsageTracker
}

// OllamaClient implements Provider against a local Ollama server through
// langchaingo. Chat and embeddings may use different models.
//
// Thread Safety: OllamaClient is safe for concurrent use.
type OllamaClient struct {
	chat    ollamaModel
	embed   ollamaModel
	model   string
	limiter *rate.Limiter
	usage   *UsageTracker
}

// NewOllamaClient builds chat and embedding handles for cfg.
//
// # Outputs
//
//   - *OllamaClient: Ready client. No network call is made here.
//   - error: Non-nil if a model name is missing or langchaingo rejects the options.
func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama: model is required (OLLAMA_MODEL): %w", ErrProviderUnavailable)
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = cfg.Model
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOllamaURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}

	chatLLM, err := ollama.New(
		ollama.WithModel(cfg.Model),
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("ollama: creating chat model: %w", err)
	}
	embedLLM, err := ollama.New(
		ollama.WithModel(cfg.EmbeddingModel),
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("ollama: creating embedding model: %w", err)
	}

	c := &OllamaClient{chat: chatLLM, embed: embedLLM, model: cfg.Model, usage: cfg.Usage}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	slog.Info("Initializing Ollama client",
		slog.String("url", cfg.BaseURL),
		slog.String("model", cfg.Model),
		slog.String("embedding_model", cfg.EmbeddingModel),
	)
	return c, nil
}

// Name implements Provider.
func (c *OllamaClient) Name() string { return "ollama" }

// Chat implements ChatClient.
func (c *OllamaClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (text string, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "llm.OllamaClient.Chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", "ollama"),
		attribute.String("llm.model", c.model),
		attribute.Int("llm.messages", len(messages)),
	)
	start := time.Now()
	defer func() {
		recordCall(c.Name(), "chat", time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "chat failed")
		}
	}()

	if err := c.wait(ctx); err != nil {
		return "", err
	}

	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.TextParts(ollamaRole(m.Role), m.Content))
	}

	var opts []llms.CallOption
	if params.Temperature != nil {
		opts = append(opts, llms.WithTemperature(float64(*params.Temperature)))
	}
	if params.MaxTokens != nil {
		opts = append(opts, llms.WithMaxTokens(*params.MaxTokens))
	}
	if params.TopP != nil {
		opts = append(opts, llms.WithTopP(float64(*params.TopP)))
	}
	if len(params.Stop) > 0 {
		opts = append(opts, llms.WithStopWords(params.Stop))
	}
	if params.ModelOverride != "" {
		opts = append(opts, llms.WithModel(params.ModelOverride))
	}

	resp, err := c.chat.GenerateContent(ctx, content, opts...)
	if err != nil {
		return "", fmt.Errorf("ollama: generate: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("ollama: returned no choices")
	}
	choice := resp.Choices[0]
	prompt, completion := generationTokens(choice.GenerationInfo)
	c.usage.Add(prompt, completion)
	return choice.Content, nil
}

// EmbedBatch implements EmbeddingClient.
func (c *OllamaClient) EmbedBatch(ctx context.Context, texts []string) (vecs [][]float32, err error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "llm.OllamaClient.EmbedBatch")
	defer span.End()
	span.SetAttributes(attribute.String("llm.provider", "ollama"), attribute.Int("llm.texts", len(texts)))
	start := time.Now()
	defer func() {
		recordCall(c.Name(), "embed", time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "embed failed")
		}
	}()

	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	vecs, err = c.embed.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ollama: embed: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("ollama: expected %d embeddings, got %d", len(texts), len(vecs))
	}
	return vecs, nil
}

func (c *OllamaClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("ollama: rate limiter: %w", err)
	}
	return nil
}

func ollamaRole(role string) llms.ChatMessageType {
	switch role {
	case "system":
		return llms.ChatMessageTypeSystem
	case "assistant":
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// generationTokens reads token counts from langchaingo's GenerationInfo map.
func generationTokens(info map[string]any) (prompt, completion int) {
	toInt := func(v any) int {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
		return 0
	}
	return toInt(info["PromptTokens"]), toInt(info["CompletionTokens"])
}
