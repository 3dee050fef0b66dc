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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

// =============================================================================
// OpenAI Wire Types
// =============================================================================

const (
	defaultOpenAIBaseURL        = "https://api.openai.com/v1"
	defaultOpenAIModel          = "gpt-4o-mini"
	defaultOpenAIEmbeddingModel = "text-embedding-3-small"
)

type openaiRequest struct {
	Model               string          `json:"model"`
	Messages            []openaiMessage `json:"messages"`
	Temperature         *float32        `json:"temperature,omitempty"`
	MaxCompletionTokens *int            `json:"max_completion_tokens,omitempty"`
	TopP                *float32        `json:"top_p,omitempty"`
	Stop                []string        `json:"stop,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
}

type openaiResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Choices []openaiChoice `json:"choices"`
	Usage   *openaiUsage   `json:"usage,omitempty"`
	Error   *openaiError   `json:"error,omitempty"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openaiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type openaiEmbeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage *openaiUsage `json:"usage,omitempty"`
	Error *openaiError `json:"error,omitempty"`
}

// =============================================================================
// Client Implementation
// =============================================================================

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	Dimensions     int
	BaseURL        string
	Timeout        time.Duration

	// RequestsPerSecond limits outgoing calls. Zero disables limiting.
	RequestsPerSecond float64
	Usage             *UsageTracker
}

// OpenAIClient implements Provider for OpenAI models using raw net/http.
//
// Description:
//
//	Uses the OpenAI Chat Completions and Embeddings REST APIs directly
//	without third-party SDKs. Token usage is reported to the configured
//	UsageTracker.
//
// Thread Safety: OpenAIClient is safe for concurrent use.
type OpenAIClient struct {
	httpClient     *http.Client
	apiKey         string
	model          string
	embeddingModel string
	dimensions     int
	baseURL        string
	limiter        *rate.Limiter
	usage          *UsageTracker
}

// NewOpenAIClientWithConfig creates an OpenAIClient with explicit configuration.
//
// Description:
//
//	Creates an OpenAIClient without reading environment variables. Useful
//	for testing with mock servers or when configuration comes from a source
//	other than environment variables.
//
// Outputs:
//   - *OpenAIClient: The configured client.
//   - error: Non-nil if the API key is missing.
func NewOpenAIClientWithConfig(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is missing (OPENAI_API_KEY): %w", ErrProviderUnavailable)
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = defaultOpenAIEmbeddingModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	c := &OpenAIClient{
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		apiKey:         cfg.APIKey,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		dimensions:     cfg.Dimensions,
		baseURL:        cfg.BaseURL,
		usage:          cfg.Usage,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	slog.Info("Initializing OpenAI client",
		slog.String("model", c.model),
		slog.String("embedding_model", c.embeddingModel),
	)
	return c, nil
}

// NewOpenAIClient creates a new OpenAIClient from environment variables.
//
// Description:
//
//	Reads OPENAI_API_KEY, OPENAI_LLM_MODEL and OPENAI_EMBEDDING_MODEL.
//	Defaults to "gpt-4o-mini" and "text-embedding-3-small".
//
// Outputs:
//   - *OpenAIClient: The configured client.
//   - error: Non-nil if OPENAI_API_KEY is missing.
func NewOpenAIClient() (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		slog.Warn("OpenAI API Key is empty. OpenAI Client will not function.")
	}
	model := os.Getenv("OPENAI_LLM_MODEL")
	if model == "" {
		slog.Warn("OPENAI_LLM_MODEL not set, defaulting to " + defaultOpenAIModel)
	}
	return NewOpenAIClientWithConfig(OpenAIConfig{
		APIKey:         apiKey,
		Model:          model,
		EmbeddingModel: os.Getenv("OPENAI_EMBEDDING_MODEL"),
	})
}

// Name implements Provider.
func (o *OpenAIClient) Name() string { return "openai" }

// Chat implements ChatClient using the OpenAI chat completions API.
//
// Description:
//
//	Converts Message values to OpenAI format and sends a chat completion
//	request via raw HTTP. Unknown roles are mapped to "user". HTTP 4xx
//	responses other than 429 are marked Permanent so they are not retried.
//
// Inputs:
//   - ctx: Context for cancellation and timeout.
//   - messages: Conversation history.
//   - params: Generation parameters.
//
// Outputs:
//   - string: The assistant's response text.
//   - error: Non-nil if the request fails.
//
// Thread Safety: This method is safe for concurrent use.
func (o *OpenAIClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (text string, err error) {
	model := o.model
	if params.ModelOverride != "" {
		model = params.ModelOverride
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "llm.OpenAIClient.Chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", "openai"),
		attribute.String("llm.model", model),
		attribute.Int("llm.messages", len(messages)),
	)
	start := time.Now()
	defer func() {
		recordCall(o.Name(), "chat", time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "chat failed")
		}
	}()

	slog.Debug("Chat via OpenAI", slog.String("model", model), slog.Int("messages", len(messages)))

	oaiMessages := make([]openaiMessage, 0, len(messages))
	for _, msg := range messages {
		role := msg.Role
		switch role {
		case "system", "user", "assistant":
		default:
			slog.Warn("OpenAI: unknown message role, mapping to user",
				slog.String("unknown_role", role),
				slog.String("model", model),
			)
			role = "user"
		}
		oaiMessages = append(oaiMessages, openaiMessage{Role: role, Content: msg.Content})
	}

	reqPayload := openaiRequest{
		Model:               model,
		Messages:            oaiMessages,
		Temperature:         params.Temperature,
		MaxCompletionTokens: params.MaxTokens,
		TopP:                params.TopP,
	}
	if len(params.Stop) > 0 {
		reqPayload.Stop = params.Stop
	}

	var apiResp openaiResponse
	if err := o.post(ctx, "/chat/completions", reqPayload, &apiResp); err != nil {
		return "", err
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("openai: API error: %s - %s", apiResp.Error.Type, SafeLogString(apiResp.Error.Message))
	}
	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("openai: returned no choices")
	}
	if apiResp.Usage != nil {
		o.usage.Add(apiResp.Usage.PromptTokens, apiResp.Usage.CompletionTokens)
		tokensTotal.WithLabelValues(o.Name(), "prompt").Add(float64(apiResp.Usage.PromptTokens))
		tokensTotal.WithLabelValues(o.Name(), "completion").Add(float64(apiResp.Usage.CompletionTokens))
	}

	slog.Debug("Received OpenAI chat response",
		slog.String("finish_reason", apiResp.Choices[0].FinishReason),
		slog.Int("response_len", len(apiResp.Choices[0].Message.Content)),
	)
	return apiResp.Choices[0].Message.Content, nil
}

// EmbedBatch implements EmbeddingClient using the OpenAI embeddings API.
//
// Description:
//
//	Sends all texts in one request and reorders the returned vectors by
//	their index so output order matches input order.
//
// Thread Safety: This method is safe for concurrent use.
func (o *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) (vecs [][]float32, err error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "llm.OpenAIClient.EmbedBatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", "openai"),
		attribute.String("llm.model", o.embeddingModel),
		attribute.Int("llm.texts", len(texts)),
	)
	start := time.Now()
	defer func() {
		recordCall(o.Name(), "embed", time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "embed failed")
		}
	}()

	var apiResp openaiEmbeddingResponse
	req := openaiEmbeddingRequest{Model: o.embeddingModel, Input: texts, Dimensions: o.dimensions}
	if err := o.post(ctx, "/embeddings", req, &apiResp); err != nil {
		return nil, err
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("openai: API error: %s - %s", apiResp.Error.Type, SafeLogString(apiResp.Error.Message))
	}
	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("openai: expected %d embeddings, got %d", len(texts), len(apiResp.Data))
	}
	vecs = make([][]float32, len(texts))
	for _, d := range apiResp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("openai: embedding index %d out of range", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	if apiResp.Usage != nil {
		o.usage.Add(apiResp.Usage.PromptTokens, 0)
		tokensTotal.WithLabelValues(o.Name(), "prompt").Add(float64(apiResp.Usage.PromptTokens))
	}
	return vecs, nil
}

// post marshals payload, sends it to path and decodes the JSON reply into out.
func (o *OpenAIClient) post(ctx context.Context, path string, payload, out any) error {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("openai: rate limiter: %w", err)
		}
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return Permanent(fmt.Errorf("openai: marshaling request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewBuffer(reqBody))
	if err != nil {
		return Permanent(fmt.Errorf("openai: creating HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("openai: HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("openai: reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("openai: API returned status %d: %s", resp.StatusCode, SafeLogString(string(bodyBytes)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return Permanent(statusErr)
		}
		return statusErr
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("openai: parsing response JSON: %w", err)
	}
	return nil
}
