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
	"errors"
)

// Message is a single chat message exchanged with a generation backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams carries optional per-call generation settings.
//
// Nil pointers mean "use the backend default".
type GenerationParams struct {
	Temperature   *float32
	MaxTokens     *int
	TopP          *float32
	Stop          []string
	ModelOverride string
}

// ChatClient generates narrative text from a conversation.
//
// Thread Safety: Implementations must be safe for concurrent use.
type ChatClient interface {
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)
}

// EmbeddingClient turns texts into fixed-length vectors.
//
// # Description
//
// EmbedBatch returns one vector per input text, in input order. Every
// vector returned by a single client has the same dimension.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type EmbeddingClient interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Provider bundles generation and embeddings behind one backend.
type Provider interface {
	ChatClient
	EmbeddingClient
	Name() string
}

var (
	// ErrRetryExhausted wraps the last error once every retry attempt failed.
	ErrRetryExhausted = errors.New("llm: retries exhausted")

	// ErrProviderUnavailable is returned when a backend is not configured.
	ErrProviderUnavailable = errors.New("llm: provider unavailable")
)

// Float32Ptr returns a pointer to v.
func Float32Ptr(v float32) *float32 { return &v }

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }
