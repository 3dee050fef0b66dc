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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeOllamaModel struct {
	gotMessages []llms.MessageContent
	gotOptions  int
	content     string
	vectors     [][]float32
	err         error
}

func (f *fakeOllamaModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.gotMessages = messages
	f.gotOptions = len(options)
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:        f.content,
		GenerationInfo: map[string]any{"PromptTokens": 12, "CompletionTokens": 8},
	}}}, nil
}

func (f *fakeOllamaModel) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors, nil
}

func TestNewOllamaClient_RequiresModel(t *testing.T) {
	_, err := NewOllamaClient(OllamaConfig{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestOllamaClient_ChatMapsRolesAndUsage(t *testing.T) {
	fake := &fakeOllamaModel{content: "Consider MEDDIC."}
	usage := NewUsageTracker(0, 0)
	c := &OllamaClient{chat: fake, embed: fake, model: "llama3", usage: usage}

	got, err := c.Chat(context.Background(), []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "help"},
		{Role: "assistant", Content: "sure"},
	}, GenerationParams{Temperature: Float32Ptr(0.3), MaxTokens: IntPtr(500)})
	require.NoError(t, err)
	assert.Equal(t, "Consider MEDDIC.", got)

	require.Len(t, fake.gotMessages, 3)
	assert.Equal(t, llms.ChatMessageTypeSystem, fake.gotMessages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, fake.gotMessages[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, fake.gotMessages[2].Role)
	assert.Equal(t, 2, fake.gotOptions)
	assert.Equal(t, int64(20), usage.Snapshot().TotalTokens)
}

func TestOllamaClient_ChatError(t *testing.T) {
	fake := &fakeOllamaModel{err: errors.New("connection refused")}
	c := &OllamaClient{chat: fake, embed: fake}
	_, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "x"}}, GenerationParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama: generate")
}

func TestOllamaClient_EmbedBatchCountMismatch(t *testing.T) {
	fake := &fakeOllamaModel{vectors: [][]float32{{1, 2}}}
	c := &OllamaClient{chat: fake, embed: fake}
	_, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	require.Error(t, err)

	fake.vectors = [][]float32{{1, 2}, {3, 4}}
	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
}
