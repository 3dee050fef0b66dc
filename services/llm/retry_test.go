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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), fastPolicy(), "chat", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("openai: API returned status 503")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustionWrapsLastError(t *testing.T) {
	last := errors.New("connection refused")
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(), "embed", func(ctx context.Context) (int, error) {
		calls++
		return 0, last
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetryExhausted)
	assert.ErrorIs(t, err, last)
	assert.Equal(t, 3, calls)
}

func TestRetry_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	cause := errors.New("status 401")
	_, err := Retry(context.Background(), fastPolicy(), "chat", func(ctx context.Context) (string, error) {
		calls++
		return "", Permanent(cause)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.NotErrorIs(t, err, ErrRetryExhausted)
	assert.ErrorIs(t, err, cause)
}

func TestRetry_ContextCanceledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour}
	calls := 0
	_, err := Retry(ctx, policy, "chat", func(ctx context.Context) (string, error) {
		calls++
		cancel()
		return "", errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.NotErrorIs(t, err, ErrRetryExhausted)
}

func TestRetry_ZeroPolicyUsesDefaults(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), RetryPolicy{}, "chat", func(ctx context.Context) (string, error) {
		calls++
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

type flakyProvider struct {
	chatFailures  int
	embedFailures int
	chatCalls     int
	embedCalls    int
}

func (f *flakyProvider) Name() string { return "flaky" }

func (f *flakyProvider) Chat(ctx context.Context, _ []Message, _ GenerationParams) (string, error) {
	f.chatCalls++
	if f.chatCalls <= f.chatFailures {
		return "", errors.New("status 500")
	}
	return "narrative", nil
}

func (f *flakyProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.embedCalls++
	if f.embedCalls <= f.embedFailures {
		return nil, errors.New("timeout")
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func TestWithRetry_WrapsBothOperations(t *testing.T) {
	inner := &flakyProvider{chatFailures: 1, embedFailures: 2}
	p := WithRetry(inner, fastPolicy())

	text, err := p.Chat(context.Background(), nil, GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "narrative", text)
	assert.Equal(t, 2, inner.chatCalls)

	vecs, err := p.EmbedBatch(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
	assert.Equal(t, 3, inner.embedCalls)
	assert.Equal(t, "flaky", p.Name())
}

func TestUsageTracker_CostEstimate(t *testing.T) {
	u := NewUsageTracker(0, 0)
	u.Add(1_000_000, 0)
	u.Add(0, 1_000_000)
	s := u.Snapshot()
	assert.Equal(t, int64(2_000_000), s.TotalTokens)
	assert.Equal(t, int64(2), s.Calls)
	assert.InDelta(t, 0.75, s.EstimatedCostUSD, 1e-9)

	u.Reset()
	assert.Zero(t, u.Snapshot().TotalTokens)

	var nilTracker *UsageTracker
	nilTracker.Add(5, 5)
	assert.Equal(t, Usage{}, nilTracker.Snapshot())
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, "", classifyError(nil))
	assert.Equal(t, "timeout", classifyError(context.DeadlineExceeded))
	assert.Equal(t, "auth", classifyError(errors.New("openai: API returned status 401: nope")))
	assert.Equal(t, "rate_limit", classifyError(errors.New("openai: API returned status 429")))
	assert.Equal(t, "server", classifyError(errors.New("openai: API returned status 503")))
	assert.Equal(t, "unknown", classifyError(errors.New("weird")))
}
