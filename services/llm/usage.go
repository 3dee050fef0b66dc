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

import "sync"

// Default per-million-token prices for cost estimates (gpt-4o-mini list price).
const (
	DefaultInputPricePerMillion  = 0.15
	DefaultOutputPricePerMillion = 0.60
)

// Usage is a snapshot of accumulated token consumption.
type Usage struct {
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	Calls            int64   `json:"calls"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

// UsageTracker accumulates token counts reported by a backend.
//
// Thread Safety: UsageTracker is safe for concurrent use.
type UsageTracker struct {
	mu          sync.Mutex
	prompt      int64
	completion  int64
	calls       int64
	inputPrice  float64
	outputPrice float64
}

// NewUsageTracker creates a tracker priced per million tokens.
//
// Non-positive prices fall back to the defaults.
func NewUsageTracker(inputPricePerMillion, outputPricePerMillion float64) *UsageTracker {
	if inputPricePerMillion <= 0 {
		inputPricePerMillion = DefaultInputPricePerMillion
	}
	if outputPricePerMillion <= 0 {
		outputPricePerMillion = DefaultOutputPricePerMillion
	}
	return &UsageTracker{inputPrice: inputPricePerMillion, outputPrice: outputPricePerMillion}
}

// Add records one call's token counts. A nil tracker is a no-op.
func (u *UsageTracker) Add(promptTokens, completionTokens int) {
	if u == nil {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.prompt += int64(promptTokens)
	u.completion += int64(completionTokens)
	u.calls++
}

// Snapshot returns the accumulated usage and its estimated cost.
func (u *UsageTracker) Snapshot() Usage {
	if u == nil {
		return Usage{}
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	cost := float64(u.prompt)/1_000_000*u.inputPrice + float64(u.completion)/1_000_000*u.outputPrice
	return Usage{
		PromptTokens:     u.prompt,
		CompletionTokens: u.completion,
		TotalTokens:      u.prompt + u.completion,
		Calls:            u.calls,
		EstimatedCostUSD: cost,
	}
}

// Reset zeroes the counters.
func (u *UsageTracker) Reset() {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.prompt, u.completion, u.calls = 0, 0, 0
	u.mu.Unlock()
}
