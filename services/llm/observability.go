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
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// tracerName is the shared OTel tracer name for all provider adapters.
const tracerName = "assistant.llm"

// Package-level Prometheus metrics for provider operations.
// Auto-registered via promauto so no explicit registry wiring is needed.
var (
	// providerCallDuration measures the duration of provider API calls.
	//
	// Labels:
	//   - provider: "openai", "ollama", "static"
	//   - op: "chat" or "embed"
	//   - status: "success" or "error"
	providerCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "assistant",
			Subsystem: "provider",
			Name:      "call_duration_seconds",
			Help:      "Duration of provider API calls in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "op", "status"},
	)

	providerErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "provider",
			Name:      "errors_total",
			Help:      "Total provider errors by type.",
		},
		[]string{"provider", "op", "error_type"},
	)

	retryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "provider",
			Name:      "retry_attempts_total",
			Help:      "Retry attempts after a failed provider call.",
		},
		[]string{"op"},
	)

	tokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "provider",
			Name:      "tokens_total",
			Help:      "Tokens consumed, by direction.",
		},
		[]string{"provider", "direction"},
	)
)

// classifyError maps an error to a label-safe error type string.
//
// Description:
//
//	Inspects the error message to categorize it into one of the predefined
//	error types. Used for Prometheus labels to avoid high cardinality.
//
// Outputs:
//
//	string - One of: "timeout", "auth", "rate_limit", "server",
//	         "dimension", "unknown". Returns empty string for nil error.
//
// Thread Safety: Safe for concurrent use.
func classifyError(err error) string {
	if err == nil {
		return ""
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "context canceled") ||
		strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "status 401") ||
		strings.Contains(msg, "status 403") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "api key"):
		return "auth"
	case strings.Contains(msg, "status 429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests"):
		return "rate_limit"
	case strings.Contains(msg, "status 500") ||
		strings.Contains(msg, "status 502") ||
		strings.Contains(msg, "status 503") ||
		strings.Contains(msg, "server error"):
		return "server"
	case strings.Contains(msg, "dimension"):
		return "dimension"
	default:
		return "unknown"
	}
}

// recordCall records Prometheus metrics for a completed provider call.
//
// Thread Safety: Safe for concurrent use.
func recordCall(provider, op string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		providerErrorsTotal.WithLabelValues(provider, op, classifyError(err)).Inc()
	}
	providerCallDuration.WithLabelValues(provider, op, status).Observe(duration.Seconds())
}
