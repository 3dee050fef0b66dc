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
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds how transient provider failures are retried.
//
// Delays grow as BaseDelay * 2^attempt with no jitter, capped at MaxDelay.
type RetryPolicy struct {
	MaxAttempts int           `yaml:"max_attempts" validate:"gte=1,lte=10"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// DefaultRetryPolicy returns 3 attempts starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Retry runs fn until it succeeds, returns a permanent error, or the policy
// is exhausted.
//
// # Description
//
// Exhaustion returns an error wrapping both ErrRetryExhausted and the last
// failure. Permanent errors are returned unwrapped after the first attempt.
// Context cancellation stops retrying immediately.
//
// # Inputs
//
//   - ctx: Cancels waiting between attempts.
//   - policy: Attempt count and delays. Zero values fall back to defaults.
//   - op: Label used in logs and metrics ("chat", "embed").
//   - fn: The operation.
//
// # Thread Safety
//
// Safe for concurrent use; no shared state.
func Retry[T any](ctx context.Context, policy RetryPolicy, op string, fn func(context.Context) (T, error)) (T, error) {
	def := DefaultRetryPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = def.BaseDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = def.MaxDelay
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = policy.MaxDelay

	attempts := 0
	permanent := false
	result, err := backoff.Retry(ctx, func() (T, error) {
		attempts++
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		var pe *permanentError
		if errors.As(err, &pe) {
			permanent = true
			return v, backoff.Permanent(pe.err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			permanent = true
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(policy.MaxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			retryAttemptsTotal.WithLabelValues(op).Inc()
			slog.Warn("provider call failed, retrying",
				slog.String("op", op),
				slog.Int("attempt", attempts),
				slog.Duration("wait", wait),
				slog.String("error", SafeLogString(err.Error())),
			)
		}),
	)
	if err == nil {
		return result, nil
	}
	if permanent {
		return result, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, fmt.Errorf("llm: %s: %w", op, ctxErr)
	}
	return result, fmt.Errorf("%w: %s after %d attempts: %w", ErrRetryExhausted, op, attempts, err)
}

// retryingProvider applies a RetryPolicy to every call of an inner Provider.
type retryingProvider struct {
	inner  Provider
	policy RetryPolicy
}

// WithRetry wraps p so Chat and EmbedBatch are retried under policy.
func WithRetry(p Provider, policy RetryPolicy) Provider {
	return &retryingProvider{inner: p, policy: policy}
}

func (r *retryingProvider) Name() string { return r.inner.Name() }

func (r *retryingProvider) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	return Retry(ctx, r.policy, "chat", func(ctx context.Context) (string, error) {
		return r.inner.Chat(ctx, messages, params)
	})
}

func (r *retryingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return Retry(ctx, r.policy, "embed", func(ctx context.Context) ([][]float32, error) {
		return r.inner.EmbedBatch(ctx, texts)
	})
}
