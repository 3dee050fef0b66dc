// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routing

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/AleutianAI/FrameworkAssistant/services/assistant/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("assistant.routing")

var classificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "assistant",
		Subsystem: "routing",
		Name:      "classifications_total",
		Help:      "Intent classifications by intent and deciding rule.",
	},
	[]string{"intent", "rule"},
)

// Rule labels reported in Classification.Rule for decisions not made by an
// intent rule.
const (
	RuleInherited = "inherited"
	RuleUnknown   = "low_signal"
	RuleDefault   = "default"
)

// Evidence carries retrieval signals the classifier may consult.
type Evidence struct {
	// TopSimilarity is the best search score for the query, or 0 when no
	// search ran.
	TopSimilarity float64
}

// Classification is the classifier's decision for one query.
type Classification struct {
	Intent     Intent
	Confidence float64

	// Rule is the intent rule, or one of the Rule* labels, that decided.
	Rule string

	// Cue is the phrase that fired the rule, if any.
	Cue string

	// Inherited is true when the intent was carried over from the previous
	// assistant turn.
	Inherited bool

	// Names are the known framework names found in the query.
	Names []string
}

type compiledRule struct {
	rule config.IntentRule
	cues []compiledPattern
}

// Classifier maps a query and its conversation history to an intent.
//
// Description:
//
//	Rules are evaluated in priority order (COMPARISON, SEQUENCING, DETAILS,
//	DISCOVERY, DIAGNOSTIC as shipped). A rule fires when one of its cues
//	matches and its requirement holds. When nothing fires and the query
//	is low-signal (at most LowSignal.MaxWords words, or it contains a
//	follow-up indicator), the previous assistant turn's intent is reused
//	at a discounted confidence, or UNKNOWN is returned if there is nothing
//	usable to inherit. Everything else defaults to DIAGNOSTIC.
//
//	The classifier never maps UNKNOWN to DIAGNOSTIC; that is the router's
//	decision.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type Classifier struct {
	rules      *config.RoutingRules
	compiled   []compiledRule
	symptoms   []compiledPattern
	indicators []compiledPattern
	names      *NameExtractor
	logger     *slog.Logger
}

// NewClassifier compiles rules. names may be nil, in which case no rule
// that requires a framework name can fire.
func NewClassifier(rules *config.RoutingRules, names *NameExtractor, logger *slog.Logger) (*Classifier, error) {
	if rules == nil {
		return nil, fmt.Errorf("routing: classifier rules must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if names == nil {
		names = NewNameExtractor(nil)
	}
	c := &Classifier{
		rules:      rules,
		symptoms:   compilePatterns(rules.SymptomMarkers, logger),
		indicators: compilePatterns(rules.Followup.Indicators, logger),
		names:      names,
		logger:     logger,
	}
	for _, r := range rules.Intents {
		c.compiled = append(c.compiled, compiledRule{rule: r, cues: compilePatterns(r.Cues, logger)})
	}
	return c, nil
}

// Names returns the extractor the classifier uses.
func (c *Classifier) Names() *NameExtractor { return c.names }

// Classify decides the intent of query.
//
// Inputs:
//   - ctx: Context for tracing.
//   - query: The (possibly enhanced) user message.
//   - history: Turns before this query, oldest first.
//   - ev: Retrieval evidence for the SEQUENCING strong-hit requirement.
//
// Outputs:
//   - Classification: Always populated; confidence is in [0, 1].
func (c *Classifier) Classify(ctx context.Context, query string, history []Turn, ev Evidence) Classification {
	_, span := tracer.Start(ctx, "routing.Classifier.Classify")
	defer span.End()

	lower := strings.ToLower(strings.TrimSpace(query))
	padded := pad(normalizeText(query))
	names := c.names.Extract(query)
	_, hasSymptom := firstMatch(lower, padded, c.symptoms)

	result, ok := c.applyRules(lower, padded, names, hasSymptom, ev)
	if !ok {
		result = c.fallback(lower, padded, history)
	}
	result.Names = names

	span.SetAttributes(
		attribute.String("routing.intent", string(result.Intent)),
		attribute.String("routing.rule", result.Rule),
		attribute.Float64("routing.confidence", result.Confidence),
		attribute.Int("routing.names", len(names)),
	)
	classificationsTotal.WithLabelValues(string(result.Intent), result.Rule).Inc()
	c.logger.Debug("routing: classified query",
		slog.String("query", truncateForLog(query, 80)),
		slog.String("intent", string(result.Intent)),
		slog.Float64("confidence", result.Confidence),
		slog.String("rule", result.Rule),
		slog.String("cue", result.Cue),
		slog.Bool("inherited", result.Inherited),
	)
	return result
}

func (c *Classifier) applyRules(lower, padded string, names []string, hasSymptom bool, ev Evidence) (Classification, bool) {
	for _, cr := range c.compiled {
		var cue string
		var matched bool
		if cr.rule.MatchSymptoms {
			cue, matched = firstMatch(lower, padded, c.symptoms)
		}
		if !matched {
			cue, matched = firstMatch(lower, padded, cr.cues)
		}
		if !matched {
			continue
		}

		switch cr.rule.Requires {
		case config.RequireName:
			if len(names) == 0 {
				continue
			}
		case config.RequireNameOrStrongHit:
			if len(names) == 0 && ev.TopSimilarity < c.rules.StrongHitThreshold {
				continue
			}
		case config.RequireNoSymptoms:
			if hasSymptom {
				continue
			}
		}

		confidence := cr.rule.Confidence
		if len(names) >= 2 {
			confidence = cr.rule.ConfidenceTwoNames
		}
		return Classification{
			Intent:     Intent(cr.rule.Intent),
			Confidence: clamp01(confidence),
			Rule:       strings.ToLower(cr.rule.Intent),
			Cue:        cue,
		}, true
	}
	return Classification{}, false
}

// fallback handles queries no rule claimed.
func (c *Classifier) fallback(lower, padded string, history []Turn) Classification {
	ls := c.rules.LowSignal
	_, indicator := firstMatch(lower, padded, c.indicators)
	lowSignal := indicator || len(strings.Fields(lower)) <= ls.MaxWords
	if !lowSignal {
		return Classification{
			Intent:     IntentDiagnostic,
			Confidence: c.rules.DefaultConfidence,
			Rule:       RuleDefault,
		}
	}

	if prev, ok := previousAssistantTurn(history); ok && prev.Intent != IntentUnknown && prev.Intent.Valid() {
		base := prev.Confidence
		if base <= 0 {
			base = c.rules.DefaultConfidence
		}
		return Classification{
			Intent:     prev.Intent,
			Confidence: math.Min(base*ls.InheritDiscount, ls.InheritCap),
			Rule:       RuleInherited,
			Inherited:  true,
		}
	}
	return Classification{
		Intent:     IntentUnknown,
		Confidence: ls.UnknownConfidence,
		Rule:       RuleUnknown,
	}
}

// previousAssistantTurn returns the most recent assistant turn that carries
// an intent.
func previousAssistantTurn(history []Turn) (Turn, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleAssistant && history[i].Intent != "" {
			return history[i], true
		}
	}
	return Turn{}, false
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
