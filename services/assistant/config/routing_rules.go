// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Default Routing Rules
// =============================================================================

//go:embed routing_rules.yaml
var defaultRoutingRulesYAML []byte

// MaxYAMLFileSize bounds rule and config files read from disk.
const MaxYAMLFileSize = 1 << 20

var configTracer = otel.Tracer("assistant.config")

// =============================================================================
// Routing Rule Types
// =============================================================================

// Requirement names the extra condition an intent rule needs beyond its cue.
type Requirement string

const (
	RequireNone            Requirement = "none"
	RequireName            Requirement = "name"
	RequireNameOrStrongHit Requirement = "name_or_strong_hit"
	RequireNoSymptoms      Requirement = "no_symptoms"
)

// RoutingRules holds the classifier and follow-up enhancer tables.
//
// Description:
//
//	Intent rules are ordered by priority. Thresholds are shared by the
//	classifier (low-signal inheritance, strong search hit) and the
//	follow-up enhancer.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type RoutingRules struct {
	// Intents are evaluated in order; the first satisfied rule wins.
	Intents []IntentRule `yaml:"intents"`

	// SymptomMarkers identify problem-description language.
	SymptomMarkers []string `yaml:"symptom_markers"`

	// DefaultConfidence is used when no rule fires and the query is not
	// low-signal, so it falls back to DIAGNOSTIC.
	DefaultConfidence float64 `yaml:"default_confidence"`

	// StrongHitThreshold is the top similarity that counts as a strong search hit.
	StrongHitThreshold float64 `yaml:"strong_hit_threshold"`

	LowSignal LowSignalRules `yaml:"low_signal"`
	Followup  FollowupRules  `yaml:"followup"`
}

// IntentRule maps cue phrases plus a requirement to an intent.
type IntentRule struct {
	Intent             string      `yaml:"intent"`
	Requires           Requirement `yaml:"requires"`
	Cues               []string    `yaml:"cues"`
	MatchSymptoms      bool        `yaml:"match_symptoms"`
	Confidence         float64     `yaml:"confidence"`
	ConfidenceTwoNames float64     `yaml:"confidence_two_names"`
	Reason             string      `yaml:"reason"`
}

// LowSignalRules control context inheritance for short or generic queries.
type LowSignalRules struct {
	// MaxWords is the largest word count still considered low-signal.
	MaxWords int `yaml:"max_words"`

	// InheritDiscount multiplies the previous turn's confidence.
	InheritDiscount float64 `yaml:"inherit_discount"`

	// InheritCap bounds inherited confidence; always below 1.
	InheritCap float64 `yaml:"inherit_cap"`

	// UnknownConfidence is reported with UNKNOWN.
	UnknownConfidence float64 `yaml:"unknown_confidence"`
}

// FollowupRules drive the follow-up context enhancer.
type FollowupRules struct {
	// MaxWords: queries with fewer words are short.
	MaxWords int `yaml:"max_words"`

	// MaxChars: queries with fewer characters are short.
	MaxChars int `yaml:"max_chars"`

	// MinContextChars: a history turn must be longer than this to be reused.
	MinContextChars int `yaml:"min_context_chars"`

	Indicators      []string `yaml:"indicators"`
	SpecificMarkers []string `yaml:"specific_markers"`
}

// =============================================================================
// Defaults
// =============================================================================

const (
	DefaultStrongHitThreshold = 0.5
	DefaultLowSignalMaxWords  = 4
	DefaultInheritDiscount    = 0.7
	DefaultInheritCap         = 0.7
	DefaultUnknownConfidence  = 0.2
	DefaultFallbackConfidence = 0.5
	DefaultFollowupMaxWords   = 6
	DefaultFollowupMaxChars   = 30
	DefaultMinContextChars    = 30
)

// KnownIntents is the closed set of intents a rule may name.
var KnownIntents = map[string]bool{
	"DIAGNOSTIC": true,
	"DISCOVERY":  true,
	"DETAILS":    true,
	"SEQUENCING": true,
	"COMPARISON": true,
}

// =============================================================================
// Singleton Routing Rules
// =============================================================================

var (
	routingRulesMu      sync.RWMutex
	routingRulesOnce    sync.Once
	cachedRoutingRules  *RoutingRules
	routingRulesLoadErr error
)

// GetRoutingRules returns the cached embedded routing rules.
//
// Description:
//
//	Loads the embedded rules on first call and caches them for subsequent
//	calls. Uses sync.Once for thread-safe initialization.
//
// Outputs:
//
//	*RoutingRules - The loaded rules. Never nil on success.
//	error - Non-nil if loading or validation failed.
//
// Thread Safety: Safe for concurrent use via sync.Once.
func GetRoutingRules(ctx context.Context) (*RoutingRules, error) {
	if ctx == nil {
		return nil, fmt.Errorf("GetRoutingRules: ctx must not be nil")
	}

	routingRulesMu.RLock()
	if cachedRoutingRules != nil || routingRulesLoadErr != nil {
		rules, err := cachedRoutingRules, routingRulesLoadErr
		routingRulesMu.RUnlock()
		return rules, err
	}
	routingRulesMu.RUnlock()

	routingRulesMu.Lock()
	defer routingRulesMu.Unlock()

	routingRulesOnce.Do(func() {
		cachedRoutingRules, routingRulesLoadErr = LoadRoutingRules(ctx, defaultRoutingRulesYAML)
	})
	return cachedRoutingRules, routingRulesLoadErr
}

// ResetRoutingRules clears the cached rules so tests can reload them.
//
// Thread Safety: Safe for concurrent use.
func ResetRoutingRules() {
	routingRulesMu.Lock()
	defer routingRulesMu.Unlock()
	cachedRoutingRules = nil
	routingRulesLoadErr = nil
	routingRulesOnce = sync.Once{}
}

// LoadRoutingRulesFile reads rules from path, or returns the embedded
// defaults when path is empty.
func LoadRoutingRulesFile(ctx context.Context, path string) (*RoutingRules, error) {
	if path == "" {
		return GetRoutingRules(ctx)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("LoadRoutingRulesFile: %w", err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("LoadRoutingRulesFile: %s exceeds maximum size (%d > %d)", path, info.Size(), MaxYAMLFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadRoutingRulesFile: %w", err)
	}
	return LoadRoutingRules(ctx, data)
}

// LoadRoutingRules parses and validates routing rules from YAML bytes.
//
// Description:
//
//	Parses the YAML, applies defaults for missing thresholds, and
//	validates every intent rule.
//
// Inputs:
//
//	ctx - Context for tracing.
//	data - Raw YAML bytes to parse.
//
// Outputs:
//
//	*RoutingRules - The validated rules.
//	error - Non-nil if parsing or validation fails.
func LoadRoutingRules(ctx context.Context, data []byte) (*RoutingRules, error) {
	_, span := configTracer.Start(ctx, "config.LoadRoutingRules")
	defer span.End()

	if len(data) == 0 {
		return nil, fmt.Errorf("LoadRoutingRules: empty YAML data")
	}
	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("LoadRoutingRules: YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var rules RoutingRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("LoadRoutingRules: parsing YAML: %w", err)
	}
	applyRoutingDefaults(&rules)

	if err := validateRoutingRules(&rules); err != nil {
		return nil, fmt.Errorf("LoadRoutingRules: validation: %w", err)
	}

	span.SetAttributes(
		attribute.Int("intent_rules", len(rules.Intents)),
		attribute.Int("symptom_markers", len(rules.SymptomMarkers)),
		attribute.Int("followup_indicators", len(rules.Followup.Indicators)),
	)
	slog.Debug("routing rules loaded",
		slog.Int("intent_rules", len(rules.Intents)),
		slog.Int("symptom_markers", len(rules.SymptomMarkers)),
		slog.Int("followup_indicators", len(rules.Followup.Indicators)),
	)
	return &rules, nil
}

func applyRoutingDefaults(r *RoutingRules) {
	if r.DefaultConfidence <= 0 {
		r.DefaultConfidence = DefaultFallbackConfidence
	}
	if r.StrongHitThreshold <= 0 {
		r.StrongHitThreshold = DefaultStrongHitThreshold
	}
	if r.LowSignal.MaxWords <= 0 {
		r.LowSignal.MaxWords = DefaultLowSignalMaxWords
	}
	if r.LowSignal.InheritDiscount <= 0 {
		r.LowSignal.InheritDiscount = DefaultInheritDiscount
	}
	if r.LowSignal.InheritCap <= 0 {
		r.LowSignal.InheritCap = DefaultInheritCap
	}
	if r.LowSignal.UnknownConfidence <= 0 {
		r.LowSignal.UnknownConfidence = DefaultUnknownConfidence
	}
	if r.Followup.MaxWords <= 0 {
		r.Followup.MaxWords = DefaultFollowupMaxWords
	}
	if r.Followup.MaxChars <= 0 {
		r.Followup.MaxChars = DefaultFollowupMaxChars
	}
	if r.Followup.MinContextChars <= 0 {
		r.Followup.MinContextChars = DefaultMinContextChars
	}
	for i := range r.Intents {
		if r.Intents[i].Requires == "" {
			r.Intents[i].Requires = RequireNone
		}
		if r.Intents[i].ConfidenceTwoNames <= 0 {
			r.Intents[i].ConfidenceTwoNames = r.Intents[i].Confidence
		}
	}
}

// validateRoutingRules checks all rules for consistency.
func validateRoutingRules(r *RoutingRules) error {
	if len(r.Intents) == 0 {
		return fmt.Errorf("intents must not be empty")
	}
	seen := map[string]bool{}
	for i, rule := range r.Intents {
		if !KnownIntents[rule.Intent] {
			return fmt.Errorf("intent[%d]: unknown intent %q", i, rule.Intent)
		}
		if seen[rule.Intent] {
			return fmt.Errorf("intent[%d]: duplicate rule for %s", i, rule.Intent)
		}
		seen[rule.Intent] = true
		switch rule.Requires {
		case RequireNone, RequireName, RequireNameOrStrongHit, RequireNoSymptoms:
		default:
			return fmt.Errorf("intent[%d] (%s): unknown requirement %q", i, rule.Intent, rule.Requires)
		}
		if len(rule.Cues) == 0 && !rule.MatchSymptoms {
			return fmt.Errorf("intent[%d] (%s): cues must not be empty unless match_symptoms is set", i, rule.Intent)
		}
		if rule.Confidence <= 0 || rule.Confidence > 1 || rule.ConfidenceTwoNames > 1 {
			return fmt.Errorf("intent[%d] (%s): confidence must be in (0, 1]", i, rule.Intent)
		}
	}
	if r.LowSignal.InheritCap >= 1 || r.LowSignal.InheritDiscount >= 1 {
		return fmt.Errorf("low_signal: inherited confidence must stay below 1")
	}
	if r.DefaultConfidence > 1 || r.LowSignal.UnknownConfidence > 1 {
		return fmt.Errorf("confidences must be at most 1")
	}
	return nil
}
