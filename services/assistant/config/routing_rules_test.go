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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRoutingRules_Embedded(t *testing.T) {
	ResetRoutingRules()
	t.Cleanup(ResetRoutingRules)

	rules, err := GetRoutingRules(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rules)

	order := make([]string, 0, len(rules.Intents))
	for _, r := range rules.Intents {
		order = append(order, r.Intent)
	}
	assert.Equal(t, []string{"COMPARISON", "SEQUENCING", "DETAILS", "DISCOVERY", "DIAGNOSTIC"}, order)
	assert.Equal(t, 1.0, rules.Intents[0].ConfidenceTwoNames)
	assert.True(t, rules.Intents[4].MatchSymptoms)
	assert.Less(t, rules.LowSignal.InheritCap, 1.0)
	assert.Equal(t, 6, rules.Followup.MaxWords)
	assert.Equal(t, 30, rules.Followup.MaxChars)
	assert.Contains(t, rules.Followup.Indicators, "what else")
	assert.Contains(t, rules.Followup.SpecificMarkers, "compare")

	again, err := GetRoutingRules(context.Background())
	require.NoError(t, err)
	assert.Same(t, rules, again, "rules are cached")
}

func TestGetRoutingRules_NilContext(t *testing.T) {
	//nolint:staticcheck // exercising the nil guard
	_, err := GetRoutingRules(nil)
	assert.Error(t, err)
}

func TestLoadRoutingRules_Defaults(t *testing.T) {
	rules, err := LoadRoutingRules(context.Background(), []byte(`
intents:
  - intent: DETAILS
    requires: name
    confidence: 0.9
    cues: ["explain"]
`))
	require.NoError(t, err)
	assert.Equal(t, DefaultStrongHitThreshold, rules.StrongHitThreshold)
	assert.Equal(t, DefaultLowSignalMaxWords, rules.LowSignal.MaxWords)
	assert.Equal(t, DefaultFollowupMaxChars, rules.Followup.MaxChars)
	assert.Equal(t, 0.9, rules.Intents[0].ConfidenceTwoNames)
}

func TestLoadRoutingRules_Invalid(t *testing.T) {
	tests := map[string]string{
		"empty":           ``,
		"bad yaml":        `intents: [`,
		"no intents":      `intents: []`,
		"unknown intent":  "intents:\n  - intent: CHITCHAT\n    confidence: 0.5\n    cues: [hi]\n",
		"duplicate":       "intents:\n  - intent: DETAILS\n    confidence: 0.5\n    cues: [a]\n  - intent: DETAILS\n    confidence: 0.5\n    cues: [b]\n",
		"bad requirement": "intents:\n  - intent: DETAILS\n    requires: vibes\n    confidence: 0.5\n    cues: [a]\n",
		"no cues":         "intents:\n  - intent: DETAILS\n    confidence: 0.5\n",
		"confidence > 1":  "intents:\n  - intent: DETAILS\n    confidence: 1.5\n    cues: [a]\n",
		"inherit at 1":    "intents:\n  - intent: DETAILS\n    confidence: 0.5\n    cues: [a]\nlow_signal:\n  inherit_cap: 1.0\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadRoutingRules(context.Background(), []byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadRoutingRulesFile(t *testing.T) {
	ResetRoutingRules()
	t.Cleanup(ResetRoutingRules)

	embedded, err := LoadRoutingRulesFile(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, embedded.Intents, 5)

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("intents:\n  - intent: DISCOVERY\n    confidence: 0.6\n    cues: [browse]\n"), 0o644))
	custom, err := LoadRoutingRulesFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, custom.Intents, 1)
	assert.Equal(t, "DISCOVERY", custom.Intents[0].Intent)

	_, err = LoadRoutingRulesFile(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
