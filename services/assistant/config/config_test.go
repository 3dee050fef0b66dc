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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault_IsValidWithKey(t *testing.T) {
	cfg := Default()
	cfg.OpenAI.APIKey = "sk-test"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
}

func TestValidate_OpenAIRequiresKey(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")

	cfg.Provider = ProviderStatic
	assert.NoError(t, cfg.Validate())
}

func TestValidate_StructTags(t *testing.T) {
	cfg := Default()
	cfg.Provider = "anthropic"
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Provider = ProviderStatic
	cfg.Session.Store = SessionStoreRedis
	err := cfg.Validate()
	require.Error(t, err, "redis store needs an address")
	assert.Contains(t, err.Error(), "RedisAddr")

	cfg.Session.RedisAddr = "localhost:6379"
	assert.NoError(t, cfg.Validate())

	cfg.TopK = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_TokenBudgets(t *testing.T) {
	cfg := Default()
	cfg.Provider = ProviderStatic
	cfg.Generation.MaxTokensShort = 2000
	assert.Error(t, cfg.Validate())
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := applyEnv(&cfg, envMap(map[string]string{
		"DATABASE_PATH":        "data/frameworks.csv",
		"OPENAI_API_KEY":       "sk-env",
		"OPENAI_LLM_MODEL":     "gpt-4o",
		"EMBEDDING_DIMENSIONS": "512",
		"LLM_TEMPERATURE":      "0.7",
		"LLM_MAX_TOKENS_LONG":  "1200",
		"SESSION_TTL":          "30m",
		"FEEDBACK_LOG_FILE":    "",
	}))
	require.NoError(t, err)
	assert.Equal(t, "data/frameworks.csv", cfg.CatalogPath)
	assert.Equal(t, "sk-env", cfg.OpenAI.APIKey)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.Model)
	assert.Equal(t, 512, cfg.Embedding.Dimensions)
	assert.InDelta(t, 0.7, cfg.Generation.Temperature, 1e-6)
	assert.Equal(t, 1200, cfg.Generation.MaxTokensLong)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
	assert.Equal(t, filepath.Join("logs", "feedback.jsonl"), cfg.FeedbackLogPath, "empty values are ignored")
}

func TestApplyEnv_BadNumbers(t *testing.T) {
	cfg := Default()
	err := applyEnv(&cfg, envMap(map[string]string{
		"EMBEDDING_DIMENSIONS": "many",
		"SESSION_TTL":          "soon",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EMBEDDING_DIMENSIONS")
	assert.Contains(t, err.Error(), "SESSION_TTL")
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assistant.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
catalog_path: from-file.db
provider: ollama
top_k: 7
ollama:
  model: mistral
retry:
  max_attempts: 4
  base_delay: 250ms
`), 0o644))
	t.Setenv("OLLAMA_MODEL", "llama3.1")
	t.Setenv("DATABASE_PATH", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file.db", cfg.CatalogPath)
	assert.Equal(t, ProviderOllama, cfg.Provider)
	assert.Equal(t, 7, cfg.TopK)
	assert.Equal(t, "llama3.1", cfg.Ollama.Model, "environment wins over file")
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadWith_OverrideBeforeValidate(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := Load("")
	require.Error(t, err, "openai without a key is rejected")

	cfg, err := LoadWith("", func(c *Config) {
		c.Provider = ProviderStatic
		c.CatalogPath = "override.db"
	})
	require.NoError(t, err)
	assert.Equal(t, ProviderStatic, cfg.Provider)
	assert.Equal(t, "override.db", cfg.CatalogPath)
}
