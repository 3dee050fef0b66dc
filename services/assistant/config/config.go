// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the assistant's application settings and its
// routing rule tables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/FrameworkAssistant/services/llm"
)

// Provider names accepted by Config.Provider.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderStatic = "static"
)

// Session store names accepted by Config.Session.Store.
const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

// Config is the full application configuration.
//
// Description:
//
//	Values come from, in increasing precedence: Default(), an optional
//	YAML file, then environment variables. Validate runs after all
//	sources are merged.
type Config struct {
	CatalogPath     string `yaml:"catalog_path" validate:"required"`
	RoutingRules    string `yaml:"routing_rules"`
	Provider        string `yaml:"provider" validate:"oneof=openai ollama static"`
	VectorCacheDir  string `yaml:"vector_cache_dir"`
	FeedbackLogPath string `yaml:"feedback_log_path"`
	TopK            int    `yaml:"top_k" validate:"gte=1,lte=50"`
	HTTPAddr        string `yaml:"http_addr" validate:"required"`

	OpenAI     OpenAIConfig     `yaml:"openai"`
	Ollama     OllamaConfig     `yaml:"ollama"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Session    SessionConfig    `yaml:"session"`
	Retry      llm.RetryPolicy  `yaml:"retry"`
}

// OpenAIConfig configures the OpenAI backend.
type OpenAIConfig struct {
	APIKey            string  `yaml:"-"`
	Model             string  `yaml:"model"`
	EmbeddingModel    string  `yaml:"embedding_model"`
	BaseURL           string  `yaml:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
}

// OllamaConfig configures the Ollama backend.
type OllamaConfig struct {
	BaseURL           string  `yaml:"base_url"`
	Model             string  `yaml:"model"`
	EmbeddingModel    string  `yaml:"embedding_model"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
}

// EmbeddingConfig fixes the vector dimensionality and batching.
type EmbeddingConfig struct {
	Dimensions  int `yaml:"dimensions" validate:"gte=1"`
	BatchSize   int `yaml:"batch_size" validate:"gte=1"`
	Concurrency int `yaml:"concurrency" validate:"gte=1,lte=32"`
}

// GenerationConfig holds narrative generation parameters.
type GenerationConfig struct {
	Temperature    float32 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokensShort int     `yaml:"max_tokens_short" validate:"gte=1"`
	MaxTokensLong  int     `yaml:"max_tokens_long" validate:"gte=1"`
}

// SessionConfig selects and configures the session store.
type SessionConfig struct {
	Store     string        `yaml:"store" validate:"oneof=memory redis"`
	TTL       time.Duration `yaml:"ttl"`
	RedisAddr string        `yaml:"redis_addr" validate:"required_if=Store redis"`
	RedisDB   int           `yaml:"redis_db" validate:"gte=0"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	home, err := os.UserHomeDir()
	cacheDir := ""
	if err == nil {
		cacheDir = filepath.Join(home, ".aleutian", "cache", "framework-vectors")
	}
	return Config{
		CatalogPath:     "frameworks.db",
		Provider:        ProviderOpenAI,
		VectorCacheDir:  cacheDir,
		FeedbackLogPath: filepath.Join("logs", "feedback.jsonl"),
		TopK:            5,
		HTTPAddr:        ":8090",
		OpenAI: OpenAIConfig{
			Model:          "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
		},
		Ollama: OllamaConfig{
			BaseURL:        "http://localhost:11434",
			Model:          "llama3.2",
			EmbeddingModel: "nomic-embed-text",
		},
		Embedding:  EmbeddingConfig{Dimensions: 1536, BatchSize: 64, Concurrency: 4},
		Generation: GenerationConfig{Temperature: 0.3, MaxTokensShort: 500, MaxTokensLong: 1000},
		Session:    SessionConfig{Store: SessionStoreMemory, TTL: 2 * time.Hour},
		Retry:      llm.DefaultRetryPolicy(),
	}
}

// Load builds a Config from defaults, the YAML file at path (if non-empty)
// and the environment, then validates it.
//
// # Outputs
//
//   - Config: The merged configuration.
//   - error: Non-nil when the file is unreadable or validation fails.
func Load(path string) (Config, error) {
	return LoadWith(path, nil)
}

// LoadWith is Load with a final override step, applied after the
// environment and before validation. Command-line flags use it.
func LoadWith(path string, override func(*Config)) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if len(data) > MaxYAMLFileSize {
			return Config{}, fmt.Errorf("config: %s exceeds maximum size", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if override != nil {
		override(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct tags and cross-field rules.
func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config: invalid: %w", err)
	}
	if c.Provider == ProviderOpenAI && c.OpenAI.APIKey == "" {
		return fmt.Errorf("config: OPENAI_API_KEY is required for provider %q", c.Provider)
	}
	if c.Generation.MaxTokensShort > c.Generation.MaxTokensLong {
		return fmt.Errorf("config: max_tokens_short (%d) exceeds max_tokens_long (%d)",
			c.Generation.MaxTokensShort, c.Generation.MaxTokensLong)
	}
	return nil
}

// applyEnv overlays environment variables on cfg.
//
// Variable names follow the original deployment (DATABASE_PATH,
// OPENAI_LLM_MODEL, LLM_TEMPERATURE, ...).
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("DATABASE_PATH", &cfg.CatalogPath)
	str("ROUTING_RULES_FILE", &cfg.RoutingRules)
	str("LLM_PROVIDER", &cfg.Provider)
	str("VECTOR_CACHE_DIR", &cfg.VectorCacheDir)
	str("FEEDBACK_LOG_FILE", &cfg.FeedbackLogPath)
	str("HTTP_ADDR", &cfg.HTTPAddr)
	num("SEARCH_TOP_K", &cfg.TopK)

	str("OPENAI_API_KEY", &cfg.OpenAI.APIKey)
	str("OPENAI_LLM_MODEL", &cfg.OpenAI.Model)
	str("OPENAI_EMBEDDING_MODEL", &cfg.OpenAI.EmbeddingModel)
	str("OPENAI_BASE_URL", &cfg.OpenAI.BaseURL)

	str("OLLAMA_BASE_URL", &cfg.Ollama.BaseURL)
	str("OLLAMA_MODEL", &cfg.Ollama.Model)
	str("EMBEDDING_MODEL", &cfg.Ollama.EmbeddingModel)

	num("EMBEDDING_DIMENSIONS", &cfg.Embedding.Dimensions)
	num("EMBEDDING_BATCH_SIZE", &cfg.Embedding.BatchSize)

	temp := float64(cfg.Generation.Temperature)
	float("LLM_TEMPERATURE", &temp)
	cfg.Generation.Temperature = float32(temp)
	num("LLM_MAX_TOKENS_SHORT", &cfg.Generation.MaxTokensShort)
	num("LLM_MAX_TOKENS_LONG", &cfg.Generation.MaxTokensLong)

	str("SESSION_STORE", &cfg.Session.Store)
	duration("SESSION_TTL", &cfg.Session.TTL)
	str("REDIS_ADDR", &cfg.Session.RedisAddr)
	num("REDIS_DB", &cfg.Session.RedisDB)

	num("LLM_MAX_RETRIES", &cfg.Retry.MaxAttempts)
	duration("LLM_RETRY_BASE_DELAY", &cfg.Retry.BaseDelay)

	if len(errs) > 0 {
		return fmt.Errorf("config: environment: %w", errors.Join(errs...))
	}
	return nil
}
