package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/ziadkadry99/crm-manual-rag/internal/chunker"
	"github.com/ziadkadry99/crm-manual-rag/internal/vectordb"
)

// EnvPrefix starts every environment override. A double underscore
// separates nesting levels: CRMRAG_LLM__MODEL sets llm.model.
const EnvPrefix = "CRMRAG_"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (CRMRAG_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// envKey maps CRMRAG_VECTOR_STORE__QDRANT_URL to vector_store.qdrant_url.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validProviders = map[ProviderType]bool{
	ProviderOpenAI:     true,
	ProviderOpenRouter: true,
	ProviderOllama:     true,
}

var validBackends = map[string]bool{
	BackendAuto:   true,
	BackendQdrant: true,
	BackendMemory: true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if !validProviders[c.Embedding.Provider] {
		return fmt.Errorf("invalid embedding.provider %q: must be one of openai, openrouter, ollama", c.Embedding.Provider)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if c.Embedding.Provider == ProviderOllama && c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions is required for ollama models")
	}
	if c.Embedding.BatchSize < 0 || c.Embedding.BatchDelayMS < 0 {
		return fmt.Errorf("embedding batch settings must be non-negative")
	}
	for lang, le := range c.Embedding.Languages {
		if !validProviders[le.Provider] || le.Model == "" {
			return fmt.Errorf("invalid embedding.languages.%s: provider and model are required", lang)
		}
	}

	if !validProviders[c.LLM.Provider] {
		return fmt.Errorf("invalid llm.provider %q: must be one of openai, openrouter, ollama", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2")
	}
	if c.LLM.MaxTokens < 0 || c.LLM.RequestsPerMinute < 0 {
		return fmt.Errorf("llm limits must be non-negative")
	}

	if _, err := chunker.ParseStrategy(c.Chunking.Strategy); err != nil {
		return fmt.Errorf("chunking.strategy: %w", err)
	}
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size must be positive")
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.chunk_overlap must be in [0, chunk_size)")
	}
	if c.Chunking.MinChunkSize < 0 {
		return fmt.Errorf("chunking.min_chunk_size must be non-negative")
	}

	if !validBackends[c.VectorStore.Backend] {
		return fmt.Errorf("invalid vector_store.backend %q: must be one of auto, qdrant, memory", c.VectorStore.Backend)
	}
	if c.VectorStore.Backend == BackendQdrant && c.VectorStore.QdrantURL == "" {
		return fmt.Errorf("vector_store.qdrant_url is required for the qdrant backend")
	}
	if _, err := vectordb.ParseDistance(c.VectorStore.Distance); err != nil {
		return fmt.Errorf("vector_store.distance: %w", err)
	}

	if c.Retrieval.PerCollectionTopK <= 0 || c.Retrieval.FinalTopK <= 0 {
		return fmt.Errorf("retrieval top_k values must be positive")
	}
	if c.Retrieval.ScoreThreshold < 0 || c.Retrieval.ScoreThreshold > 1 {
		return fmt.Errorf("retrieval.score_threshold must be between 0 and 1")
	}

	if c.Paths.DataDir == "" {
		return fmt.Errorf("paths.data_dir is required")
	}
	if c.Paths.OutputDir == "" {
		return fmt.Errorf("paths.output_dir is required")
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}

// APIKeyEnvVar returns the conventional environment variable name for
// the API key of the given provider.
func APIKeyEnvVar(provider ProviderType) string {
	switch provider {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderOpenRouter:
		return "OPENROUTER_API_KEY"
	default:
		return ""
	}
}

// ResolveAPIKey returns the configured key or the provider's environment
// variable.
func ResolveAPIKey(provider ProviderType, configured string) string {
	if configured != "" {
		return configured
	}
	if v := APIKeyEnvVar(provider); v != "" {
		return os.Getenv(v)
	}
	return ""
}

// RequireAPIKeys fails when a hosted provider in use has no key.
func (c *Config) RequireAPIKeys(needLLM bool) error {
	check := func(section string, p ProviderType, key string) error {
		if v := APIKeyEnvVar(p); v != "" && ResolveAPIKey(p, key) == "" {
			return fmt.Errorf("%s.provider %s needs an API key: set %s or %s.api_key", section, p, v, section)
		}
		return nil
	}
	if err := check("embedding", c.Embedding.Provider, c.Embedding.APIKey); err != nil {
		return err
	}
	if needLLM {
		return check("llm", c.LLM.Provider, c.LLM.APIKey)
	}
	return nil
}
