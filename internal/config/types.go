package config

import "github.com/ziadkadry99/crm-manual-rag/internal/vectordb"

// ProviderType identifies an embedding or chat model provider.
type ProviderType string

const (
	ProviderOpenAI     ProviderType = "openai"
	ProviderOpenRouter ProviderType = "openrouter"
	ProviderOllama     ProviderType = "ollama"
)

// Vector store backends.
const (
	BackendAuto   = vectordb.BackendAuto
	BackendQdrant = vectordb.BackendQdrant
	BackendMemory = vectordb.BackendMemory
)

// Config is the top-level crmrag configuration, corresponding to .crmrag.yml.
type Config struct {
	Embedding   EmbeddingConfig   `yaml:"embedding" koanf:"embedding"`
	LLM         LLMConfig         `yaml:"llm" koanf:"llm"`
	Chunking    ChunkingConfig    `yaml:"chunking" koanf:"chunking"`
	VectorStore VectorStoreConfig `yaml:"vector_store" koanf:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval" koanf:"retrieval"`
	Paths       PathsConfig       `yaml:"paths" koanf:"paths"`
	Include     []string          `yaml:"include" koanf:"include"`
	Exclude     []string          `yaml:"exclude" koanf:"exclude"`
	Server      ServerConfig      `yaml:"server" koanf:"server"`
}

// EmbeddingConfig selects the embedding model.
type EmbeddingConfig struct {
	Provider ProviderType `yaml:"provider" koanf:"provider"`
	Model    string       `yaml:"model" koanf:"model"`
	// Dimensions is required for ollama models; OpenAI sizes are known.
	Dimensions   int    `yaml:"dimensions,omitempty" koanf:"dimensions"`
	BaseURL      string `yaml:"base_url,omitempty" koanf:"base_url"`
	APIKey       string `yaml:"api_key,omitempty" koanf:"api_key"`
	BatchSize    int    `yaml:"batch_size" koanf:"batch_size"`
	BatchDelayMS int    `yaml:"batch_delay_ms" koanf:"batch_delay_ms"`
	CacheEnabled bool   `yaml:"cache_enabled" koanf:"cache_enabled"`
	// Languages routes texts of a language to another embedding model.
	Languages map[string]LanguageEmbedding `yaml:"languages,omitempty" koanf:"languages"`
}

// LanguageEmbedding is a per-language embedding model.
type LanguageEmbedding struct {
	Provider   ProviderType `yaml:"provider" koanf:"provider"`
	Model      string       `yaml:"model" koanf:"model"`
	Dimensions int          `yaml:"dimensions,omitempty" koanf:"dimensions"`
}

// LLMConfig selects the answer model.
type LLMConfig struct {
	Provider          ProviderType `yaml:"provider" koanf:"provider"`
	Model             string       `yaml:"model" koanf:"model"`
	BaseURL           string       `yaml:"base_url,omitempty" koanf:"base_url"`
	APIKey            string       `yaml:"api_key,omitempty" koanf:"api_key"`
	Temperature       float64      `yaml:"temperature" koanf:"temperature"`
	MaxTokens         int          `yaml:"max_tokens" koanf:"max_tokens"`
	RequestsPerMinute int          `yaml:"requests_per_minute" koanf:"requests_per_minute"`
}

// ChunkingConfig controls how manuals are split.
type ChunkingConfig struct {
	Strategy         string `yaml:"strategy" koanf:"strategy"`
	ChunkSize        int    `yaml:"chunk_size" koanf:"chunk_size"`
	ChunkOverlap     int    `yaml:"chunk_overlap" koanf:"chunk_overlap"`
	MinChunkSize     int    `yaml:"min_chunk_size" koanf:"min_chunk_size"`
	MaxChunkSize     int    `yaml:"max_chunk_size" koanf:"max_chunk_size"`
	AddContext       bool   `yaml:"add_context" koanf:"add_context"`
	SaveIntermediate bool   `yaml:"save_intermediate" koanf:"save_intermediate"`
}

// VectorStoreConfig selects the vector database.
type VectorStoreConfig struct {
	// Backend is auto, qdrant or memory.
	Backend      string `yaml:"backend" koanf:"backend"`
	QdrantURL    string `yaml:"qdrant_url" koanf:"qdrant_url"`
	QdrantAPIKey string `yaml:"qdrant_api_key,omitempty" koanf:"qdrant_api_key"`
	// DataDir persists the in-process store; empty means <paths.data_dir>/vectors.
	DataDir  string `yaml:"data_dir,omitempty" koanf:"data_dir"`
	Distance string `yaml:"distance" koanf:"distance"`
}

// RetrievalConfig is the query-time retrieval policy.
type RetrievalConfig struct {
	PerCollectionTopK int     `yaml:"per_collection_top_k" koanf:"per_collection_top_k"`
	ScoreThreshold    float64 `yaml:"score_threshold" koanf:"score_threshold"`
	FinalTopK         int     `yaml:"final_top_k" koanf:"final_top_k"`
}

// PathsConfig locates inputs and outputs.
type PathsConfig struct {
	InputDir  string `yaml:"input_dir" koanf:"input_dir"`
	OutputDir string `yaml:"output_dir" koanf:"output_dir"`
	DataDir   string `yaml:"data_dir" koanf:"data_dir"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port            int  `yaml:"port" koanf:"port"`
	AllowAllOrigins bool `yaml:"allow_all_origins" koanf:"allow_all_origins"`
}
