package config

import "path/filepath"

// FileName is the configuration file looked up in the working directory.
const FileName = ".crmrag.yml"

// DatabaseFile is the SQLite file under the data directory.
const DatabaseFile = "crmrag.db"

// modelPreset is the default pair of models for a provider.
type modelPreset struct {
	EmbeddingModel string
	Dimensions     int
	ChatModel      string
}

var presets = map[ProviderType]modelPreset{
	ProviderOpenAI:     {EmbeddingModel: "text-embedding-3-small", Dimensions: 1536, ChatModel: "gpt-4"},
	ProviderOpenRouter: {EmbeddingModel: "text-embedding-3-small", Dimensions: 1536, ChatModel: "openai/gpt-4"},
	ProviderOllama:     {EmbeddingModel: "bge-m3", Dimensions: 1024, ChatModel: "llama3"},
}

// DefaultExcludes are glob patterns excluded from folder processing by default.
var DefaultExcludes = []string{
	"**/~$*",
	"**/*.tmp",
	"**/archive/**",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:     ProviderOpenAI,
			Model:        "text-embedding-3-small",
			BatchSize:    100,
			BatchDelayMS: 100,
			CacheEnabled: true,
		},
		LLM: LLMConfig{
			Provider:    ProviderOpenAI,
			Model:       "gpt-4",
			Temperature: 0.3,
			MaxTokens:   1000,
		},
		Chunking: ChunkingConfig{
			Strategy:         "recursive",
			ChunkSize:        1000,
			ChunkOverlap:     200,
			MinChunkSize:     100,
			MaxChunkSize:     2000,
			AddContext:       false,
			SaveIntermediate: true,
		},
		VectorStore: VectorStoreConfig{
			Backend:   BackendAuto,
			QdrantURL: "http://localhost:6333",
			Distance:  "cosine",
		},
		Retrieval: RetrievalConfig{
			PerCollectionTopK: 3,
			ScoreThreshold:    0.5,
			FinalTopK:         5,
		},
		Paths: PathsConfig{
			InputDir:  "data/raw",
			OutputDir: "data/processed",
			DataDir:   ".crmrag",
		},
		Include: []string{"**/*.pdf"},
		Exclude: append([]string(nil), DefaultExcludes...),
		Server: ServerConfig{
			Port: 8080,
		},
	}
}

// DatabasePath is the SQLite file holding the embedding cache and history.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, DatabaseFile)
}

// VectorDataDir is where the in-process vector store persists.
func (c *Config) VectorDataDir() string {
	if c.VectorStore.DataDir != "" {
		return c.VectorStore.DataDir
	}
	return filepath.Join(c.Paths.DataDir, "vectors")
}
