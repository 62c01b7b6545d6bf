// Package app builds the application context: every long-lived service
// constructed once from the configuration and handed to commands, the HTTP
// server and the MCP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ziadkadry99/crm-manual-rag/internal/chunker"
	"github.com/ziadkadry99/crm-manual-rag/internal/config"
	"github.com/ziadkadry99/crm-manual-rag/internal/db"
	"github.com/ziadkadry99/crm-manual-rag/internal/embeddings"
	"github.com/ziadkadry99/crm-manual-rag/internal/history"
	"github.com/ziadkadry99/crm-manual-rag/internal/llm"
	"github.com/ziadkadry99/crm-manual-rag/internal/logger"
	"github.com/ziadkadry99/crm-manual-rag/internal/metadata"
	"github.com/ziadkadry99/crm-manual-rag/internal/parser"
	"github.com/ziadkadry99/crm-manual-rag/internal/pipeline"
	"github.com/ziadkadry99/crm-manual-rag/internal/progress"
	"github.com/ziadkadry99/crm-manual-rag/internal/rag"
	"github.com/ziadkadry99/crm-manual-rag/internal/router"
	"github.com/ziadkadry99/crm-manual-rag/internal/sections"
	"github.com/ziadkadry99/crm-manual-rag/internal/vectordb"
)

const openRouterURL = "https://openrouter.ai/api/v1"

// Options tune how the context is built.
type Options struct {
	// LogOutput receives log lines; stderr when nil.
	LogOutput io.Writer
	Verbose   bool
	// Quiet replaces the progress bar with plain progress lines.
	Quiet bool
	// WithLLM builds the answer generator. Indexing commands leave it off
	// so they run without chat model credentials.
	WithLLM bool

	// Embedder and Provider replace the configured ones, mainly in tests.
	Embedder embeddings.Embedder
	Provider llm.Provider
	// Store replaces the configured vector store.
	Store vectordb.Store
	// Database replaces the configured SQLite file.
	Database *db.DB
}

// App holds the services of one process.
type App struct {
	Config     *config.Config
	Log        *logger.Logger
	DB         *db.DB
	Cache      *embeddings.SQLiteCache
	Embeddings *embeddings.Service
	Store      vectordb.Store
	Router     *router.Router
	Pipeline   *pipeline.Pipeline
	History    *history.Store
	Retriever  *rag.Retriever
	// Assistant is nil unless Options.WithLLM was set.
	Assistant *rag.Assistant
}

// New builds the application context from cfg.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	a := &App{Config: cfg, Log: logger.New(out, opts.Verbose)}

	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	a.DB = opts.Database
	if a.DB == nil {
		database, err := db.Open(cfg.DatabasePath())
		if err != nil {
			return nil, err
		}
		a.DB = database
	}
	a.History = history.NewStore(a.DB)

	base := opts.Embedder
	if base == nil {
		e, err := NewEmbedder(cfg.Embedding)
		if err != nil {
			return nil, err
		}
		base = e
	}
	svcOpts := []embeddings.ServiceOption{
		embeddings.WithBatchSize(cfg.Embedding.BatchSize),
		embeddings.WithBatchDelay(time.Duration(cfg.Embedding.BatchDelayMS) * time.Millisecond),
	}
	if cfg.Embedding.CacheEnabled {
		a.Cache = embeddings.NewSQLiteCache(a.DB)
		svcOpts = append(svcOpts, embeddings.WithCache(a.Cache))
	}
	a.Embeddings = embeddings.NewService(base, svcOpts...)

	a.Store = opts.Store
	if a.Store == nil {
		store, err := vectordb.SelectBackend(ctx, vectordb.BackendConfig{
			Backend: cfg.VectorStore.Backend,
			Qdrant: vectordb.QdrantConfig{
				URL:    cfg.VectorStore.QdrantURL,
				APIKey: cfg.VectorStore.QdrantAPIKey,
			},
			DataDir: cfg.VectorDataDir(),
		}, a.Log)
		if err != nil {
			return nil, err
		}
		a.Store = store
	}

	distance, err := vectordb.ParseDistance(cfg.VectorStore.Distance)
	if err != nil {
		return nil, err
	}
	a.Router = router.New(a.Store, router.WithDistance(distance), router.WithLogger(a.Log))

	headers := sections.Default
	a.Pipeline = pipeline.New(pipeline.Config{
		Parser:    parser.NewRegistry(),
		Extractor: metadata.NewExtractor(headers),
		Chunker: chunker.New(
			chunker.WithChunkSize(cfg.Chunking.ChunkSize),
			chunker.WithChunkOverlap(cfg.Chunking.ChunkOverlap),
			chunker.WithMinChunkSize(cfg.Chunking.MinChunkSize),
			chunker.WithMaxChunkSize(cfg.Chunking.MaxChunkSize),
			chunker.WithHeaderMatcher(headers),
		),
		Embedder:  a.Embeddings,
		Router:    a.Router,
		OutputDir: cfg.Paths.OutputDir,
		Include:   cfg.Include,
		Exclude:   cfg.Exclude,
		Logger:    a.Log,
		Progress:  progress.NewReporter("Processing manuals", opts.Quiet),
	})

	a.Retriever = rag.NewRetriever(a.Embeddings, a.Router, rag.Policy{
		PerCollectionTopK: cfg.Retrieval.PerCollectionTopK,
		ScoreThreshold:    cfg.Retrieval.ScoreThreshold,
		FinalTopK:         cfg.Retrieval.FinalTopK,
	})

	if opts.WithLLM {
		provider := opts.Provider
		if provider == nil {
			p, err := llm.NewProvider(llm.ProviderConfig{
				Provider:          string(cfg.LLM.Provider),
				Model:             cfg.LLM.Model,
				APIKey:            cfg.LLM.APIKey,
				BaseURL:           cfg.LLM.BaseURL,
				RequestsPerMinute: cfg.LLM.RequestsPerMinute,
			})
			if err != nil {
				return nil, err
			}
			provider = p
		}
		generator := rag.NewGenerator(provider,
			rag.WithModel(cfg.LLM.Model),
			rag.WithTemperature(cfg.LLM.Temperature),
			rag.WithMaxTokens(cfg.LLM.MaxTokens),
		)
		a.Assistant = rag.NewAssistant(a.Retriever, generator, a.History, a.Log)
	}

	ok = true
	return a, nil
}

// PipelineOptions derives processing options from the chunking config.
func (a *App) PipelineOptions() (pipeline.Options, error) {
	strategy, err := chunker.ParseStrategy(a.Config.Chunking.Strategy)
	if err != nil {
		return pipeline.Options{}, err
	}
	opts := pipeline.DefaultOptions()
	opts.Strategy = strategy
	opts.SaveIntermediate = a.Config.Chunking.SaveIntermediate
	opts.AddContext = a.Config.Chunking.AddContext
	opts.BatchSize = a.Config.Embedding.BatchSize
	return opts, nil
}

// Close releases the vector store and the database. The in-process vector
// store is persisted on close.
func (a *App) Close() error {
	var errs []error
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing vector store: %w", err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// NewEmbedder builds the configured embedding model. Per-language models
// are combined behind a MultilingualService.
func NewEmbedder(cfg config.EmbeddingConfig) (embeddings.Embedder, error) {
	base, err := newEmbedder(cfg.Provider, cfg.Model, cfg.Dimensions, cfg.BaseURL, cfg.APIKey)
	if err != nil {
		return nil, err
	}
	if len(cfg.Languages) == 0 {
		return base, nil
	}

	byLanguage := make(map[string]embeddings.Embedder, len(cfg.Languages))
	for lang, le := range cfg.Languages {
		e, err := newEmbedder(le.Provider, le.Model, le.Dimensions, "", "")
		if err != nil {
			return nil, fmt.Errorf("embedding for %s: %w", lang, err)
		}
		if e.Dimensions() != base.Dimensions() {
			return nil, fmt.Errorf("embedding for %s produces %d dimensions, the default model %d",
				lang, e.Dimensions(), base.Dimensions())
		}
		byLanguage[lang] = e
	}
	return embeddings.NewMultilingualService(base, byLanguage), nil
}

func newEmbedder(provider config.ProviderType, model string, dims int, baseURL, apiKey string) (embeddings.Embedder, error) {
	switch provider {
	case config.ProviderOpenAI, config.ProviderOpenRouter:
		key := config.ResolveAPIKey(provider, apiKey)
		if key == "" {
			return nil, fmt.Errorf("%s is not set", config.APIKeyEnvVar(provider))
		}
		if provider == config.ProviderOpenRouter && baseURL == "" {
			baseURL = openRouterURL
		}
		if baseURL == "" {
			return embeddings.NewOpenAIEmbedder(key, embeddings.OpenAIModel(model)), nil
		}
		c := openai.DefaultConfig(key)
		c.BaseURL = baseURL
		return embeddings.NewOpenAIEmbedderWithConfig(c, embeddings.OpenAIModel(model)), nil

	case config.ProviderOllama:
		if dims <= 0 {
			return nil, fmt.Errorf("ollama model %s needs explicit dimensions", model)
		}
		return embeddings.NewOllamaEmbedder(model, dims, firstNonEmpty(baseURL, os.Getenv("OLLAMA_HOST"))), nil

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", provider)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
