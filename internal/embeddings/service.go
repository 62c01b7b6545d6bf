package embeddings

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// DefaultBatchSize is the number of uncached texts sent per provider call.
const DefaultBatchSize = 100

// ProgressFunc is called after each provider sub-batch with the number of
// uncached texts embedded so far and the total to embed.
type ProgressFunc func(done, total int)

// Service embeds text through an Embedder, memoizing results in a Cache.
// A Service is itself an Embedder.
type Service struct {
	embedder   Embedder
	cache      Cache
	batchSize  int
	batchDelay time.Duration
	progress   ProgressFunc
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCache enables memoization. A nil cache disables it.
func WithCache(c Cache) ServiceOption {
	return func(s *Service) { s.cache = c }
}

// WithBatchSize sets the provider sub-batch size.
func WithBatchSize(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithBatchDelay sets a pause between provider sub-batches.
func WithBatchDelay(d time.Duration) ServiceOption {
	return func(s *Service) { s.batchDelay = d }
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) ServiceOption {
	return func(s *Service) { s.progress = fn }
}

// NewService wraps an Embedder.
func NewService(e Embedder, opts ...ServiceOption) *Service {
	s := &Service{embedder: e, batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Name() string    { return s.embedder.Name() }
func (s *Service) Dimensions() int { return s.embedder.Dimensions() }

// Cache returns the configured cache, or nil.
func (s *Service) Cache() Cache { return s.cache }

// Embed is EmbedBatch.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return s.EmbedBatch(ctx, texts)
}

// EmbedText embeds a single text.
func (s *Service) EmbedText(ctx context.Context, text string) ([]float32, error) {
	out, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch returns one vector per text, in input order. Cached texts are
// served from the cache; the rest go to the provider in sub-batches and are
// cached once the provider returns them. A provider error aborts the call and
// nothing from the failing sub-batch is cached.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	model := CacheModel(s.embedder)

	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if s.cache != nil {
			emb, ok, err := s.cache.Get(ctx, model, text)
			if err != nil {
				return nil, err
			}
			if ok {
				out[i] = emb
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	for start := 0; start < len(missTexts); start += s.batchSize {
		if start > 0 && s.batchDelay > 0 {
			if err := sleep(ctx, s.batchDelay); err != nil {
				return nil, err
			}
		}
		end := start + s.batchSize
		if end > len(missTexts) {
			end = len(missTexts)
		}
		batch := missTexts[start:end]

		embs, err := s.embedder.Embed(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embedding batch %d-%d with %s: %w", start, end, model, err)
		}
		if len(embs) != len(batch) {
			return nil, fmt.Errorf("%s returned %d embeddings for %d texts", model, len(embs), len(batch))
		}

		for j, emb := range embs {
			out[missIdx[start+j]] = emb
			if s.cache != nil {
				if err := s.cache.Set(ctx, model, batch[j], emb); err != nil {
					return nil, err
				}
			}
		}
		if s.progress != nil {
			s.progress(end, len(missTexts))
		}
	}

	return out, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ModelInfo describes the model behind a Service.
type ModelInfo struct {
	ModelName    string `json:"model_name"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	Dimension    int    `json:"dimension"`
	CacheEnabled bool   `json:"cache_enabled"`
}

// ModelInfo reports the provider, model and dimension in use.
func (s *Service) ModelInfo() ModelInfo {
	name := s.embedder.Name()
	provider, model := "", name
	if p, m, ok := strings.Cut(name, "/"); ok {
		provider, model = p, m
	}
	return ModelInfo{
		ModelName:    name,
		Provider:     provider,
		Model:        model,
		Dimension:    s.embedder.Dimensions(),
		CacheEnabled: s.cache != nil,
	}
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when either is a zero vector or their lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
