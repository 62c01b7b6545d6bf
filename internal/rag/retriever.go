package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ziadkadry99/crm-manual-rag/internal/embeddings"
	"github.com/ziadkadry99/crm-manual-rag/internal/router"
	"github.com/ziadkadry99/crm-manual-rag/internal/vectordb"
)

// ErrEmptyQuery is returned for blank questions.
var ErrEmptyQuery = errors.New("empty query")

// Policy controls how many chunks reach the prompt.
type Policy struct {
	// PerCollectionTopK is the number of hits taken from each partition.
	PerCollectionTopK int `json:"per_collection_top_k"`
	// ScoreThreshold drops hits scoring below it.
	ScoreThreshold float64 `json:"score_threshold"`
	// FinalTopK is the number of merged hits kept.
	FinalTopK int `json:"final_top_k"`
}

// DefaultPolicy searches each partition of the query language for 3 hits
// scoring at least 0.5 and keeps the best 5.
func DefaultPolicy() Policy {
	return Policy{PerCollectionTopK: 3, ScoreThreshold: 0.5, FinalTopK: 5}
}

// Retrieval is the ranked context for one question.
type Retrieval struct {
	Query        string                  `json:"query"`
	Language     string                  `json:"language"`
	LanguageCode string                  `json:"language_code"`
	Results      []vectordb.SearchResult `json:"results"`
}

// Retriever embeds questions and searches the router's partitions.
type Retriever struct {
	embedder embeddings.Embedder
	router   *router.Router
	policy   Policy
	queries  QueryProcessor
}

// NewRetriever returns a Retriever. Non-positive hit counts take their
// default. The threshold is used as given, so zero keeps every hit; start
// from DefaultPolicy to apply the usual 0.5 cut.
func NewRetriever(e embeddings.Embedder, r *router.Router, policy Policy) *Retriever {
	def := DefaultPolicy()
	if policy.PerCollectionTopK <= 0 {
		policy.PerCollectionTopK = def.PerCollectionTopK
	}
	if policy.FinalTopK <= 0 {
		policy.FinalTopK = def.FinalTopK
	}
	return &Retriever{embedder: e, router: r, policy: policy}
}

// Policy returns the effective retrieval policy.
func (r *Retriever) Policy() Policy { return r.policy }

// Retrieve detects the question's language, embeds it and returns the best
// hits across that language's partitions in descending score order. No hits
// is not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string) (*Retrieval, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	language := r.queries.DetectLanguage(query)
	code := r.queries.LanguageCode(language)

	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedding query: got %d vectors", len(vecs))
	}

	results, err := r.router.SearchLanguage(ctx, vecs[0], code,
		r.policy.PerCollectionTopK, r.policy.ScoreThreshold, r.policy.FinalTopK)
	if err != nil {
		return nil, fmt.Errorf("searching %s partitions: %w", code, err)
	}

	return &Retrieval{
		Query:        query,
		Language:     language,
		LanguageCode: code,
		Results:      results,
	}, nil
}
