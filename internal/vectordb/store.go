// Package vectordb stores chunk embeddings in named collections and answers
// similarity and filter queries over them.
package vectordb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ziadkadry99/crm-manual-rag/internal/chunker"
)

// Distance is the similarity metric of a collection.
type Distance string

const (
	Cosine Distance = "Cosine"
	Euclid Distance = "Euclid"
	Dot    Distance = "Dot"
)

// ParseDistance accepts a metric name in any case.
func ParseDistance(s string) (Distance, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine":
		return Cosine, nil
	case "euclid", "euclidean":
		return Euclid, nil
	case "dot":
		return Dot, nil
	default:
		return "", fmt.Errorf("unknown distance %q (want cosine, euclid or dot)", s)
	}
}

var (
	// ErrDimensionMismatch is returned when a vector does not match the
	// collection's size.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrCollectionNotFound is returned for operations on a missing collection.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrUnsupportedDistance is returned when a backend cannot serve a metric.
	ErrUnsupportedDistance = errors.New("unsupported distance")
)

// Payload keys holding the chunk identity and text.
const (
	PayloadChunkID = "chunk_id"
	PayloadText    = "text"
)

// Point is one chunk with its embedding, ready to insert.
type Point struct {
	ChunkID   string
	Text      string
	Embedding []float32
	Metadata  chunker.Metadata
}

// PointFromChunk pairs a chunk with its embedding.
func PointFromChunk(c chunker.Chunk, embedding []float32) Point {
	return Point{ChunkID: c.ChunkID, Text: c.Text, Embedding: embedding, Metadata: c.Metadata}
}

// SearchResult is one scored point. A higher Score is always more relevant:
// Euclid collections report the negated distance. Metadata holds every
// payload field other than the chunk id and text.
type SearchResult struct {
	ChunkID  string           `json:"chunk_id"`
	Text     string           `json:"text"`
	Score    float64          `json:"score"`
	Metadata chunker.Metadata `json:"metadata"`
}

// Filters are exact-match payload conditions, all of which must hold.
type Filters map[string]any

// SearchOptions narrows a similarity search.
type SearchOptions struct {
	TopK    int
	Filters Filters
	// ScoreThreshold excludes results scoring below it when non-nil.
	ScoreThreshold *float64
}

// Threshold returns a pointer for SearchOptions.ScoreThreshold.
func Threshold(v float64) *float64 { return &v }

// CollectionInfo describes a collection.
type CollectionInfo struct {
	Name        string   `json:"name"`
	VectorSize  int      `json:"vector_size"`
	Distance    Distance `json:"distance"`
	PointsCount int      `json:"points_count"`
}

// Store is a set of named vector collections.
type Store interface {
	// CreateCollection creates name unless it exists. With recreate, an
	// existing collection is dropped first.
	CreateCollection(ctx context.Context, name string, size int, distance Distance, recreate bool) error
	CollectionExists(ctx context.Context, name string) (bool, error)
	DeleteCollection(ctx context.Context, name string) error
	ListCollections(ctx context.Context) ([]string, error)
	CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error)

	// AddDocuments inserts points in batches of batchSize, each under a fresh
	// point id. A failed batch aborts the remaining ones.
	AddDocuments(ctx context.Context, collection string, points []Point, batchSize int) error

	// Search returns up to opts.TopK points ordered by descending score.
	Search(ctx context.Context, collection string, vector []float32, opts SearchOptions) ([]SearchResult, error)

	// SearchByFilters returns points matching filters, without ranking.
	// A limit <= 0 returns all of them.
	SearchByFilters(ctx context.Context, collection string, filters Filters, limit int) ([]SearchResult, error)

	// DeleteDocuments removes points matching filters.
	DeleteDocuments(ctx context.Context, collection string, filters Filters) error

	// Name identifies the backend.
	Name() string
	Close() error
}

// DefaultBatchSize is used when AddDocuments gets a non-positive batch size.
const DefaultBatchSize = 100

// payload flattens a point into {chunk_id, text, ...metadata}.
func payload(p Point) chunker.Metadata {
	var out chunker.Metadata
	out.Set(PayloadChunkID, p.ChunkID)
	out.Set(PayloadText, p.Text)
	out.Merge(p.Metadata)
	return out
}

// resultFromPayload splits a stored payload back into a SearchResult.
func resultFromPayload(pl chunker.Metadata, score float64) SearchResult {
	r := SearchResult{
		ChunkID: pl.String(PayloadChunkID),
		Text:    pl.String(PayloadText),
		Score:   score,
	}
	md := pl.Clone()
	md.Delete(PayloadChunkID)
	md.Delete(PayloadText)
	r.Metadata = md
	return r
}

func checkDims(collection string, want int, vec []float32) error {
	if len(vec) != want {
		return fmt.Errorf("%w: collection %s expects %d, got %d", ErrDimensionMismatch, collection, want, len(vec))
	}
	return nil
}

func batches(n, size int) [][2]int {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

func passes(score float64, threshold *float64) bool {
	return threshold == nil || score >= *threshold
}
