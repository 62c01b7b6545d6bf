package vectordb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/ziadkadry99/crm-manual-rag/internal/chunker"
)

const (
	chromemFile = "chromem.gob.gz"
	specFile    = "collections.json"

	// payloadField holds the ordered JSON payload; the other chromem
	// metadata fields are stringified copies used for filtering.
	payloadField = "_payload"
)

type collectionSpec struct {
	Size     int      `json:"size"`
	Distance Distance `json:"distance"`
}

// ChromemStore implements Store in process with chromem-go. It supports
// cosine distance only. With a data directory it is loaded on creation and
// written back by Persist and Close.
type ChromemStore struct {
	mu    sync.RWMutex
	db    *chromem.DB
	specs map[string]collectionSpec
	dir   string
}

// NewChromemStore opens a store persisted under dir, or a purely in-memory
// store when dir is empty.
func NewChromemStore(dir string) (*ChromemStore, error) {
	s := &ChromemStore{
		db:    chromem.NewDB(),
		specs: make(map[string]collectionSpec),
		dir:   dir,
	}
	if dir == "" {
		return s, nil
	}
	if _, err := os.Stat(filepath.Join(dir, chromemFile)); err == nil {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// precomputedOnly is installed as the collection embedding function; every
// write and query in this store supplies its own vectors.
func precomputedOnly(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromem store requires precomputed embeddings")
}

func (s *ChromemStore) Name() string { return "chromem" }

func (s *ChromemStore) CreateCollection(_ context.Context, name string, size int, distance Distance, recreate bool) error {
	if distance == "" {
		distance = Cosine
	}
	if distance != Cosine {
		return fmt.Errorf("%w: chromem only supports %s, got %s", ErrUnsupportedDistance, Cosine, distance)
	}
	if size <= 0 {
		return fmt.Errorf("invalid vector size %d", size)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db.GetCollection(name, precomputedOnly) != nil {
		if !recreate {
			return nil
		}
		if err := s.db.DeleteCollection(name); err != nil {
			return fmt.Errorf("dropping collection %s: %w", name, err)
		}
	}

	if _, err := s.db.CreateCollection(name, nil, precomputedOnly); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	s.specs[name] = collectionSpec{Size: size, Distance: distance}
	return nil
}

func (s *ChromemStore) CollectionExists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.GetCollection(name, precomputedOnly) != nil, nil
}

func (s *ChromemStore) DeleteCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.specs, name)
	return s.db.DeleteCollection(name)
}

func (s *ChromemStore) ListCollections(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cols := s.db.ListCollections()
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *ChromemStore) CollectionInfo(_ context.Context, name string) (*CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, spec, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	return &CollectionInfo{
		Name:        name,
		VectorSize:  spec.Size,
		Distance:    spec.Distance,
		PointsCount: col.Count(),
	}, nil
}

// collection must be called with s.mu held.
func (s *ChromemStore) collection(name string) (*chromem.Collection, collectionSpec, error) {
	col := s.db.GetCollection(name, precomputedOnly)
	if col == nil {
		return nil, collectionSpec{}, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return col, s.specs[name], nil
}

func (s *ChromemStore) AddDocuments(ctx context.Context, collection string, points []Point, batchSize int) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	col, spec, err := s.collection(collection)
	if err != nil {
		return err
	}

	for _, b := range batches(len(points), batchSize) {
		docs := make([]chromem.Document, 0, b[1]-b[0])
		for _, p := range points[b[0]:b[1]] {
			if err := checkDims(collection, spec.Size, p.Embedding); err != nil {
				return err
			}
			md, err := toChromemMetadata(p)
			if err != nil {
				return err
			}
			docs = append(docs, chromem.Document{
				ID:        uuid.NewString(),
				Content:   p.Text,
				Embedding: append([]float32(nil), p.Embedding...),
				Metadata:  md,
			})
		}
		if err := col.AddDocuments(ctx, docs, 1); err != nil {
			return fmt.Errorf("adding batch %d-%d to %s: %w", b[0], b[1], collection, err)
		}
	}
	return nil
}

func (s *ChromemStore) Search(ctx context.Context, collection string, vector []float32, opts SearchOptions) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, spec, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	if err := checkDims(collection, spec.Size, vector); err != nil {
		return nil, err
	}

	limit := opts.TopK
	if limit <= 0 {
		limit = 10
	}
	// chromem-go requires nResults <= collection size.
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	results, err := col.QueryEmbedding(ctx, vector, limit, whereClause(opts.Filters), nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		score := float64(r.Similarity)
		if !passes(score, opts.ScoreThreshold) {
			continue
		}
		out = append(out, fromChromemResult(r, score))
	}
	return out, nil
}

func (s *ChromemStore) SearchByFilters(ctx context.Context, collection string, filters Filters, limit int) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, spec, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	count := col.Count()
	if count == 0 {
		return nil, nil
	}

	// Any non-zero probe vector visits every document that passes the filter.
	probe := make([]float32, spec.Size)
	probe[0] = 1
	results, err := col.QueryEmbedding(ctx, probe, count, whereClause(filters), nil)
	if err != nil {
		return nil, fmt.Errorf("chromem filter scan: %w", err)
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, fromChromemResult(r, 0))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkID < out[j].ChunkID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *ChromemStore) DeleteDocuments(ctx context.Context, collection string, filters Filters) error {
	if len(filters) == 0 {
		return errors.New("refusing to delete without filters")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, _, err := s.collection(collection)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, whereClause(filters), nil); err != nil {
		return fmt.Errorf("chromem delete: %w", err)
	}
	return nil
}

// Persist writes the database and the collection specs to the data directory.
func (s *ChromemStore) Persist() error {
	if s.dir == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating vector store directory: %w", err)
	}
	if err := s.db.ExportToFile(filepath.Join(s.dir, chromemFile), true, ""); err != nil {
		return fmt.Errorf("export to file: %w", err)
	}
	data, err := json.MarshalIndent(s.specs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal collection specs: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, specFile), data, 0o644); err != nil {
		return fmt.Errorf("write collection specs: %w", err)
	}
	return nil
}

func (s *ChromemStore) load() error {
	if err := s.db.ImportFromFile(filepath.Join(s.dir, chromemFile), ""); err != nil {
		return fmt.Errorf("import from file: %w", err)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, specFile))
	if err != nil {
		return fmt.Errorf("read collection specs: %w", err)
	}
	if err := json.Unmarshal(data, &s.specs); err != nil {
		return fmt.Errorf("parse collection specs: %w", err)
	}
	return nil
}

// Close persists the store.
func (s *ChromemStore) Close() error {
	return s.Persist()
}

func toChromemMetadata(p Point) (map[string]string, error) {
	md := make(map[string]string, p.Metadata.Len()+2)
	for k, v := range p.Metadata.StringMap() {
		md[k] = v
	}
	md[PayloadChunkID] = p.ChunkID

	raw, err := json.Marshal(p.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding payload of %s: %w", p.ChunkID, err)
	}
	md[payloadField] = string(raw)
	return md, nil
}

func fromChromemResult(r chromem.Result, score float64) SearchResult {
	var md chunker.Metadata
	if raw, ok := r.Metadata[payloadField]; ok && json.Unmarshal([]byte(raw), &md) == nil {
		return SearchResult{ChunkID: r.Metadata[PayloadChunkID], Text: r.Content, Score: score, Metadata: md}
	}

	plain := make(map[string]any, len(r.Metadata))
	for k, v := range r.Metadata {
		if k != PayloadChunkID && k != payloadField {
			plain[k] = v
		}
	}
	return SearchResult{
		ChunkID:  r.Metadata[PayloadChunkID],
		Text:     r.Content,
		Score:    score,
		Metadata: chunker.MetadataFrom(plain),
	}
}

// whereClause converts filters to a chromem where clause.
func whereClause(filters Filters) map[string]string {
	if len(filters) == 0 {
		return nil
	}
	where := make(map[string]string, len(filters))
	for k, v := range filters {
		where[k] = chunker.FormatValue(v)
	}
	return where
}
