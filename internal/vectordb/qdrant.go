package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/crm-manual-rag/internal/chunker"
)

const scrollPageSize = 256

// QdrantConfig configures a QdrantStore.
type QdrantConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// QdrantStore implements Store over the Qdrant REST API.
type QdrantStore struct {
	url    string
	apiKey string
	client *http.Client

	mu    sync.Mutex
	specs map[string]collectionSpec
}

// NewQdrantStore creates a client. It does not contact the server.
func NewQdrantStore(cfg QdrantConfig) *QdrantStore {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &QdrantStore{
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
		specs:  make(map[string]collectionSpec),
	}
}

func (s *QdrantStore) Name() string { return "qdrant" }

// errNotFound marks a 404 from the server.
var errNotFound = errors.New("not found")

type qdrantResponse struct {
	Result json.RawMessage `json:"result"`
	Status any             `json:"status"`
}

func (s *QdrantStore) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal qdrant request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return fmt.Errorf("create qdrant request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("qdrant %s %s returned status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if out == nil {
		return nil
	}

	var wrapped qdrantResponse
	if err := json.NewDecoder(resp.Body).Decode(&wrapped); err != nil {
		return fmt.Errorf("decode qdrant response: %w", err)
	}
	if err := json.Unmarshal(wrapped.Result, out); err != nil {
		return fmt.Errorf("decode qdrant result: %w", err)
	}
	return nil
}

func collectionPath(name string) string {
	return "/collections/" + url.PathEscape(name)
}

// Ready reports whether the server answers its readiness probe.
func (s *QdrantStore) Ready(ctx context.Context) error {
	return s.do(ctx, http.MethodGet, "/readyz", nil, nil)
}

func (s *QdrantStore) CreateCollection(ctx context.Context, name string, size int, distance Distance, recreate bool) error {
	if distance == "" {
		distance = Cosine
	}
	if size <= 0 {
		return fmt.Errorf("invalid vector size %d", size)
	}

	exists, err := s.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		if !recreate {
			return nil
		}
		if err := s.DeleteCollection(ctx, name); err != nil {
			return err
		}
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     size,
			"distance": string(distance),
		},
	}
	if err := s.do(ctx, http.MethodPut, collectionPath(name), body, nil); err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}

	s.mu.Lock()
	s.specs[name] = collectionSpec{Size: size, Distance: distance}
	s.mu.Unlock()
	return nil
}

func (s *QdrantStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	err := s.do(ctx, http.MethodGet, collectionPath(name), nil, nil)
	if errors.Is(err, errNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *QdrantStore) DeleteCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	delete(s.specs, name)
	s.mu.Unlock()

	err := s.do(ctx, http.MethodDelete, collectionPath(name), nil, nil)
	if err != nil && !errors.Is(err, errNotFound) {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	return nil
}

func (s *QdrantStore) ListCollections(ctx context.Context) ([]string, error) {
	var result struct {
		Collections []struct {
			Name string `json:"name"`
		} `json:"collections"`
	}
	if err := s.do(ctx, http.MethodGet, "/collections", nil, &result); err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	names := make([]string, 0, len(result.Collections))
	for _, c := range result.Collections {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names, nil
}

type qdrantCollectionInfo struct {
	PointsCount int `json:"points_count"`
	Config      struct {
		Params struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
}

func (s *QdrantStore) CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	var result qdrantCollectionInfo
	err := s.do(ctx, http.MethodGet, collectionPath(name), nil, &result)
	if errors.Is(err, errNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	if err != nil {
		return nil, err
	}

	spec := collectionSpec{
		Size:     result.Config.Params.Vectors.Size,
		Distance: Distance(result.Config.Params.Vectors.Distance),
	}
	s.mu.Lock()
	s.specs[name] = spec
	s.mu.Unlock()

	return &CollectionInfo{
		Name:        name,
		VectorSize:  spec.Size,
		Distance:    spec.Distance,
		PointsCount: result.PointsCount,
	}, nil
}

func (s *QdrantStore) spec(ctx context.Context, name string) (collectionSpec, error) {
	s.mu.Lock()
	spec, ok := s.specs[name]
	s.mu.Unlock()
	if ok {
		return spec, nil
	}
	info, err := s.CollectionInfo(ctx, name)
	if err != nil {
		return collectionSpec{}, err
	}
	return collectionSpec{Size: info.VectorSize, Distance: info.Distance}, nil
}

type qdrantPoint struct {
	ID      string           `json:"id"`
	Vector  []float32        `json:"vector"`
	Payload chunker.Metadata `json:"payload"`
}

func (s *QdrantStore) AddDocuments(ctx context.Context, collection string, points []Point, batchSize int) error {
	if len(points) == 0 {
		return nil
	}
	spec, err := s.spec(ctx, collection)
	if err != nil {
		return err
	}

	for _, b := range batches(len(points), batchSize) {
		body := struct {
			Points []qdrantPoint `json:"points"`
		}{}
		for _, p := range points[b[0]:b[1]] {
			if err := checkDims(collection, spec.Size, p.Embedding); err != nil {
				return err
			}
			body.Points = append(body.Points, qdrantPoint{
				ID:      uuid.NewString(),
				Vector:  p.Embedding,
				Payload: payload(p),
			})
		}
		if err := s.do(ctx, http.MethodPut, collectionPath(collection)+"/points?wait=true", body, nil); err != nil {
			return fmt.Errorf("adding batch %d-%d to %s: %w", b[0], b[1], collection, err)
		}
	}
	return nil
}

type qdrantFilter struct {
	Must []qdrantCondition `json:"must"`
}

type qdrantCondition struct {
	Key   string `json:"key"`
	Match struct {
		Value any `json:"value"`
	} `json:"match"`
}

func buildFilter(filters Filters) *qdrantFilter {
	if len(filters) == 0 {
		return nil
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	f := &qdrantFilter{}
	for _, k := range keys {
		c := qdrantCondition{Key: k}
		c.Match.Value = filters[k]
		f.Must = append(f.Must, c)
	}
	return f
}

type qdrantScoredPoint struct {
	ID      any              `json:"id"`
	Score   float64          `json:"score"`
	Payload chunker.Metadata `json:"payload"`
}

func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, opts SearchOptions) ([]SearchResult, error) {
	spec, err := s.spec(ctx, collection)
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
	body := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if f := buildFilter(opts.Filters); f != nil {
		body["filter"] = f
	}
	// Euclid scores are distances, where the server applies the threshold
	// as an upper bound; that case is filtered here after negation.
	if opts.ScoreThreshold != nil && spec.Distance != Euclid {
		body["score_threshold"] = *opts.ScoreThreshold
	}

	var result []qdrantScoredPoint
	if err := s.do(ctx, http.MethodPost, collectionPath(collection)+"/points/search", body, &result); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
		}
		return nil, fmt.Errorf("searching %s: %w", collection, err)
	}

	out := make([]SearchResult, 0, len(result))
	for _, p := range result {
		score := p.Score
		if spec.Distance == Euclid {
			score = -score
		}
		if !passes(score, opts.ScoreThreshold) {
			continue
		}
		out = append(out, resultFromPayload(p.Payload, score))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func (s *QdrantStore) SearchByFilters(ctx context.Context, collection string, filters Filters, limit int) ([]SearchResult, error) {
	var out []SearchResult
	var offset any

	for {
		page := scrollPageSize
		if limit > 0 && limit-len(out) < page {
			page = limit - len(out)
		}
		body := map[string]any{
			"limit":        page,
			"with_payload": true,
			"with_vector":  false,
		}
		if f := buildFilter(filters); f != nil {
			body["filter"] = f
		}
		if offset != nil {
			body["offset"] = offset
		}

		var result struct {
			Points         []qdrantScoredPoint `json:"points"`
			NextPageOffset any                 `json:"next_page_offset"`
		}
		if err := s.do(ctx, http.MethodPost, collectionPath(collection)+"/points/scroll", body, &result); err != nil {
			if errors.Is(err, errNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
			}
			return nil, fmt.Errorf("scrolling %s: %w", collection, err)
		}
		for _, p := range result.Points {
			out = append(out, resultFromPayload(p.Payload, 0))
		}
		if result.NextPageOffset == nil || (limit > 0 && len(out) >= limit) {
			return out, nil
		}
		offset = result.NextPageOffset
	}
}

func (s *QdrantStore) DeleteDocuments(ctx context.Context, collection string, filters Filters) error {
	f := buildFilter(filters)
	if f == nil {
		return errors.New("refusing to delete without filters")
	}
	body := map[string]any{"filter": f}
	if err := s.do(ctx, http.MethodPost, collectionPath(collection)+"/points/delete?wait=true", body, nil); err != nil {
		if errors.Is(err, errNotFound) {
			return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
		}
		return fmt.Errorf("deleting points from %s: %w", collection, err)
	}
	return nil
}

func (s *QdrantStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
