package embeddings

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ziadkadry99/crm-manual-rag/internal/db"
)

// previewRunes is how much of the text a cache record keeps.
const previewRunes = 100

// Cache memoizes embeddings by (model, text). It has no eviction; Clear
// empties it.
type Cache interface {
	Get(ctx context.Context, model, text string) ([]float32, bool, error)
	Set(ctx context.Context, model, text string, embedding []float32) error
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int, error)
}

// CacheKey returns the hex md5 of "model:text".
func CacheKey(model, text string) string {
	sum := md5.Sum([]byte(model + ":" + text))
	return hex.EncodeToString(sum[:])
}

// CacheRecord is one stored embedding.
type CacheRecord struct {
	Key         string    `json:"key"`
	TextPreview string    `json:"text"`
	Model       string    `json:"model"`
	Embedding   []float32 `json:"embedding"`
	Timestamp   time.Time `json:"timestamp"`
}

func preview(text string) string {
	r := []rune(text)
	if len(r) <= previewRunes {
		return text
	}
	return string(r[:previewRunes])
}

// SQLiteCache stores embeddings in the embedding_cache table.
type SQLiteCache struct {
	db *db.DB
}

// NewSQLiteCache creates a cache over an open database.
func NewSQLiteCache(database *db.DB) *SQLiteCache {
	return &SQLiteCache{db: database}
}

func (c *SQLiteCache) Get(ctx context.Context, model, text string) ([]float32, bool, error) {
	var raw string
	err := c.db.QueryRowContext(ctx,
		`SELECT embedding FROM embedding_cache WHERE cache_key = ?`, CacheKey(model, text),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying embedding cache: %w", err)
	}

	var emb []float32
	if err := json.Unmarshal([]byte(raw), &emb); err != nil {
		return nil, false, fmt.Errorf("decoding cached embedding: %w", err)
	}
	return emb, true, nil
}

// Set stores an embedding. Concurrent writes of one key keep the last value.
func (c *SQLiteCache) Set(ctx context.Context, model, text string, embedding []float32) error {
	raw, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("encoding embedding: %w", err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO embedding_cache (cache_key, model, text_preview, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		CacheKey(model, text), model, preview(text), string(raw), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting cached embedding: %w", err)
	}
	return nil
}

func (c *SQLiteCache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM embedding_cache`); err != nil {
		return fmt.Errorf("clearing embedding cache: %w", err)
	}
	return nil
}

func (c *SQLiteCache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embedding_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting embedding cache: %w", err)
	}
	return n, nil
}

// CacheStats summarises the cache per model.
type CacheStats struct {
	Entries int            `json:"entries"`
	ByModel map[string]int `json:"by_model"`
}

// Stats counts cached embeddings per model.
func (c *SQLiteCache) Stats(ctx context.Context) (*CacheStats, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT model, COUNT(*) FROM embedding_cache GROUP BY model`)
	if err != nil {
		return nil, fmt.Errorf("querying cache stats: %w", err)
	}
	defer rows.Close()

	stats := &CacheStats{ByModel: make(map[string]int)}
	for rows.Next() {
		var model string
		var n int
		if err := rows.Scan(&model, &n); err != nil {
			return nil, fmt.Errorf("scanning cache stats: %w", err)
		}
		stats.ByModel[model] = n
		stats.Entries += n
	}
	return stats, rows.Err()
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	records map[string]CacheRecord
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{records: make(map[string]CacheRecord)}
}

func (c *MemoryCache) Get(_ context.Context, model, text string) ([]float32, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[CacheKey(model, text)]
	if !ok {
		return nil, false, nil
	}
	return append([]float32(nil), rec.Embedding...), true, nil
}

func (c *MemoryCache) Set(_ context.Context, model, text string, embedding []float32) error {
	key := CacheKey(model, text)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[key] = CacheRecord{
		Key:         key,
		TextPreview: preview(text),
		Model:       model,
		Embedding:   append([]float32(nil), embedding...),
		Timestamp:   time.Now().UTC(),
	}
	return nil
}

func (c *MemoryCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = make(map[string]CacheRecord)
	return nil
}

func (c *MemoryCache) Len(context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records), nil
}
