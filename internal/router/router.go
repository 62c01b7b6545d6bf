// Package router owns the crm_{type}_{lang} collection scheme. It creates the
// partitions, routes document chunks to them and fans queries out across them.
package router

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ziadkadry99/crm-manual-rag/internal/chunker"
	"github.com/ziadkadry99/crm-manual-rag/internal/logger"
	"github.com/ziadkadry99/crm-manual-rag/internal/metadata"
	"github.com/ziadkadry99/crm-manual-rag/internal/vectordb"
)

// CollectionPrefix starts every partition name.
const CollectionPrefix = "crm_"

// MetadataCollection is the result metadata key holding the source partition.
const MetadataCollection = "collection"

// Default partition axes.
var (
	DefaultTypes     = []string{"account", "meeting", "order", "common"}
	DefaultLanguages = []string{"ko", "en"}
)

// DefaultFallbackLanguage receives documents in languages without their own
// partitions.
const DefaultFallbackLanguage = "en"

// Router maps document types and languages onto collections of one store.
type Router struct {
	store     vectordb.Store
	types     []string
	languages []string
	fallback  string
	distance  vectordb.Distance
	log       *logger.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithTypes replaces the document type axis.
func WithTypes(types ...string) Option {
	return func(r *Router) {
		if len(types) > 0 {
			r.types = types
		}
	}
}

// WithLanguages replaces the language axis.
func WithLanguages(langs ...string) Option {
	return func(r *Router) {
		if len(langs) > 0 {
			r.languages = langs
		}
	}
}

// WithFallbackLanguage sets the partition language for unknown languages.
func WithFallbackLanguage(code string) Option {
	return func(r *Router) {
		if code != "" {
			r.fallback = code
		}
	}
}

// WithDistance sets the metric new collections are created with.
func WithDistance(d vectordb.Distance) Option {
	return func(r *Router) {
		if d != "" {
			r.distance = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(r *Router) { r.log = l }
}

// New returns a Router over store.
func New(store vectordb.Store, opts ...Option) *Router {
	r := &Router{
		store:     store,
		types:     DefaultTypes,
		languages: DefaultLanguages,
		fallback:  DefaultFallbackLanguage,
		distance:  vectordb.Cosine,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the underlying store.
func (r *Router) Store() vectordb.Store { return r.store }

// CollectionName formats a partition name.
func CollectionName(typeCode, langCode string) string {
	return CollectionPrefix + typeCode + "_" + langCode
}

// Collections lists every partition, types outermost.
func (r *Router) Collections() []string {
	out := make([]string, 0, len(r.types)*len(r.languages))
	for _, t := range r.types {
		for _, l := range r.languages {
			out = append(out, CollectionName(t, l))
		}
	}
	return out
}

// InitializeCollections creates every partition. With recreate, existing
// partitions are emptied.
func (r *Router) InitializeCollections(ctx context.Context, vectorSize int, recreate bool) error {
	r.log.Debugf("Initializing %d collections (vector_size=%d, recreate=%v)", len(r.types)*len(r.languages), vectorSize, recreate)
	for _, name := range r.Collections() {
		if err := r.store.CreateCollection(ctx, name, vectorSize, r.distance, recreate); err != nil {
			return fmt.Errorf("initializing %s: %w", name, err)
		}
	}
	return nil
}

// TypeCode accepts either a type code ("account") or a document type
// ("account_contact").
func (r *Router) TypeCode(docType string) string {
	if contains(r.types, docType) {
		return docType
	}
	return metadata.TypeCode(docType)
}

// LanguageCode accepts either a language code ("ko") or a language name
// ("korean") and maps languages without partitions to the fallback.
func (r *Router) LanguageCode(language string) string {
	code := language
	if !contains(r.languages, code) {
		code = metadata.LanguageCode(language)
	}
	if !contains(r.languages, code) {
		return r.fallback
	}
	return code
}

// CollectionFor returns the partition a document belongs to.
func (r *Router) CollectionFor(docType, language string) string {
	return CollectionName(r.TypeCode(docType), r.LanguageCode(language))
}

// AddDocumentChunks inserts points into the partition for docType and
// language and returns its name.
func (r *Router) AddDocumentChunks(ctx context.Context, docType, language string, points []vectordb.Point, batchSize int) (string, error) {
	name := r.CollectionFor(docType, language)
	if err := r.store.AddDocuments(ctx, name, points, batchSize); err != nil {
		return name, fmt.Errorf("adding chunks to %s: %w", name, err)
	}
	r.log.Debugf("Added %d points to %s", len(points), name)
	return name, nil
}

// DeleteDocument removes the points of documentID from its partition,
// restricted to sourceFile when it is set. Manuals that classify identically
// share a document id, so callers replacing one file pass its name.
func (r *Router) DeleteDocument(ctx context.Context, docType, language, documentID, sourceFile string) error {
	name := r.CollectionFor(docType, language)
	exists, err := r.store.CollectionExists(ctx, name)
	if err != nil || !exists {
		return err
	}
	filters := vectordb.Filters{chunker.KeyDocumentID: documentID}
	if sourceFile != "" {
		filters[chunker.KeySourceFile] = sourceFile
	}
	return r.store.DeleteDocuments(ctx, name, filters)
}

// SearchAllCollections searches each existing partition on the requested
// axes for topK results, merges them by descending score and keeps topK*2.
// An empty language or docType means every value on that axis.
func (r *Router) SearchAllCollections(ctx context.Context, vector []float32, topK int, language, docType string) ([]vectordb.SearchResult, error) {
	types := r.types
	if docType != "" {
		types = []string{r.TypeCode(docType)}
	}
	langs := r.languages
	if language != "" {
		langs = []string{r.LanguageCode(language)}
	}

	var names []string
	for _, t := range types {
		for _, l := range langs {
			names = append(names, CollectionName(t, l))
		}
	}

	results, err := r.searchEach(ctx, names, vector, vectordb.SearchOptions{TopK: topK})
	if err != nil {
		return nil, err
	}
	return truncate(results, topK*2), nil
}

// SearchLanguage searches every partition of langCode for perCollection
// results scoring at least threshold, merges them by descending score and
// keeps limit.
func (r *Router) SearchLanguage(ctx context.Context, vector []float32, langCode string, perCollection int, threshold float64, limit int) ([]vectordb.SearchResult, error) {
	suffix := "_" + r.LanguageCode(langCode)
	var names []string
	for _, name := range r.Collections() {
		if strings.HasSuffix(name, suffix) {
			names = append(names, name)
		}
	}

	results, err := r.searchEach(ctx, names, vector, vectordb.SearchOptions{
		TopK:           perCollection,
		ScoreThreshold: vectordb.Threshold(threshold),
	})
	if err != nil {
		return nil, err
	}
	return truncate(results, limit), nil
}

func (r *Router) searchEach(ctx context.Context, names []string, vector []float32, opts vectordb.SearchOptions) ([]vectordb.SearchResult, error) {
	var all []vectordb.SearchResult
	for _, name := range names {
		exists, err := r.store.CollectionExists(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", name, err)
		}
		if !exists {
			r.log.Debugf("Skipping missing collection %s", name)
			continue
		}
		results, err := r.store.Search(ctx, name, vector, opts)
		if err != nil {
			return nil, fmt.Errorf("searching %s: %w", name, err)
		}
		for i := range results {
			results[i].Metadata.Set(MetadataCollection, name)
		}
		all = append(all, results...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	return all, nil
}

// CollectionStats describes one partition. Error is set when its info could
// not be read.
type CollectionStats struct {
	Name        string            `json:"name"`
	PointsCount int               `json:"points_count"`
	VectorSize  int               `json:"vector_size"`
	Distance    vectordb.Distance `json:"distance"`
	Error       string            `json:"error,omitempty"`
}

// Stats reports every crm_ collection in the store, sorted by name.
func (r *Router) Stats(ctx context.Context) ([]CollectionStats, error) {
	names, err := r.store.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	var out []CollectionStats
	for _, name := range names {
		if !strings.HasPrefix(name, CollectionPrefix) {
			continue
		}
		info, err := r.store.CollectionInfo(ctx, name)
		if err != nil {
			out = append(out, CollectionStats{Name: name, Error: err.Error()})
			continue
		}
		out = append(out, CollectionStats{
			Name:        name,
			PointsCount: info.PointsCount,
			VectorSize:  info.VectorSize,
			Distance:    info.Distance,
		})
	}
	return out, nil
}

func truncate(results []vectordb.SearchResult, n int) []vectordb.SearchResult {
	if n >= 0 && len(results) > n {
		return results[:n]
	}
	return results
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
