package embeddings

import (
	"context"
	"fmt"
	"sort"

	"github.com/ziadkadry99/crm-manual-rag/internal/metadata"
)

// MultilingualService routes texts to per-language embedders and falls back
// to a default embedder for languages without one.
type MultilingualService struct {
	byLanguage map[string]Embedder
	fallback   Embedder
}

// NewMultilingualService creates a router over per-language embedders.
func NewMultilingualService(fallback Embedder, byLanguage map[string]Embedder) *MultilingualService {
	m := &MultilingualService{byLanguage: make(map[string]Embedder, len(byLanguage)), fallback: fallback}
	for lang, e := range byLanguage {
		m.byLanguage[lang] = e
	}
	return m
}

// DetectTextLanguage is korean when text contains Hangul, english otherwise.
func DetectTextLanguage(text string) string {
	if metadata.HasHangul(text) {
		return metadata.Korean
	}
	return metadata.English
}

// For returns the embedder serving language.
func (m *MultilingualService) For(language string) Embedder {
	if e, ok := m.byLanguage[language]; ok {
		return e
	}
	return m.fallback
}

// EmbedBatch groups texts by language, embeds each group with its embedder
// and returns the vectors in input order. languages may be nil, in which
// case each text's language is detected; otherwise it must match texts.
func (m *MultilingualService) EmbedBatch(ctx context.Context, texts, languages []string) ([][]float32, error) {
	if languages != nil && len(languages) != len(texts) {
		return nil, fmt.Errorf("got %d languages for %d texts", len(languages), len(texts))
	}

	type group struct {
		idx   []int
		texts []string
	}
	groups := make(map[Embedder]*group)
	var order []Embedder

	for i, text := range texts {
		lang := ""
		if languages != nil {
			lang = languages[i]
		}
		if lang == "" {
			lang = DetectTextLanguage(text)
		}
		e := m.For(lang)
		g, ok := groups[e]
		if !ok {
			g = &group{}
			groups[e] = g
			order = append(order, e)
		}
		g.idx = append(g.idx, i)
		g.texts = append(g.texts, text)
	}

	out := make([][]float32, len(texts))
	for _, e := range order {
		g := groups[e]
		embs, err := e.Embed(ctx, g.texts)
		if err != nil {
			return nil, fmt.Errorf("embedding with %s: %w", e.Name(), err)
		}
		if len(embs) != len(g.texts) {
			return nil, fmt.Errorf("%s returned %d embeddings for %d texts", e.Name(), len(embs), len(g.texts))
		}
		for j, emb := range embs {
			out[g.idx[j]] = emb
		}
	}
	return out, nil
}

// Embed detects each text's language and embeds it with that language's
// embedder.
func (m *MultilingualService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return m.EmbedBatch(ctx, texts, nil)
}

// Dimensions is the fallback embedder's vector size. Every language embedder
// must produce the same size since all partitions share it.
func (m *MultilingualService) Dimensions() int { return m.fallback.Dimensions() }

// Name lists the fallback and per-language embedders.
func (m *MultilingualService) Name() string {
	langs := make([]string, 0, len(m.byLanguage))
	for lang := range m.byLanguage {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	name := m.fallback.Name()
	for _, lang := range langs {
		name += "," + lang + "=" + m.byLanguage[lang].Name()
	}
	return name
}
