package rag

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/ziadkadry99/crm-manual-rag/internal/chunker"
	"github.com/ziadkadry99/crm-manual-rag/internal/llm"
	"github.com/ziadkadry99/crm-manual-rag/internal/metadata"
	"github.com/ziadkadry99/crm-manual-rag/internal/vectordb"
)

// Generation defaults.
const (
	DefaultModel       = "gpt-4"
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 1000
)

const previewRunes = 200

const (
	noAnswerKorean  = "죄송합니다. 질문과 관련된 내용을 매뉴얼에서 찾을 수 없습니다."
	noAnswerEnglish = "I'm sorry, I couldn't find relevant information in the manuals."
)

// NoAnswer is the reply given when no chunk matched the question.
func NoAnswer(language string) string {
	if language == metadata.Korean {
		return noAnswerKorean
	}
	return noAnswerEnglish
}

// Source cites one context block of an answer.
type Source struct {
	Index       int     `json:"index"`
	DocumentID  string  `json:"document_id"`
	Type        string  `json:"type"`
	Language    string  `json:"language"`
	ChunkID     string  `json:"chunk_id"`
	Score       float64 `json:"score"`
	TextPreview string  `json:"text_preview"`
}

// TokenUsage reports model token counts.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Answer is a generated reply with its citations.
type Answer struct {
	Answer     string     `json:"answer"`
	Sources    []Source   `json:"sources"`
	Model      string     `json:"model"`
	TokenUsage TokenUsage `json:"token_usage"`
}

// Generator turns ranked chunks into an answer with a chat model.
type Generator struct {
	provider    llm.Provider
	model       string
	temperature float64
	maxTokens   int
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithModel overrides the chat model.
func WithModel(model string) GeneratorOption {
	return func(g *Generator) {
		if model != "" {
			g.model = model
		}
	}
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float64) GeneratorOption {
	return func(g *Generator) { g.temperature = t }
}

// WithMaxTokens overrides the completion limit.
func WithMaxTokens(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// NewGenerator returns a Generator using gpt-4 at temperature 0.3 with a
// 1000 token limit unless overridden.
func NewGenerator(p llm.Provider, opts ...GeneratorOption) *Generator {
	g := &Generator{
		provider:    p,
		model:       DefaultModel,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Model returns the configured chat model.
func (g *Generator) Model() string { return g.model }

func (g *Generator) request(query string, results []vectordb.SearchResult, language string) llm.CompletionRequest {
	return llm.CompletionRequest{
		Model: g.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: SystemPrompt(language)},
			{Role: llm.RoleUser, Content: UserPrompt(query, results, language)},
		},
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	}
}

func (g *Generator) noAnswer(language string) *Answer {
	return &Answer{Answer: NoAnswer(language), Sources: []Source{}, Model: g.model}
}

func (g *Generator) answer(resp *llm.CompletionResponse, results []vectordb.SearchResult) *Answer {
	return &Answer{
		Answer:  resp.Content,
		Sources: Sources(results),
		Model:   g.model,
		TokenUsage: TokenUsage{
			Prompt:     resp.InputTokens,
			Completion: resp.OutputTokens,
			Total:      resp.TotalTokens(),
		},
	}
}

// Generate answers query from results. With no results the model is not
// called and the language's no-answer reply is returned.
func (g *Generator) Generate(ctx context.Context, query string, results []vectordb.SearchResult, language string) (*Answer, error) {
	if len(results) == 0 {
		return g.noAnswer(language), nil
	}
	resp, err := g.provider.Complete(ctx, g.request(query, results, language))
	if err != nil {
		return nil, fmt.Errorf("generating answer with %s: %w", g.provider.Name(), err)
	}
	return g.answer(resp, results), nil
}

// Stream is Generate with the answer text delivered to onDelta as it is
// produced. The no-answer reply arrives as a single delta.
func (g *Generator) Stream(ctx context.Context, query string, results []vectordb.SearchResult, language string, onDelta llm.DeltaFunc) (*Answer, error) {
	if len(results) == 0 {
		a := g.noAnswer(language)
		if err := onDelta(a.Answer); err != nil {
			return nil, err
		}
		return a, nil
	}
	resp, err := llm.Stream(ctx, g.provider, g.request(query, results, language), onDelta)
	if err != nil {
		return nil, fmt.Errorf("streaming answer with %s: %w", g.provider.Name(), err)
	}
	return g.answer(resp, results), nil
}

// Sources cites results in order, numbered from 1.
func Sources(results []vectordb.SearchResult) []Source {
	out := make([]Source, 0, len(results))
	for i, r := range results {
		out = append(out, Source{
			Index:       i + 1,
			DocumentID:  orUnknown(r.Metadata.String(chunker.KeyDocumentID)),
			Type:        orUnknown(r.Metadata.String(chunker.KeyType)),
			Language:    orUnknown(r.Metadata.String(chunker.KeyLanguage)),
			ChunkID:     r.ChunkID,
			Score:       r.Score,
			TextPreview: Preview(r.Text),
		})
	}
	return out
}

// Preview returns the first 200 characters of text, followed by "..." when
// it was cut.
func Preview(text string) string {
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	return string([]rune(text)[:previewRunes]) + "..."
}
