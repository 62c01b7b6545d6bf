package rag

import (
	"context"

	"github.com/ziadkadry99/crm-manual-rag/internal/history"
	"github.com/ziadkadry99/crm-manual-rag/internal/llm"
	"github.com/ziadkadry99/crm-manual-rag/internal/logger"
)

// Recorder stores asked questions.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

// Reply is an answer together with the retrieval behind it.
type Reply struct {
	*Answer
	Language string `json:"language"`
	// HTML is the answer rendered from markdown.
	HTML string `json:"html,omitempty"`
}

// Assistant answers questions end to end.
type Assistant struct {
	retriever *Retriever
	generator *Generator
	recorder  Recorder
	renderer  *Renderer
	queries   QueryProcessor
	log       *logger.Logger
}

// NewAssistant wires a retriever and a generator. recorder may be nil.
func NewAssistant(r *Retriever, g *Generator, recorder Recorder, log *logger.Logger) *Assistant {
	return &Assistant{
		retriever: r,
		generator: g,
		recorder:  recorder,
		renderer:  NewRenderer(),
		log:       log,
	}
}

// Retriever returns the underlying retriever.
func (a *Assistant) Retriever() *Retriever { return a.retriever }

// Search retrieves without generating.
func (a *Assistant) Search(ctx context.Context, query string) (*Retrieval, error) {
	return a.retriever.Retrieve(ctx, query)
}

// Ask retrieves context for query and generates a cited answer.
func (a *Assistant) Ask(ctx context.Context, query string) (*Reply, error) {
	ret, err := a.retriever.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}
	a.log.Debugf("retrieved %d chunks for %s query", len(ret.Results), ret.Language)

	ans, err := a.generator.Generate(ctx, query, ret.Results, ret.Language)
	if err != nil {
		return nil, err
	}
	a.record(ctx, ret)
	return a.reply(ans, ret.Language), nil
}

// AskStream is Ask with answer text passed to onDelta as it arrives.
func (a *Assistant) AskStream(ctx context.Context, query string, onDelta llm.DeltaFunc) (*Reply, error) {
	ret, err := a.retriever.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}
	ans, err := a.generator.Stream(ctx, query, ret.Results, ret.Language, onDelta)
	if err != nil {
		return nil, err
	}
	a.record(ctx, ret)
	return a.reply(ans, ret.Language), nil
}

func (a *Assistant) reply(ans *Answer, language string) *Reply {
	r := &Reply{Answer: ans, Language: language}
	html, err := a.renderer.Render(ans.Answer)
	if err != nil {
		a.log.Warnf("%v", err)
		return r
	}
	r.HTML = html
	return r
}

func (a *Assistant) record(ctx context.Context, ret *Retrieval) {
	if a.recorder == nil {
		return
	}
	e := history.Entry{
		Query:       a.queries.Optimize(ret.Query),
		Language:    ret.Language,
		ResultCount: len(ret.Results),
		Answered:    len(ret.Results) > 0,
	}
	if len(ret.Results) > 0 {
		e.TopScore = ret.Results[0].Score
	}
	if err := a.recorder.Record(ctx, e); err != nil {
		a.log.Warnf("recording query: %v", err)
	}
}
