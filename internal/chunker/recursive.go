package chunker

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/cloudwego/eino-ext/components/document/transformer/splitter/recursive"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"
)

// DefaultSeparators are tried in order, coarsest first. They cover section
// and paragraph breaks, lines, CJK and Latin sentence ends, commas and spaces.
var DefaultSeparators = []string{
	"\n\n\n",
	"\n\n",
	"\n",
	"。",
	". ",
	"! ",
	"? ",
	", ",
	" ",
}

// RecursiveSplitter splits text on the coarsest separator that occurs in it,
// recursing with finer separators into pieces that are still too long, then
// merges neighbouring pieces up to the chunk size with up to overlap runes
// carried between consecutive chunks. Separators stay at the start of the
// piece that follows them. Lengths are measured in runes.
type RecursiveSplitter struct {
	t document.Transformer
}

// NewRecursiveSplitter returns a splitter over separators, or
// DefaultSeparators when none are given.
func NewRecursiveSplitter(chunkSize, overlap int, separators ...string) (*RecursiveSplitter, error) {
	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	t, err := recursive.NewSplitter(context.Background(), &recursive.Config{
		ChunkSize:   chunkSize,
		OverlapSize: overlap,
		Separators:  separators,
		LenFunc:     utf8.RuneCountInString,
		KeepType:    recursive.KeepTypeStart,
	})
	if err != nil {
		return nil, fmt.Errorf("recursive splitter: %w", err)
	}
	return &RecursiveSplitter{t: t}, nil
}

// Split returns the chunk texts in document order. Blank pieces are dropped.
func (s *RecursiveSplitter) Split(ctx context.Context, text string) ([]string, error) {
	docs, err := s.t.Transform(ctx, []*schema.Document{{Content: text}})
	if err != nil {
		return nil, fmt.Errorf("splitting text: %w", err)
	}
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.Content != "" {
			out = append(out, d.Content)
		}
	}
	return out, nil
}
