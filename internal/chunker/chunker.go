package chunker

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ziadkadry99/crm-manual-rag/internal/sections"
)

// Defaults used when no option overrides them. Sizes are in runes.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultMinChunkSize = 100
	DefaultMaxChunkSize = 2000

	// contextWindow is how many runes of each neighbour ChunkWithContext keeps.
	contextWindow = 100
)

// Chunker splits document text into chunks.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	minChunkSize int
	maxChunkSize int
	headers      *sections.Matcher
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the target chunk size.
func WithChunkSize(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithChunkOverlap sets the overlap carried between neighbouring chunks.
func WithChunkOverlap(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.chunkOverlap = n
		}
	}
}

// WithMinChunkSize sets the size below which chunks are discarded.
func WithMinChunkSize(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.minChunkSize = n
		}
	}
}

// WithMaxChunkSize sets the section size above which semantic chunking
// falls back to recursive splitting.
func WithMaxChunkSize(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxChunkSize = n
		}
	}
}

// WithHeaderMatcher replaces the header matcher used by semantic chunking.
func WithHeaderMatcher(m *sections.Matcher) Option {
	return func(c *Chunker) {
		if m != nil {
			c.headers = m
		}
	}
}

// New returns a Chunker with defaults overridden by opts.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		minChunkSize: DefaultMinChunkSize,
		maxChunkSize: DefaultMaxChunkSize,
		headers:      sections.Default,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.chunkOverlap >= c.chunkSize {
		c.chunkOverlap = c.chunkSize / 4
	}
	return c
}

// ChunkSize returns the configured chunk size.
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// ChunkOverlap returns the configured overlap.
func (c *Chunker) ChunkOverlap() int { return c.chunkOverlap }

// MinChunkSize returns the configured minimum chunk size.
func (c *Chunker) MinChunkSize() int { return c.minChunkSize }

// draft is a piece of text plus the strategy-specific metadata it carries.
type draft struct {
	text  string
	extra Metadata
}

// ChunkDocument splits text with the given strategy. base must hold every
// required key except chunk_index. Chunks shorter than the minimum size are
// dropped and the survivors are numbered from 0.
func (c *Chunker) ChunkDocument(text string, base Metadata, strategy Strategy) ([]Chunk, error) {
	if !strategy.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStrategy, strategy)
	}
	for _, k := range RequiredKeys {
		if k != KeyChunkIndex && !base.Has(k) {
			return nil, fmt.Errorf("%w: %s", ErrMissingMetadata, k)
		}
	}

	var drafts []draft
	var err error
	switch strategy {
	case Fixed:
		drafts = c.fixed(text)
	case Recursive:
		drafts, err = c.recursive(text)
	case Semantic:
		drafts, err = c.semantic(text)
	case Token:
		drafts = c.token(text)
	}
	if err != nil {
		return nil, err
	}
	return c.finalize(drafts, base)
}

// ChunkWithContext is ChunkDocument followed, when addContext is set and more
// than one chunk exists, by recording a short excerpt of each chunk's
// neighbours under the "context" metadata key. Chunk text is not changed.
func (c *Chunker) ChunkWithContext(text string, base Metadata, strategy Strategy, addContext bool) ([]Chunk, error) {
	chunks, err := c.ChunkDocument(text, base, strategy)
	if err != nil {
		return nil, err
	}
	if !addContext || len(chunks) <= 1 {
		return chunks, nil
	}
	AddNeighbourContext(chunks)
	return chunks, nil
}

// AddNeighbourContext sets the "context" metadata of each chunk from the tail
// of the previous chunk and the head of the next one.
func AddNeighbourContext(chunks []Chunk) {
	for i := range chunks {
		var parts []string
		if i > 0 {
			parts = append(parts, fmt.Sprintf("[이전 내용: ...%s]", lastRunes(chunks[i-1].Text, contextWindow)))
		}
		if i < len(chunks)-1 {
			parts = append(parts, fmt.Sprintf("[다음 내용: %s...]", firstRunes(chunks[i+1].Text, contextWindow)))
		}
		if len(parts) > 0 {
			chunks[i].Metadata.Set(KeyContext, strings.Join(parts, "\n"))
		}
	}
}

func (c *Chunker) finalize(drafts []draft, base Metadata) ([]Chunk, error) {
	documentID := base.String(KeyDocumentID)

	var out []Chunk
	for _, d := range drafts {
		if d.text == "" || utf8.RuneCountInString(d.text) < c.minChunkSize {
			continue
		}
		idx := len(out)
		md := base.Clone()
		md.Set(KeyChunkIndex, idx)
		md.Merge(d.extra)

		ch, err := NewChunk(ChunkID(documentID, idx), d.text, md)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, nil
}

// fixed emits windows of chunkSize runes, each starting chunkOverlap runes
// before the previous one ended, until a window starts past the text. The
// last window can therefore lie entirely inside the previous one's overlap.
func (c *Chunker) fixed(text string) []draft {
	runes := []rune(text)

	var out []draft
	for start := 0; start < len(runes); start += c.chunkSize - c.chunkOverlap {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		d := draft{text: string(runes[start:end])}
		d.extra.Set(KeyChunkStart, start)
		d.extra.Set(KeyChunkEnd, end)
		out = append(out, d)
	}
	return out
}

func (c *Chunker) recursive(text string) ([]draft, error) {
	splitter, err := NewRecursiveSplitter(c.chunkSize, c.chunkOverlap)
	if err != nil {
		return nil, err
	}
	pieces, err := splitter.Split(context.Background(), text)
	if err != nil {
		return nil, err
	}
	out := make([]draft, len(pieces))
	for i, p := range pieces {
		out[i] = draft{text: p}
	}
	return out, nil
}

func (c *Chunker) semantic(text string) ([]draft, error) {
	var out []draft
	for _, sec := range c.headers.Split(text) {
		body := strings.TrimSpace(sec.Body)
		if utf8.RuneCountInString(body) > c.maxChunkSize {
			subs, err := c.recursive(body)
			if err != nil {
				return nil, err
			}
			for _, sub := range subs {
				sub.extra.Set(KeySectionTitle, sec.Title)
				out = append(out, sub)
			}
			continue
		}
		d := draft{text: body}
		d.extra.Set(KeySectionTitle, sec.Title)
		out = append(out, d)
	}
	return out, nil
}

func (c *Chunker) token(text string) []draft {
	pieces := splitTokens(text, c.chunkSize/4, c.chunkOverlap/4)
	out := make([]draft, len(pieces))
	for i, p := range pieces {
		out[i] = draft{text: p}
	}
	return out
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func lastRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

